// Package util holds the environment and phone number helpers shared by the
// command and the transports.
package util

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// EnvString returns the trimmed value of key, or def when it is unset or blank.
func EnvString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// EnvBool reads key as a flag. Besides strconv.ParseBool forms it accepts
// yes/no and on/off. Anything else logs a warning and yields def.
func EnvBool(key string, def bool) bool {
	raw := EnvString(key, "")
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "yes", "on":
		return true
	case "no", "off":
		return false
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		slog.Warn("util.EnvBool: ignoring unparseable value", "key", key, "value", raw, "default", def)
		return def
	}
	return b
}

// EnvInt reads key as a positive integer, falling back to def.
func EnvInt(key string, def int) int {
	raw := EnvString(key, "")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		slog.Warn("util.EnvInt: ignoring value, want a positive integer", "key", key, "value", raw, "default", def)
		return def
	}
	return n
}

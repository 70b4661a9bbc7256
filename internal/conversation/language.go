package conversation

import (
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"unicode"
)

// languagePhrases are the whole-message forms that switch the reply
// language. %s is a language name.
var languagePhrases = []string{
	"change to %s",
	"change language to %s",
	"switch to %s",
	"%s language",
	"speak %s",
	"reply in %s",
	"in %s",
	"use %s",
	"%s please",
}

var languageCodeRe = regexp.MustCompile(`^lang(?:uage)?\s+([a-z]{2})$`)

// languageInterrupt switches the user's reply language when the message
// asks for it. The stage does not change.
func (d *Dispatcher) languageInterrupt(t *turn) bool {
	if !t.freeText() {
		return false
	}
	code, ok := d.requestedLanguage(t.text)
	if !ok {
		return false
	}
	name := code
	if names := d.catalog.Languages[code]; len(names) > 0 {
		name = names[0]
	}
	slog.Info("Dispatcher.languageInterrupt: language changed", "user_id", t.userID(), "from", t.state.Language, "to", code)
	t.state.Language = code
	t.sayf(msgLanguageChanged, titleCase(name))
	return true
}

// requestedLanguage returns the catalog language code text asks for.
func (d *Dispatcher) requestedLanguage(text string) (string, bool) {
	msg := strings.ToLower(strings.TrimSpace(text))
	msg = strings.TrimRightFunc(msg, unicode.IsPunct)
	if m := languageCodeRe.FindStringSubmatch(msg); m != nil {
		if _, ok := d.catalog.Languages[m[1]]; ok {
			return m[1], true
		}
		return "", false
	}

	codes := make([]string, 0, len(d.catalog.Languages))
	for code := range d.catalog.Languages {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	for _, code := range codes {
		for _, name := range d.catalog.Languages[code] {
			for _, p := range languagePhrases {
				if msg == fmt.Sprintf(p, strings.ToLower(name)) {
					return code, true
				}
			}
		}
	}
	return "", false
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

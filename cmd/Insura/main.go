package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/BTreeMap/Insura/internal/api"
	"github.com/BTreeMap/Insura/internal/backend"
	"github.com/BTreeMap/Insura/internal/cloudapi"
	"github.com/BTreeMap/Insura/internal/events"
	"github.com/BTreeMap/Insura/internal/genai"
	"github.com/BTreeMap/Insura/internal/messaging"
	"github.com/BTreeMap/Insura/internal/util"
)

// Default configuration constants
const (
	DefaultStateDir  = "/var/lib/insura"
	DefaultTransport = transportCloud
	DefaultLogLevel  = "debug"
	adminTokenTTL    = 24 * time.Hour
)

const (
	transportCloud     = "cloud"
	transportTwilio    = "twilio"
	transportWhatsmeow = "whatsmeow"
)

// Config holds the merged environment and flag configuration.
type Config struct {
	Transport          string
	WhatsAppToken      string
	PhoneNumberID      string
	VerifyToken        string
	APIVersion         string
	TwilioAccountSID   string
	TwilioAuthToken    string
	TwilioFrom         string
	WhatsAppDBDSN      string
	QROutput           string
	NumericCode        bool
	OpenAIKey          string
	OpenAIModel        string
	OpenAIVisionModel  string
	GenAIDebug         bool
	DatabaseDSN        string
	StateDir           string
	APIAddr            string
	BackendBaseURL     string
	QuoteLinkBase      string
	EMAFLinkBase       string
	ReviewLink         string
	TakafulBrochure    string
	CatalogPath        string
	AMQPURL            string
	AMQPExchange       string
	AdminJWTSecret     string
	CORSOrigins        []string
	MaxConcurrentTurns int
	Pacing             bool
	LogLevel           string
	PrintAdminToken    bool
}

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	initializeLogger(cfg.LogLevel)

	if cfg.PrintAdminToken {
		token, err := api.NewAdminToken(cfg.AdminJWTSecret, "admin", adminTokenTTL)
		if err != nil {
			slog.Error("Failed to issue admin token", "error", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping Insura", "transport", cfg.Transport, "state_dir", cfg.StateDir, "api_addr", cfg.APIAddr)
	if err := run(ctx, cfg); err != nil {
		slog.Error("Insura failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("Insura exited successfully")
}

// loadConfig reads .env, then the environment, then command line flags.
func loadConfig(args []string) (Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}
	cfg := loadEnvironmentConfig()
	if err := parseCommandLineFlags(&cfg, args); err != nil {
		return cfg, err
	}
	return cfg, validateConfig(cfg)
}

// loadEnvironmentConfig reads every supported environment variable.
func loadEnvironmentConfig() Config {
	return Config{
		Transport:          strings.ToLower(util.EnvString("WHATSAPP_TRANSPORT", DefaultTransport)),
		WhatsAppToken:      os.Getenv("WHATSAPP_TOKEN"),
		PhoneNumberID:      os.Getenv("WHATSAPP_PHONE_NUMBER_ID"),
		VerifyToken:        os.Getenv("WHATSAPP_VERIFY_TOKEN"),
		APIVersion:         util.EnvString("WHATSAPP_API_VERSION", cloudapi.DefaultAPIVersion),
		TwilioAccountSID:   os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:    os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:         os.Getenv("TWILIO_FROM_NUMBER"),
		WhatsAppDBDSN:      os.Getenv("WHATSAPP_DB_DSN"),
		OpenAIKey:          os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:        util.EnvString("OPENAI_MODEL", genai.DefaultModel),
		OpenAIVisionModel:  util.EnvString("OPENAI_VISION_MODEL", genai.DefaultVisionModel),
		DatabaseDSN:        os.Getenv("DATABASE_DSN"),
		StateDir:           util.EnvString("INSURA_STATE_DIR", DefaultStateDir),
		APIAddr:            util.EnvString("API_ADDR", api.DefaultAddr),
		BackendBaseURL:     util.EnvString("BACKEND_BASE_URL", backend.DefaultBaseURL),
		QuoteLinkBase:      os.Getenv("QUOTE_LINK_BASE"),
		EMAFLinkBase:       os.Getenv("EMAF_LINK_BASE"),
		ReviewLink:         os.Getenv("REVIEW_LINK"),
		TakafulBrochure:    os.Getenv("TAKAFUL_BROCHURE_URL"),
		CatalogPath:        os.Getenv("INSURA_CATALOG"),
		AMQPURL:            os.Getenv("AMQP_URL"),
		AMQPExchange:       util.EnvString("AMQP_EXCHANGE", events.DefaultExchange),
		AdminJWTSecret:     os.Getenv("ADMIN_JWT_SECRET"),
		CORSOrigins:        splitList(os.Getenv("CORS_ORIGINS")),
		MaxConcurrentTurns: util.EnvInt("MAX_CONCURRENT_TURNS", messaging.DefaultMaxConcurrentTurns),
		Pacing:             util.EnvBool("INSURA_PACING", true),
		LogLevel:           util.EnvString("INSURA_LOG_LEVEL", DefaultLogLevel),
	}
}

// parseCommandLineFlags overrides cfg with any flags given in args.
func parseCommandLineFlags(cfg *Config, args []string) error {
	fs := flag.NewFlagSet("insura", flag.ContinueOnError)
	fs.StringVar(&cfg.Transport, "transport", cfg.Transport, "WhatsApp transport: cloud, twilio or whatsmeow (overrides $WHATSAPP_TRANSPORT)")
	fs.StringVar(&cfg.StateDir, "state-dir", cfg.StateDir, "state directory for lock and debug files (overrides $INSURA_STATE_DIR)")
	fs.StringVar(&cfg.DatabaseDSN, "db-dsn", cfg.DatabaseDSN, "conversation database DSN; empty keeps state in memory (overrides $DATABASE_DSN)")
	fs.StringVar(&cfg.WhatsAppDBDSN, "whatsapp-db-dsn", cfg.WhatsAppDBDSN, "whatsmeow session database DSN (overrides $WHATSAPP_DB_DSN)")
	fs.StringVar(&cfg.QROutput, "qr-output", cfg.QROutput, "path to write the whatsmeow login QR code")
	fs.BoolVar(&cfg.NumericCode, "numeric-code", cfg.NumericCode, "print a numeric whatsmeow login code instead of a QR code")
	fs.StringVar(&cfg.OpenAIKey, "openai-api-key", cfg.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)")
	fs.BoolVar(&cfg.GenAIDebug, "genai-debug", cfg.GenAIDebug, "write LLM calls to the state directory")
	fs.StringVar(&cfg.APIAddr, "api-addr", cfg.APIAddr, "HTTP listen address (overrides $API_ADDR)")
	fs.StringVar(&cfg.CatalogPath, "catalog", cfg.CatalogPath, "YAML catalog replacing the built-in menus and knowledge base (overrides $INSURA_CATALOG)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn or error (overrides $INSURA_LOG_LEVEL)")
	fs.BoolVar(&cfg.Pacing, "pacing", cfg.Pacing, "pause between consecutive messages (overrides $INSURA_PACING)")
	fs.BoolVar(&cfg.PrintAdminToken, "print-admin-token", false, "print an admin API token signed with $ADMIN_JWT_SECRET and exit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg.Transport = strings.ToLower(strings.TrimSpace(cfg.Transport))
	return nil
}

// validateConfig checks that the selected transport has its credentials.
func validateConfig(cfg Config) error {
	if cfg.PrintAdminToken {
		if cfg.AdminJWTSecret == "" {
			return errors.New("ADMIN_JWT_SECRET must be set to issue an admin token")
		}
		return nil
	}
	var missing []string
	need := func(value, name string) {
		if value == "" {
			missing = append(missing, name)
		}
	}
	switch cfg.Transport {
	case transportCloud:
		need(cfg.WhatsAppToken, "WHATSAPP_TOKEN")
		need(cfg.PhoneNumberID, "WHATSAPP_PHONE_NUMBER_ID")
		need(cfg.VerifyToken, "WHATSAPP_VERIFY_TOKEN")
	case transportTwilio:
		need(cfg.TwilioAccountSID, "TWILIO_ACCOUNT_SID")
		need(cfg.TwilioAuthToken, "TWILIO_AUTH_TOKEN")
		need(cfg.TwilioFrom, "TWILIO_FROM_NUMBER")
	case transportWhatsmeow:
	default:
		return fmt.Errorf("unknown transport %q (want cloud, twilio or whatsmeow)", cfg.Transport)
	}
	need(cfg.OpenAIKey, "OPENAI_API_KEY")
	if len(missing) > 0 {
		return fmt.Errorf("missing configuration: %s", strings.Join(missing, ", "))
	}
	if _, err := parseLogLevel(cfg.LogLevel); err != nil {
		return err
	}
	return nil
}

// initializeLogger installs the process-wide text logger.
func initializeLogger(level string) {
	lvl, err := parseLogLevel(level)
	if err != nil {
		lvl = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
}

func parseLogLevel(level string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelDebug, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return lvl, nil
}

// splitList parses a comma-separated list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

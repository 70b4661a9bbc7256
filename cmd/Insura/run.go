package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/BTreeMap/Insura/internal/api"
	"github.com/BTreeMap/Insura/internal/backend"
	"github.com/BTreeMap/Insura/internal/cloudapi"
	"github.com/BTreeMap/Insura/internal/conversation"
	"github.com/BTreeMap/Insura/internal/events"
	"github.com/BTreeMap/Insura/internal/extraction"
	"github.com/BTreeMap/Insura/internal/genai"
	"github.com/BTreeMap/Insura/internal/lockfile"
	"github.com/BTreeMap/Insura/internal/messaging"
	"github.com/BTreeMap/Insura/internal/scheduler"
	"github.com/BTreeMap/Insura/internal/store"
	"github.com/BTreeMap/Insura/internal/twiliowhatsapp"
	"github.com/BTreeMap/Insura/internal/whatsapp"
)

const shutdownGrace = 10 * time.Second

// storage bundles the persistence components chosen by DATABASE_DSN.
// Outbox is nil for the in-memory store.
type storage struct {
	Conversations store.ConversationStore
	Dedup         store.DedupRepo
	Outbox        store.OutboxRepo
}

// durableStore is implemented by the SQLite and Postgres stores.
type durableStore interface {
	store.ConversationStore
	store.DedupRepo
	store.OutboxRepo
}

// openStorage selects the store: empty DSN keeps state in memory, a
// PostgreSQL DSN selects Postgres and anything else is a SQLite file.
func openStorage(dsn string) (*storage, error) {
	if dsn == "" {
		slog.Warn("No DATABASE_DSN set, conversations are kept in memory and lost on restart")
		mem := store.NewInMemoryStore()
		return &storage{Conversations: mem, Dedup: mem}, nil
	}
	var (
		s   durableStore
		err error
	)
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store")
		s, err = store.NewPostgresStore(store.WithPostgresDSN(dsn))
	} else {
		slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", dsn)
		s, err = store.NewSQLiteStore(store.WithSQLiteDSN(dsn))
	}
	if err != nil {
		return nil, err
	}
	return &storage{Conversations: s, Dedup: s, Outbox: s}, nil
}

// transport is the selected WhatsApp service and the HTTP handlers it
// needs mounted.
type transport struct {
	Service       messaging.Service
	CloudWebhook  http.HandlerFunc
	TwilioWebhook http.HandlerFunc
	close         func()
}

func openTransport(cfg Config) (*transport, error) {
	switch cfg.Transport {
	case transportCloud:
		client, err := cloudapi.NewClient(
			cloudapi.WithToken(cfg.WhatsAppToken),
			cloudapi.WithPhoneNumberID(cfg.PhoneNumberID),
			cloudapi.WithAPIVersion(cfg.APIVersion),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create Cloud API client: %w", err)
		}
		svc := messaging.NewCloudService(client, cfg.VerifyToken)
		return &transport{Service: svc, CloudWebhook: svc.WebhookHandler}, nil
	case transportTwilio:
		client, err := twiliowhatsapp.NewClient(
			twiliowhatsapp.WithAccountSID(cfg.TwilioAccountSID),
			twiliowhatsapp.WithAuthToken(cfg.TwilioAuthToken),
			twiliowhatsapp.WithFromWhats(cfg.TwilioFrom),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create Twilio client: %w", err)
		}
		svc := messaging.NewTwilioService(client)
		return &transport{Service: svc, TwilioWebhook: svc.TwilioWebhookHandler}, nil
	case transportWhatsmeow:
		var opts []whatsapp.Option
		if cfg.WhatsAppDBDSN != "" {
			opts = append(opts, whatsapp.WithDBDSN(cfg.WhatsAppDBDSN))
		}
		if cfg.QROutput != "" {
			opts = append(opts, whatsapp.WithQRCodeOutput(cfg.QROutput))
		}
		if cfg.NumericCode {
			opts = append(opts, whatsapp.WithNumericCode())
		}
		client, err := whatsapp.NewClient(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create whatsmeow client: %w", err)
		}
		return &transport{
			Service: messaging.NewWhatsAppService(client),
			close:   client.Close,
		}, nil
	}
	return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
}

func openPublisher(cfg Config) (events.Publisher, error) {
	if cfg.AMQPURL == "" {
		slog.Debug("No AMQP_URL set, lead events are not published")
		return events.NopPublisher{}, nil
	}
	return events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
}

func loadCatalog(path string) (*conversation.Catalog, error) {
	if path == "" {
		return conversation.DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	c, err := conversation.ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("invalid catalog %s: %w", path, err)
	}
	slog.Info("Loaded catalog", "path", path)
	return c, nil
}

func genaiOptions(cfg Config) []genai.Option {
	opts := []genai.Option{
		genai.WithAPIKey(cfg.OpenAIKey),
		genai.WithModel(cfg.OpenAIModel),
		genai.WithVisionModel(cfg.OpenAIVisionModel),
	}
	if cfg.GenAIDebug {
		opts = append(opts, genai.WithDebug(cfg.StateDir))
	}
	return opts
}

func dispatcherOptions(cfg Config) []conversation.Option {
	opts := []conversation.Option{
		conversation.WithLinks(conversation.Links{
			QuoteBase:       cfg.QuoteLinkBase,
			EMAFBase:        cfg.EMAFLinkBase,
			Review:          cfg.ReviewLink,
			TakafulBrochure: cfg.TakafulBrochure,
		}),
	}
	if !cfg.Pacing {
		opts = append(opts, conversation.WithSleeper(conversation.NoSleep{}))
	}
	return opts
}

func apiOptions(cfg Config) []api.Option {
	opts := []api.Option{api.WithAddr(cfg.APIAddr), api.WithAllowedOrigins(cfg.CORSOrigins)}
	if cfg.AdminJWTSecret != "" {
		opts = append(opts, api.WithJWTSecret(cfg.AdminJWTSecret))
	} else {
		slog.Warn("ADMIN_JWT_SECRET not set, admin endpoints are unauthenticated")
	}
	return opts
}

// run wires every component and blocks until ctx is cancelled or the
// HTTP server fails.
func run(ctx context.Context, cfg Config) error {
	lock, err := lockfile.AcquireLock(cfg.StateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	st, err := openStorage(cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Conversations.Close()

	catalog, err := loadCatalog(cfg.CatalogPath)
	if err != nil {
		return err
	}

	llm, err := genai.NewClient(genaiOptions(cfg)...)
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}

	publisher, err := openPublisher(cfg)
	if err != nil {
		return fmt.Errorf("failed to open lead event publisher: %w", err)
	}
	defer publisher.Close()

	tr, err := openTransport(cfg)
	if err != nil {
		return err
	}
	if tr.close != nil {
		defer tr.close()
	}

	opts := append([]conversation.Option{
		conversation.WithStore(st.Conversations),
		conversation.WithReplier(messaging.NewGateway(tr.Service, llm)),
		conversation.WithAssistant(llm),
		conversation.WithExtractor(extraction.NewVisionExtractor(llm)),
		conversation.WithSubmitter(backend.NewClient(backend.WithBaseURL(cfg.BackendBaseURL))),
		conversation.WithPublisher(publisher),
		conversation.WithCatalog(catalog),
	}, dispatcherOptions(cfg)...)
	if st.Outbox != nil {
		opts = append(opts, conversation.WithOutbox(st.Outbox))
	}
	dispatcher, err := conversation.NewDispatcher(opts...)
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}

	handler := messaging.NewEventHandler(tr.Service, dispatcher,
		messaging.WithMaxConcurrentTurns(int64(cfg.MaxConcurrentTurns)),
		messaging.WithDedup(st.Dedup),
		messaging.WithTranscriber(llm),
	)

	janitorOpts := []scheduler.Option{scheduler.WithDedup(st.Dedup)}
	var sender *store.OutboxSender
	if st.Outbox != nil {
		sender = store.NewOutboxSender(st.Outbox, dispatcher.RetryMedicalQuote)
		if err := sender.RecoverStaleMessages(ctx); err != nil {
			slog.Warn("Failed to recover stale outbox messages at startup", "error", err)
		}
		janitorOpts = append(janitorOpts, scheduler.WithOutbox(sender))
	}
	janitor, err := scheduler.NewJanitor(janitorOpts...)
	if err != nil {
		return fmt.Errorf("failed to create janitor: %w", err)
	}

	server, err := api.NewServer(append(apiOptions(cfg),
		api.WithConversations(dispatcher),
		api.WithStates(st.Conversations),
		api.WithLLM(dispatcher.Fallback()),
		api.WithCloudWebhook(tr.CloudWebhook),
		api.WithTwilioWebhook(tr.TwilioWebhook),
	)...)
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := tr.Service.Start(runCtx); err != nil {
		return fmt.Errorf("failed to start transport: %w", err)
	}
	handler.Start(runCtx)
	janitor.Start()
	senderDone := make(chan struct{})
	if sender != nil {
		go func() {
			defer close(senderDone)
			sender.Run(runCtx)
		}()
	} else {
		close(senderDone)
	}

	serveErr := server.Run(runCtx)
	if serveErr != nil && !errors.Is(serveErr, context.Canceled) {
		slog.Error("API server stopped", "error", serveErr)
	}

	slog.Info("Shutting down Insura")
	cancel()
	if err := tr.Service.Stop(); err != nil {
		slog.Warn("Failed to stop transport", "error", err)
	}
	handler.Wait()
	<-senderDone
	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer stopCancel()
	janitor.Stop(stopCtx)
	return serveErr
}

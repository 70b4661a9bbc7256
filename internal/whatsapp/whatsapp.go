// Package whatsapp runs Insura on a linked WhatsApp device through whatsmeow,
// as an alternative to the Cloud API and Twilio transports.
package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/BTreeMap/Insura/internal/store"
	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
)

const (
	// DefaultSQLitePath holds the device keys when no DSN is configured.
	DefaultSQLitePath = "/var/lib/insura/whatsmeow.db"
	userServer        = types.DefaultUserServer
)

var ErrNotConnected = errors.New("whatsapp device not connected")

// Device is what the messaging layer needs from a linked device.
type Device interface {
	SendText(ctx context.Context, to, body string) error
	Download(ctx context.Context, media whatsmeow.DownloadableMessage) ([]byte, error)
	Subscribe(handler func(evt any))
}

type Opts struct {
	DBDSN       string
	QRPath      string
	NumericCode bool
}

type Option func(*Opts)

// WithDBDSN selects the whatsmeow device store (SQLite path or Postgres DSN).
func WithDBDSN(dsn string) Option {
	return func(o *Opts) { o.DBDSN = dsn }
}

// WithQRCodeOutput writes the pairing QR code to path instead of stdout.
func WithQRCodeOutput(path string) Option {
	return func(o *Opts) { o.QRPath = path }
}

// WithNumericCode prints the raw pairing code instead of a QR image.
func WithNumericCode() Option {
	return func(o *Opts) { o.NumericCode = true }
}

// Client is a connected whatsmeow device.
type Client struct {
	wa *whatsmeow.Client
}

var _ Device = (*Client)(nil)

// withForeignKeys turns on the SQLite foreign_keys pragma whatsmeow's schema
// relies on. Postgres DSNs are returned unchanged.
func withForeignKeys(dsn string) string {
	if store.DetectDSNType(dsn) != "sqlite3" || strings.Contains(dsn, "foreign_keys") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	return dsn + sep + "_foreign_keys=on"
}

// NewClient opens the device store and connects. An unlinked device is
// paired first, which blocks until the QR code is scanned or expires.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DBDSN == "" {
		cfg.DBDSN = DefaultSQLitePath
	}
	driver := store.DetectDSNType(cfg.DBDSN)
	dsn := cfg.DBDSN
	if driver == "sqlite3" {
		dsn = withForeignKeys(dsn)
	}

	ctx := context.Background()
	container, err := sqlstore.New(ctx, driver, dsn, waLog.Stdout("Database", "WARN", true))
	if err != nil {
		return nil, fmt.Errorf("failed to open whatsapp device store: %w", err)
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load whatsapp device: %w", err)
	}
	wa := whatsmeow.NewClient(device, waLog.Stdout("Client", "WARN", true))

	if wa.Store.ID == nil {
		if err := pair(ctx, wa, cfg); err != nil {
			return nil, err
		}
	} else if err := wa.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to whatsapp: %w", err)
	}
	slog.Info("WhatsApp device connected", "driver", driver)
	return &Client{wa: wa}, nil
}

func pair(ctx context.Context, wa *whatsmeow.Client, cfg Opts) error {
	qrChan, err := wa.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("failed to start whatsapp pairing: %w", err)
	}
	if err := wa.Connect(); err != nil {
		return fmt.Errorf("failed to connect to whatsapp for pairing: %w", err)
	}

	out := io.Writer(os.Stdout)
	if cfg.QRPath != "" {
		f, err := os.Create(cfg.QRPath)
		if err != nil {
			return fmt.Errorf("failed to create QR output %s: %w", cfg.QRPath, err)
		}
		defer f.Close()
		out = f
	}

	slog.Info("WhatsApp device not linked, waiting for pairing", "qr_path", cfg.QRPath)
	for evt := range qrChan {
		switch {
		case evt.Event != whatsmeow.QRChannelEventCode:
			slog.Info("WhatsApp pairing event", "event", evt.Event)
		case cfg.NumericCode:
			fmt.Fprintln(out, evt.Code)
		default:
			qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, out)
		}
	}
	if wa.Store.ID == nil {
		return fmt.Errorf("whatsapp pairing did not complete")
	}
	return nil
}

// SendText delivers a plain text message to a phone number given as digits.
func (c *Client) SendText(ctx context.Context, to, body string) error {
	if c.wa == nil {
		return ErrNotConnected
	}
	if to == "" || body == "" {
		return fmt.Errorf("whatsapp message needs a recipient and a body")
	}
	resp, err := c.wa.SendMessage(ctx, types.NewJID(to, userServer), &waE2E.Message{Conversation: &body})
	if err != nil {
		return fmt.Errorf("failed to send whatsapp message to %s: %w", to, err)
	}
	slog.Debug("WhatsApp.SendText: sent", "to", to, "id", resp.ID)
	return nil
}

// Download fetches and decrypts the media of an inbound message.
func (c *Client) Download(ctx context.Context, media whatsmeow.DownloadableMessage) ([]byte, error) {
	if c.wa == nil {
		return nil, ErrNotConnected
	}
	data, err := c.wa.Download(ctx, media)
	if err != nil {
		return nil, fmt.Errorf("failed to download whatsapp media: %w", err)
	}
	return data, nil
}

// Subscribe registers handler for every whatsmeow event.
func (c *Client) Subscribe(handler func(evt any)) {
	if c.wa == nil {
		return
	}
	c.wa.AddEventHandler(func(evt interface{}) { handler(evt) })
}

// Close disconnects the device. The pairing stays in the device store.
func (c *Client) Close() {
	if c.wa != nil {
		c.wa.Disconnect()
	}
}

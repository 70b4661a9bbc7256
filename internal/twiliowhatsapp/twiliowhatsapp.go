// Package twiliowhatsapp sends and fetches Insura's WhatsApp traffic through
// a Twilio sender number.
package twiliowhatsapp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

const (
	channelPrefix = "whatsapp:"
	// MaxMediaBytes matches the largest document WhatsApp lets a user send.
	MaxMediaBytes = 100 << 20
	mediaTimeout  = 30 * time.Second
)

// Sender is what the messaging layer uses from Twilio.
type Sender interface {
	SendText(ctx context.Context, to, body string) error
	FetchMedia(ctx context.Context, mediaURL string) ([]byte, string, error)
}

type Opts struct {
	AccountSID string
	AuthToken  string
	FromWhats  string
}

type Option func(*Opts)

func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromWhats sets the sender number, with or without the whatsapp: prefix.
func WithFromWhats(from string) Option {
	return func(o *Opts) { o.FromWhats = from }
}

// Client talks to the Twilio Messages API.
type Client struct {
	rest     *twilio.RestClient
	from     string
	sid      string
	token    string
	http     *http.Client
	maxMedia int
}

var _ Sender = (*Client)(nil)

// address renders a number in Twilio's whatsapp:+<digits> form.
func address(number string) string {
	number = strings.TrimPrefix(strings.TrimSpace(number), channelPrefix)
	return channelPrefix + "+" + strings.TrimPrefix(number, "+")
}

func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	var missing []string
	if cfg.AccountSID == "" {
		missing = append(missing, "account SID")
	}
	if cfg.AuthToken == "" {
		missing = append(missing, "auth token")
	}
	if cfg.FromWhats == "" {
		missing = append(missing, "sender number")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("twilio client missing %s", strings.Join(missing, ", "))
	}

	return &Client{
		rest:     twilio.NewRestClientWithParams(twilio.ClientParams{Username: cfg.AccountSID, Password: cfg.AuthToken}),
		from:     address(cfg.FromWhats),
		sid:      cfg.AccountSID,
		token:    cfg.AuthToken,
		http:     &http.Client{Timeout: mediaTimeout},
		maxMedia: MaxMediaBytes,
	}, nil
}

// SendText sends body to a canonical digits-only number.
func (c *Client) SendText(ctx context.Context, to, body string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetFrom(c.from)
	params.SetTo(address(to))
	params.SetBody(body)

	msg, err := c.rest.Api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("twilio rejected message to %s: %w", to, err)
	}
	if msg != nil && msg.Sid != nil {
		slog.Debug("Twilio.SendText: accepted", "to", to, "sid", *msg.Sid)
	}
	return nil
}

// FetchMedia downloads a MediaUrl from an inbound webhook. Twilio serves
// media only to the owning account, so the request carries basic auth.
func (c *Client) FetchMedia(ctx context.Context, mediaURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("bad twilio media url: %w", err)
	}
	req.SetBasicAuth(c.sid, c.token)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch twilio media: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("failed to fetch twilio media: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, int64(c.maxMedia)+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read twilio media: %w", err)
	}
	if len(data) > c.maxMedia {
		return nil, "", fmt.Errorf("twilio media exceeds %d bytes", c.maxMedia)
	}
	return data, resp.Header.Get("Content-Type"), nil
}

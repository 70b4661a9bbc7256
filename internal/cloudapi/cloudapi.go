// Package cloudapi wraps the WhatsApp Cloud (Graph) API used to talk to
// Insura users: plain text, reply buttons, list menus, URL buttons and
// media downloads.
package cloudapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/BTreeMap/Insura/internal/models"
)

// Defaults for the Graph API endpoint.
const (
	DefaultBaseURL    = "https://graph.facebook.com"
	DefaultAPIVersion = "v21.0"
	DefaultTimeout    = 30 * time.Second
	// ListButtonLabel is the label of the button that opens a list menu.
	ListButtonLabel = "View Options"
	// ListSectionTitle is the heading of the single list section.
	ListSectionTitle = "Available options"
)

var (
	// ErrTooManyOptions is returned when a menu exceeds the platform limit.
	ErrTooManyOptions = errors.New("too many options")
	// ErrNoOptions is returned for an interactive message without options.
	ErrNoOptions = errors.New("no options provided")
)

// Sender is the outbound surface of the Cloud API used by the messaging layer.
type Sender interface {
	SendText(ctx context.Context, to, body string) error
	SendButtons(ctx context.Context, to, body string, options []string) error
	SendList(ctx context.Context, to, body string, options []string) error
	SendLinkButton(ctx context.Context, to, body, label, url string) error
	FetchMedia(ctx context.Context, mediaID string) ([]byte, string, error)
}

// Opts holds configuration options for the Cloud API client.
type Opts struct {
	Token         string
	PhoneNumberID string
	APIVersion    string
	BaseURL       string
	HTTPClient    *http.Client
}

// Option defines a configuration option for the Cloud API client.
type Option func(*Opts)

// WithToken sets the bearer token of the WhatsApp Business app.
func WithToken(token string) Option {
	return func(o *Opts) { o.Token = token }
}

// WithPhoneNumberID sets the sending phone number id.
func WithPhoneNumberID(id string) Option {
	return func(o *Opts) { o.PhoneNumberID = id }
}

// WithAPIVersion sets the Graph API version, e.g. "v21.0".
func WithAPIVersion(v string) Option {
	return func(o *Opts) { o.APIVersion = v }
}

// WithBaseURL overrides the Graph API host.
func WithBaseURL(u string) Option {
	return func(o *Opts) { o.BaseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets the HTTP client used for all requests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// Client talks to the Graph API messages and media endpoints.
type Client struct {
	http          *http.Client
	token         string
	phoneNumberID string
	baseURL       string
	version       string
}

var _ Sender = (*Client)(nil)

// NewClient creates a Cloud API client. Token and phone number id are required.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{APIVersion: DefaultAPIVersion, BaseURL: DefaultBaseURL}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("WhatsApp access token must be provided")
	}
	if cfg.PhoneNumberID == "" {
		return nil, fmt.Errorf("WhatsApp phone number id must be provided")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = DefaultAPIVersion
	}
	slog.Debug("Cloud API client created", "phone_number_id", cfg.PhoneNumberID, "version", cfg.APIVersion)
	return &Client{
		http:          cfg.HTTPClient,
		token:         cfg.Token,
		phoneNumberID: cfg.PhoneNumberID,
		baseURL:       cfg.BaseURL,
		version:       cfg.APIVersion,
	}, nil
}

func (c *Client) messagesURL() string {
	return fmt.Sprintf("%s/%s/%s/messages", c.baseURL, c.version, c.phoneNumberID)
}

// SendText sends a plain text message.
func (c *Client) SendText(ctx context.Context, to, body string) error {
	msg := outgoingMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "text",
		Text:             &textBody{Body: body},
	}
	return c.post(ctx, "SendText", msg)
}

// SendButtons sends up to three reply buttons. Button ids are option_<n>,
// counting from one.
func (c *Client) SendButtons(ctx context.Context, to, body string, options []string) error {
	if len(options) == 0 {
		return ErrNoOptions
	}
	if len(options) > models.MaxButtonOptions {
		return fmt.Errorf("%w: %d buttons (max %d)", ErrTooManyOptions, len(options), models.MaxButtonOptions)
	}
	buttons := make([]button, len(options))
	for i, opt := range options {
		buttons[i] = button{Type: "reply", Reply: row{ID: OptionID(i), Title: sanitize(opt, models.MaxButtonTitleLength, i)}}
	}
	msg := outgoingMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "interactive",
		Interactive: &interactive{
			Type:   "button",
			Body:   textPart{Text: truncate(body, models.MaxInteractiveBodyLength)},
			Action: action{Buttons: buttons},
		},
	}
	return c.post(ctx, "SendButtons", msg)
}

// SendList sends a single-section list menu of up to ten rows.
func (c *Client) SendList(ctx context.Context, to, body string, options []string) error {
	if len(options) == 0 {
		return ErrNoOptions
	}
	if len(options) > models.MaxListOptions {
		return fmt.Errorf("%w: %d rows (max %d)", ErrTooManyOptions, len(options), models.MaxListOptions)
	}
	rows := make([]row, len(options))
	for i, opt := range options {
		rows[i] = row{ID: OptionID(i), Title: sanitize(opt, models.MaxListTitleLength, i)}
	}
	msg := outgoingMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "interactive",
		Interactive: &interactive{
			Type: "list",
			Body: textPart{Text: truncate(body, models.MaxInteractiveBodyLength)},
			Action: action{
				Button:   ListButtonLabel,
				Sections: []section{{Title: ListSectionTitle, Rows: rows}},
			},
		},
	}
	return c.post(ctx, "SendList", msg)
}

// SendLinkButton sends a message with a call-to-action button opening url.
func (c *Client) SendLinkButton(ctx context.Context, to, body, label, url string) error {
	msg := outgoingMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
		Type:             "interactive",
		Interactive: &interactive{
			Type: "cta_url",
			Body: textPart{Text: truncate(body, models.MaxInteractiveBodyLength)},
			Action: action{
				Name:       "cta_url",
				Parameters: &ctaParameters{DisplayText: truncate(label, models.MaxButtonTitleLength), URL: url},
			},
		},
	}
	return c.post(ctx, "SendLinkButton", msg)
}

// FetchMedia resolves a media id to its download URL and returns the bytes
// together with the reported mime type.
func (c *Client) FetchMedia(ctx context.Context, mediaID string) ([]byte, string, error) {
	metaURL := fmt.Sprintf("%s/%s/%s", c.baseURL, c.version, mediaID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metaURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build media request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to get media url for %s: %w", mediaID, err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, "", fmt.Errorf("failed to get media url for %s: %w", mediaID, err)
	}
	var meta struct {
		URL      string `json:"url"`
		MimeType string `json:"mime_type"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, "", fmt.Errorf("failed to decode media metadata: %w", err)
	}
	if meta.URL == "" {
		return nil, "", fmt.Errorf("media %s has no download url", mediaID)
	}

	dlReq, err := http.NewRequestWithContext(ctx, http.MethodGet, meta.URL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build download request: %w", err)
	}
	dlReq.Header.Set("Authorization", "Bearer "+c.token)
	dl, err := c.http.Do(dlReq)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download media %s: %w", mediaID, err)
	}
	defer dl.Body.Close()
	if err := checkStatus(dl); err != nil {
		return nil, "", fmt.Errorf("failed to download media %s: %w", mediaID, err)
	}
	data, err := io.ReadAll(dl.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read media %s: %w", mediaID, err)
	}
	mime := meta.MimeType
	if mime == "" {
		mime = dl.Header.Get("Content-Type")
	}
	slog.Debug("CloudAPI.FetchMedia: downloaded", "media_id", mediaID, "bytes", len(data), "mime", mime)
	return data, mime, nil
}

func (c *Client) post(ctx context.Context, method string, msg outgoingMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.messagesURL(), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		slog.Error("CloudAPI."+method+" failed", "to", msg.To, "error", err)
		return fmt.Errorf("failed to send message to %s: %w", msg.To, err)
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		slog.Error("CloudAPI."+method+" rejected", "to", msg.To, "error", err)
		return fmt.Errorf("failed to send message to %s: %w", msg.To, err)
	}
	slog.Debug("CloudAPI."+method+" sent", "to", msg.To)
	return nil
}

// checkStatus turns a non-2xx response into an error carrying a body snippet.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
}

// OptionID returns the interactive reply id of the i-th option (zero based).
func OptionID(i int) string {
	return fmt.Sprintf("option_%d", i+1)
}

// sanitize collapses whitespace and truncates to limit runes; an empty title
// becomes "Option <n>".
func sanitize(s string, limit, i int) string {
	s = truncate(strings.Join(strings.Fields(s), " "), limit)
	if s == "" {
		return fmt.Sprintf("Option %d", i+1)
	}
	return s
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return strings.TrimRight(string(r[:limit]), " ")
}

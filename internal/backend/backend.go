// Package backend submits collected intake data to the brokerage's quote
// and EMAF document APIs.
package backend

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

	"github.com/go-playground/validator/v10"
)

const (
	// DefaultBaseURL is the production API root.
	DefaultBaseURL = "https://www.insuranceclub.ae/Api"
	// DefaultTimeout bounds a single submission.
	DefaultTimeout = 10 * time.Second
)

var (
	// ErrMissingID is returned when the response carries no integer id.
	ErrMissingID = errors.New("response has no integer id")
	// ErrInvalidRequest is returned when a payload fails validation and was
	// not sent.
	ErrInvalidRequest = errors.New("invalid request")
)

var validate = validator.New()

// Member is one insured person in a medical quote.
type Member struct {
	Name          string `json:"name" validate:"required"`
	DOB           string `json:"dob"`
	Gender        string `json:"gender"`
	MaritalStatus string `json:"marital_status"`
	Relation      string `json:"relation"`
}

// MedicalQuote is the medical_insert request body.
type MedicalQuote struct {
	VisaIssuedEmirates string   `json:"visa_issued_emirates" validate:"required"`
	Plan               string   `json:"plan" validate:"required"`
	MonthlySalary      string   `json:"monthly_salary"`
	SponsorType        string   `json:"sponsor_type" validate:"required"`
	SponsorMobile      string   `json:"sponsor_mobile" validate:"required"`
	SponsorEmail       string   `json:"sponsor_email" validate:"required,email"`
	Members            []Member `json:"members" validate:"required,min=1,dive"`
}

// EMAFRequest is the emaf_insert request body.
type EMAFRequest struct {
	Name      string `json:"name" validate:"required"`
	Phone     string `json:"phone" validate:"required"`
	CompanyID string `json:"company_id" validate:"required"`
}

// Submitter is the subset used by the conversation layer.
type Submitter interface {
	SubmitMedical(ctx context.Context, quote MedicalQuote) (int64, error)
	SubmitEMAF(ctx context.Context, req EMAFRequest) (int64, error)
}

// Opts holds configuration options for Client.
type Opts struct {
	BaseURL    string
	HTTPClient *http.Client
}

// Option defines a configuration option for Client.
type Option func(*Opts)

// WithBaseURL overrides the API root.
func WithBaseURL(u string) Option {
	return func(o *Opts) { o.BaseURL = u }
}

// WithHTTPClient sets the HTTP client used for submissions.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// Client posts JSON payloads to the backend API.
type Client struct {
	baseURL string
	http    *http.Client
}

var _ Submitter = (*Client)(nil)

// NewClient creates a Client.
func NewClient(opts ...Option) *Client {
	cfg := Opts{BaseURL: DefaultBaseURL}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{baseURL: strings.TrimRight(cfg.BaseURL, "/"), http: cfg.HTTPClient}
}

// SubmitMedical posts a medical quote request and returns the quote id.
func (c *Client) SubmitMedical(ctx context.Context, quote MedicalQuote) (int64, error) {
	if err := validate.Struct(quote); err != nil {
		return 0, fmt.Errorf("%w: medical quote: %v", ErrInvalidRequest, err)
	}
	return c.post(ctx, "medical_insert", quote)
}

// SubmitEMAF posts an EMAF document request and returns the document id.
func (c *Client) SubmitEMAF(ctx context.Context, req EMAFRequest) (int64, error) {
	if err := validate.Struct(req); err != nil {
		return 0, fmt.Errorf("%w: emaf: %v", ErrInvalidRequest, err)
	}
	return c.post(ctx, "emaf_insert", req)
}

func (c *Client) post(ctx context.Context, endpoint string, payload any) (int64, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal %s payload: %w", endpoint, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to build %s request: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")

	slog.Debug("backend.Client.post: submitting", "endpoint", endpoint)
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to call %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return 0, fmt.Errorf("failed to read %s response: %w", endpoint, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("%s returned status %d: %s", endpoint, resp.StatusCode, snippet(respBody))
	}
	id, err := parseID(respBody)
	if err != nil {
		slog.Warn("backend.Client.post: response without id", "endpoint", endpoint, "body", snippet(respBody))
		return 0, err
	}
	slog.Info("backend.Client.post: submitted", "endpoint", endpoint, "id", id)
	return id, nil
}

// parseID accepts only a JSON integer id.
func parseID(body []byte) (int64, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMissingID, err)
	}
	num, ok := out["id"].(json.Number)
	if !ok {
		return 0, ErrMissingID
	}
	id, err := num.Int64()
	if err != nil {
		return 0, ErrMissingID
	}
	return id, nil
}

func snippet(b []byte) string {
	const limit = 200
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}

// Package genai provides the LLM operations used by Insura on top of the
// OpenAI API: free-form replies, label classification, translation,
// attachment-aware completions for document reading and voice transcription.
package genai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Defaults used when no option overrides them.
const (
	DefaultModel              = "gpt-4o"
	DefaultVisionModel        = "gpt-4o"
	DefaultTranscriptionModel = "whisper-1"
	DefaultMaxTokens          = 1024
)

// ErrNoChoicesReturned is returned when the API answers without any choice.
var ErrNoChoicesReturned = errors.New("no choices returned")

// ErrMissingAPIKey is returned by NewClient when no key was provided.
var ErrMissingAPIKey = errors.New("OpenAI API key not set")

// SupportedLanguages maps language codes to the names used in prompts.
var SupportedLanguages = map[string]string{
	"en": "English",
	"ar": "Arabic",
	"ur": "Urdu",
	"hi": "Hindi",
	"fr": "French",
	"es": "Spanish",
}

// chatService defines minimal interface for chat completions.
type chatService interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// transcriptionService defines minimal interface for speech-to-text.
type transcriptionService interface {
	New(ctx context.Context, body openai.AudioTranscriptionNewParams, opts ...option.RequestOption) (*openai.Transcription, error)
}

// Opts holds configuration for the GenAI client.
type Opts struct {
	APIKey             string
	Model              string
	VisionModel        string
	TranscriptionModel string
	Temperature        float64
	MaxTokens          int64
	DebugMode          bool
	StateDir           string
}

// Option configures the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel sets the chat model used for text completions.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithVisionModel sets the model used for completions carrying attachments.
func WithVisionModel(model string) Option {
	return func(o *Opts) { o.VisionModel = model }
}

// WithTranscriptionModel sets the speech-to-text model.
func WithTranscriptionModel(model string) Option {
	return func(o *Opts) { o.TranscriptionModel = model }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(o *Opts) { o.Temperature = t }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int64) Option {
	return func(o *Opts) { o.MaxTokens = n }
}

// WithDebug writes every request/response pair as JSON under stateDir/debug.
func WithDebug(stateDir string) Option {
	return func(o *Opts) {
		o.DebugMode = true
		o.StateDir = stateDir
	}
}

// Client wraps the OpenAI chat and audio services.
type Client struct {
	chat               chatService
	transcriptions     transcriptionService
	model              string
	visionModel        string
	transcriptionModel string
	temperature        float64
	maxTokens          int64
	debugMode          bool
	stateDir           string
}

// NewClient initializes a new GenAI client. An API key is required.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{
		Model:              DefaultModel,
		VisionModel:        DefaultVisionModel,
		TranscriptionModel: DefaultTranscriptionModel,
		MaxTokens:          DefaultMaxTokens,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = cfg.Model
	}

	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	slog.Debug("GenAI client created", "model", cfg.Model, "vision_model", cfg.VisionModel, "debug", cfg.DebugMode)
	return &Client{
		chat:               &cli.Chat.Completions,
		transcriptions:     &cli.Audio.Transcriptions,
		model:              cfg.Model,
		visionModel:        cfg.VisionModel,
		transcriptionModel: cfg.TranscriptionModel,
		temperature:        cfg.Temperature,
		maxTokens:          cfg.MaxTokens,
		debugMode:          cfg.DebugMode,
		stateDir:           cfg.StateDir,
	}, nil
}

func (c *Client) complete(ctx context.Context, method, model string, messages []openai.ChatCompletionMessageParamUnion) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(model),
		Messages:    messages,
		Temperature: openai.Float(c.temperature),
	}
	if c.maxTokens > 0 {
		params.MaxTokens = openai.Int(c.maxTokens)
	}

	resp, err := c.chat.New(ctx, params)
	if c.debugMode {
		c.writeDebugLog(method, model, params, resp, err)
	}
	if err != nil {
		slog.Error("GenAI."+method+": API call failed", "model", model, "error", err)
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		slog.Warn("GenAI."+method+": no choices returned", "model", model)
		return "", ErrNoChoicesReturned
	}
	content := resp.Choices[0].Message.Content
	slog.Debug("GenAI."+method+": completion received", "model", model, "length", len(content))
	return content, nil
}

// Ask sends a single system/user exchange and returns the reply text.
func (c *Client) Ask(ctx context.Context, system, prompt string) (string, error) {
	messages := []openai.ChatCompletionMessageParamUnion{}
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	messages = append(messages, openai.UserMessage(prompt))
	out, err := c.complete(ctx, "Ask", c.model, messages)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// Classify asks the model to answer with exactly one of labels and returns
// the matched label, or "" when the reply names none of them.
func (c *Client) Classify(ctx context.Context, system, prompt string, labels []string) (string, error) {
	instructions := system
	if instructions != "" {
		instructions += "\n\n"
	}
	instructions += "Respond with exactly one of the following labels and nothing else: " + strings.Join(labels, ", ")

	out, err := c.Ask(ctx, instructions, prompt)
	if err != nil {
		return "", err
	}
	return matchLabel(out, labels), nil
}

// matchLabel normalises a model reply to one of labels.
func matchLabel(reply string, labels []string) string {
	reply = strings.ToLower(strings.Trim(strings.TrimSpace(reply), "\"'`."))
	for _, l := range labels {
		if reply == strings.ToLower(l) {
			return l
		}
	}
	// Models sometimes wrap the label in a sentence; accept a single
	// unambiguous containment.
	found := ""
	for _, l := range labels {
		if strings.Contains(reply, strings.ToLower(l)) {
			if found != "" && len(l) <= len(found) {
				continue
			}
			found = l
		}
	}
	return found
}

// Translate renders text in the language identified by code. English,
// unknown codes and failures all yield the original text.
func (c *Client) Translate(ctx context.Context, text, code string) string {
	name, ok := SupportedLanguages[code]
	if !ok || code == "en" || strings.TrimSpace(text) == "" {
		return text
	}
	system := fmt.Sprintf("Translate the user's message to %s. Keep URLs, numbers, emojis and line breaks unchanged. Respond with the translation only.", name)
	out, err := c.Ask(ctx, system, text)
	if err != nil || out == "" {
		slog.Warn("GenAI.Translate: falling back to original text", "language", code, "error", err)
		return text
	}
	return out
}

// CompleteWithAttachment sends prompt together with a file to the vision
// model. Images travel as data URIs; anything else as an inline file part.
func (c *Client) CompleteWithAttachment(ctx context.Context, system, prompt string, data []byte, mimeType, filename string) (string, error) {
	encoded := base64.StdEncoding.EncodeToString(data)
	dataURI := "data:" + mimeType + ";base64," + encoded

	var attachment openai.ChatCompletionContentPartUnionParam
	if strings.HasPrefix(mimeType, "image/") {
		attachment = openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
			URL: dataURI,
		})
	} else {
		if filename == "" {
			filename = "document.pdf"
		}
		attachment = openai.FileContentPart(openai.ChatCompletionContentPartFileFileParam{
			FileData: openai.String(dataURI),
			Filename: openai.String(filename),
		})
	}

	messages := []openai.ChatCompletionMessageParamUnion{}
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	messages = append(messages, openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(prompt),
		attachment,
	}))
	return c.complete(ctx, "CompleteWithAttachment", c.visionModel, messages)
}

// Transcribe converts a voice note to text.
func (c *Client) Transcribe(ctx context.Context, r io.Reader, filename, mimeType string) (string, error) {
	if filename == "" {
		filename = "voice.ogg"
	}
	resp, err := c.transcriptions.New(ctx, openai.AudioTranscriptionNewParams{
		File:  openai.File(r, filename, mimeType),
		Model: openai.AudioModel(c.transcriptionModel),
	})
	if err != nil {
		slog.Error("GenAI.Transcribe: API call failed", "error", err)
		return "", fmt.Errorf("failed to transcribe audio: %w", err)
	}
	text := strings.TrimSpace(resp.Text)
	slog.Debug("GenAI.Transcribe: transcription received", "length", len(text))
	return text, nil
}

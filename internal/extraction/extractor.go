// Package extraction reads structured fields out of uploaded identity and
// vehicle documents using a vision-capable LLM.
package extraction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/BTreeMap/Insura/internal/models"
	"github.com/gabriel-vasile/mimetype"
	"github.com/xeipuuv/gojsonschema"
)

var (
	// ErrNoData is returned when nothing usable could be read from the document.
	ErrNoData = errors.New("no data extracted from document")
	// ErrUnsupportedMediaType is returned for files other than PDF, JPEG or PNG.
	ErrUnsupportedMediaType = errors.New("unsupported media type")
	// ErrUnknownDocumentKind is returned for kinds without a field schema.
	ErrUnknownDocumentKind = errors.New("unknown document kind")
)

// SupportedMimeTypes lists the upload formats accepted for extraction.
var SupportedMimeTypes = map[string]string{
	"application/pdf": ".pdf",
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
}

// Extractor turns document bytes into a flat field map.
type Extractor interface {
	Extract(ctx context.Context, data []byte, mimeType string, kind models.DocumentKind) (map[string]string, error)
}

// visionModel is the subset of the GenAI client used here.
type visionModel interface {
	CompleteWithAttachment(ctx context.Context, system, prompt string, data []byte, mimeType, filename string) (string, error)
}

// VisionExtractor implements Extractor over a vision LLM.
type VisionExtractor struct {
	model visionModel

	mu      sync.Mutex
	schemas map[models.DocumentKind]*gojsonschema.Schema
}

var _ Extractor = (*VisionExtractor)(nil)

// NewVisionExtractor creates an extractor backed by model.
func NewVisionExtractor(model visionModel) *VisionExtractor {
	return &VisionExtractor{model: model, schemas: make(map[models.DocumentKind]*gojsonschema.Schema)}
}

// NormalizeMimeType resolves the effective mime type of an upload, sniffing
// the bytes when the declared type is missing or generic.
func NormalizeMimeType(declared string, data []byte) string {
	mt := strings.ToLower(strings.TrimSpace(strings.SplitN(declared, ";", 2)[0]))
	if mt == "image/jpg" {
		mt = "image/jpeg"
	}
	if _, ok := SupportedMimeTypes[mt]; ok {
		return mt
	}
	if mt == "" || mt == "application/octet-stream" || mt == "binary/octet-stream" {
		detected := mimetype.Detect(data).String()
		detected = strings.SplitN(detected, ";", 2)[0]
		return detected
	}
	return mt
}

// Extract reads the fields of kind from data. The result always carries every
// schema key; blank documents yield ErrNoData.
func (e *VisionExtractor) Extract(ctx context.Context, data []byte, mimeType string, kind models.DocumentKind) (map[string]string, error) {
	fields := Fields(kind)
	if fields == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDocumentKind, kind)
	}
	mt := NormalizeMimeType(mimeType, data)
	ext, ok := SupportedMimeTypes[mt]
	if !ok {
		slog.Warn("VisionExtractor.Extract: unsupported media type", "declared", mimeType, "detected", mt)
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMediaType, mt)
	}

	slog.Debug("VisionExtractor.Extract: sending document", "kind", kind, "mime", mt, "bytes", len(data))
	raw, err := e.model.CompleteWithAttachment(ctx, extractionPrompt(kind), "Extract the document fields as JSON.", data, mt, string(kind)+ext)
	if err != nil {
		slog.Error("VisionExtractor.Extract: vision call failed", "kind", kind, "error", err)
		return nil, fmt.Errorf("failed to read document: %w", err)
	}

	out, err := e.parse(kind, raw)
	if err != nil {
		slog.Warn("VisionExtractor.Extract: unusable model output", "kind", kind, "error", err)
		return nil, err
	}
	slog.Info("VisionExtractor.Extract: document read", "kind", kind, "fields", countNonEmpty(out))
	return out, nil
}

func (e *VisionExtractor) schema(kind models.DocumentKind) (*gojsonschema.Schema, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.schemas[kind]; ok {
		return s, nil
	}
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(jsonSchema(kind)))
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema for %s: %w", kind, err)
	}
	e.schemas[kind] = s
	return s, nil
}

// parse validates and normalises the model's JSON reply.
func (e *VisionExtractor) parse(kind models.DocumentKind, raw string) (map[string]string, error) {
	body := stripCodeFence(raw)
	if body == "" {
		return nil, ErrNoData
	}

	var generic map[string]interface{}
	if err := json.Unmarshal([]byte(body), &generic); err != nil {
		return nil, fmt.Errorf("%w: model output is not a JSON object", ErrNoData)
	}
	// Unknown keys are dropped before validation; models occasionally add
	// extras such as "notes".
	allowed := make(map[string]struct{})
	for _, f := range Fields(kind) {
		allowed[f] = struct{}{}
	}
	for k := range generic {
		if _, ok := allowed[k]; !ok {
			delete(generic, k)
		}
	}

	schema, err := e.schema(kind)
	if err != nil {
		return nil, err
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(generic))
	if err != nil {
		return nil, fmt.Errorf("validation error: %w", err)
	}
	if !result.Valid() {
		var msgs []string
		for _, verr := range result.Errors() {
			msgs = append(msgs, verr.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrNoData, strings.Join(msgs, "; "))
	}

	out := make(map[string]string, len(allowed))
	for _, f := range Fields(kind) {
		v, _ := generic[f].(string)
		out[f] = strings.TrimSpace(v)
	}
	if countNonEmpty(out) == 0 {
		return nil, ErrNoData
	}
	return out, nil
}

// stripCodeFence removes a surrounding ```json fence and any prose around
// the outermost JSON object.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return ""
	}
	return s[start : end+1]
}

func countNonEmpty(m map[string]string) int {
	n := 0
	for _, v := range m {
		if strings.TrimSpace(v) != "" {
			n++
		}
	}
	return n
}

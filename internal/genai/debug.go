package genai

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/openai/openai-go"
)

// debugRecord is one LLM exchange as written by WithDebug.
type debugRecord struct {
	Time     time.Time                      `json:"time"`
	Method   string                         `json:"method"`
	Model    string                         `json:"model"`
	Request  openai.ChatCompletionNewParams `json:"request"`
	Response *openai.ChatCompletion         `json:"response"`
	Error    string                         `json:"error,omitempty"`
}

var debugSeq atomic.Uint64

// writeDebugLog stores one exchange as stateDir/debug/<time>-<seq>-<method>.json.
// Failures only log; a debug write never fails the call it records.
func (c *Client) writeDebugLog(method, model string, params openai.ChatCompletionNewParams, resp *openai.ChatCompletion, callErr error) {
	if c.stateDir == "" {
		return
	}
	dir := filepath.Join(c.stateDir, "debug")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Warn("GenAI.writeDebugLog: failed to create debug dir", "dir", dir, "error", err)
		return
	}

	rec := debugRecord{Time: time.Now().UTC(), Method: method, Model: model, Request: params, Response: resp}
	if callErr != nil {
		rec.Error = callErr.Error()
	}
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		slog.Warn("GenAI.writeDebugLog: failed to encode record", "method", method, "error", err)
		return
	}
	name := fmt.Sprintf("%s-%06d-%s.json", rec.Time.Format("20060102T150405"), debugSeq.Add(1), method)
	if err := os.WriteFile(filepath.Join(dir, name), b, 0o600); err != nil {
		slog.Warn("GenAI.writeDebugLog: write failed", "file", name, "error", err)
	}
}

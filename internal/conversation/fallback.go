package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ErrEmptyReply is returned when the assistant answered with nothing.
var ErrEmptyReply = errors.New("assistant returned an empty reply")

// Sleeper pauses between consecutive messages of one turn.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration)
}

// TimerSleeper sleeps for real and wakes early when ctx is done.
type TimerSleeper struct{}

// Sleep implements Sleeper.
func (TimerSleeper) Sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// NoSleep disables pacing.
type NoSleep struct{}

// Sleep implements Sleeper.
func (NoSleep) Sleep(context.Context, time.Duration) {}

// Fallback answers messages the guided flow cannot interpret by asking the
// LLM assistant in the Insura persona.
type Fallback struct {
	assistant Assistant
}

// NewFallback creates a Fallback over assistant.
func NewFallback(assistant Assistant) *Fallback {
	return &Fallback{assistant: assistant}
}

// Answer returns the assistant's reply to text.
func (f *Fallback) Answer(ctx context.Context, text string) (string, error) {
	reply, err := f.assistant.Ask(ctx, assistantPersona, fmt.Sprintf(assistantPrompt, text))
	if err != nil {
		return "", fmt.Errorf("failed to get assistant reply: %w", err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", ErrEmptyReply
	}
	return reply, nil
}

// Respond sends the assistant's reply to the turn's input and keeps it in
// the user's LLM response log. Failures send the fixed apology.
func (f *Fallback) Respond(t *turn) {
	reply, err := f.Answer(t.ctx, t.text)
	if err != nil {
		slog.Warn("Fallback.Respond: assistant failed", "user_id", t.userID(), "stage", t.state.Stage, "error", err)
		t.say(msgApology)
		return
	}
	t.state.LLMResponses = append(t.state.LLMResponses, reply)
	t.say(reply)
}

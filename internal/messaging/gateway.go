package messaging

import (
	"context"
	"log/slog"

	"github.com/BTreeMap/Insura/internal/models"
	"golang.org/x/sync/errgroup"
)

// Translator renders outgoing text in a user's language. Implementations
// return the input unchanged when translation is not possible.
type Translator interface {
	Translate(ctx context.Context, text, lang string) string
}

// Gateway is the outbound side used by the conversation layer. It picks the
// right interactive format, translates for non-English users and swallows
// send failures after logging them.
type Gateway struct {
	svc        Service
	translator Translator
}

// NewGateway creates a Gateway. translator may be nil to disable translation.
func NewGateway(svc Service, translator Translator) *Gateway {
	return &Gateway{svc: svc, translator: translator}
}

func (g *Gateway) translate(ctx context.Context, text, lang string) string {
	if g.translator == nil || lang == "" || lang == "en" {
		return text
	}
	return g.translator.Translate(ctx, text, lang)
}

// translateAll translates body and options concurrently.
func (g *Gateway) translateAll(ctx context.Context, lang, body string, options []string) (string, []string) {
	if g.translator == nil || lang == "" || lang == "en" {
		return body, options
	}
	out := make([]string, len(options))
	var eg errgroup.Group
	eg.Go(func() error {
		body = g.translator.Translate(ctx, body, lang)
		return nil
	})
	for i, opt := range options {
		eg.Go(func() error {
			out[i] = g.translator.Translate(ctx, opt, lang)
			return nil
		})
	}
	_ = eg.Wait()
	return body, out
}

// SendText sends a plain message.
func (g *Gateway) SendText(ctx context.Context, to, lang, text string) {
	if err := g.svc.SendText(ctx, to, g.translate(ctx, text, lang)); err != nil {
		slog.Error("Gateway.SendText failed", "to", to, "error", err)
	}
}

// SendOptions sends options as reply buttons when there are at most three
// and as a list menu otherwise. Lists longer than the platform limit are cut.
func (g *Gateway) SendOptions(ctx context.Context, to, lang, text string, options []string) {
	if len(options) == 0 {
		g.SendText(ctx, to, lang, text)
		return
	}
	if len(options) > models.MaxListOptions {
		slog.Warn("Gateway.SendOptions truncating options", "to", to, "count", len(options))
		options = options[:models.MaxListOptions]
	}
	body, display := g.translateAll(ctx, lang, text, options)

	var err error
	if len(display) <= models.MaxButtonOptions {
		err = g.svc.SendButtons(ctx, to, body, display)
	} else {
		err = g.svc.SendList(ctx, to, body, display)
	}
	if err != nil {
		slog.Error("Gateway.SendOptions failed", "to", to, "options", len(display), "error", err)
	}
}

// SendLink sends a message with a URL button.
func (g *Gateway) SendLink(ctx context.Context, to, lang, text, label, url string) {
	body, labels := g.translateAll(ctx, lang, text, []string{label})
	if err := g.svc.SendLinkButton(ctx, to, body, labels[0], url); err != nil {
		slog.Error("Gateway.SendLink failed", "to", to, "error", err)
	}
}

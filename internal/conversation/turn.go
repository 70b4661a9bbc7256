package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/BTreeMap/Insura/internal/models"
)

// turn is the processing of one inbound event for one user. Handlers read
// the input from it and send replies through it so that every outgoing
// message is also written to the conversation history.
type turn struct {
	ctx   context.Context
	d     *Dispatcher
	state *models.ConversationState
	event models.InboundEvent

	// text is the trimmed free text, or the picked option's title.
	text string
	// choice is the offered option the input picked by tap, number or exact
	// title; "" when the input is not a selection.
	choice string
}

func newTurn(ctx context.Context, d *Dispatcher, state *models.ConversationState, evt models.InboundEvent) *turn {
	t := &turn{
		ctx:    ctx,
		d:      d,
		state:  state,
		event:  evt,
		text:   strings.TrimSpace(evt.Text),
		choice: resolveChoice(evt, state.LastOptions),
	}
	if t.text == "" {
		t.text = t.choice
	}
	return t
}

// resolveChoice maps a tap or typed reply onto the options last offered.
// Option ids carry the 1-based position so that translated titles still
// resolve to the English option.
func resolveChoice(evt models.InboundEvent, offered []string) string {
	if sel := evt.Selection; sel != nil {
		if i, ok := optionIndex(sel.ID); ok && i < len(offered) {
			return offered[i]
		}
		return strings.TrimSpace(sel.Title)
	}
	text := strings.TrimSpace(evt.Text)
	if text == "" || len(offered) == 0 {
		return ""
	}
	if n, err := strconv.Atoi(text); err == nil && n >= 1 && n <= len(offered) {
		return offered[n-1]
	}
	for _, o := range offered {
		if strings.EqualFold(o, text) {
			return o
		}
	}
	return ""
}

func optionIndex(id string) (int, bool) {
	rest, ok := strings.CutPrefix(id, "option_")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 1 {
		return 0, false
	}
	return n - 1, true
}

func (t *turn) userID() string { return t.state.UserID }

// freeText reports whether the input is typed text that did not pick an
// offered option.
func (t *turn) freeText() bool {
	return t.event.Selection == nil && t.choice == "" && t.text != "" && !t.event.Kind.IsUpload()
}

// pick returns the option among options that the input selected.
func (t *turn) pick(options []string) (string, bool) {
	if t.choice == "" {
		return "", false
	}
	for _, o := range options {
		if strings.EqualFold(o, t.choice) {
			return o, true
		}
	}
	return "", false
}

// yes reports a "Yes" tap or an affirmative reply.
func (t *turn) yes() bool {
	if _, ok := t.pick([]string{optionYes}); ok {
		return true
	}
	return t.event.Selection == nil && isOneOf(t.text, t.d.catalog.Affirmatives)
}

// no reports a "No" tap or a negative reply.
func (t *turn) no() bool {
	if _, ok := t.pick([]string{optionNo}); ok {
		return true
	}
	return t.event.Selection == nil && isOneOf(t.text, t.d.catalog.Negatives)
}

// inputLabel describes the input for the history.
func (t *turn) inputLabel() string {
	switch {
	case t.event.Kind.IsUpload():
		name := ""
		if t.event.Media != nil {
			name = t.event.Media.Filename
		}
		return fmt.Sprintf("[Uploaded %s: %s]", t.event.Kind, name)
	case t.event.Selection != nil:
		return "Selected: " + t.text
	}
	return t.text
}

// uploadNoun names the uploaded file the way users think of it.
func (t *turn) uploadNoun() string {
	if t.event.Kind == models.MessageKindImage {
		return "image"
	}
	return "document"
}

func (t *turn) record(question, answer string) {
	t.state.Record(question, answer, t.d.now())
}

// say sends an informational message.
func (t *turn) say(text string) {
	t.d.replier.SendText(t.ctx, t.userID(), t.state.Language, text)
	t.record(models.BotSpeaker, text)
}

func (t *turn) sayf(format string, args ...any) {
	t.say(fmt.Sprintf(format, args...))
}

// prompt sends a question answered by free text. Earlier options stop
// counting as selections.
func (t *turn) prompt(text string) {
	t.state.LastOptions = nil
	t.say(text)
}

// ask sends a question with options and remembers them.
func (t *turn) ask(text string, options []string) {
	t.d.replier.SendOptions(t.ctx, t.userID(), t.state.Language, text, options)
	t.state.LastOptions = slices.Clone(options)
	kind := "buttons"
	if len(options) > models.MaxButtonOptions {
		kind = "list"
	}
	t.record(text, fmt.Sprintf("[Interactive %s: %s]", kind, strings.Join(options, ", ")))
}

func (t *turn) askYesNo(text string) {
	t.ask(text, []string{optionYes, optionNo})
}

// link sends a message with a URL button.
func (t *turn) link(text, label, url string) {
	t.d.replier.SendLink(t.ctx, t.userID(), t.state.Language, text, label, url)
	t.record(text, fmt.Sprintf("[Link button: %s -> %s]", label, url))
}

// pause spaces consecutive messages out.
func (t *turn) pause(d time.Duration) {
	t.d.sleeper.Sleep(t.ctx, d)
}

func (t *turn) goTo(stage models.Stage) {
	slog.Debug("turn.goTo", "user_id", t.userID(), "from", t.state.Stage, "to", stage)
	t.state.Stage = stage
}

package conversation

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/Insura/internal/models"
)

// minDetectWords is the shortest open-stage message worth asking the LLM
// whether it is about the Takaful plan.
const minDetectWords = 3

const (
	labelYes  = "yes"
	labelNo   = "no"
	labelNone = "none"
)

// takafulInterrupt enters the Takaful Q&A when the plan is mentioned, and
// answers known plan questions in open stages once the user has asked
// about the plan.
func (d *Dispatcher) takafulInterrupt(t *turn) bool {
	stage := t.state.Stage
	if !t.freeText() || stage.IsTakaful() || stage.IsEMAF() {
		return false
	}
	if containsAny(t.text, d.catalog.Takaful.Triggers) || d.detectTakaful(t) {
		d.startTakaful(t)
		return true
	}
	if t.state.TakafulAsked && stage.IsOpen() {
		if topic, ok := d.catalog.MatchTopic(t.text); ok {
			d.answerTopic(t, topic)
			return true
		}
	}
	return false
}

// detectTakaful asks the LLM about longer free-text messages in open
// stages. Errors count as "no".
func (d *Dispatcher) detectTakaful(t *turn) bool {
	if !t.state.Stage.IsOpen() || len(strings.Fields(t.text)) < minDetectWords {
		return false
	}
	label, err := d.assistant.Classify(t.ctx, takafulDetectPersona, fmt.Sprintf(takafulDetectTask, t.text), []string{labelYes, labelNo})
	if err != nil {
		slog.Warn("Dispatcher.detectTakaful: classification failed", "user_id", t.userID(), "error", err)
		return false
	}
	return label == labelYes
}

func (d *Dispatcher) startTakaful(t *turn) {
	t.state.TakafulAsked = true
	t.prompt(d.rewrite(t, takafulWarmPersona, fmt.Sprintf(takafulWelcomeTask, msgTakafulWelcome), msgTakafulWelcome))
	t.goTo(models.StageTakafulQA)
}

func (d *Dispatcher) handleTakafulQA(t *turn) {
	if t.event.Selection == nil && t.choice == "" {
		if topic, ok := d.matchTopic(t); ok {
			d.answerTopic(t, topic)
			return
		}
	}
	d.fallback.Respond(t)
	t.pause(time.Second)
	d.askTakafulFollowup(t)
}

func (d *Dispatcher) handleTakafulFollowup(t *turn) {
	switch {
	case t.yes() || isOneOf(t.text, d.catalog.Takaful.Continue):
		t.goTo(models.StageTakafulQA)
		t.prompt(msgTakafulContinue)
	case t.no() || isOneOf(t.text, d.catalog.Takaful.Exit):
		t.say(msgTakafulExit)
		t.state.TakafulAsked = false
		t.pause(time.Second)
		d.showMenu(t, msgMenuAgain)
	default:
		// A new question instead of yes or no.
		d.handleTakafulQA(t)
	}
}

// matchTopic finds the knowledge base entry for the question, asking the
// LLM first and falling back to keyword scoring.
func (d *Dispatcher) matchTopic(t *turn) (Topic, bool) {
	labels := append(d.catalog.TopicKeys(), labelNone)
	var categories strings.Builder
	for _, topic := range d.catalog.Takaful.Topics {
		fmt.Fprintf(&categories, "- %s: %s\n", topic.Key, strings.Join(topic.Keywords, ", "))
	}
	label, err := d.assistant.Classify(t.ctx, takafulTopicPersona, fmt.Sprintf(takafulTopicTask, categories.String(), t.text), labels)
	if err != nil {
		slog.Warn("Dispatcher.matchTopic: classification failed, using keywords", "user_id", t.userID(), "error", err)
	} else if topic, ok := d.catalog.Topic(label); ok {
		return topic, true
	}
	return d.catalog.MatchTopic(t.text)
}

// answerTopic sends the rewritten answer, the brochure and the follow-up.
func (d *Dispatcher) answerTopic(t *turn, topic Topic) {
	slog.Debug("Dispatcher.answerTopic", "user_id", t.userID(), "topic", topic.Key)
	t.say(d.rewrite(t, takafulWarmPersona, fmt.Sprintf(takafulRewriteTask, t.text, topic.Answer), topic.Answer))
	t.pause(2 * time.Second)
	t.sayf(msgTakafulBrochure, d.links.TakafulBrochure)
	t.pause(time.Second)
	d.askTakafulFollowup(t)
}

func (d *Dispatcher) askTakafulFollowup(t *turn) {
	t.askYesNo(msgTakafulFollowup)
	t.goTo(models.StageTakafulFollowup)
}

// rewrite asks the LLM to phrase text naturally, returning fallback when
// it cannot.
func (d *Dispatcher) rewrite(t *turn, system, task, fallback string) string {
	out, err := d.assistant.Ask(t.ctx, system, task)
	if err != nil || strings.TrimSpace(out) == "" {
		slog.Warn("Dispatcher.rewrite: using canned text", "user_id", t.userID(), "error", err)
		return fallback
	}
	return strings.TrimSpace(out)
}

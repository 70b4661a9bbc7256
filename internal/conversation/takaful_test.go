package conversation

import (
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/BTreeMap/Insura/internal/models"
)

func TestTakafulQuestionAndExit(t *testing.T) {
	h := newHarness(t)
	h.assistant.askErr = errors.New("llm offline")
	h.assistant.classifyFn = func(system, prompt string, labels []string) (string, error) {
		if slices.Contains(labels, "consultation_fee") {
			return "consultation_fee", nil
		}
		return "no", nil
	}
	h.seed(t, "u1", models.StageInitialQuestion, func(s *models.ConversationState) {
		s.LastOptions = h.d.catalog.Services
	})

	h.text("u1", "Tell me about Takaful Emarat Silver")
	st := h.state(t, "u1")
	if st.Stage != models.StageTakafulQA || !st.TakafulAsked {
		t.Fatalf("expected takaful_qa with the flag set, got %s/%v", st.Stage, st.TakafulAsked)
	}
	if got := h.replier.last().Text; got != msgTakafulWelcome {
		t.Errorf("expected canned welcome, got %q", got)
	}

	h.replier.reset()
	h.text("u1", "what is the consultation fee?")
	want := []string{"AED 50", fmt.Sprintf(msgTakafulBrochure, DefaultTakafulBrochureURL), msgTakafulFollowup}
	if got := h.replier.texts(); !slices.Equal(got, want) {
		t.Errorf("answer messages = %q, want %q", got, want)
	}
	if got := h.state(t, "u1").Stage; got != models.StageTakafulFollowup {
		t.Fatalf("expected takaful_followup, got %s", got)
	}

	h.text("u1", "no")
	st = h.state(t, "u1")
	if st.Stage != models.StageInitialQuestion || st.TakafulAsked {
		t.Errorf("expected menu with the flag cleared, got %s/%v", st.Stage, st.TakafulAsked)
	}
	if !contains(h.replier.texts(), msgTakafulExit) {
		t.Errorf("exit message not sent")
	}
}

func TestTakafulKeywordFallback(t *testing.T) {
	h := newHarness(t)
	h.assistant.askErr = errors.New("llm offline")
	h.assistant.classifyFn = func(string, string, []string) (string, error) {
		return "", errors.New("classifier offline")
	}
	h.seed(t, "u1", models.StageTakafulQA, func(s *models.ConversationState) {
		s.TakafulAsked = true
	})

	h.text("u1", "which network hospitals can I use")

	if texts := h.replier.texts(); len(texts) == 0 || texts[0] != "Nextcare" {
		t.Errorf("expected the network answer first, got %q", texts)
	}
}

func TestTakafulFollowupTreatsOtherInputAsQuestion(t *testing.T) {
	h := newHarness(t)
	h.assistant.askErr = errors.New("llm offline")
	h.seed(t, "u1", models.StageTakafulFollowup, func(s *models.ConversationState) {
		s.TakafulAsked = true
		s.LastOptions = []string{optionYes, optionNo}
	})

	h.text("u1", "is dental treatment covered")

	texts := h.replier.texts()
	if len(texts) == 0 || texts[0] != "Routine Dental is not covered. Cover only Emergency, injury cases & surgeries." {
		t.Errorf("expected the dental answer, got %q", texts)
	}
	if got := h.state(t, "u1").Stage; got != models.StageTakafulFollowup {
		t.Errorf("expected takaful_followup, got %s", got)
	}
}

func TestTakafulFollowupContinue(t *testing.T) {
	h := newHarness(t)
	h.seed(t, "u1", models.StageTakafulFollowup, func(s *models.ConversationState) {
		s.LastOptions = []string{optionYes, optionNo}
	})

	h.text("u1", "more")

	if got := h.state(t, "u1").Stage; got != models.StageTakafulQA {
		t.Errorf("expected takaful_qa, got %s", got)
	}
	if got := h.replier.last().Text; got != msgTakafulContinue {
		t.Errorf("expected continue prompt, got %q", got)
	}
}

func TestTakafulDetectionOnlyInOpenStages(t *testing.T) {
	h := newHarness(t)
	h.assistant.label = "yes"
	h.seed(t, "u1", models.StageClaimDetails, nil)

	h.text("u1", "my car was hit from behind")

	if got := h.state(t, "u1").Stage; got != models.StageClaimDate {
		t.Errorf("claim answer diverted to %s", got)
	}
	if h.assistant.classifies != 0 {
		t.Errorf("classifier consulted outside open stages")
	}

	h.seed(t, "u2", models.StageAIResponse, nil)
	h.text("u2", "how good is that silver cover")
	if got := h.state(t, "u2").Stage; got != models.StageTakafulQA {
		t.Errorf("expected detection to start the Q&A, got %s", got)
	}
}

func TestTakafulKnowledgeAnswersInOpenStages(t *testing.T) {
	h := newHarness(t)
	h.assistant.askErr = errors.New("llm offline")
	h.seed(t, "u1", models.StageAIResponse, func(s *models.ConversationState) {
		s.TakafulAsked = true
	})

	h.text("u1", "dental?")

	if got := h.state(t, "u1").Stage; got != models.StageTakafulFollowup {
		t.Errorf("expected takaful_followup, got %s", got)
	}
}

package conversation

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"time"

	"github.com/BTreeMap/Insura/internal/backend"
	"github.com/BTreeMap/Insura/internal/events"
	"github.com/BTreeMap/Insura/internal/models"
	"github.com/BTreeMap/Insura/internal/store"
)

// Response keys of the medical flow not consumed by the quote payload.
const (
	keyHasAdvisorCode = "has_advisor_code"
	keyAdvisorCode    = "advisor_code"
	keyQuoteID        = "quote_id"
	keyQuoteLink      = "quote_link"
)

var (
	phonePattern       = regexp.MustCompile(`^\+?\d{9,15}$`)
	emailPattern       = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	advisorCodePattern = regexp.MustCompile(`^\d{4}$`)
)

func (d *Dispatcher) startMedical(t *turn) {
	d.selectService(t, serviceMedical)
	t.state.QuestionIndex = 0
	t.goTo(models.StageMedicalFlow)
	d.promptMedicalFlow(t)
}

// promptMedicalFlow asks the question under the cursor; past the fixed list
// it asks for the salary.
func (d *Dispatcher) promptMedicalFlow(t *turn) {
	qs := d.catalog.MedicalQuestions
	if i := t.state.QuestionIndex; i < len(qs) {
		t.ask(qs[i].Question, qs[i].Options)
		return
	}
	t.prompt(msgSalary)
}

func (d *Dispatcher) handleMedicalFlow(t *turn) {
	qs := d.catalog.MedicalQuestions
	if i := t.state.QuestionIndex; i < len(qs) {
		answer, ok := t.pick(qs[i].Options)
		if !ok {
			d.retry(t)
			return
		}
		t.state.SetResponse(qs[i].Key, answer)
		t.state.QuestionIndex++
		d.promptMedicalFlow(t)
		return
	}

	if t.text == "" {
		t.prompt(msgSalary)
		return
	}
	t.state.SetResponse(backend.KeySalary, t.text)
	t.goTo(models.StageMedicalSponsorPhone)
	t.prompt(msgSponsorPhone)
}

func (d *Dispatcher) handleSponsorPhone(t *turn) {
	if !phonePattern.MatchString(t.text) {
		t.say(msgInvalidPhone)
		t.prompt(msgSponsorPhoneRetry)
		return
	}
	t.state.SetResponse(backend.KeySponsorPhone, t.text)
	t.goTo(models.StageMedicalSponsorEmail)
	t.prompt(msgSponsorEmail)
}

func (d *Dispatcher) handleSponsorEmail(t *turn) {
	if !emailPattern.MatchString(t.text) {
		t.say(msgInvalidEmail)
		t.prompt(msgSponsorEmailRetry)
		return
	}
	t.state.SetResponse(backend.KeySponsorEmail, t.text)
	t.goTo(models.StageMedicalMemberInputMethod)
	t.askYesNo(msgMemberMethod)
}

func (d *Dispatcher) handleMedicalInputMethod(t *turn) {
	switch {
	case t.yes():
		t.goTo(models.StageMedicalUploadDocument)
		t.prompt(msgUploadDocument)
	case t.no():
		t.goTo(models.StageMedicalMemberName)
		t.prompt(msgMemberNameManual)
	default:
		d.retry(t)
	}
}

func (d *Dispatcher) handleMedicalMemberName(t *turn) {
	t.state.SetResponse(backend.KeyMemberName, t.text)
	t.goTo(models.StageMedicalMemberDOB)
	t.prompt(msgMemberDOB)
}

func (d *Dispatcher) handleMedicalMemberDOB(t *turn) {
	t.state.SetResponse(backend.KeyMemberDOB, t.text)
	t.goTo(models.StageMedicalMemberGender)
	t.ask(fmt.Sprintf(msgMemberGender, memberName(t)), d.catalog.Genders)
}

func (d *Dispatcher) promptMemberGender(t *turn) {
	t.ask(fmt.Sprintf(msgMemberGenderRetry, memberName(t)), d.catalog.Genders)
}

func (d *Dispatcher) handleMedicalMemberGender(t *turn) {
	gender, ok := t.pick(d.catalog.Genders)
	if !ok {
		d.retry(t)
		return
	}
	t.state.SetResponse(backend.KeyMemberGender, gender)
	t.goTo(models.StageMedicalMaritalStatus)
	d.promptMaritalStatus(t)
}

func (d *Dispatcher) promptMaritalStatus(t *turn) {
	t.ask(fmt.Sprintf(msgMaritalStatus, memberName(t)), d.catalog.MaritalStatuses)
}

func (d *Dispatcher) handleMaritalStatus(t *turn) {
	status, ok := t.pick(d.catalog.MaritalStatuses)
	if !ok {
		d.retry(t)
		return
	}
	t.state.SetResponse(backend.KeyMaritalStatus, status)
	t.goTo(models.StageMedicalRelationship)
	d.promptRelationship(t)
}

func (d *Dispatcher) promptRelationship(t *turn) {
	t.ask(fmt.Sprintf(msgRelationship, memberName(t)), d.catalog.Relationships)
}

func (d *Dispatcher) handleRelationship(t *turn) {
	rel, ok := t.pick(d.catalog.Relationships)
	if !ok {
		d.retry(t)
		return
	}
	t.state.SetResponse(backend.KeyRelationship, rel)
	t.goTo(models.StageMedicalAdvisorCode)
	t.askYesNo(msgAdvisor)
}

func (d *Dispatcher) handleAdvisor(t *turn) {
	switch {
	case t.yes():
		t.state.SetResponse(keyHasAdvisorCode, optionYes)
		t.goTo(models.StageMedicalAdvisorCodeDetail)
		t.prompt(msgAdvisorCode)
	case t.no():
		t.state.SetResponse(keyHasAdvisorCode, optionNo)
		d.submitMedical(t)
	default:
		d.retry(t)
	}
}

func (d *Dispatcher) handleAdvisorCode(t *turn) {
	if !advisorCodePattern.MatchString(t.text) {
		t.say(msgAdvisorCodeInvalid)
		t.prompt(msgAdvisorCodeRetry)
		return
	}
	t.state.SetResponse(keyAdvisorCode, t.text)
	d.submitMedical(t)
}

// submitMedical posts the collected answers. The conversation moves on to
// waiting_for_new_query whether or not the backend accepted them.
func (d *Dispatcher) submitMedical(t *turn) {
	quote := backend.MedicalQuoteFromResponses(t.state.Responses)
	id, err := d.submitter.SubmitMedical(t.ctx, quote)
	if err != nil {
		slog.Error("Dispatcher.submitMedical: submission failed", "user_id", t.userID(), "error", err)
		t.say(msgMedicalFailure)
		d.queueMedicalRetry(t, quote, err)
		d.publish(t, events.LeadMedicalFailed, map[string]string{"error": err.Error()})
		d.offerNewQuery(t)
		return
	}

	link := d.links.QuoteBase + strconv.FormatInt(id, 10)
	t.state.SetResponse(keyQuoteID, strconv.FormatInt(id, 10))
	t.state.SetResponse(keyQuoteLink, link)
	t.sayf(msgMedicalSuccess, link)
	t.pause(2 * time.Second)
	t.link(msgReview, msgReviewLabel, d.links.Review)
	d.publish(t, events.LeadMedicalSubmitted, map[string]string{keyQuoteID: strconv.FormatInt(id, 10), keyQuoteLink: link})
	d.offerNewQuery(t)
}

// finalSubmitError reports errors a resubmission cannot fix: the payload
// was rejected, or the backend accepted it (2xx) without returning an id.
func finalSubmitError(err error) bool {
	return errors.Is(err, backend.ErrInvalidRequest) || errors.Is(err, backend.ErrMissingID)
}

// queueMedicalRetry stores a failed submission for background retry.
func (d *Dispatcher) queueMedicalRetry(t *turn, quote backend.MedicalQuote, cause error) {
	if d.outbox == nil || finalSubmitError(cause) {
		return
	}
	payload, err := json.Marshal(quote)
	if err != nil {
		slog.Error("Dispatcher.queueMedicalRetry: marshal failed", "user_id", t.userID(), "error", err)
		return
	}
	sum := sha256.Sum256(payload)
	key := store.OutboxKindMedicalQuote + ":" + t.userID() + ":" + hex.EncodeToString(sum[:8])
	id, err := d.outbox.EnqueueOutbox(t.ctx, t.userID(), store.OutboxKindMedicalQuote, string(payload), key)
	if err != nil {
		slog.Error("Dispatcher.queueMedicalRetry: enqueue failed", "user_id", t.userID(), "error", err)
		return
	}
	slog.Info("Dispatcher.queueMedicalRetry: queued", "user_id", t.userID(), "outbox_id", id)
}

// RetryMedicalQuote resubmits a queued medical quote. On success the user
// receives the quotation link and the stored record is updated. It is the
// send callback of the outbox sender.
func (d *Dispatcher) RetryMedicalQuote(ctx context.Context, msg store.OutboxMessage) error {
	if msg.Kind != store.OutboxKindMedicalQuote {
		return fmt.Errorf("%w: unsupported outbox kind %q", store.ErrPermanent, msg.Kind)
	}
	var quote backend.MedicalQuote
	if err := json.Unmarshal([]byte(msg.Payload), &quote); err != nil {
		return fmt.Errorf("%w: failed to decode medical quote: %w", store.ErrPermanent, err)
	}
	id, err := d.submitter.SubmitMedical(ctx, quote)
	if finalSubmitError(err) {
		return fmt.Errorf("%w: %w", store.ErrPermanent, err)
	}
	if err != nil {
		return err
	}
	link := d.links.QuoteBase + strconv.FormatInt(id, 10)

	unlock := d.locks.Lock(msg.UserID)
	defer unlock()

	lang, service := "", serviceMedical
	state, err := d.store.Get(ctx, msg.UserID)
	switch {
	case err == nil:
		lang = state.Language
		state.SetResponse(keyQuoteID, strconv.FormatInt(id, 10))
		state.SetResponse(keyQuoteLink, link)
		state.Record(models.BotSpeaker, fmt.Sprintf(msgQuoteReady, link), d.now())
		if err := d.store.Save(ctx, state); err != nil {
			slog.Error("Dispatcher.RetryMedicalQuote: failed to save state", "user_id", msg.UserID, "error", err)
		}
	case !errors.Is(err, store.ErrNotFound):
		slog.Warn("Dispatcher.RetryMedicalQuote: failed to load state", "user_id", msg.UserID, "error", err)
	}

	d.replier.SendText(ctx, msg.UserID, lang, fmt.Sprintf(msgQuoteReady, link))
	d.emit(ctx, events.NewLeadEvent(events.LeadMedicalSubmitted, msg.UserID, service,
		map[string]string{keyQuoteID: strconv.FormatInt(id, 10), keyQuoteLink: link, "retried": "true"}))
	return nil
}

// memberName is how questions refer to the member being insured.
func memberName(t *turn) string {
	if n := t.state.Response(backend.KeyMemberName); n != "" {
		return n
	}
	return defaultMemberReference
}

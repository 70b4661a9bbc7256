package conversation

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/BTreeMap/Insura/internal/backend"
	"github.com/BTreeMap/Insura/internal/extraction"
	"github.com/BTreeMap/Insura/internal/models"
)

// MaxEditableFields is how many fields the edit list offers; WhatsApp
// lists hold ten rows and the last one is "Done Editing".
const MaxEditableFields = 9

const (
	fieldCardNumber = "card_number"
	fieldName       = "name"
	fieldDOB        = "date_of_birth"
	fieldGender     = "gender"
	fieldDone       = "done"
)

// documentFlow drives the upload, verification and edit loop of one
// document kind. The verified values are handed to commit once the user
// confirms them.
type documentFlow struct {
	d       *Dispatcher
	kind    models.DocumentKind
	title   string
	fields  []string
	choices map[string][]string

	confirm         models.Stage
	selectField     models.Stage
	enterValue      models.Stage
	continueEditing models.Stage
	finalConfirm    models.Stage

	commit func(t *turn, verified map[string]string)
}

func (d *Dispatcher) documentFlows() map[models.DocumentKind]*documentFlow {
	flows := []*documentFlow{
		{
			kind:            models.DocumentIDCard,
			title:           "Emirates ID",
			choices:         map[string][]string{fieldGender: d.catalog.Genders},
			confirm:         models.StageIDInfoConfirmation,
			selectField:     models.StageIDSelectField,
			enterValue:      models.StageIDEnterValue,
			continueEditing: models.StageIDContinueEditing,
			finalConfirm:    models.StageIDFinalConfirmation,
			commit:          d.commitIDCard,
		},
		{
			kind:            models.DocumentDrivingLicense,
			title:           "Driving License",
			confirm:         models.StageLicenseInfoConfirmation,
			selectField:     models.StageLicenseSelectField,
			enterValue:      models.StageLicenseEnterValue,
			continueEditing: models.StageLicenseContinueEditing,
			finalConfirm:    models.StageLicenseFinalConfirmation,
			commit:          d.commitLicense,
		},
		{
			kind:            models.DocumentVehicleRegistration,
			title:           "Vehicle Mulkiya",
			confirm:         models.StageMulkiyaInfoConfirmation,
			selectField:     models.StageMulkiyaSelectField,
			enterValue:      models.StageMulkiyaEnterValue,
			continueEditing: models.StageMulkiyaContinueEditing,
			finalConfirm:    models.StageMulkiyaFinalConfirmation,
			commit:          d.commitMulkiya,
		},
	}
	out := make(map[models.DocumentKind]*documentFlow, len(flows))
	for _, f := range flows {
		f.d = d
		f.fields = extraction.Fields(f.kind)
		out[f.kind] = f
	}
	return out
}

// uploadFlow returns the flow that accepts a file at the current stage and
// whether the file is the back side of an Emirates ID.
func (d *Dispatcher) uploadFlow(t *turn) (*documentFlow, bool) {
	switch t.state.Stage {
	case models.StageMedicalUploadDocument, models.StageMotorUploadDocument:
		return d.docs[models.DocumentIDCard], false
	case models.StageWaitingForBackID:
		return d.docs[models.DocumentIDCard], true
	case models.StageMotorDrivingLicense:
		return d.docs[models.DocumentDrivingLicense], false
	case models.StageMotorVehicleMulkiya:
		return d.docs[models.DocumentVehicleRegistration], false
	}
	// A new file while verifying replaces the one being verified.
	for _, f := range d.docs {
		if f.owns(t.state.Stage) {
			return f, false
		}
	}
	return nil, false
}

func (f *documentFlow) owns(stage models.Stage) bool {
	switch stage {
	case f.confirm, f.selectField, f.enterValue, f.continueEditing, f.finalConfirm:
		return true
	}
	return false
}

func (f *documentFlow) register(h map[models.Stage]stageHandler) {
	h[f.confirm] = stageHandler{handle: f.handleConfirm, prompt: func(t *turn) { t.askYesNo(msgDocCorrect) }}
	h[f.selectField] = stageHandler{handle: f.handleSelectField, prompt: f.askField}
	h[f.enterValue] = stageHandler{handle: f.handleEnterValue, prompt: f.askValue}
	h[f.continueEditing] = stageHandler{handle: f.handleContinue, prompt: func(t *turn) { t.askYesNo(msgDocEditAnother) }}
	h[f.finalConfirm] = stageHandler{handle: f.handleFinal, prompt: func(t *turn) { t.askYesNo(msgDocCorrectNow) }}
}

// extract runs the extractor on the turn's upload. A result without a
// single non-blank field counts as ErrNoData.
func (f *documentFlow) extract(t *turn) (map[string]string, error) {
	media := t.event.Media
	if media == nil || len(media.Data) == 0 {
		return nil, fmt.Errorf("%w: empty upload", extraction.ErrNoData)
	}
	fields, err := f.d.extractor.Extract(t.ctx, media.Data, media.MimeType, f.kind)
	if err != nil {
		return nil, err
	}
	for _, v := range fields {
		if strings.TrimSpace(v) != "" {
			return fields, nil
		}
	}
	return nil, extraction.ErrNoData
}

// receive handles a freshly uploaded document. Failures leave the stage
// unchanged so the user can upload again.
func (f *documentFlow) receive(t *turn) {
	noun := t.uploadNoun()
	t.sayf(msgDocReceived, noun)
	fields, err := f.extract(t)
	if err != nil {
		slog.Warn("documentFlow.receive: extraction failed", "user_id", t.userID(), "kind", f.kind, "error", err)
		switch {
		case errors.Is(err, extraction.ErrUnsupportedMediaType):
			t.say(msgDocUnsupported)
		case errors.Is(err, extraction.ErrNoData):
			t.sayf(msgDocExtractFailed, noun)
		default:
			t.sayf(msgDocError, noun)
		}
		return
	}

	t.state.SetDocument(f.kind, models.NewDocumentRecord(t.event.Media.Filename, fields))
	slog.Info("documentFlow.receive: document extracted", "user_id", t.userID(), "kind", f.kind, "fields", len(fields))
	if f.kind == models.DocumentIDCard && strings.TrimSpace(fields[fieldCardNumber]) == "" {
		t.goTo(models.StageWaitingForBackID)
		t.prompt(msgDocNeedBack)
		return
	}
	f.display(t, msgDocInfoHeader)
}

// receiveBack merges the back side of an Emirates ID into the front.
func (f *documentFlow) receiveBack(t *turn) {
	t.say(msgDocBackReceived)
	front := t.state.Document(f.kind)
	back, err := f.extract(t)
	if err != nil {
		slog.Warn("documentFlow.receiveBack: extraction failed", "user_id", t.userID(), "error", err)
		if front == nil {
			t.sayf(msgDocExtractFailed, t.uploadNoun())
			return
		}
		t.say(msgDocBackFailed)
		f.display(t, msgDocInfoHeader)
		return
	}

	var frontFields map[string]string
	filename := t.event.Media.Filename
	if front != nil {
		frontFields, filename = front.Extracted, front.Filename
	}
	t.state.SetDocument(f.kind, models.NewDocumentRecord(filename, mergeBackSide(frontFields, back)))
	f.display(t, msgDocCompleteHeader)
}

// mergeBackSide combines both sides of a card: a non-blank back value wins
// and the front fills every other field.
func mergeBackSide(front, back map[string]string) map[string]string {
	out := maps.Clone(front)
	if out == nil {
		out = make(map[string]string, len(back))
	}
	for k, v := range back {
		if strings.TrimSpace(v) != "" {
			out[k] = v
		}
	}
	return out
}

// record returns the document under verification. A missing record means
// the stored state is inconsistent and the user is sent back to the menu.
func (f *documentFlow) record(t *turn) *models.DocumentRecord {
	rec := t.state.Document(f.kind)
	if rec == nil {
		slog.Warn("documentFlow.record: no document for verification stage", "user_id", t.userID(), "kind", f.kind, "stage", t.state.Stage)
		f.d.showMenu(t, msgMenu)
	}
	return rec
}

// present returns the fields of values that hold something, in schema order.
func (f *documentFlow) present(values map[string]string) []string {
	var out []string
	for _, field := range f.fields {
		if strings.TrimSpace(values[field]) != "" {
			out = append(out, field)
		}
	}
	return out
}

// format renders the non-empty verified fields, one "*Label*: value" line each.
func (f *documentFlow) format(header string, values map[string]string) string {
	var b strings.Builder
	b.WriteString(header)
	b.WriteString("\n")
	for _, field := range f.present(values) {
		fmt.Fprintf(&b, "\n*%s*: %s", fieldLabel(field), values[field])
	}
	return b.String()
}

func (f *documentFlow) display(t *turn, header string) {
	rec := t.state.Document(f.kind)
	if rec == nil {
		return
	}
	t.say(f.format(header, rec.Verified))
	t.pause(time.Second)
	t.goTo(f.confirm)
	t.askYesNo(msgDocCorrect)
}

func (f *documentFlow) handleConfirm(t *turn) {
	rec := f.record(t)
	if rec == nil {
		return
	}
	switch {
	case t.yes():
		f.accept(t, rec)
	case t.no():
		t.goTo(f.selectField)
		f.askField(t)
	default:
		f.d.retry(t)
	}
}

// editable returns the fields offered in the edit list: the non-empty
// ones, capped so the list plus "Done Editing" fits one list message.
func (f *documentFlow) editable(values map[string]string) []string {
	fields := f.present(values)
	if len(fields) > MaxEditableFields {
		fields = fields[:MaxEditableFields]
	}
	return fields
}

func (f *documentFlow) editOptions(values map[string]string) []string {
	options := make([]string, 0, MaxEditableFields+1)
	for _, field := range f.editable(values) {
		options = append(options, fieldLabel(field))
	}
	return append(options, optionDoneEditing)
}

func (f *documentFlow) askField(t *turn) {
	rec := f.record(t)
	if rec == nil {
		return
	}
	t.ask(msgDocSelectField, f.editOptions(rec.Verified))
}

// fieldFor resolves typed text to a schema field. Any field can be typed by
// label or key, including those left out of the list.
func (f *documentFlow) fieldFor(text string) (string, bool) {
	in := strings.TrimSpace(text)
	for _, field := range f.fields {
		if strings.EqualFold(in, fieldLabel(field)) || strings.EqualFold(in, field) {
			return field, true
		}
	}
	return "", false
}

// handleSelectField takes a tapped, numbered or typed field. Taps and
// numbers resolve through the offered labels, so translated titles work.
func (f *documentFlow) handleSelectField(t *turn) {
	rec := f.record(t)
	if rec == nil {
		return
	}
	var (
		field string
		ok    bool
	)
	if picked, picks := t.pick(f.editOptions(rec.Verified)); picks {
		if picked == optionDoneEditing {
			f.summary(t)
			return
		}
		field, ok = f.fieldFor(picked)
	} else if t.event.Selection == nil {
		if strings.EqualFold(t.text, optionDoneEditing) || strings.EqualFold(t.text, fieldDone) {
			f.summary(t)
			return
		}
		field, ok = f.fieldFor(t.text)
	}
	if !ok {
		f.d.retry(t)
		return
	}
	t.state.EditingField = field
	t.goTo(f.enterValue)
	f.askValue(t)
}

func (f *documentFlow) askValue(t *turn) {
	rec := f.record(t)
	if rec == nil {
		return
	}
	field := t.state.EditingField
	current := rec.Verified[field]
	if strings.TrimSpace(current) == "" {
		current = "-"
	}
	text := fmt.Sprintf(msgDocCurrentValue, fieldLabel(field), current)
	if options := f.choices[field]; len(options) > 0 {
		t.ask(text, options)
		return
	}
	t.prompt(text)
}

func (f *documentFlow) handleEnterValue(t *turn) {
	rec := f.record(t)
	if rec == nil {
		return
	}
	field := t.state.EditingField
	if field == "" {
		t.goTo(f.selectField)
		f.askField(t)
		return
	}
	value := strings.TrimSpace(t.text)
	if options := f.choices[field]; len(options) > 0 {
		if picked, ok := t.pick(options); ok {
			value = picked
		}
	}
	if value == "" {
		f.d.retry(t)
		return
	}
	rec.Verified[field] = value
	t.state.EditingField = ""
	t.sayf(msgDocUpdated, fieldLabel(field), value)
	t.goTo(f.continueEditing)
	t.askYesNo(msgDocEditAnother)
}

func (f *documentFlow) handleContinue(t *turn) {
	switch {
	case t.yes():
		t.goTo(f.selectField)
		f.askField(t)
	case t.no():
		f.summary(t)
	default:
		f.d.retry(t)
	}
}

func (f *documentFlow) summary(t *turn) {
	rec := f.record(t)
	if rec == nil {
		return
	}
	t.say(f.format(msgDocFinalHeader, rec.Verified))
	t.pause(time.Second)
	t.goTo(f.finalConfirm)
	t.askYesNo(msgDocCorrectNow)
}

func (f *documentFlow) handleFinal(t *turn) {
	rec := f.record(t)
	if rec == nil {
		return
	}
	switch {
	case t.yes():
		f.accept(t, rec)
	case t.no():
		t.goTo(f.selectField)
		f.askField(t)
	default:
		f.d.retry(t)
	}
}

func (f *documentFlow) accept(t *turn, rec *models.DocumentRecord) {
	t.say(msgDocConfirmed)
	f.commit(t, maps.Clone(rec.Verified))
}

// commitIDCard copies the member's details into the flow that asked for
// the Emirates ID and resumes it.
func (d *Dispatcher) commitIDCard(t *turn, verified map[string]string) {
	if t.state.SelectedService == serviceMotor {
		t.state.SetResponse(backend.KeyMemberName, verified[fieldName])
		t.state.SetResponse(keyMotorMemberDOB, verified[fieldDOB])
		t.state.SetResponse(keyMotorGender, backend.NormalizeGender(verified[fieldGender]))
		d.askLicense(t)
		return
	}
	t.state.SetResponse(backend.KeyMemberName, verified[fieldName])
	t.state.SetResponse(backend.KeyMemberDOB, verified[fieldDOB])
	t.state.SetResponse(backend.KeyMemberGender, backend.NormalizeGender(verified[fieldGender]))
	t.goTo(models.StageMedicalMaritalStatus)
	d.promptMaritalStatus(t)
}

func (d *Dispatcher) commitLicense(t *turn, verified map[string]string) {
	for _, field := range extraction.DrivingLicenseFields {
		t.state.SetResponse(licenseKeyPrefix+field, verified[field])
	}
	d.askMulkiya(t)
}

func (d *Dispatcher) commitMulkiya(t *turn, verified map[string]string) {
	for _, field := range extraction.VehicleRegistrationFields {
		t.state.SetResponse(mulkiyaKeyPrefix+field, verified[field])
	}
	d.askWishToBuy(t)
}

// fieldLabel turns a field key into its display label: "date_of_birth"
// becomes "Date Of Birth".
func fieldLabel(field string) string {
	words := strings.Split(field, "_")
	for i, w := range words {
		words[i] = titleCase(w)
	}
	return strings.Join(words, " ")
}

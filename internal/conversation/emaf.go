package conversation

import (
	"log/slog"
	"strconv"

	"github.com/BTreeMap/Insura/internal/backend"
	"github.com/BTreeMap/Insura/internal/events"
	"github.com/BTreeMap/Insura/internal/models"
)

// Response keys of the EMAF side-flow.
const (
	keyEMAFName      = "emaf_name"
	keyEMAFPhone     = "emaf_phone"
	keyEMAFCompany   = "emaf_company"
	keyEMAFCompanyID = "emaf_company_id"
	keyEMAFLink      = "emaf_link"
)

// emafInterrupt starts the EMAF flow from any stage outside it when the
// message mentions EMAF.
func (d *Dispatcher) emafInterrupt(t *turn) bool {
	if !t.freeText() || t.state.Stage.IsEMAF() || !containsAny(t.text, d.catalog.EMAFTriggers) {
		return false
	}
	slog.Info("Dispatcher.emafInterrupt: starting EMAF flow", "user_id", t.userID(), "from", t.state.Stage)
	t.goTo(models.StageEMAFName)
	t.prompt(msgEMAFName)
	return true
}

func (d *Dispatcher) handleEMAFName(t *turn) {
	t.state.SetResponse(keyEMAFName, t.text)
	t.goTo(models.StageEMAFPhone)
	t.prompt(msgEMAFPhone)
}

func (d *Dispatcher) handleEMAFPhone(t *turn) {
	t.state.SetResponse(keyEMAFPhone, t.text)
	t.goTo(models.StageEMAFCompany)
	t.ask(msgEMAFCompany, d.catalog.CompanyNames())
}

func (d *Dispatcher) handleEMAFCompany(t *turn) {
	company, ok := t.pick(d.catalog.CompanyNames())
	if !ok {
		d.retry(t)
		return
	}
	companyID, _ := d.catalog.CompanyID(company)
	t.state.SetResponse(keyEMAFCompany, company)
	t.state.SetResponse(keyEMAFCompanyID, companyID)

	id, err := d.submitter.SubmitEMAF(t.ctx, backend.EMAFRequest{
		Name:      t.state.Response(keyEMAFName),
		Phone:     t.state.Response(keyEMAFPhone),
		CompanyID: companyID,
	})
	if err != nil {
		slog.Error("Dispatcher.handleEMAFCompany: EMAF generation failed", "user_id", t.userID(), "error", err)
		t.say(msgEMAFFailure)
	} else {
		link := d.links.EMAFBase + strconv.FormatInt(id, 10)
		t.state.SetResponse(keyEMAFLink, link)
		t.sayf(msgEMAFSuccess, link)
		d.publish(t, events.LeadEMAFGenerated, map[string]string{keyEMAFCompany: company, keyEMAFLink: link})
	}
	d.offerNewQuery(t)
}

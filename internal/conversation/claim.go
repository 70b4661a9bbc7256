package conversation

import (
	"time"

	"github.com/BTreeMap/Insura/internal/events"
	"github.com/BTreeMap/Insura/internal/models"
)

// Response keys of the claim flow.
const (
	keyClaimType       = "claim_type"
	keyPolicyNumber    = "policy_number"
	keyIncidentDetails = "incident_details"
	keyIncidentDate    = "incident_date"
)

func (d *Dispatcher) startClaim(t *turn) {
	d.selectService(t, serviceClaim)
	t.say(msgClaimIntro)
	t.pause(time.Second)
	t.goTo(models.StageClaimType)
	t.prompt(msgClaimType)
}

func (d *Dispatcher) handleClaimType(t *turn) {
	t.state.SetResponse(keyClaimType, t.text)
	t.goTo(models.StageClaimPolicy)
	t.prompt(msgClaimPolicy)
}

func (d *Dispatcher) handleClaimPolicy(t *turn) {
	t.state.SetResponse(keyPolicyNumber, t.text)
	t.goTo(models.StageClaimDetails)
	t.prompt(msgClaimDetails)
}

func (d *Dispatcher) handleClaimDetails(t *turn) {
	t.state.SetResponse(keyIncidentDetails, t.text)
	t.goTo(models.StageClaimDate)
	t.prompt(msgClaimDate)
}

func (d *Dispatcher) handleClaimDate(t *turn) {
	t.state.SetResponse(keyIncidentDate, t.text)
	t.say(msgClaimThanks)
	t.pause(time.Second)
	t.say(msgClaimSpecialist)
	d.publish(t, events.LeadClaimFiled, map[string]string{
		keyClaimType:       t.state.Response(keyClaimType),
		keyPolicyNumber:    t.state.Response(keyPolicyNumber),
		keyIncidentDetails: t.state.Response(keyIncidentDetails),
		keyIncidentDate:    t.state.Response(keyIncidentDate),
	})
	d.offerNewQuery(t)
}

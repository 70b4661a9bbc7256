package conversation

import (
	"fmt"
	"strings"
	"time"

	"github.com/BTreeMap/Insura/internal/events"
	"github.com/BTreeMap/Insura/internal/models"
)

// Response keys written by the greeting and menu stages.
const (
	keyName        = "name"
	keyServiceType = "service_type"
)

// greet welcomes the user and asks for a name unless one is known.
func (d *Dispatcher) greet(t *turn) {
	t.say(msgWelcome)
	t.pause(time.Second)
	if name := t.state.Name; name != "" {
		t.state.SetResponse(keyName, name)
		d.showMenu(t, fmt.Sprintf(msgNiceToMeet, name))
		return
	}
	t.prompt(msgAskName)
	t.goTo(models.StageAwaitingName)
}

func (d *Dispatcher) handleAwaitingName(t *turn) {
	name := strings.TrimSpace(t.text)
	if name == "" {
		t.prompt(msgAskName)
		return
	}
	t.state.Name = name
	t.state.SetResponse(keyName, name)
	d.publish(t, events.LeadNameCaptured, map[string]string{keyName: name})
	d.showMenu(t, fmt.Sprintf(msgWelcomeNamed, name))
}

// showMenu offers the three services and resets the question cursor.
func (d *Dispatcher) showMenu(t *turn, text string) {
	t.state.QuestionIndex = 0
	t.ask(text, d.catalog.Services)
	t.goTo(models.StageInitialQuestion)
}

func (d *Dispatcher) handleInitialQuestion(t *turn) {
	if t.event.Selection == nil && t.choice == "" {
		d.retry(t)
		return
	}
	switch {
	case strings.Contains(t.choice, serviceMedical):
		d.startMedical(t)
	case strings.Contains(t.choice, serviceMotor):
		d.startMotor(t)
	case strings.Contains(t.choice, serviceClaim):
		d.startClaim(t)
	default:
		d.retry(t)
	}
}

func (d *Dispatcher) selectService(t *turn, service string) {
	t.state.SelectedService = service
	t.state.SetResponse(keyServiceType, service)
	d.publish(t, events.LeadServiceSelected, map[string]string{keyServiceType: service})
}

// offerNewQuery closes a flow by asking whether the user wants to start over.
func (d *Dispatcher) offerNewQuery(t *turn) {
	t.pause(time.Second)
	t.askYesNo(msgPurchaseAgain)
	t.goTo(models.StageWaitingForNewQuery)
}

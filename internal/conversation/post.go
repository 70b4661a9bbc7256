package conversation

import (
	"time"

	"github.com/BTreeMap/Insura/internal/models"
)

// MaxFreeFormExchanges is how many assistant replies ai_response gives
// before offering the guided menu again.
const MaxFreeFormExchanges = 2

func (d *Dispatcher) handleNewQuery(t *turn) {
	switch {
	case t.yes():
		d.showMenu(t, msgMenuAgain)
	case t.no():
		t.say(msgGoodbye)
		t.state.LLMCount = 0
		t.goTo(models.StageAIResponse)
		t.pause(7 * time.Second)
		t.prompt(msgAskAnything)
	default:
		d.retry(t)
	}
}

func (d *Dispatcher) handleAIResponse(t *turn) {
	d.fallback.Respond(t)
	t.state.LLMCount++
	if t.state.LLMCount < MaxFreeFormExchanges {
		return
	}
	t.state.LLMCount = 0
	t.pause(2 * time.Second)
	t.askYesNo(msgPurchaseAgain)
	t.goTo(models.StageWaitingForNewQuery)
}

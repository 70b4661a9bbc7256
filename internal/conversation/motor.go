package conversation

import (
	"fmt"
	"maps"
	"strings"

	"github.com/BTreeMap/Insura/internal/backend"
	"github.com/BTreeMap/Insura/internal/events"
	"github.com/BTreeMap/Insura/internal/models"
)

// Response keys of the motor flow.
const (
	keyVehicleType      = "vehicle_type"
	keyRegistrationCity = "registration_city"
	keyMotorMemberDOB   = "motor_member_dob"
	keyMotorGender      = "motor_member_gender"
	keyMotorWishToBuy   = "motor_vehicle_wish_to_buy"
	licenseKeyPrefix    = "license_"
	mulkiyaKeyPrefix    = "mulkiya_"
)

func (d *Dispatcher) startMotor(t *turn) {
	d.selectService(t, serviceMotor)
	t.goTo(models.StageMotorVehicleType)
	t.ask(msgVehicleType, d.catalog.VehicleTypes)
}

func (d *Dispatcher) handleVehicleType(t *turn) {
	vehicle, ok := t.pick(d.catalog.VehicleTypes)
	if !ok {
		d.retry(t)
		return
	}
	t.state.SetResponse(keyVehicleType, vehicle)
	if vehicle == d.catalog.VehicleTypes[0] {
		t.goTo(models.StageMotorRegistrationCity)
	} else {
		t.goTo(models.StageMotorBikeRegistration)
	}
	t.ask(msgRegistrationCity, d.catalog.Emirates)
}

func (d *Dispatcher) promptRegistrationCity(t *turn) {
	t.ask(msgRegistrationRetry, d.catalog.Emirates)
}

func (d *Dispatcher) handleRegistrationCity(t *turn) {
	city, ok := t.pick(d.catalog.Emirates)
	if !ok {
		d.retry(t)
		return
	}
	t.state.SetResponse(keyRegistrationCity, city)
	t.goTo(models.StageMotorMemberInputMethod)
	t.askYesNo(msgCarOwnerMethod)
}

// handleBikeRegistration completes the bike path right after the city:
// bikes collect no owner, license or mulkiya details.
func (d *Dispatcher) handleBikeRegistration(t *turn) {
	city, ok := t.pick(d.catalog.Emirates)
	if !ok {
		d.retry(t)
		return
	}
	t.state.SetResponse(keyRegistrationCity, city)
	d.completeMotor(t)
}

func (d *Dispatcher) handleMotorInputMethod(t *turn) {
	switch {
	case t.yes():
		t.goTo(models.StageMotorUploadDocument)
		t.prompt(msgUploadDocument)
	case t.no():
		t.goTo(models.StageMotorMemberName)
		t.prompt(msgMemberNameManual)
	default:
		d.retry(t)
	}
}

func (d *Dispatcher) handleMotorMemberName(t *turn) {
	t.state.SetResponse(backend.KeyMemberName, t.text)
	t.goTo(models.StageMotorMemberDOB)
	t.prompt(msgMemberDOB)
}

func (d *Dispatcher) handleMotorMemberDOB(t *turn) {
	t.state.SetResponse(keyMotorMemberDOB, t.text)
	t.goTo(models.StageMotorMemberGender)
	t.ask(fmt.Sprintf(msgMemberGender, memberName(t)), d.catalog.Genders)
}

func (d *Dispatcher) handleMotorMemberGender(t *turn) {
	gender, ok := t.pick(d.catalog.Genders)
	if !ok {
		d.retry(t)
		return
	}
	t.state.SetResponse(keyMotorGender, gender)
	d.askLicense(t)
}

func (d *Dispatcher) askLicense(t *turn) {
	t.goTo(models.StageMotorDrivingLicense)
	t.prompt(msgUploadLicense)
}

func (d *Dispatcher) askMulkiya(t *turn) {
	t.goTo(models.StageMotorVehicleMulkiya)
	t.prompt(msgUploadMulkiya)
}

func (d *Dispatcher) askWishToBuy(t *turn) {
	t.goTo(models.StageMotorVehicleWishToBuy)
	t.ask(msgWishToBuy, d.catalog.MotorCovers)
}

func (d *Dispatcher) handleWishToBuy(t *turn) {
	cover, ok := t.pick(d.catalog.MotorCovers)
	if !ok {
		for _, c := range d.catalog.MotorCovers {
			if strings.EqualFold(strings.TrimSpace(t.text), c) {
				cover, ok = c, true
				break
			}
		}
	}
	if !ok {
		d.retry(t)
		return
	}
	t.state.SetResponse(keyMotorWishToBuy, cover)
	d.completeMotor(t)
}

// completeMotor publishes the collected answers, discards the record and
// starts a fresh one waiting for the next query.
func (d *Dispatcher) completeMotor(t *turn) {
	d.publish(t, events.LeadMotorCompleted, maps.Clone(t.state.Responses))
	t.say(msgMotorComplete)
	d.restartState(t)
	d.offerNewQuery(t)
}

// restartState replaces the turn's record with a new one that keeps only
// the user's name and language.
func (d *Dispatcher) restartState(t *turn) {
	old := t.state
	fresh := models.NewConversationState(old.UserID, old.ProfileName, d.now())
	fresh.Name = old.Name
	fresh.Language = old.Language
	t.state = fresh
}

package conversation

import (
	"github.com/BTreeMap/Insura/internal/models"
)

// stageHandlers builds the dispatch table. Every stage in models.AllStages
// has an entry; the document stages are registered by their flows.
func (d *Dispatcher) stageHandlers() map[models.Stage]stageHandler {
	h := map[models.Stage]stageHandler{
		models.StageGreeting:        {handle: d.greet},
		models.StageAwaitingName:    {handle: d.handleAwaitingName, prompt: func(t *turn) { t.prompt(msgAskName) }},
		models.StageInitialQuestion: {handle: d.handleInitialQuestion, prompt: func(t *turn) { d.showMenu(t, msgMenuRetry) }},

		models.StageMedicalFlow:              {handle: d.handleMedicalFlow, prompt: d.promptMedicalFlow},
		models.StageMedicalSponsorPhone:      {handle: d.handleSponsorPhone, prompt: func(t *turn) { t.prompt(msgSponsorPhoneRetry) }},
		models.StageMedicalSponsorEmail:      {handle: d.handleSponsorEmail, prompt: func(t *turn) { t.prompt(msgSponsorEmailRetry) }},
		models.StageMedicalMemberInputMethod: {handle: d.handleMedicalInputMethod, prompt: func(t *turn) { t.askYesNo(msgMemberMethodRetry) }},
		models.StageMedicalUploadDocument:    uploadStage(msgUploadDocument),
		models.StageMedicalMemberName:        {handle: d.handleMedicalMemberName, prompt: func(t *turn) { t.prompt(msgMemberNameManual) }},
		models.StageMedicalMemberDOB:         {handle: d.handleMedicalMemberDOB, prompt: func(t *turn) { t.prompt(msgMemberDOB) }},
		models.StageMedicalMemberGender:      {handle: d.handleMedicalMemberGender, prompt: d.promptMemberGender},
		models.StageMedicalMaritalStatus:     {handle: d.handleMaritalStatus, prompt: d.promptMaritalStatus},
		models.StageMedicalRelationship:      {handle: d.handleRelationship, prompt: d.promptRelationship},
		models.StageMedicalAdvisorCode:       {handle: d.handleAdvisor, prompt: func(t *turn) { t.askYesNo(msgAdvisor) }},
		models.StageMedicalAdvisorCodeDetail: {handle: d.handleAdvisorCode, prompt: func(t *turn) { t.prompt(msgAdvisorCodeRetry) }},

		models.StageMotorVehicleType:       {handle: d.handleVehicleType, prompt: func(t *turn) { t.ask(msgVehicleType, d.catalog.VehicleTypes) }},
		models.StageMotorRegistrationCity:  {handle: d.handleRegistrationCity, prompt: d.promptRegistrationCity},
		models.StageMotorBikeRegistration:  {handle: d.handleBikeRegistration, prompt: d.promptRegistrationCity},
		models.StageMotorMemberInputMethod: {handle: d.handleMotorInputMethod, prompt: func(t *turn) { t.askYesNo(msgMemberMethodRetry) }},
		models.StageMotorUploadDocument:    uploadStage(msgUploadDocument),
		models.StageMotorMemberName:        {handle: d.handleMotorMemberName, prompt: func(t *turn) { t.prompt(msgMemberNameManual) }},
		models.StageMotorMemberDOB:         {handle: d.handleMotorMemberDOB, prompt: func(t *turn) { t.prompt(msgMemberDOB) }},
		models.StageMotorMemberGender:      {handle: d.handleMotorMemberGender, prompt: d.promptMemberGender},
		models.StageMotorDrivingLicense:    uploadStage(msgUploadLicense),
		models.StageMotorVehicleMulkiya:    uploadStage(msgUploadMulkiya),
		models.StageMotorVehicleWishToBuy:  {handle: d.handleWishToBuy, prompt: func(t *turn) { t.ask(msgWishToBuy, d.catalog.MotorCovers) }},

		models.StageClaimType:    {handle: d.handleClaimType, prompt: func(t *turn) { t.prompt(msgClaimType) }},
		models.StageClaimPolicy:  {handle: d.handleClaimPolicy, prompt: func(t *turn) { t.prompt(msgClaimPolicy) }},
		models.StageClaimDetails: {handle: d.handleClaimDetails, prompt: func(t *turn) { t.prompt(msgClaimDetails) }},
		models.StageClaimDate:    {handle: d.handleClaimDate, prompt: func(t *turn) { t.prompt(msgClaimDate) }},

		models.StageWaitingForNewQuery: {handle: d.handleNewQuery, prompt: func(t *turn) { t.askYesNo(msgPurchaseAgain) }},
		models.StageAIResponse:         {handle: d.handleAIResponse, prompt: func(t *turn) { t.prompt(msgAskAnything) }},

		models.StageEMAFName:    {handle: d.handleEMAFName, prompt: func(t *turn) { t.prompt(msgEMAFName) }},
		models.StageEMAFPhone:   {handle: d.handleEMAFPhone, prompt: func(t *turn) { t.prompt(msgEMAFPhone) }},
		models.StageEMAFCompany: {handle: d.handleEMAFCompany, prompt: func(t *turn) { t.ask(msgEMAFCompany, d.catalog.CompanyNames()) }},

		models.StageTakafulQA:       {handle: d.handleTakafulQA, prompt: func(t *turn) { t.prompt(msgTakafulContinue) }},
		models.StageTakafulFollowup: {handle: d.handleTakafulFollowup, prompt: func(t *turn) { t.askYesNo(msgTakafulFollowup) }},

		models.StageWaitingForBackID: uploadStage(msgDocNeedBack),
	}
	for _, f := range d.docs {
		f.register(h)
	}
	return h
}

// uploadStage waits for a file; typed text only repeats the request.
func uploadStage(request string) stageHandler {
	ask := func(t *turn) { t.prompt(request) }
	return stageHandler{handle: ask, prompt: ask}
}

package models

// Stage is the discrete named state of one user's conversation. The
// persisted string values are stable; renaming one orphans stored records.
type Stage string

// Greeting and menu.
const (
	StageGreeting        Stage = "greeting"
	StageAwaitingName    Stage = "awaiting_name"
	StageInitialQuestion Stage = "initial_question"
)

// Medical flow. StageMedicalFlow covers the fixed question list and the
// salary question that follows it (QuestionIndex == len(list)).
const (
	StageMedicalFlow              Stage = "medical_flow"
	StageMedicalSponsorPhone      Stage = "medical_sponsor_phone"
	StageMedicalSponsorEmail      Stage = "medical_sponsor_email"
	StageMedicalMemberInputMethod Stage = "medical_member_input_method"
	StageMedicalUploadDocument    Stage = "medical_upload_document"
	StageMedicalMemberName        Stage = "medical_member_name"
	StageMedicalMemberDOB         Stage = "medical_member_dob"
	StageMedicalMemberGender      Stage = "medical_member_gender"
	StageMedicalMaritalStatus     Stage = "medical_marital_status"
	StageMedicalRelationship      Stage = "medical_relationship"
	StageMedicalAdvisorCode       Stage = "medical_advisor_code"
	StageMedicalAdvisorCodeDetail Stage = "medical_advisor_code_details"
)

// Motor flow.
const (
	StageMotorVehicleType       Stage = "motor_insurance_vehicle_type"
	StageMotorRegistrationCity  Stage = "motor_registration_city"
	StageMotorBikeRegistration  Stage = "motor_bike_registration_city"
	StageMotorMemberInputMethod Stage = "motor_member_input_method"
	StageMotorUploadDocument    Stage = "motor_upload_document"
	StageMotorMemberName        Stage = "motor_member_name"
	StageMotorMemberDOB         Stage = "motor_member_dob"
	StageMotorMemberGender      Stage = "motor_member_gender"
	StageMotorDrivingLicense    Stage = "motor_driving_license"
	StageMotorVehicleMulkiya    Stage = "motor_vehicle_mulkiya"
	StageMotorVehicleWishToBuy  Stage = "motor_vehicle_wish_to_buy"
)

// Claim flow.
const (
	StageClaimType    Stage = "claim_flow"
	StageClaimPolicy  Stage = "claim_policy"
	StageClaimDetails Stage = "claim_details"
	StageClaimDate    Stage = "claim_date"
)

// Post-completion loop.
const (
	StageWaitingForNewQuery Stage = "waiting_for_new_query"
	StageAIResponse         Stage = "ai_response"
)

// EMAF side-flow.
const (
	StageEMAFName    Stage = "emaf_name"
	StageEMAFPhone   Stage = "emaf_phone"
	StageEMAFCompany Stage = "emaf_company"
)

// Takaful Emarat Silver side-flow.
const (
	StageTakafulQA       Stage = "takaful_emarat_silver_qa"
	StageTakafulFollowup Stage = "takaful_emarat_silver_followup"
)

// Emirates ID verification.
const (
	StageIDInfoConfirmation  Stage = "document_info_confirmation"
	StageIDSelectField       Stage = "select_field_to_edit"
	StageIDEnterValue        Stage = "entering_new_value"
	StageIDContinueEditing   Stage = "check_continue_editing"
	StageIDFinalConfirmation Stage = "final_document_confirmation"
	StageWaitingForBackID    Stage = "waiting_for_back_id"
)

// Driving license verification.
const (
	StageLicenseInfoConfirmation  Stage = "license_document_info_confirmation"
	StageLicenseSelectField       Stage = "license_select_field_to_edit"
	StageLicenseEnterValue        Stage = "license_entering_new_value"
	StageLicenseContinueEditing   Stage = "license_check_continue_editing"
	StageLicenseFinalConfirmation Stage = "license_final_document_confirmation"
)

// Vehicle registration (mulkiya) verification.
const (
	StageMulkiyaInfoConfirmation  Stage = "mulkiya_document_info_confirmation"
	StageMulkiyaSelectField       Stage = "mulkiya_select_field_to_edit"
	StageMulkiyaEnterValue        Stage = "mulkiya_entering_new_value"
	StageMulkiyaContinueEditing   Stage = "mulkiya_check_continue_editing"
	StageMulkiyaFinalConfirmation Stage = "mulkiya_final_document_confirmation"
)

// AllStages lists every known stage.
var AllStages = []Stage{
	StageGreeting, StageAwaitingName, StageInitialQuestion,
	StageMedicalFlow, StageMedicalSponsorPhone, StageMedicalSponsorEmail,
	StageMedicalMemberInputMethod, StageMedicalUploadDocument, StageMedicalMemberName,
	StageMedicalMemberDOB, StageMedicalMemberGender, StageMedicalMaritalStatus,
	StageMedicalRelationship, StageMedicalAdvisorCode, StageMedicalAdvisorCodeDetail,
	StageMotorVehicleType, StageMotorRegistrationCity, StageMotorBikeRegistration,
	StageMotorMemberInputMethod, StageMotorUploadDocument, StageMotorMemberName,
	StageMotorMemberDOB, StageMotorMemberGender, StageMotorDrivingLicense,
	StageMotorVehicleMulkiya, StageMotorVehicleWishToBuy,
	StageClaimType, StageClaimPolicy, StageClaimDetails, StageClaimDate,
	StageWaitingForNewQuery, StageAIResponse,
	StageEMAFName, StageEMAFPhone, StageEMAFCompany,
	StageTakafulQA, StageTakafulFollowup,
	StageIDInfoConfirmation, StageIDSelectField, StageIDEnterValue,
	StageIDContinueEditing, StageIDFinalConfirmation, StageWaitingForBackID,
	StageLicenseInfoConfirmation, StageLicenseSelectField, StageLicenseEnterValue,
	StageLicenseContinueEditing, StageLicenseFinalConfirmation,
	StageMulkiyaInfoConfirmation, StageMulkiyaSelectField, StageMulkiyaEnterValue,
	StageMulkiyaContinueEditing, StageMulkiyaFinalConfirmation,
}

var knownStages = func() map[Stage]struct{} {
	m := make(map[Stage]struct{}, len(AllStages))
	for _, s := range AllStages {
		m[s] = struct{}{}
	}
	return m
}()

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	_, ok := knownStages[s]
	return ok
}

// IsEMAF reports whether s belongs to the EMAF side-flow.
func (s Stage) IsEMAF() bool {
	return s == StageEMAFName || s == StageEMAFPhone || s == StageEMAFCompany
}

// IsTakaful reports whether s belongs to the Takaful side-flow.
func (s Stage) IsTakaful() bool {
	return s == StageTakafulQA || s == StageTakafulFollowup
}

// IsOpen reports whether s accepts unconstrained conversation, as opposed
// to a stage collecting a specific answer.
func (s Stage) IsOpen() bool {
	switch s {
	case StageInitialQuestion, StageWaitingForNewQuery, StageAIResponse:
		return true
	}
	return false
}

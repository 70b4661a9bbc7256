package extraction

import (
	"fmt"

	"github.com/BTreeMap/Insura/internal/models"
)

// IDCardFields is the ordered field set of an Emirates ID.
var IDCardFields = []string{
	"name", "id_number", "date_of_birth", "nationality", "issue_date",
	"expiry_date", "gender", "card_number", "occupation", "employer", "issuing_place",
}

// DrivingLicenseFields is the ordered field set of a UAE driving license.
var DrivingLicenseFields = []string{
	"name", "license_no", "date_of_birth", "nationality", "issue_date",
	"expiry_date", "traffic_code_no", "place_of_issue", "permitted_vehicles",
}

// VehicleRegistrationFields is the ordered field set of a mulkiya.
var VehicleRegistrationFields = []string{
	"owner_name", "traffic_plate_no", "traffic_code_no", "nationality",
	"make_model", "model_year", "vehicle_color", "vehicle_class",
	"chassis_no", "engine_no", "registration_date", "expiry_date",
	"insurance_expiry", "insurance_company", "place_of_issue",
}

var documentTitles = map[models.DocumentKind]string{
	models.DocumentIDCard:              "UAE Emirates ID card",
	models.DocumentDrivingLicense:      "UAE driving license",
	models.DocumentVehicleRegistration: "UAE vehicle registration card (mulkiya)",
}

// Fields returns the ordered field set for kind, or nil for unknown kinds.
func Fields(kind models.DocumentKind) []string {
	switch kind {
	case models.DocumentIDCard:
		return IDCardFields
	case models.DocumentDrivingLicense:
		return DrivingLicenseFields
	case models.DocumentVehicleRegistration:
		return VehicleRegistrationFields
	}
	return nil
}

// jsonSchema builds the validation schema for one document kind: an object
// whose values are strings or null and which has no keys beyond the field set.
func jsonSchema(kind models.DocumentKind) string {
	props := ""
	for i, f := range Fields(kind) {
		if i > 0 {
			props += ","
		}
		props += fmt.Sprintf(`%q:{"type":["string","null"]}`, f)
	}
	return `{"type":"object","properties":{` + props + `},"additionalProperties":false}`
}

func extractionPrompt(kind models.DocumentKind) string {
	fields := Fields(kind)
	list := ""
	for _, f := range fields {
		list += "- " + f + "\n"
	}
	return fmt.Sprintf(`You are an OCR expert reading a %s.
Extract the following fields and respond with a single JSON object using exactly these keys:
%s
Use an empty string for any field that is not visible. Write dates as DD-MM-YYYY. Do not add commentary.`,
		documentTitles[kind], list)
}

package backend

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Response keys read when building a MedicalQuote.
const (
	KeyEmirate       = "medical_q1"
	KeyPlan          = "medical_q2"
	KeySponsorType   = "medical_q3"
	KeySalary        = "monthly_salary"
	KeySponsorPhone  = "sponsor_phone"
	KeySponsorEmail  = "sponsor_email"
	KeyMemberName    = "member_name"
	KeyMemberDOB     = "member_dob"
	KeyMemberGender  = "member_gender"
	KeyMaritalStatus = "marital_status"
	KeyRelationship  = "relationship_with_sponsor"
)

// MedicalQuoteFromResponses builds the medical_insert payload from a
// conversation's recorded answers.
func MedicalQuoteFromResponses(responses map[string]string) MedicalQuote {
	return MedicalQuote{
		VisaIssuedEmirates: capitalize(responses[KeyEmirate]),
		Plan:               capitalize(responses[KeyPlan]),
		MonthlySalary:      responses[KeySalary],
		SponsorType:        capitalize(responses[KeySponsorType]),
		SponsorMobile:      responses[KeySponsorPhone],
		SponsorEmail:       strings.ToLower(responses[KeySponsorEmail]),
		Members: []Member{{
			Name:          capitalize(responses[KeyMemberName]),
			DOB:           responses[KeyMemberDOB],
			Gender:        NormalizeGender(responses[KeyMemberGender]),
			MaritalStatus: responses[KeyMaritalStatus],
			Relation:      capitalize(responses[KeyRelationship]),
		}},
	}
}

// NormalizeGender maps m/male and f/female to Male and Female.
func NormalizeGender(g string) string {
	switch strings.ToLower(strings.TrimSpace(g)) {
	case "m", "male":
		return "Male"
	case "f", "female":
		return "Female"
	}
	return g
}

// capitalize upper-cases the first rune and lower-cases the rest.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + strings.ToLower(s[size:])
}

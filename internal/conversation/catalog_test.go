package conversation

import (
	"testing"
)

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()
	if len(c.Emirates) != 7 {
		t.Errorf("expected 7 emirates, got %d", len(c.Emirates))
	}
	if len(c.MedicalQuestions) != 3 || c.MedicalQuestions[0].Key != "medical_q1" {
		t.Errorf("unexpected medical questions %+v", c.MedicalQuestions)
	}
	if id, ok := c.CompanyID("dubai insurance"); !ok || id != "2" {
		t.Errorf("CompanyID = %q, %v", id, ok)
	}
	for _, s := range c.Services {
		if len([]rune(s)) > 24 {
			t.Errorf("service title %q too long for a list row", s)
		}
	}
}

func TestParseCatalogRejectsIncomplete(t *testing.T) {
	if _, err := ParseCatalog([]byte("services: [")); err == nil {
		t.Errorf("expected YAML error")
	}
	if _, err := ParseCatalog([]byte("services: [A, B]")); err == nil {
		t.Errorf("expected validation error")
	}
}

func TestMatchTopicPrefersLongestKeyword(t *testing.T) {
	c := DefaultCatalog()
	tests := []struct {
		text string
		want string
		ok   bool
	}{
		{"What is the consultation fee?", "consultation_fee", true},
		{"annual medicine limit please", "annual_medicine_limit", true},
		{"Is direct access to the hospital allowed", "direct_access_hospital", true},
		{"tell me a joke", "", false},
	}
	for _, tt := range tests {
		got, ok := c.MatchTopic(tt.text)
		if ok != tt.ok || got.Key != tt.want {
			t.Errorf("MatchTopic(%q) = %q, %v; want %q, %v", tt.text, got.Key, ok, tt.want, tt.ok)
		}
	}
}

func TestWordMatchers(t *testing.T) {
	if !isOneOf("  YES ", []string{"yes"}) || isOneOf("yes please", []string{"yes"}) {
		t.Errorf("isOneOf must match whole trimmed text only")
	}
	if !containsAny("I want an EMAF", []string{"emaf"}) || containsAny("hello", []string{"emaf"}) {
		t.Errorf("containsAny mismatch")
	}
}

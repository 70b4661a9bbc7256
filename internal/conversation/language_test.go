package conversation

import "testing"

func TestRequestedLanguage(t *testing.T) {
	h := newHarness(t)
	tests := []struct {
		text string
		want string
		ok   bool
	}{
		{"change to Urdu", "ur", true},
		{"Hindi please", "hi", true},
		{"speak french.", "fr", true},
		{"in spanish", "es", true},
		{"english language", "en", true},
		{"lang ar", "ar", true},
		{"language de", "", false},
		{"I speak arabic at home", "", false},
		{"switch to klingon", "", false},
	}
	for _, tt := range tests {
		got, ok := h.d.requestedLanguage(tt.text)
		if got != tt.want || ok != tt.ok {
			t.Errorf("requestedLanguage(%q) = %q, %v; want %q, %v", tt.text, got, ok, tt.want, tt.ok)
		}
	}
}

func TestTitleCase(t *testing.T) {
	if got := titleCase("arabic"); got != "Arabic" {
		t.Errorf("titleCase = %q", got)
	}
	if got := titleCase(""); got != "" {
		t.Errorf("titleCase of empty = %q", got)
	}
}

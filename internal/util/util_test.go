package util

import "testing"

func TestCanonicalizePhone(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"+971 50 123 4567", "971501234567", false},
		{"whatsapp:+971501234567", "971501234567", false},
		{"971501234567", "971501234567", false},
		{"", "", true},
		{"abc", "", true},
		{"+12345", "", true},
	}
	for _, tt := range tests {
		got, err := CanonicalizePhone(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("CanonicalizePhone(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("CanonicalizePhone(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEnvHelpers(t *testing.T) {
	const key = "INSURA_TEST_ENV"
	tests := []struct {
		raw      string
		str      string
		boolean  bool
		positive int
	}{
		{"", "fallback", true, 64},
		{"   ", "fallback", true, 64},
		{"yes", "yes", true, 64},
		{"OFF", "OFF", false, 64},
		{"0", "0", false, 64},
		{"12", "12", true, 12},
		{"-3", "-3", true, 64},
		{" 7 ", "7", true, 7},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			t.Setenv(key, tt.raw)
			if got := EnvString(key, "fallback"); got != tt.str {
				t.Errorf("EnvString = %q, want %q", got, tt.str)
			}
			if got := EnvBool(key, true); got != tt.boolean {
				t.Errorf("EnvBool = %v, want %v", got, tt.boolean)
			}
			if got := EnvInt(key, 64); got != tt.positive {
				t.Errorf("EnvInt = %d, want %d", got, tt.positive)
			}
		})
	}
}

package extraction

import (
	"context"
	"errors"
	"testing"

	"github.com/BTreeMap/Insura/internal/models"
	"github.com/google/go-cmp/cmp"
)

type fakeVision struct {
	reply    string
	err      error
	gotMime  string
	gotName  string
	gotCalls int
}

func (f *fakeVision) CompleteWithAttachment(ctx context.Context, system, prompt string, data []byte, mimeType, filename string) (string, error) {
	f.gotCalls++
	f.gotMime = mimeType
	f.gotName = filename
	return f.reply, f.err
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

func TestExtract_IDCard(t *testing.T) {
	fv := &fakeVision{reply: "```json\n{\"name\":\"Ali Hassan\",\"date_of_birth\":\"01-01-1990\",\"gender\":\"Male\",\"card_number\":\" 123456 \",\"notes\":\"ignored\"}\n```"}
	ex := NewVisionExtractor(fv)

	got, err := ex.Extract(context.Background(), []byte("%PDF-1.4 test"), "application/pdf", models.DocumentIDCard)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	want := map[string]string{}
	for _, f := range IDCardFields {
		want[f] = ""
	}
	want["name"] = "Ali Hassan"
	want["date_of_birth"] = "01-01-1990"
	want["gender"] = "Male"
	want["card_number"] = "123456"
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("extraction mismatch (-want +got):\n%s", diff)
	}
	if fv.gotMime != "application/pdf" || fv.gotName != "id_card.pdf" {
		t.Errorf("unexpected attachment metadata %q %q", fv.gotMime, fv.gotName)
	}
}

func TestExtract_AllBlankIsNoData(t *testing.T) {
	for _, reply := range []string{`{}`, `{"name":"","license_no":"  "}`, ``, `I cannot read this document`} {
		ex := NewVisionExtractor(&fakeVision{reply: reply})
		_, err := ex.Extract(context.Background(), []byte("%PDF-1.4"), "application/pdf", models.DocumentDrivingLicense)
		if !errors.Is(err, ErrNoData) {
			t.Errorf("reply %q: expected ErrNoData, got %v", reply, err)
		}
	}
}

func TestExtract_NonStringValueRejected(t *testing.T) {
	ex := NewVisionExtractor(&fakeVision{reply: `{"owner_name":"Ali","model_year":2020}`})
	_, err := ex.Extract(context.Background(), pngHeader, "image/png", models.DocumentVehicleRegistration)
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData for schema violation, got %v", err)
	}
}

func TestExtract_UnsupportedMediaType(t *testing.T) {
	fv := &fakeVision{reply: `{"name":"x"}`}
	ex := NewVisionExtractor(fv)
	_, err := ex.Extract(context.Background(), []byte("GIF89a...."), "image/gif", models.DocumentIDCard)
	if !errors.Is(err, ErrUnsupportedMediaType) {
		t.Fatalf("expected ErrUnsupportedMediaType, got %v", err)
	}
	if fv.gotCalls != 0 {
		t.Error("vision model must not be called for unsupported files")
	}
}

func TestExtract_ModelError(t *testing.T) {
	ex := NewVisionExtractor(&fakeVision{err: errors.New("rate limited")})
	if _, err := ex.Extract(context.Background(), pngHeader, "image/png", models.DocumentIDCard); err == nil {
		t.Fatal("expected error")
	}
}

func TestExtract_UnknownKind(t *testing.T) {
	ex := NewVisionExtractor(&fakeVision{})
	_, err := ex.Extract(context.Background(), pngHeader, "image/png", models.DocumentKind("passport"))
	if !errors.Is(err, ErrUnknownDocumentKind) {
		t.Fatalf("expected ErrUnknownDocumentKind, got %v", err)
	}
}

func TestNormalizeMimeType(t *testing.T) {
	tests := []struct {
		declared string
		data     []byte
		want     string
	}{
		{"image/jpeg", nil, "image/jpeg"},
		{"image/jpg", nil, "image/jpeg"},
		{"application/pdf; charset=binary", nil, "application/pdf"},
		{"application/octet-stream", []byte("%PDF-1.7\n"), "application/pdf"},
		{"", pngHeader, "image/png"},
		{"image/gif", nil, "image/gif"},
	}
	for _, tt := range tests {
		if got := NormalizeMimeType(tt.declared, tt.data); got != tt.want {
			t.Errorf("NormalizeMimeType(%q) = %q, want %q", tt.declared, got, tt.want)
		}
	}
}

func TestFieldsKnownKinds(t *testing.T) {
	for _, k := range models.DocumentKinds {
		if len(Fields(k)) == 0 {
			t.Errorf("no fields for %s", k)
		}
	}
	if Fields("passport") != nil {
		t.Error("unknown kind should have no fields")
	}
}

package invite

import (
	"strings"
	"testing"

	"github.com/foxseedlab/roundup/internal/roundup"
)

func TestComposeAndParse(t *testing.T) {
	session := roundup.Session{
		ID:            123,
		Name:          "Sam Smith",
		ShortDeviceID: "ab12cd34",
	}

	text, err := Compose("Join me for coffee!", session)
	if err != nil {
		t.Fatalf("compose failed: %v", err)
	}
	if !strings.HasPrefix(text, "Join me for coffee!\nrndup://123?did=ab12cd34&nme=") {
		t.Fatalf("unexpected invite text: %q", text)
	}

	code, err := Parse(text)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if code.SessionID != 123 || code.ShortDeviceID != "ab12cd34" || code.InviterAlias != "Sam Smith" {
		t.Fatalf("unexpected code: %+v", code)
	}
}

func TestComposeUnissuedSession(t *testing.T) {
	_, err := Compose("hi", roundup.Session{ID: roundup.UnassignedID})
	if err != ErrNotIssued {
		t.Fatalf("want ErrNotIssued, got %v", err)
	}
}

func TestParseSurroundingProse(t *testing.T) {
	text := "fwd: see below\nrndup://55?did=zzzzzzzz&nme=Kai trailing words after"
	code, err := Parse(text)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if code.SessionID != 55 || code.InviterAlias != "Kai" {
		t.Fatalf("unexpected code: %+v", code)
	}
}

func TestParseLaunchURIVariant(t *testing.T) {
	code, err := Parse("rndup://9/?did=ab12cd34&nme=Kai")
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if code.SessionID != 9 || code.ShortDeviceID != "ab12cd34" {
		t.Fatalf("unexpected code: %+v", code)
	}
}

func TestParseRejectsMalformed(t *testing.T) {
	cases := []struct {
		text string
		want error
	}{
		{"no uri here", ErrNoScheme},
		{"rndup://abc?did=ab12cd34&nme=Kai", ErrBadSessionID},
		{"rndup://5?did=short&nme=Kai", ErrBadAlias},
		{"rndup://5?did=ab1", ErrBadDeviceID},
		{"rndup://5", ErrBadDeviceID},
		{"rndup://5?did=ab12cd34", ErrBadAlias},
		{"rndup://5?did=ab12cd34&nme=%zz", ErrBadAlias},
	}
	for _, c := range cases {
		if _, err := Parse(c.text); err != c.want {
			t.Fatalf("text %q: want %v, got %v", c.text, c.want, err)
		}
	}
}

package textutil

import (
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"trim and lower", "  Acme Press  ", "acme press"},
		{"acute accent", "Éditions Gallimard", "editions gallimard"},
		{"umlaut", "Verlag für Physik", "verlag fur physik"},
		{"cedilla", "Société Française", "societe francaise"},
		{"compatibility ligature", "Ｏｘｆｏｒｄ ﬁrst", "oxford first"},
		{"punctuation kept", "Wiley-VCH, Inc.", "wiley-vch, inc."},
		{"already canonical", "springer", "springer"},
		{"empty", "   ", ""},
		{"cyrillic kept", "Наука", "наука"},
		{"decomposed input", "Cafe\u0301", "cafe"},
		{"zero class mark kept", "a\u034fb", "a\u034fb"},
	}

	n := NewNormalizer()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := n.Normalize(tt.in)
			if err != nil {
				t.Fatalf("Normalize(%q) returned error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	inputs := []string{"Éditions  Gallimard", "ÅNGSTRÖM Press", "Ｏｘｆｏｒｄ"}
	for _, in := range inputs {
		once, err := Normalize(in)
		if err != nil {
			t.Fatalf("Normalize(%q): %v", in, err)
		}
		twice, err := Normalize(once)
		if err != nil {
			t.Fatalf("Normalize(%q): %v", once, err)
		}
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestNormalizeRejectsInvalidUTF8(t *testing.T) {
	_, err := Normalize("bad \xff byte")
	if !errors.Is(err, ErrInvalidUTF8) {
		t.Fatalf("expected ErrInvalidUTF8, got %v", err)
	}
}

func TestIsDroppedMark(t *testing.T) {
	if !isDroppedMark('\u0301') {
		t.Error("combining acute accent should be dropped")
	}
	if isDroppedMark('a') {
		t.Error("letters must be kept")
	}
	if isDroppedMark('-') {
		t.Error("punctuation must be kept")
	}
	if isDroppedMark('\u034f') {
		t.Error("combining grapheme joiner has combining class 0 and must be kept")
	}
}

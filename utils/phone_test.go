package utils

import (
	"errors"
	"testing"
)

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		raw     string
		cc      string
		want    string
		wantErr bool
	}{
		{raw: "300 123 4567", cc: "57", want: "573001234567"},
		{raw: "573001234567", cc: "57", want: "573001234567"},
		{raw: "+57 (300) 123-4567", cc: "57", want: "573001234567"},
		{raw: "12345678", cc: "57", want: "5712345678"},
		{raw: "14155552671", cc: "57", want: "5714155552671"},
		{raw: "441632960961", cc: "57", want: "441632960961"},
		{raw: "1234567890123456", cc: "57", want: "1234567890123456"},
		{raw: "573", cc: "57", want: "573"},
		{raw: "123", cc: "57", wantErr: true},
		{raw: "57", cc: "57", wantErr: true},
		{raw: "", cc: "57", wantErr: true},
		{raw: "call me", cc: "57", wantErr: true},
	}
	for _, tt := range tests {
		got, err := NormalizePhone(tt.raw, tt.cc)
		if tt.wantErr {
			if !errors.Is(err, ErrPhoneNormalization) {
				t.Fatalf("NormalizePhone(%q, %q) error = %v, want ErrPhoneNormalization", tt.raw, tt.cc, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("NormalizePhone(%q, %q) unexpected error: %v", tt.raw, tt.cc, err)
		}
		if got != tt.want {
			t.Fatalf("NormalizePhone(%q, %q) = %q, want %q", tt.raw, tt.cc, got, tt.want)
		}
	}
}

func TestValidatePhoneNumber(t *testing.T) {
	if err := ValidatePhoneNumber("300 123 4567", "57"); err != nil {
		t.Fatalf("expected valid colombian mobile, got %v", err)
	}
	if err := ValidatePhoneNumber("123", "57"); err == nil {
		t.Fatalf("expected error for short number")
	}
}

func TestSlugHelpers(t *testing.T) {
	if got := NormalizeSlug("  Casa-Arepa "); got != "casa-arepa" {
		t.Fatalf("NormalizeSlug = %q", got)
	}
	for _, s := range []string{"casa", "casa-arepa-2", "0f8fad5b-d9cb-469f-a165-70867728950e"} {
		if !IsValidSlug(s) {
			t.Fatalf("IsValidSlug(%q) = false", s)
		}
	}
	for _, s := range []string{"", "-casa", "casa--arepa", "casa arepa", "Casa"} {
		if IsValidSlug(s) {
			t.Fatalf("IsValidSlug(%q) = true", s)
		}
	}
	if !IsCanonicalId("0f8fad5b-d9cb-469f-a165-70867728950e") {
		t.Fatalf("expected canonical id")
	}
	if IsCanonicalId("0F8FAD5B-D9CB-469F-A165-70867728950E") || IsCanonicalId("0f8fad5bd9cb469fa16570867728950e") {
		t.Fatalf("only lowercase hyphenated ids are canonical")
	}
}

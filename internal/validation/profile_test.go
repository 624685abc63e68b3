package validation

import (
	"errors"
	"testing"

	"github.com/mmeshcher/scheme-eligibility/internal/model"
)

func ptr(v int64) *int64 { return &v }

func TestIsValidPincode(t *testing.T) {
	tests := []struct {
		name string
		pin  string
		want bool
	}{
		{name: "valid", pin: "110001", want: true},
		{name: "leading zero", pin: "010001", want: false},
		{name: "too short", pin: "11000", want: false},
		{name: "letters", pin: "11A001", want: false},
		{name: "empty", pin: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidPincode(tt.pin); got != tt.want {
				t.Fatalf("IsValidPincode(%q) = %v, want %v", tt.pin, got, tt.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	p := Normalize(model.UserProfile{
		Name:           "  Ramesh ",
		Gender:         "male",
		Category:       "sc",
		Education:      "none",
		RationCardType: "bpl",
	})

	if p.Name != "Ramesh" {
		t.Fatalf("Name = %q, want %q", p.Name, "Ramesh")
	}
	if p.Gender != model.GenderMale {
		t.Fatalf("Gender = %q, want %q", p.Gender, model.GenderMale)
	}
	if p.Category != model.CategorySC {
		t.Fatalf("Category = %q, want %q", p.Category, model.CategorySC)
	}
	if p.Education != "" {
		t.Fatalf("Education = %q, want empty", p.Education)
	}
	if p.RationCardType != model.RationCardBPL {
		t.Fatalf("RationCardType = %q, want %q", p.RationCardType, model.RationCardBPL)
	}
}

func TestValidateProfile(t *testing.T) {
	if err := ValidateProfile(model.UserProfile{}); err != nil {
		t.Fatalf("empty profile must be valid, got %v", err)
	}

	err := ValidateProfile(model.UserProfile{
		Age:      ptr(-1),
		Income:   ptr(-5),
		Pincode:  "12",
		Category: "XYZ",
	})
	if err == nil {
		t.Fatalf("expected validation error")
	}

	var fe *FieldError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FieldError, got %T", err)
	}
	if fe.Field != "age" {
		t.Fatalf("first field = %q, want age", fe.Field)
	}
}

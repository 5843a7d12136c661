package assetref

import (
	"errors"
	"testing"
)

func TestParse_Valid(t *testing.T) {
	r, err := Parse("splint_invest/BORDEAUX-2019")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Platform != "splint_invest" {
		t.Errorf("expected platform=splint_invest, got %s", r.Platform)
	}
	if r.AssetID != "BORDEAUX-2019" {
		t.Errorf("expected asset_id=BORDEAUX-2019, got %s", r.AssetID)
	}
	if r.String() != "splint_invest/BORDEAUX-2019" {
		t.Errorf("round trip mismatch: %s", r.String())
	}
}

func TestParse_InvalidFormat(t *testing.T) {
	tests := []string{
		"",
		"splint_invest",
		"/BORDEAUX-2019",
		"splint_invest/",
		"Splint/BORDEAUX-2019",      // upper-case platform
		"splint invest/BORDEAUX",    // space
		"splint_invest/-BORDEAUX",   // leading dash
		"splint_invest/BORDEAUX 19", // space in id
	}
	for _, s := range tests {
		if _, err := Parse(s); err == nil {
			t.Errorf("expected error for ref %q", s)
		}
	}
}

func TestParse_ErrorKinds(t *testing.T) {
	if _, err := Parse("nope"); !errors.Is(err, ErrInvalidRef) {
		t.Errorf("expected ErrInvalidRef, got %v", err)
	}
	if _, err := Parse("X/BORDEAUX"); !errors.Is(err, ErrInvalidPlatform) {
		t.Errorf("expected ErrInvalidPlatform, got %v", err)
	}
	if _, err := Parse("masterworks/!!"); !errors.Is(err, ErrInvalidAssetID) {
		t.Errorf("expected ErrInvalidAssetID, got %v", err)
	}
}

func TestValidateType(t *testing.T) {
	got, err := ValidateType(" wine ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != TypeWine {
		t.Errorf("expected WINE, got %s", got)
	}

	if _, err := ValidateType("SPACESHIP"); !errors.Is(err, ErrInvalidType) {
		t.Errorf("expected ErrInvalidType, got %v", err)
	}
}

func TestValidateType_AllTypes(t *testing.T) {
	for typ := range validTypes {
		if _, err := ValidateType(typ); err != nil {
			t.Errorf("type %s should be valid: %v", typ, err)
		}
	}
}

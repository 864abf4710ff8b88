package api

import (
	"testing"
)

func TestNewRunID(t *testing.T) {
	id := NewRunID()
	if !ValidateRunID(id) {
		t.Errorf("NewRunID() = %q, want valid run ID", id)
	}
	if other := NewRunID(); other == id {
		t.Errorf("NewRunID() returned %q twice", id)
	}
}

func TestNewEnvironmentName(t *testing.T) {
	name := NewEnvironmentName()
	if len(name) != EnvironmentNameLength {
		t.Errorf("len(NewEnvironmentName()) = %d, want %d", len(name), EnvironmentNameLength)
	}
	if !ValidateEnvironmentName(name) {
		t.Errorf("NewEnvironmentName() = %q, want valid environment name", name)
	}
}

func TestNewGenerationID(t *testing.T) {
	id := NewGenerationID()
	if !ValidateGenerationID(id) {
		t.Errorf("NewGenerationID() = %q, want valid generation ID", id)
	}
}

func TestValidateEnvironmentName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"valid", "abcdefghijklmnop", true},
		{"valid mixed", "AbCd1234EfGh5678", true},
		{"too short", "abc", false},
		{"too long", "abcdefghijklmnopq", false},
		{"special chars", "abcdefghijklmn!@", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateEnvironmentName(tt.in); got != tt.want {
				t.Errorf("ValidateEnvironmentName(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestValidateGenerationID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want bool
	}{
		{"valid", "gen_abcdefghijkl", true},
		{"wrong prefix", "run_abcdefghijkl", false},
		{"too short", "gen_abc", false},
		{"prefix only", "gen_", false},
		{"empty", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateGenerationID(tt.id); got != tt.want {
				t.Errorf("ValidateGenerationID(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func TestValidateRunID(t *testing.T) {
	if ValidateRunID("not-a-uuid") {
		t.Error("ValidateRunID(\"not-a-uuid\") = true, want false")
	}
	if !ValidateRunID("6f1d2c3e-8a4b-4c5d-9e6f-0a1b2c3d4e5f") {
		t.Error("ValidateRunID(valid uuid) = false, want true")
	}
}

package messagequeue

import (
	"strings"
	"testing"
)

func TestValidateQueryResolved(t *testing.T) {
	data := []byte(`{"session_id":"s1","question":"How many change orders are there?","tier":"pattern","row_count":1,"duration_ms":42,"resolved_at":"2026-08-30T10:00:00Z"}`)
	if err := Validate(SubjectQueryResolved, data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateDiscoveryAlert(t *testing.T) {
	data := []byte(`{"pattern":"grounding_cascade","match_count":14,"project_count":5,"total_amount":2100000,"alert_level":"high"}`)
	if err := Validate(SubjectDiscoveryAlert, data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidatePortfolioAlert(t *testing.T) {
	data := []byte(`{"project_id":"PRJ-003","project_name":"Airport Terminal B","metric":"cpi","value":0.84,"threshold":0.9,"severity":"high"}`)
	if err := Validate(SubjectPortfolioAlert, data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateUnknownSubject(t *testing.T) {
	// Unknown subjects should pass (future-proof).
	data := []byte(`{"foo":"bar"}`)
	if err := Validate("unknown.subject", data); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateInvalidJSON(t *testing.T) {
	data := []byte(`{not valid json`)
	err := Validate(SubjectQueryResolved, data)
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
	if !strings.Contains(err.Error(), "invalid JSON") {
		t.Fatalf("unexpected error message: %v", err)
	}
}

func TestValidateSchemaMismatch(t *testing.T) {
	// row_count as a string violates the schema.
	data := []byte(`{"question":"q","tier":"pattern","row_count":"many"}`)
	if err := Validate(SubjectQueryResolved, data); err == nil {
		t.Fatal("expected schema validation error")
	}
}

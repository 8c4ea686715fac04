package integrity_test

import (
	"testing"

	"github.com/maylavoice/mayla/internal/integrity"
)

func TestValidate_NeverPopulated(t *testing.T) {
	t.Parallel()

	r := integrity.NewRegistry()
	v := r.Validate("abc123")
	if v == nil {
		t.Fatal("expected a violation before any listing")
	}
	if v.Code != integrity.CodeNeverListed {
		t.Errorf("code = %q, want %q", v.Code, integrity.CodeNeverListed)
	}
}

func TestValidate_MissingOrNonStringID(t *testing.T) {
	t.Parallel()

	r := integrity.NewRegistry()
	r.Populate([]string{"abc123"})

	for name, raw := range map[string]any{
		"nil":    nil,
		"number": 42.0,
		"empty":  "",
		"object": map[string]any{"id": "abc123"},
	} {
		t.Run(name, func(t *testing.T) {
			v := r.Validate(raw)
			if v == nil || v.Code != integrity.CodeInvalidRequest {
				t.Fatalf("Validate(%v) = %+v, want %s", raw, v, integrity.CodeInvalidRequest)
			}
		})
	}
}

func TestValidate_Fabricated(t *testing.T) {
	t.Parallel()

	r := integrity.NewRegistry()
	r.Populate([]string{"a", "b", "c"})

	v := r.Validate("zzz")
	if v == nil || v.Code != integrity.CodeFabricated {
		t.Fatalf("want FABRICATED_IDENTIFIER, got %+v", v)
	}
	if len(v.ValidIDsHint) == 0 {
		t.Error("fabricated-id violations must carry a valid-ids hint")
	}
	if v.Reminder == "" {
		t.Error("fabricated-id violations must carry a re-list reminder")
	}

	payload := v.Payload()
	if payload["error"] != integrity.CodeFabricated {
		t.Errorf("payload error = %v", payload["error"])
	}
}

func TestPopulate_ReplacesWholesale(t *testing.T) {
	t.Parallel()

	r := integrity.NewRegistry()
	r.Populate([]string{"1", "2", "3"})
	r.Populate([]string{"4", "5"})

	if v := r.Validate("2"); v == nil || v.Code != integrity.CodeFabricated {
		t.Fatalf("id from superseded listing must be rejected, got %+v", v)
	}
	if v := r.Validate("4"); v != nil {
		t.Fatalf("id from current listing must pass, got %+v", v)
	}
	if r.Len() != 2 {
		t.Errorf("Len = %d, want 2", r.Len())
	}
}

func TestConsume_OneTimeUse(t *testing.T) {
	t.Parallel()

	r := integrity.NewRegistry()
	r.Populate([]string{"abc123"})

	if v := r.Validate("abc123"); v != nil {
		t.Fatalf("first use must pass, got %+v", v)
	}
	r.Consume("abc123")

	v := r.Validate("abc123")
	if v == nil || v.Code != integrity.CodeFabricated {
		t.Fatalf("consumed id must be rejected as fabricated, got %+v", v)
	}
}

func TestClear_ResetsToNeverListed(t *testing.T) {
	t.Parallel()

	r := integrity.NewRegistry()
	r.Populate([]string{"a"})
	r.Clear()

	v := r.Validate("a")
	if v == nil || v.Code != integrity.CodeNeverListed {
		t.Fatalf("after Clear the registry is never-listed, got %+v", v)
	}
	if !r.LastPopulated().IsZero() {
		t.Error("Clear must forget the population timestamp")
	}
}

func TestPopulate_SkipsEmptyIDs(t *testing.T) {
	t.Parallel()

	r := integrity.NewRegistry()
	r.Populate([]string{"", "x"})
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
	if r.Contains("") {
		t.Error("empty id must not be stored")
	}
}

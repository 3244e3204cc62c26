package core

import (
	"context"
	"errors"
	"testing"

	"familytree/internal/infra/persistence/memory"
	"familytree/pkg/domain"
)

func TestRequiredFieldsRule(t *testing.T) {
	logger := &recordingLogger{}
	store := memory.NewStore(NewDefaultRulesEngine(), memory.WithViolationHandler(ViolationLogger(logger)))
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	var violation domain.RuleViolationError
	err := store.Set(ctx, "people/X/orderId", 5)
	if !errors.As(err, &violation) {
		t.Fatalf("expected rule violation for a record without names, got %v", err)
	}
	if len(violation.Result.Violations) != 2 || violation.Result.Violations[0].Rule != "required_fields" {
		t.Fatalf("unexpected violations %#v", violation.Result.Violations)
	}

	if err := store.Set(ctx, "people/A", domain.RawRecord{"name": "Jan", "surname": "Nowak"}); err != nil {
		t.Fatalf("set complete record: %v", err)
	}
	if err := store.Set(ctx, "people/A/surname", " "); !errors.As(err, &violation) {
		t.Fatalf("expected blanking the surname to be blocked, got %v", err)
	}

	// Records that were already incomplete stay writable.
	store.ImportState(memory.Snapshot{"people": {"L": {"name": "Legacy"}}})
	if err := store.Set(ctx, "people/L/orderId", 10); err != nil {
		t.Fatalf("move of legacy record rejected: %v", err)
	}
	if err := store.Set(ctx, "other/Z", map[string]any{"k": 1}); err != nil {
		t.Fatalf("other collections are not checked: %v", err)
	}
}

func TestParentReferenceRuleWarns(t *testing.T) {
	logger := &recordingLogger{}
	var results []domain.Result
	store := memory.NewStore(NewDefaultRulesEngine(), memory.WithViolationHandler(func(ctx context.Context, res domain.Result) {
		results = append(results, res)
		ViolationLogger(logger)(ctx, res)
	}))
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()
	seed := map[string]any{
		"A": domain.RawRecord{"name": "A", "surname": "X"},
		"B": domain.RawRecord{"name": "B", "surname": "X", "parentId": "A"},
		"C": domain.RawRecord{"name": "C", "surname": "X", "parentId": "B"},
	}
	if err := store.Update(ctx, "people", seed); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("unexpected warnings on valid seed: %#v", results)
	}

	cases := []struct {
		name, path, parent, want string
		original                 any
	}{
		{"self", "people/A/parentId", "A", "person A is its own parent", nil},
		{"dangling", "people/C/parentId", "ghost", "person C references missing parent ghost", "B"},
		{"cycle", "people/A/parentId", "C", "parent C of person A is also its descendant", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			results = nil
			if err := store.Set(ctx, tc.path, tc.parent); err != nil {
				t.Fatalf("warnings must not block: %v", err)
			}
			if len(results) != 1 || len(results[0].Violations) != 1 {
				t.Fatalf("expected one warning, got %#v", results)
			}
			v := results[0].Violations[0]
			if v.Severity != domain.SeverityWarn || v.Message != tc.want {
				t.Fatalf("unexpected violation %#v", v)
			}
			if err := store.Set(ctx, tc.path, tc.original); err != nil {
				t.Fatalf("reset: %v", err)
			}
		})
	}
	if !logger.Has("warn rule warning") {
		t.Fatalf("expected warnings to be logged")
	}
}

func TestViolationLoggerLogsNotes(t *testing.T) {
	logger := &recordingLogger{}
	ViolationLogger(logger)(context.Background(), domain.Result{Violations: []domain.Violation{
		{Rule: "r", Severity: domain.SeverityLog, Message: "m"},
	}})
	if !logger.Has("debug rule note") {
		t.Fatalf("expected debug note")
	}
	ViolationLogger(nil)(context.Background(), domain.Result{Violations: []domain.Violation{{Severity: domain.SeverityWarn}}})
}

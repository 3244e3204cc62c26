package core

import (
	"context"
	"fmt"

	"familytree/pkg/domain"
)

// ParentReferenceRule warns when a write leaves a person pointing at itself,
// at a missing record, or at one of its own descendants. The forest builder
// tolerates all three, so the write is allowed.
func ParentReferenceRule() domain.Rule {
	return parentReferenceRule{}
}

type parentReferenceRule struct{}

func (parentReferenceRule) Name() string { return "parent_reference" }

func (parentReferenceRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if !isPeople(change) {
			continue
		}
		parentID := textField(change.After, domain.FieldParentID)
		if parentID == "" || parentID == textField(change.Before, domain.FieldParentID) {
			continue
		}
		switch {
		case parentID == change.ID:
			res.Violations = append(res.Violations, parentViolation(change.ID, fmt.Sprintf("person %s is its own parent", change.ID)))
		case !hasRecord(view, parentID):
			res.Violations = append(res.Violations, parentViolation(change.ID, fmt.Sprintf("person %s references missing parent %s", change.ID, parentID)))
		case closesCycle(view, change.ID, parentID):
			res.Violations = append(res.Violations, parentViolation(change.ID, fmt.Sprintf("parent %s of person %s is also its descendant", parentID, change.ID)))
		}
	}
	return res, nil
}

func hasRecord(view domain.RuleView, id string) bool {
	_, ok := view.FindRecord(domain.PeoplePath, id)
	return ok
}

// closesCycle follows parent links upward from parentID and reports whether
// they lead back to id.
func closesCycle(view domain.RuleView, id, parentID string) bool {
	seen := map[string]bool{}
	for cur := parentID; cur != "" && !seen[cur]; {
		if cur == id {
			return true
		}
		seen[cur] = true
		rec, ok := view.FindRecord(domain.PeoplePath, cur)
		if !ok {
			return false
		}
		cur = textField(rec, domain.FieldParentID)
	}
	return false
}

func parentViolation(id, message string) domain.Violation {
	return domain.Violation{
		Rule:     "parent_reference",
		Severity: domain.SeverityWarn,
		Message:  message,
		RecordID: id,
	}
}

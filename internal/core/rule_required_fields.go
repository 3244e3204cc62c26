package core

import (
	"context"
	"fmt"

	"familytree/pkg/domain"
)

// RequiredFieldsRule blocks new people without a name or surname, and edits
// that blank out a name or surname that was present before. Records that
// were already incomplete can still be moved and re-parented.
func RequiredFieldsRule() domain.Rule {
	return requiredFieldsRule{}
}

type requiredFieldsRule struct{}

func (requiredFieldsRule) Name() string { return "required_fields" }

func (requiredFieldsRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if !isPeople(change) {
			continue
		}
		for _, field := range []string{domain.FieldName, domain.FieldSurname} {
			if textField(change.After, field) != "" {
				continue
			}
			switch {
			case change.Action == domain.ActionCreate:
				res.Violations = append(res.Violations, requiredViolation(change.ID, fmt.Sprintf("person %s has no %s", change.ID, field)))
			case textField(change.Before, field) != "":
				res.Violations = append(res.Violations, requiredViolation(change.ID, fmt.Sprintf("person %s would lose its %s", change.ID, field)))
			}
		}
	}
	return res, nil
}

func requiredViolation(id, message string) domain.Violation {
	return domain.Violation{
		Rule:     "required_fields",
		Severity: domain.SeverityBlock,
		Message:  message,
		RecordID: id,
	}
}

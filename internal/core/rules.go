package core

import (
	"context"
	"strings"

	"familytree/internal/infra/persistence/memory"
	"familytree/pkg/domain"
)

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(RequiredFieldsRule())
	engine.Register(ParentReferenceRule())
	return engine
}

// ViolationLogger returns a store hook that logs non-blocking rule results.
func ViolationLogger(logger Logger) memory.ViolationHandler {
	if logger == nil {
		logger = noopLogger{}
	}
	return func(_ context.Context, res domain.Result) {
		for _, v := range res.Violations {
			switch v.Severity {
			case domain.SeverityWarn:
				logger.Warn("rule warning", "rule", v.Rule, "person", v.RecordID, "message", v.Message)
			default:
				logger.Debug("rule note", "rule", v.Rule, "person", v.RecordID, "message", v.Message)
			}
		}
	}
}

func isPeople(change domain.Change) bool {
	return change.Collection == domain.PeoplePath && change.After != nil
}

func textField(rec domain.RawRecord, field string) string {
	s, _ := rec[field].(string)
	return strings.TrimSpace(s)
}

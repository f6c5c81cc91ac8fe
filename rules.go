package aippt

import (
	"fmt"

	"github.com/aippt/aippt/template"
)

// Rule overrides template selection for content items matching a CEL condition.
// Variables available to If: slideType, index, count, title.
type Rule struct {
	If       string `json:"if" yaml:"if"`
	Template string `json:"template,omitempty" yaml:"template,omitempty"`
	Skip     bool   `json:"skip,omitempty" yaml:"skip,omitempty"`
}

type decision struct {
	template string
	skip     bool
}

func ruleStore(item Item, index int) map[string]any {
	return map[string]any{
		"slideType": string(item.Type()),
		"index":     index,
		"count":     countOf(item),
		"title":     titleOf(item),
	}
}

// validateRules evaluates every condition once so that syntax errors surface before assembly.
func validateRules(rules []Rule) error {
	probe := ruleStore(&End{}, 0)
	for i, r := range rules {
		if r.If == "" {
			return fmt.Errorf("rule %d has no condition", i)
		}
		if _, err := template.EvalBool(r.If, probe); err != nil {
			return fmt.Errorf("invalid rule %d: %w", i, err)
		}
	}
	return nil
}

// decide returns the action of the first rule matching item.
func decide(rules []Rule, item Item, index int) (decision, error) {
	if len(rules) == 0 {
		return decision{}, nil
	}
	store := ruleStore(item, index)
	for i, r := range rules {
		ok, err := template.EvalBool(r.If, store)
		if err != nil {
			return decision{}, fmt.Errorf("failed to evaluate rule %d: %w", i, err)
		}
		if ok {
			return decision{template: r.Template, skip: r.Skip}, nil
		}
	}
	return decision{}, nil
}

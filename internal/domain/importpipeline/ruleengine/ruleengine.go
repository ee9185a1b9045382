// Package ruleengine evaluates user-defined category rules against
// canonical import rows.
package ruleengine

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/finledger/pipeline/internal/domain/importpipeline/model"
	"github.com/finledger/pipeline/internal/domain/importpipeline/textnorm"
)

// ErrInvalidPattern is returned at rule-create time when a regex pattern
// fails to compile; it must never surface during commit-time evaluation.
var ErrInvalidPattern = errors.New("invalid_pattern")

// ValidatePattern compiles a rule's pattern the same way Categorize will, so
// a bad regex is rejected when the rule is created rather than silently
// skipped later.
func ValidatePattern(rule model.CategoryRule) error {
	if rule.MatchType != model.MatchRegex {
		return nil
	}
	if _, err := compileRegex(rule.Pattern); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	return nil
}

func compileRegex(pattern string) (*regexp.Regexp, error) {
	return regexp.Compile("(?i)" + pattern)
}

// Engine evaluates a user's rule set, ordered ascending by priority then
// by creation order, against a single row.
type Engine struct {
	rules []model.CategoryRule
}

// New builds an Engine from a user's rule set; disabled rules are dropped
// up front and the remainder sorted into evaluation order.
func New(rules []model.CategoryRule) *Engine {
	active := make([]model.CategoryRule, 0, len(rules))
	for _, r := range rules {
		if r.Enabled {
			active = append(active, r)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		if active[i].Priority != active[j].Priority {
			return active[i].Priority < active[j].Priority
		}
		return active[i].CreatedAt.Before(active[j].CreatedAt)
	})
	return &Engine{rules: active}
}

// Categorize returns the categoryId of the first matching rule, and
// whether any rule matched. A manual category already present on the row
// (set by the client against a preview commitIndex) always wins and short
// circuits rule evaluation.
func (e *Engine) Categorize(row model.CanonicalImportRow, manualCategoryID string) (categoryID string, deterministic bool) {
	if manualCategoryID != "" {
		return manualCategoryID, false
	}

	text := textnorm.NormalizeForMatch(row.CounterpartyRaw)
	if text == "" {
		text = textnorm.NormalizeForMatch(row.Description)
	}
	descriptionText := textnorm.NormalizeForMatch(row.Description)

	for _, rule := range e.rules {
		if !e.filtersMatch(rule, row) {
			continue
		}
		if matches(rule, text, descriptionText) {
			return rule.CategoryID, true
		}
	}

	return "", false
}

func (e *Engine) filtersMatch(rule model.CategoryRule, row model.CanonicalImportRow) bool {
	if rule.AccountID != nil && *rule.AccountID != row.AccountID {
		return false
	}
	abs := row.AmountCents
	if abs < 0 {
		abs = -abs
	}
	if rule.MinAmountCents != nil && abs < *rule.MinAmountCents {
		return false
	}
	if rule.MaxAmountCents != nil && abs > *rule.MaxAmountCents {
		return false
	}
	return true
}

func matches(rule model.CategoryRule, counterpartyText, descriptionText string) bool {
	switch rule.MatchType {
	case model.MatchContains:
		pattern := textnorm.NormalizeForMatch(rule.Pattern)
		if pattern == "" {
			return false
		}
		return strings.Contains(counterpartyText, pattern) || strings.Contains(descriptionText, pattern)
	case model.MatchRegex:
		re, err := compileRegex(rule.Pattern)
		if err != nil {
			return false
		}
		return re.MatchString(counterpartyText) || re.MatchString(descriptionText)
	default:
		return false
	}
}

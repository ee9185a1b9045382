package ruleengine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finledger/pipeline/internal/domain/importpipeline/model"
)

func TestValidatePattern_RejectsBadRegex(t *testing.T) {
	rule := model.CategoryRule{MatchType: model.MatchRegex, Pattern: "(unterminated"}
	err := ValidatePattern(rule)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidPattern)
}

func TestValidatePattern_AllowsGoodRegex(t *testing.T) {
	rule := model.CategoryRule{MatchType: model.MatchRegex, Pattern: "supermercado.*"}
	assert.NoError(t, ValidatePattern(rule))
}

func TestEngine_Categorize_PriorityOrder(t *testing.T) {
	rules := []model.CategoryRule{
		{ID: "r2", Priority: 2, Enabled: true, MatchType: model.MatchContains, Pattern: "mercado", CategoryID: "cat-general"},
		{ID: "r1", Priority: 1, Enabled: true, MatchType: model.MatchContains, Pattern: "supermercado", CategoryID: "cat-groceries"},
	}
	e := New(rules)

	row := model.CanonicalImportRow{CounterpartyRaw: "Supermercado Extra", AmountCents: -1000}
	catID, deterministic := e.Categorize(row, "")
	assert.True(t, deterministic)
	assert.Equal(t, "cat-groceries", catID)
}

func TestEngine_Categorize_ManualOverrideWins(t *testing.T) {
	rules := []model.CategoryRule{
		{ID: "r1", Priority: 1, Enabled: true, MatchType: model.MatchContains, Pattern: "supermercado", CategoryID: "cat-groceries"},
	}
	e := New(rules)

	row := model.CanonicalImportRow{CounterpartyRaw: "Supermercado Extra", AmountCents: -1000}
	catID, deterministic := e.Categorize(row, "cat-manual")
	assert.False(t, deterministic)
	assert.Equal(t, "cat-manual", catID)
}

func TestEngine_Categorize_AmountFilter(t *testing.T) {
	min := int64(5000)
	rules := []model.CategoryRule{
		{ID: "r1", Priority: 1, Enabled: true, MatchType: model.MatchContains, Pattern: "loja", MinAmountCents: &min, CategoryID: "cat-big"},
	}
	e := New(rules)

	small := model.CanonicalImportRow{CounterpartyRaw: "Loja X", AmountCents: -1000}
	_, deterministic := e.Categorize(small, "")
	assert.False(t, deterministic)

	big := model.CanonicalImportRow{CounterpartyRaw: "Loja X", AmountCents: -9000}
	catID, deterministic := e.Categorize(big, "")
	assert.True(t, deterministic)
	assert.Equal(t, "cat-big", catID)
}

func TestEngine_Categorize_DisabledRuleSkipped(t *testing.T) {
	rules := []model.CategoryRule{
		{ID: "r1", Priority: 1, Enabled: false, MatchType: model.MatchContains, Pattern: "loja", CategoryID: "cat-x"},
	}
	e := New(rules)
	_, deterministic := e.Categorize(model.CanonicalImportRow{CounterpartyRaw: "Loja X", AmountCents: -100}, "")
	assert.False(t, deterministic)
}

func TestEngine_Categorize_CreationOrderTiebreak(t *testing.T) {
	earlier := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	later := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	rules := []model.CategoryRule{
		{ID: "r2", Priority: 1, Enabled: true, CreatedAt: later, MatchType: model.MatchContains, Pattern: "loja", CategoryID: "cat-later"},
		{ID: "r1", Priority: 1, Enabled: true, CreatedAt: earlier, MatchType: model.MatchContains, Pattern: "loja", CategoryID: "cat-earlier"},
	}
	e := New(rules)
	catID, _ := e.Categorize(model.CanonicalImportRow{CounterpartyRaw: "Loja X", AmountCents: -100}, "")
	assert.Equal(t, "cat-earlier", catID)
}

package analyze

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/finledger/pipeline/internal/domain/importpipeline/model"
)

func TestAnalyze_MixedBatch(t *testing.T) {
	ok := &model.CanonicalImportRow{Description: "Padaria", NormalizedDescription: "PADARIA", AmountCents: -100}
	zero := &model.CanonicalImportRow{Description: "Nada", NormalizedDescription: "NADA", AmountCents: 0}
	saldo := &model.CanonicalImportRow{Description: "Saldo do dia", NormalizedDescription: "SALDO DO DIA", AmountCents: 100}

	inputs := []RowInput{
		{Row: ok},
		{Row: zero},
		{Row: saldo},
		{MissingDate: true},
		{InvalidAmount: true},
	}

	result := Analyze(inputs)

	assert.Equal(t, 5, result.Totals.TotalRows)
	assert.Equal(t, 1, result.Totals.ValidRows)
	assert.Equal(t, 2, result.Totals.IgnoredRows)
	assert.Equal(t, 2, result.Totals.ErrorRows)
	assert.Equal(t, 1, result.Totals.Reasons[ReasonZeroAmount])
	assert.Equal(t, 1, result.Totals.Reasons[ReasonSaldoLine])
	assert.Equal(t, 1, result.Totals.Reasons[ReasonMissingDate])
	assert.Equal(t, 1, result.Totals.Reasons[ReasonInvalidAmount])

	require := func(cond bool) {
		if !cond {
			t.Fatalf("expected commitIndex assigned to first ok row")
		}
	}
	require(result.Diagnostics[0].CommitIndex != nil && *result.Diagnostics[0].CommitIndex == 0)
}

func TestAnalyze_PreviewLimit(t *testing.T) {
	inputs := make([]RowInput, 0, 60)
	for i := 0; i < 60; i++ {
		inputs = append(inputs, RowInput{Row: &model.CanonicalImportRow{Description: "x", AmountCents: int64(i + 1)}})
	}

	result := Analyze(inputs)
	assert.Len(t, result.Preview, 50)
	assert.Len(t, result.Diagnostics, 60)
}

package canonicalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finledger/pipeline/internal/domain/importpipeline/model"
	"github.com/finledger/pipeline/internal/domain/importpipeline/sourceparse"
)

func TestCanonicalize_ComposedPattern(t *testing.T) {
	row := sourceparse.ParsedRow{
		Date:        "2026-02-05",
		Description: "Pix enviado: Joao Silva",
		AmountCents: -5000,
	}

	out, err := Canonicalize(row, model.SourceCSV, Hint{})
	require.NoError(t, err)
	assert.Equal(t, "Pix enviado", out.TransactionKindRaw)
	assert.Equal(t, "Joao Silva", out.CounterpartyRaw)
	assert.Equal(t, model.RowExpense, out.Type)
	assert.Equal(t, "JOAO SILVA", out.MerchantKey)
}

func TestCanonicalize_KeywordFallback(t *testing.T) {
	row := sourceparse.ParsedRow{
		Date:        "2026-02-05",
		Description: "COMPRA NO DEBITO Padaria",
		AmountCents: -1000,
	}

	out, err := Canonicalize(row, model.SourceCSV, Hint{})
	require.NoError(t, err)
	assert.Equal(t, "COMPRA NO DEBITO", out.TransactionKindRaw)
}

func TestCanonicalize_NoMerchant(t *testing.T) {
	row := sourceparse.ParsedRow{
		Date:        "2026-02-05",
		Description: "",
		AmountCents: 100,
	}

	out, err := Canonicalize(row, model.SourceCSV, Hint{})
	require.NoError(t, err)
	assert.Equal(t, "transacao", out.MerchantKey)
	assert.Equal(t, model.RowIncome, out.Type)
}

func TestCanonicalize_HintOverridesType(t *testing.T) {
	row := sourceparse.ParsedRow{
		Date:        "2026-02-05",
		Description: "Transferencia entre contas",
		AmountCents: 500,
	}

	out, err := Canonicalize(row, model.SourceOFX, Hint{Type: model.RowTransfer, AccountID: "acc-1"})
	require.NoError(t, err)
	assert.Equal(t, model.RowTransfer, out.Type)
	assert.Equal(t, "acc-1", out.AccountID)
}

func TestCanonicalize_InvalidDate(t *testing.T) {
	row := sourceparse.ParsedRow{Date: "not-a-date", AmountCents: 1}
	_, err := Canonicalize(row, model.SourceCSV, Hint{})
	assert.Error(t, err)
}

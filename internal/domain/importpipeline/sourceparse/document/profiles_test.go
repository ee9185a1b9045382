package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterStatementExtractor_Extract(t *testing.T) {
	text := "BANCO INTER EXTRATO\n01/02/2026\n01/02/2026 PADARIA DO ZE R$ -45,23\n02/02/2026 ESTORNO COMPRA R$ 10,00\n"

	e := interStatementExtractor{}
	require.True(t, e.Matches("BANCO INTER EXTRATO"))

	rows, err := e.Extract(text)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2026-02-01", rows[0].Date)
	assert.Equal(t, int64(-4523), rows[0].AmountCents)
	assert.Equal(t, int64(1000), rows[1].AmountCents)
}

func TestInterInvoiceExtractor_Extract_YearRollover(t *testing.T) {
	text := "BANCO INTER FATURA\nVENCIMENTO: 10/01/2026\n15/12 SUPERMERCADO R$ 120,00\n05/01 FARMACIA R$ 30,00\n"

	e := interInvoiceExtractor{}
	require.True(t, e.Matches("BANCO INTER FATURA"))

	rows, err := e.Extract(text)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2025-12-15", rows[0].Date)
	assert.Equal(t, "2026-01-05", rows[1].Date)
	assert.Equal(t, int64(-12000), rows[0].AmountCents)
}

func TestClassify(t *testing.T) {
	e, ok := classify("NUBANK FATURA\nVENCIMENTO: 10/01/2026\n")
	require.True(t, ok)
	assert.Equal(t, ProfileNubankInvoice, e.Profile())

	_, ok = classify("SOME UNKNOWN DOCUMENT")
	assert.False(t, ok)
}

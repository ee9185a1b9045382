package cardrouter

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/finledger/pipeline/internal/domain/importpipeline/model"
)

func TestIsCardPaymentDescription(t *testing.T) {
	assert.True(t, IsCardPaymentDescription("PAGAMENTO FATURA CARTAO"))
	assert.True(t, IsCardPaymentDescription("PGTO FATURA"))
	assert.True(t, IsCardPaymentDescription("FATURA PAG CARTAO NUBANK"))
	assert.False(t, IsCardPaymentDescription("COMPRA SUPERMERCADO"))
}

func TestRoute_ExplicitDestinationWins(t *testing.T) {
	conv := Route(model.Account{}, "acc-explicit", nil)
	assert.True(t, conv.Converted)
	assert.Equal(t, "acc-explicit", conv.DestinationID)
}

func TestRoute_NoCandidates(t *testing.T) {
	conv := Route(model.Account{ID: "checking-1"}, "", nil)
	assert.False(t, conv.Converted)
	assert.Equal(t, "no_credit_account", conv.NotConvertedReason)
}

func TestRoute_ScoresAboveThreshold(t *testing.T) {
	defaultAccount := model.Account{ID: "checking-1", Institution: "Inter"}
	parent := "checking-1"
	candidates := []Candidate{
		{
			Account:           model.Account{ID: "credit-1", Institution: "Inter", ParentAccountID: &parent},
			DueDayProximity:   1,
			HasRecentPurchase: true,
			RecentPurchaseDebtDeltaCents: 20,
		},
	}
	conv := Route(defaultAccount, "", candidates)
	assert.True(t, conv.Converted)
	assert.Equal(t, "credit-1", conv.DestinationID)
}

func TestRoute_AmbiguousMargin(t *testing.T) {
	defaultAccount := model.Account{ID: "checking-1", Institution: "Inter"}
	parent := "checking-1"
	candidates := []Candidate{
		{Account: model.Account{ID: "credit-1", Institution: "Inter", ParentAccountID: &parent}, DueDayProximity: 1, HasRecentPurchase: true, RecentPurchaseDebtDeltaCents: 20},
		{Account: model.Account{ID: "credit-2", Institution: "Inter", ParentAccountID: &parent}, DueDayProximity: 1, HasRecentPurchase: true, RecentPurchaseDebtDeltaCents: 20},
	}
	conv := Route(defaultAccount, "", candidates)
	assert.False(t, conv.Converted)
	assert.Equal(t, "ambiguous_destination", conv.NotConvertedReason)
}

func TestRoute_BelowMinScore(t *testing.T) {
	defaultAccount := model.Account{ID: "checking-1"}
	candidates := []Candidate{
		{Account: model.Account{ID: "credit-1"}},
	}
	conv := Route(defaultAccount, "", candidates)
	assert.False(t, conv.Converted)
	assert.Equal(t, "low_confidence", conv.NotConvertedReason)
}

func TestInvoiceMode_SkipsPaymentReceived(t *testing.T) {
	assert.True(t, InvoiceMode("PAGAMENTO RECEBIDO", true))
	assert.False(t, InvoiceMode("PAGAMENTO RECEBIDO", false))
	assert.False(t, InvoiceMode("COMPRA SUPERMERCADO", true))
}

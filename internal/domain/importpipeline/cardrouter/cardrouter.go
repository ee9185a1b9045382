// Package cardrouter detects card-payment rows in an import batch and
// converts them into matched transfer pairs against a credit account.
package cardrouter

import (
	"regexp"
	"strings"

	"github.com/finledger/pipeline/internal/domain/importpipeline/model"
)

// cardPaymentVocabulary recognizes the description phrasings that mark a
// row as a credit-card-statement payment rather than an ordinary expense.
var cardPaymentVocabulary = regexp.MustCompile(`PAGAMENTO FATURA|PGTO FATURA|PAG CART|CREDIT CARD PAYMENT|FATURA.*(PAGAMENTO|PAG|PGTO|CARTAO)`)

// IsCardPaymentDescription reports whether a normalized description
// matches the card-payment vocabulary.
func IsCardPaymentDescription(normalizedDescription string) bool {
	return cardPaymentVocabulary.MatchString(normalizedDescription)
}

const (
	minScore       = 5
	minMargin      = 1.5
	dueDayScore    = 1
	institutionScore = 2
	// parentScore alone clears minScore: an account explicitly linked to
	// the default via parentAccountId is a strong enough signal on its own
	// (§8's single-linked-account scenario converts with no other signal
	// available).
	parentScore    = 5
	debtWithin50Cents  = 3
	debtWithin300Cents = 1
	recentPurchaseWindowDays = 45
)

// Candidate is a credit account considered as a destination, along with
// the signals the scoring formula needs.
type Candidate struct {
	Account            model.Account
	DueDayProximity    int // days between the account's statement due day and the payment post date; -1 if unknown
	RecentPurchaseDebtDeltaCents int64 // |payment amount - most recent purchase debt|, within the 45d window; -1 if none
	HasRecentPurchase  bool
}

// Conversion is the outcome of routing a single card-payment row.
type Conversion struct {
	Converted         bool
	DestinationID     string
	NotConvertedReason string
}

// Route decides the destination credit account for one statement-to-credit
// card-payment row. explicitDestinationID, when set, always wins.
func Route(defaultAccount model.Account, explicitDestinationID string, candidates []Candidate) Conversion {
	if explicitDestinationID != "" {
		return Conversion{Converted: true, DestinationID: explicitDestinationID}
	}

	if len(candidates) == 0 {
		return Conversion{Converted: false, NotConvertedReason: "no_credit_account"}
	}

	type scored struct {
		id    string
		score int
	}
	var scores []scored
	for _, c := range candidates {
		s := score(defaultAccount, c)
		scores = append(scores, scored{id: c.Account.ID, score: s})
	}

	best := scores[0]
	runnerUp := -1
	for _, s := range scores[1:] {
		if s.score > best.score {
			runnerUp = best.score
			best = s
		} else if s.score > runnerUp {
			runnerUp = s.score
		}
	}

	if best.score < minScore {
		return Conversion{Converted: false, NotConvertedReason: "low_confidence"}
	}
	margin := float64(best.score - runnerUp)
	if runnerUp >= 0 && margin < minMargin {
		return Conversion{Converted: false, NotConvertedReason: "ambiguous_destination"}
	}

	return Conversion{Converted: true, DestinationID: best.id}
}

func score(defaultAccount model.Account, c Candidate) int {
	total := 0
	if c.Account.ParentAccountID != nil && *c.Account.ParentAccountID == defaultAccount.ID {
		total += parentScore
	}
	if c.Account.Institution != "" && c.Account.Institution == defaultAccount.Institution {
		total += institutionScore
	}
	if c.DueDayProximity >= 0 && c.DueDayProximity <= 3 {
		total += dueDayScore
	}
	if c.HasRecentPurchase {
		switch {
		case c.RecentPurchaseDebtDeltaCents >= 0 && c.RecentPurchaseDebtDeltaCents <= 50:
			total += debtWithin50Cents
		case c.RecentPurchaseDebtDeltaCents >= 0 && c.RecentPurchaseDebtDeltaCents <= 300:
			total += debtWithin300Cents
		}
	}
	return total
}

// InvoiceMode decides whether an invoice-import row should be skipped
// (payment-received lines, per skipCardPaymentLines) or routed to the
// credit account even when the caller's default account is checking.
func InvoiceMode(normalizedDescription string, skipCardPaymentLines bool) (skip bool) {
	if !skipCardPaymentLines {
		return false
	}
	return strings.Contains(normalizedDescription, "PAGAMENTO RECEBIDO") || strings.Contains(normalizedDescription, "CREDITO RECEBIDO")
}

// SynthesizeCreditAccount builds a new credit account to receive invoice
// purchase lines when no existing account matches the detected issuer
// institution profile.
func SynthesizeCreditAccount(userID, institution, name string, parentAccountID string) model.Account {
	parent := parentAccountID
	return model.Account{
		Type:            model.AccountCredit,
		UserID:          userID,
		Name:            name,
		Institution:     institution,
		ParentAccountID: &parent,
	}
}

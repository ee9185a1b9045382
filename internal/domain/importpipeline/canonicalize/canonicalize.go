// Package canonicalize turns a parser-produced ParsedRow into the unified
// CanonicalImportRow shape consumed by the rest of the pipeline.
package canonicalize

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/finledger/pipeline/internal/domain/importpipeline/model"
	"github.com/finledger/pipeline/internal/domain/importpipeline/sourceparse"
	"github.com/finledger/pipeline/internal/domain/importpipeline/textnorm"
)

const noMerchantSentinel = "transacao"

// composedPattern splits a description into a leading transaction-kind
// phrase and a trailing counterparty, for descriptions of the shape
// "Pix enviado: Fulano" or "Compra no debito - Mercado".
var composedPattern = regexp.MustCompile(`(?i)^\s*(PIX\s+(ENVIADO|RECEBIDO)|COMPRA\s+NO\s+(DEBITO|CREDITO)|PAGAMENTO|TRANSFERENCIA)\s*[:\-]\s*(.+)$`)

// kindKeywords scans a description for a known transaction-kind keyword
// when no composed pattern matched.
var kindKeywords = []string{
	"PIX ENVIADO", "PIX RECEBIDO", "COMPRA NO DEBITO", "COMPRA NO CREDITO",
	"PAGAMENTO", "TRANSFERENCIA", "SAQUE", "DEPOSITO", "TARIFA", "ESTORNO",
}

// Hint carries caller-supplied overrides that take precedence over
// inference (e.g. an explicit row type from a double-entry column).
type Hint struct {
	Type        model.RowType
	AccountID   string
	AccountHint string
}

// Canonicalize converts a single parsed row plus its source type into the
// transient CanonicalImportRow used by the rest of the pipeline.
func Canonicalize(row sourceparse.ParsedRow, source model.SourceType, hint Hint) (model.CanonicalImportRow, error) {
	date, err := time.Parse("2006-01-02", row.Date)
	if err != nil {
		return model.CanonicalImportRow{}, err
	}

	kindRaw, counterpartyRaw := splitDescription(row.Description)

	rowType := hint.Type
	if rowType == "" {
		rowType = inferType(row.AmountCents)
	}

	merchantKey := textnorm.BuildMerchantKey(counterpartyRaw)
	if merchantKey == "" {
		merchantKey = noMerchantSentinel
	}

	accountID := hint.AccountID
	accountHint := row.AccountHint
	if accountHint == "" {
		accountHint = hint.AccountHint
	}

	var raw json.RawMessage
	if row.Raw != nil {
		if encoded, err := json.Marshal(row.Raw); err == nil {
			raw = encoded
		}
	}

	return model.CanonicalImportRow{
		Date:                  date,
		AmountCents:           row.AmountCents,
		BalanceAfterCents:     row.BalanceAfterCents,
		TransactionKindRaw:    kindRaw,
		CounterpartyRaw:       counterpartyRaw,
		TransactionKindNorm:   textnorm.NormalizeForMatch(kindRaw),
		CounterpartyNorm:      textnorm.NormalizeForMatch(counterpartyRaw),
		MerchantKey:           merchantKey,
		SourceType:            source,
		DocumentType:          row.DocumentType,
		Description:           row.Description,
		NormalizedDescription: textnorm.NormalizeForMatch(row.Description),
		Type:                  rowType,
		ExternalID:            row.ExternalID,
		AccountHint:           accountHint,
		AccountID:             accountID,
		Raw:                   raw,
	}, nil
}

// splitDescription separates a raw description into transactionKindRaw and
// counterpartyRaw, preferring a known composed pattern, falling back to a
// keyword scan, and finally to the whole description as counterparty.
func splitDescription(description string) (kindRaw, counterpartyRaw string) {
	description = strings.TrimSpace(description)

	if m := composedPattern.FindStringSubmatch(description); m != nil {
		return strings.TrimSpace(m[1]), strings.TrimSpace(m[4])
	}

	normalized := textnorm.NormalizeForMatch(description)
	for _, kw := range kindKeywords {
		if strings.Contains(normalized, kw) {
			return kw, description
		}
	}

	return "", description
}

// inferType derives income/expense from amount sign when the caller did
// not supply an explicit hint; transfers are never inferred here, they are
// assigned later by the transfer matcher.
func inferType(amountCents int64) model.RowType {
	if amountCents >= 0 {
		return model.RowIncome
	}
	return model.RowExpense
}

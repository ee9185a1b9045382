package handler

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/finledger/pipeline/internal/domain/importpipeline/model"
)

// wireCanonicalRow is the JSON wire shape of model.CanonicalImportRow used
// in both the parse-preview response and the commit request body, so the
// client can round-trip a row unmodified between the two calls.
type wireCanonicalRow struct {
	Date                  string          `json:"date"`
	AmountCents           int64           `json:"amountCents"`
	BalanceAfterCents     *int64          `json:"balanceAfterCents,omitempty"`
	TransactionKindRaw    string          `json:"transactionKindRaw,omitempty"`
	CounterpartyRaw       string          `json:"counterpartyRaw,omitempty"`
	TransactionKindNorm   string          `json:"transactionKindNorm,omitempty"`
	CounterpartyNorm      string          `json:"counterpartyNorm,omitempty"`
	MerchantKey           string          `json:"merchantKey,omitempty"`
	SourceType            model.SourceType `json:"sourceType"`
	DocumentType          string          `json:"documentType,omitempty"`
	Description           string          `json:"description"`
	NormalizedDescription string          `json:"normalizedDescription,omitempty"`
	Type                  model.RowType   `json:"type"`
	ExternalID            string          `json:"externalId,omitempty"`
	AccountHint           string          `json:"accountHint,omitempty"`
	AccountID             string          `json:"accountId,omitempty"`
	CategoryID            string          `json:"categoryId,omitempty"`
	Raw                   json.RawMessage `json:"raw,omitempty"`
}

const canonicalDateLayout = "2006-01-02"

func wireRowFromCanonical(row model.CanonicalImportRow) wireCanonicalRow {
	return wireCanonicalRow{
		Date:                  row.Date.Format(canonicalDateLayout),
		AmountCents:           row.AmountCents,
		BalanceAfterCents:     row.BalanceAfterCents,
		TransactionKindRaw:    row.TransactionKindRaw,
		CounterpartyRaw:       row.CounterpartyRaw,
		TransactionKindNorm:   row.TransactionKindNorm,
		CounterpartyNorm:      row.CounterpartyNorm,
		MerchantKey:           row.MerchantKey,
		SourceType:            row.SourceType,
		DocumentType:          row.DocumentType,
		Description:           row.Description,
		NormalizedDescription: row.NormalizedDescription,
		Type:                  row.Type,
		ExternalID:            row.ExternalID,
		AccountHint:           row.AccountHint,
		AccountID:             row.AccountID,
		CategoryID:            row.CategoryID,
		Raw:                   row.Raw,
	}
}

func (w wireCanonicalRow) toCanonical() (model.CanonicalImportRow, error) {
	date, err := time.Parse(canonicalDateLayout, w.Date)
	if err != nil {
		return model.CanonicalImportRow{}, fmt.Errorf("parse date: %w", err)
	}
	return model.CanonicalImportRow{
		Date:                  date,
		AmountCents:           w.AmountCents,
		BalanceAfterCents:     w.BalanceAfterCents,
		TransactionKindRaw:    w.TransactionKindRaw,
		CounterpartyRaw:       w.CounterpartyRaw,
		TransactionKindNorm:   w.TransactionKindNorm,
		CounterpartyNorm:      w.CounterpartyNorm,
		MerchantKey:           w.MerchantKey,
		SourceType:            w.SourceType,
		DocumentType:          w.DocumentType,
		Description:           w.Description,
		NormalizedDescription: w.NormalizedDescription,
		Type:                  w.Type,
		ExternalID:            w.ExternalID,
		AccountHint:           w.AccountHint,
		AccountID:             w.AccountID,
		CategoryID:            w.CategoryID,
		Raw:                   w.Raw,
	}, nil
}

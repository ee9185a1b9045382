// Package analyze classifies parsed rows into ok/ignored/error diagnostics
// and aggregates totals for the parse-preview response.
package analyze

import (
	"github.com/finledger/pipeline/internal/domain/importpipeline/model"
)

// Reason codes for ignored and errored rows.
const (
	ReasonMissingDescription = "missing_description"
	ReasonZeroAmount         = "zero_amount"
	ReasonSaldoLine          = "saldo_line"

	ReasonMissingDate     = "missing_date"
	ReasonInvalidDate     = "invalid_date"
	ReasonMissingAmount   = "missing_amount"
	ReasonInvalidAmount   = "invalid_amount"
	ReasonUnmappableType  = "unmappable_type"
)

// Status is the per-row classification outcome.
type Status string

const (
	StatusOK      Status = "ok"
	StatusIgnored Status = "ignored"
	StatusError   Status = "error"
)

// Diagnostic is one row's classification result, carried in the preview.
type Diagnostic struct {
	Index       int
	Status      Status
	Reason      string
	CommitIndex *int
	Row         *model.CanonicalImportRow
}

// Totals aggregates the outcome counts across every row in the batch.
type Totals struct {
	TotalRows   int
	ValidRows   int
	IgnoredRows int
	ErrorRows   int
	Reasons     map[string]int
}

// Result is the full output of analyzing one parsed file.
type Result struct {
	Totals      Totals
	Preview     []Diagnostic
	Diagnostics []Diagnostic
}

const previewLimit = 50

// RowInput pairs a candidate canonical row with the raw signals needed to
// classify it (a row can fail canonicalization entirely, in which case Row
// is nil and the flags carry the reason; a nil Row with no flag set is
// classified as unmappable_type).
type RowInput struct {
	Row            *model.CanonicalImportRow
	MissingDate    bool
	InvalidDate    bool
	MissingAmount  bool
	InvalidAmount  bool
	UnmappableType bool
}

// Analyze classifies every input row and aggregates totals. commitIndex is
// assigned sequentially across only the `ok` rows, so the commit step can
// address a specific row by position when applying manual category
// overrides from the client.
func Analyze(inputs []RowInput) Result {
	totals := Totals{Reasons: map[string]int{}}
	diagnostics := make([]Diagnostic, 0, len(inputs))
	commitIndex := 0

	for i, in := range inputs {
		totals.TotalRows++

		status, reason := classify(in)
		d := Diagnostic{Index: i, Status: status, Reason: reason}

		switch status {
		case StatusOK:
			totals.ValidRows++
			idx := commitIndex
			d.CommitIndex = &idx
			d.Row = in.Row
			commitIndex++
		case StatusIgnored:
			totals.IgnoredRows++
			totals.Reasons[reason]++
		case StatusError:
			totals.ErrorRows++
			totals.Reasons[reason]++
		}

		diagnostics = append(diagnostics, d)
	}

	preview := diagnostics
	if len(preview) > previewLimit {
		preview = preview[:previewLimit]
	}

	return Result{Totals: totals, Preview: preview, Diagnostics: diagnostics}
}

func classify(in RowInput) (Status, string) {
	switch {
	case in.MissingDate:
		return StatusError, ReasonMissingDate
	case in.InvalidDate:
		return StatusError, ReasonInvalidDate
	case in.MissingAmount:
		return StatusError, ReasonMissingAmount
	case in.InvalidAmount:
		return StatusError, ReasonInvalidAmount
	case in.UnmappableType:
		return StatusError, ReasonUnmappableType
	}

	if in.Row == nil {
		return StatusError, ReasonUnmappableType
	}

	if in.Row.Description == "" && in.Row.CounterpartyRaw == "" {
		return StatusIgnored, ReasonMissingDescription
	}
	if in.Row.AmountCents == 0 {
		return StatusIgnored, ReasonZeroAmount
	}
	if isSaldoLine(in.Row.NormalizedDescription) {
		return StatusIgnored, ReasonSaldoLine
	}

	return StatusOK, ""
}

func isSaldoLine(normalizedDescription string) bool {
	return normalizedDescription == "SALDO DO DIA" || normalizedDescription == "SALDO ANTERIOR" || normalizedDescription == "SALDO ATUAL"
}

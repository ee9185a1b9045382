// Package sourceparse defines the common capability shared by the three
// Source Parser variants (delimited, markup-exchange, portable-document):
// accept a byte buffer, produce uniform candidate rows.
package sourceparse

import (
	"context"
	"errors"
)

// ParsedRow is the uniform candidate row emitted by every parser variant,
// before canonicalization.
type ParsedRow struct {
	Date              string
	Description       string
	AmountCents       int64
	BalanceAfterCents *int64
	ExternalID        string
	AccountHint       string
	DocumentType      string
	Raw               map[string]string
}

// ColumnMapping describes how a delimited file's columns map onto the
// canonical fields, either supplied by the caller or produced by the
// mapping suggester.
type ColumnMapping struct {
	DateCol          int
	DescCol          int
	CategoryCol      int
	AmountCol        int
	DebitCol         int
	CreditCol        int
	IsDoubleEntry    bool
	IsEuropeanFormat bool
	DateFormat       string
	Delimiter        rune
	SkipLines        int
}

// MappingConfidence is the delimited parser's self-assessment of how
// trustworthy its suggested mapping is.
type MappingConfidence string

const (
	ConfidenceAlta  MappingConfidence = "alta"
	ConfidenceMedia MappingConfidence = "media"
	ConfidenceBaixa MappingConfidence = "baixa"
)

// Result is what every Source Parser variant returns.
type Result struct {
	Columns           []string
	Rows              []ParsedRow
	DetectedEncoding  string
	DocumentType      string
	IssuerProfile     string
	SuggestedMapping  *ColumnMapping
	MappingConfidence MappingConfidence
	MissingRequired   []string
	SampleRows        [][]string
	Metadata          map[string]string
}

var (
	// ErrPasswordRequired signals an encrypted portable document with no
	// password supplied.
	ErrPasswordRequired = errors.New("password required")
	// ErrPasswordInvalid signals a supplied password that did not decrypt
	// the document.
	ErrPasswordInvalid = errors.New("invalid password")
	// ErrParserUnavailable signals an extraction backend failure or
	// deadline exceeded, unrelated to password state.
	ErrParserUnavailable = errors.New("source parser unavailable")
	// ErrUnsupportedIssuerProfile signals a portable document that does
	// not match any known issuer profile.
	ErrUnsupportedIssuerProfile = errors.New("unsupported issuer profile")
	// ErrNoTransactionsFound signals a document that parsed cleanly but
	// yielded zero transaction lines.
	ErrNoTransactionsFound = errors.New("no transactions found")
)

// Parser is implemented by each of the three Source Parser variants.
type Parser interface {
	Parse(ctx context.Context, data []byte, opts Options) (*Result, error)
}

// Options carries caller-supplied parsing hints (column mapping, PDF
// password) common across variants; a variant ignores fields it does not
// use.
type Options struct {
	Mapping     *ColumnMapping
	PDFPassword string
}

// Package model holds the shared data types of the import & ledger
// pipeline: the persisted entities from the relational schema and the
// transient CanonicalImportRow that flows between pipeline stages.
package model

import (
	"encoding/json"
	"time"
)

// AccountType enumerates the supported account kinds.
type AccountType string

const (
	AccountChecking   AccountType = "checking"
	AccountCredit     AccountType = "credit"
	AccountCash       AccountType = "cash"
	AccountInvestment AccountType = "investment"
)

// Account is a user-owned financial account.
type Account struct {
	ID              string  `db:"id"`
	UserID          string  `db:"user_id"`
	Type            AccountType `db:"type"`
	Name            string  `db:"name"`
	Institution     string  `db:"institution"`
	Currency        string  `db:"currency"`
	ParentAccountID *string `db:"parent_account_id"`
}

// Category groups ledger entries for reporting.
type Category struct {
	ID       string  `db:"id"`
	UserID   string  `db:"user_id"`
	Name     string  `db:"name"`
	Color    string  `db:"color"`
	Icon     string  `db:"icon"`
	ParentID *string `db:"parent_id"`
}

// MatchType is the CategoryRule pattern kind.
type MatchType string

const (
	MatchContains MatchType = "contains"
	MatchRegex    MatchType = "regex"
)

// CategoryRule assigns a category to a row when its pattern matches.
type CategoryRule struct {
	ID             string    `db:"id"`
	UserID         string    `db:"user_id"`
	Name           string    `db:"name"`
	Priority       int       `db:"priority"`
	Enabled        bool      `db:"enabled"`
	MatchType      MatchType `db:"match_type"`
	Pattern        string    `db:"pattern"`
	AccountID      *string   `db:"account_id"`
	MinAmountCents *int64    `db:"min_amount_cents"`
	MaxAmountCents *int64    `db:"max_amount_cents"`
	CategoryID     string    `db:"category_id"`
	CreatedAt      time.Time `db:"created_at"`
}

// SourceType is the origin format of a parsed row.
type SourceType string

const (
	SourceCSV    SourceType = "csv"
	SourceOFX    SourceType = "ofx"
	SourcePDF    SourceType = "pdf"
	SourceManual SourceType = "manual"
)

// RowType classifies a canonical row's economic nature.
type RowType string

const (
	RowIncome   RowType = "income"
	RowExpense  RowType = "expense"
	RowTransfer RowType = "transfer"
)

// CanonicalImportRow is the transient unified shape produced by parsers and
// the canonicalizer, consumed by the parse analyzer and the committer. It
// never outlives the request that produced it.
type CanonicalImportRow struct {
	Date                  time.Time
	AmountCents           int64
	BalanceAfterCents     *int64
	TransactionKindRaw    string
	CounterpartyRaw       string
	TransactionKindNorm   string
	CounterpartyNorm      string
	MerchantKey           string
	SourceType            SourceType
	DocumentType          string
	Description           string
	NormalizedDescription string
	Type                  RowType
	ExternalID            string
	AccountHint           string
	AccountID             string
	CategoryID            string
	Raw                   json.RawMessage
}

// EntryType is the persisted ledger entry classification.
type EntryType string

const (
	EntryIncome     EntryType = "income"
	EntryExpense    EntryType = "expense"
	EntryTransfer   EntryType = "transfer"
	EntryCCPurchase EntryType = "cc_purchase"
	EntryCCPayment  EntryType = "cc_payment"
	EntryFee        EntryType = "fee"
	EntryRefund     EntryType = "refund"
)

// Direction is the cash-flow direction of a ledger entry.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// EntryStatus is the posting state of a ledger entry.
type EntryStatus string

const (
	StatusPosted  EntryStatus = "posted"
	StatusPending EntryStatus = "pending"
)

// LedgerEntry is a single persisted transaction line.
type LedgerEntry struct {
	ID                    string          `db:"id"`
	UserID                string          `db:"user_id"`
	AccountID             string          `db:"account_id"`
	CategoryID            *string         `db:"category_id"`
	ImportBatchID         *string         `db:"import_batch_id"`
	PostedAt              time.Time       `db:"posted_at"`
	Description           string          `db:"description"`
	NormalizedDescription string          `db:"normalized_description"`
	AmountCents           int64           `db:"amount_cents"`
	Currency              string          `db:"currency"`
	Type                  EntryType       `db:"type"`
	Direction             Direction       `db:"direction"`
	Status                EntryStatus     `db:"status"`
	IsInternalTransfer    bool            `db:"is_internal_transfer"`
	ImportedHash          *string         `db:"imported_hash"`
	TransferGroupID       *string         `db:"transfer_group_id"`
	TransferPeerID        *string         `db:"transfer_peer_id"`
	TransferFromAccountID *string         `db:"transfer_from_account_id"`
	TransferToAccountID   *string         `db:"transfer_to_account_id"`
	ExternalID            *string         `db:"external_id"`
	RawJSON               json.RawMessage `db:"raw_json"`
	CreatedAt             time.Time       `db:"created_at"`
	UpdatedAt             time.Time       `db:"updated_at"`
}

// ImportBatch groups the ledger entries committed together in one request.
type ImportBatch struct {
	ID            string          `db:"id"`
	UserID        string          `db:"user_id"`
	Source        string          `db:"source"`
	FileName      string          `db:"file_name"`
	MappingJSON   json.RawMessage `db:"mapping_json"`
	TotalImported int             `db:"total_imported"`
	TotalSkipped  int             `db:"total_skipped"`
	ImportedAt    time.Time       `db:"imported_at"`
}

// ImportSourceKind classifies a content-addressed import source.
type ImportSourceKind string

const (
	KindBankStatement ImportSourceKind = "BANK_STATEMENT"
	KindCCStatement   ImportSourceKind = "CC_STATEMENT"
)

// ImportSource is the content-addressed record that gates reprocessing of
// an already-seen file.
type ImportSource struct {
	ID              string           `db:"id"`
	UserID          string           `db:"user_id"`
	InstitutionHint *string          `db:"institution_hint"`
	Kind            ImportSourceKind `db:"kind"`
	FileName        string           `db:"file_name"`
	FileHash        string           `db:"file_hash"`
	CreatedAt       time.Time        `db:"created_at"`
}

// ImportPhase identifies which half of the pipeline an event belongs to.
type ImportPhase string

const (
	PhaseParse  ImportPhase = "parse"
	PhaseCommit ImportPhase = "commit"
)

// ImportEvent is one append-only telemetry record.
type ImportEvent struct {
	ID                  string      `db:"id"`
	UserID              string      `db:"user_id"`
	SourceType          SourceType  `db:"source_type"`
	Event               string      `db:"event"`
	Phase               ImportPhase `db:"phase"`
	ErrorCode           *string     `db:"error_code"`
	TotalRows           *int        `db:"total_rows"`
	ValidRows           *int        `db:"valid_rows"`
	IgnoredRows         *int        `db:"ignored_rows"`
	ErrorRows           *int        `db:"error_rows"`
	Imported            *int        `db:"imported"`
	Skipped             *int        `db:"skipped"`
	Duplicates          *int        `db:"duplicates"`
	InvalidRows         *int        `db:"invalid_rows"`
	TransferCreated     *int        `db:"transfer_created"`
	CardPaymentDetected *int        `db:"card_payment_detected"`
	CardPaymentNotConv  *int        `db:"card_payment_not_converted"`
	CreatedAt           time.Time   `db:"created_at"`
}

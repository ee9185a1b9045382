// Package commit orchestrates the ledger-committer: hashing for
// idempotency, per-row upsert, card-payment routing and transfer matching,
// all under a single logical transaction per batch.
package commit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gowebpki/jcs"
	"github.com/jackc/pgx/v5"

	"github.com/finledger/pipeline/internal/domain/importpipeline/cardrouter"
	"github.com/finledger/pipeline/internal/domain/importpipeline/model"
	"github.com/finledger/pipeline/internal/domain/importpipeline/repository"
	"github.com/finledger/pipeline/internal/domain/importpipeline/ruleengine"
	"github.com/finledger/pipeline/internal/domain/importpipeline/telemetry"
	"github.com/finledger/pipeline/internal/domain/importpipeline/textnorm"
	"github.com/finledger/pipeline/internal/domain/importpipeline/transfermatch"
)

// fileHashShape is the canonical-JSON shape hashed to derive a
// content-addressed ImportSource key.
type fileHashShape struct {
	FileName string          `json:"fileName"`
	Kind     string          `json:"kind"`
	Rows     []fileHashRow   `json:"rows"`
}

type fileHashRow struct {
	Date        string `json:"date"`
	AmountCents string `json:"amountCents"`
	Direction   string `json:"direction"`
	Description string `json:"description"`
	ExternalID  string `json:"externalId"`
}

// importedHashShape is the canonical-JSON shape hashed per row to derive
// the idempotent (userId, importedHash) key.
type importedHashShape struct {
	UserID              string `json:"userId"`
	AccountID           string `json:"accountId"`
	PostedAt            string `json:"postedAt"`
	AmountAbsCents      int64  `json:"amountAbsCents"`
	Type                string `json:"type"`
	Direction           string `json:"direction"`
	NormalizedDesc      string `json:"normalizedDescription"`
	MerchantKey         string `json:"merchantKey"`
}

func canonicalHash(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	canon, err := jcs.Transform(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return hex.EncodeToString(sum[:]), nil
}

// ComputeFileHash derives the content-addressed ImportSource key.
func ComputeFileHash(fileName, kind string, rows []model.CanonicalImportRow) (string, error) {
	shape := fileHashShape{FileName: fileName, Kind: kind}
	for _, row := range rows {
		direction := "CREDIT"
		if row.AmountCents < 0 {
			direction = "DEBIT"
		}
		shape.Rows = append(shape.Rows, fileHashRow{
			Date:        row.Date.Format("2006-01-02"),
			AmountCents: fmt.Sprintf("%.2f", float64(absInt64(row.AmountCents))/100),
			Direction:   direction,
			Description: textnorm.NormalizeForMatch(row.Description),
			ExternalID:  textnorm.NormalizeForMatch(row.ExternalID),
		})
	}
	return canonicalHash(shape)
}

// ComputeImportedHash derives the per-row idempotency key.
func ComputeImportedHash(userID, accountID string, row model.CanonicalImportRow, direction model.Direction, entryType model.EntryType) (string, error) {
	shape := importedHashShape{
		UserID:         userID,
		AccountID:      accountID,
		PostedAt:       row.Date.Format("2006-01-02"),
		AmountAbsCents: absInt64(row.AmountCents),
		Type:           string(entryType),
		Direction:      string(direction),
		NormalizedDesc: row.NormalizedDescription,
		MerchantKey:    row.MerchantKey,
	}
	return canonicalHash(shape)
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// Request is a single commit invocation's input.
type Request struct {
	UserID                        string
	SourceType                    model.SourceType
	FileName                      string
	DefaultAccountID              string
	DefaultAccountType            model.AccountType
	DefaultAccountInstitution     string
	ConvertCardPaymentsToTransfer bool
	CardPaymentTargetAccountID    string
	SkipCardPaymentLines          bool
	ApplyRules                    bool
	Rows                          []model.CanonicalImportRow
}

// documentTypeCreditCardInvoice is the canonical `documentType` a portable-
// document issuer profile assigns to invoice rows (§4.6 invoice-to-credit
// mode).
const documentTypeCreditCardInvoice = "credit_card_invoice"

// Result is the commit response shape (§6 POST /imports/commit).
type Result struct {
	TotalImported               int
	TotalSkipped                int
	Duplicates                  int
	InvalidRows                 int
	TotalTransfersCreated       int
	TotalCardPaymentsDetected   int
	TotalCardPaymentsNotConverted int
	TransferReviewSuggestions   []transfermatch.Suggestion
	DeterministicCategorizedCount int
	IdempotentDuplicateSource   bool
	ImportBatchID               string
}

// Dependencies bundles the collaborators a Committer needs; Repo is
// narrowed to the methods actually used so tests can fake it.
type Dependencies struct {
	Repo   Repo
	Logger *slog.Logger
	Telemetry *telemetry.Recorder
}

// Repo is the subset of repository.Repository the committer depends on.
type Repo interface {
	BeginTx(ctx context.Context) (pgx.Tx, error)
	FindImportSource(ctx context.Context, tx pgx.Tx, userID, fileHash string) (*model.ImportSource, error)
	CreateImportSource(ctx context.Context, tx pgx.Tx, source model.ImportSource) (string, error)
	UpsertLedgerEntry(ctx context.Context, tx pgx.Tx, entry model.LedgerEntry) (id string, inserted bool, err error)
	LinkTransferPair(ctx context.Context, tx pgx.Tx, out, in model.LedgerEntry) error
	CreateImportBatch(ctx context.Context, tx pgx.Tx, batch model.ImportBatch) (string, error)
	UpdateImportBatchTotals(ctx context.Context, tx pgx.Tx, batchID string, totalImported, totalSkipped int) error
	WindowEntries(ctx context.Context, tx pgx.Tx, userID, fromISO, toISO string) ([]model.LedgerEntry, error)
	ListCategoryRules(ctx context.Context, userID string) ([]model.CategoryRule, error)
	CreateAccount(ctx context.Context, tx pgx.Tx, account model.Account) (string, error)
	ListAccountsByType(ctx context.Context, tx pgx.Tx, userID string, accountType model.AccountType) ([]model.Account, error)
}

var _ Repo = (*repository.Repository)(nil)

// Committer executes one commit request end to end.
type Committer struct {
	deps Dependencies
}

func New(deps Dependencies) *Committer {
	return &Committer{deps: deps}
}

// Commit runs the full §4.8 orchestration under a single transaction.
func (c *Committer) Commit(ctx context.Context, now time.Time, req Request) (Result, error) {
	c.deps.Telemetry.RecordCommitEntry(ctx, now, req.UserID, req.SourceType)

	fileHash, err := ComputeFileHash(req.FileName, string(req.SourceType), req.Rows)
	if err != nil {
		return Result{}, fmt.Errorf("compute file hash: %w", err)
	}

	tx, err := c.deps.Repo.BeginTx(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("begin commit tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	existing, err := c.deps.Repo.FindImportSource(ctx, tx, req.UserID, fileHash)
	if err != nil {
		return Result{}, fmt.Errorf("lookup import source: %w", err)
	}
	if existing != nil {
		result := Result{IdempotentDuplicateSource: true, TotalSkipped: len(req.Rows)}
		c.deps.Telemetry.RecordCommitExit(ctx, now, req.UserID, req.SourceType, 0, result.TotalSkipped, 0, 0, 0, 0, 0)
		return result, tx.Commit(ctx)
	}

	sourceID, err := c.deps.Repo.CreateImportSource(ctx, tx, model.ImportSource{
		UserID:   req.UserID,
		Kind:     sourceKind(req.DefaultAccountType),
		FileName: req.FileName,
		FileHash: fileHash,
	})
	if err != nil {
		return Result{}, fmt.Errorf("create import source: %w", err)
	}

	var engine *ruleengine.Engine
	if req.ApplyRules {
		rules, err := c.deps.Repo.ListCategoryRules(ctx, req.UserID)
		if err != nil {
			return Result{}, fmt.Errorf("load category rules: %w", err)
		}
		engine = ruleengine.New(rules)
	}

	// The batch row is created before any of its entries so each insert can
	// carry the back-link (§4.8 step 4); totals are finalized once the loop
	// below has run.
	batchID, err := c.deps.Repo.CreateImportBatch(ctx, tx, model.ImportBatch{
		UserID:   req.UserID,
		Source:   string(req.SourceType),
		FileName: req.FileName,
	})
	if err != nil {
		return Result{}, fmt.Errorf("create import batch: %w", err)
	}

	minDate, maxDate := dateRange(req.Rows)
	windowStart := minDate.AddDate(0, 0, -3).Format("2006-01-02")
	windowEnd := maxDate.AddDate(0, 0, 3).Format("2006-01-02")

	// Loaded once, before any row in this batch is inserted: the
	// card-payment router's recent-purchase signal must see only entries
	// that pre-date this commit.
	priorWindowEntries, err := c.deps.Repo.WindowEntries(ctx, tx, req.UserID, windowStart, windowEnd)
	if err != nil {
		return Result{}, fmt.Errorf("load transfer window: %w", err)
	}

	result := Result{}
	var insertedEntries []model.LedgerEntry

	for _, row := range req.Rows {
		normalized := textnorm.NormalizeForMatch(row.Description)
		isCardPayment := cardrouter.IsCardPaymentDescription(normalized)
		isInvoiceRow := row.DocumentType == documentTypeCreditCardInvoice

		accountID := row.AccountID
		if accountID == "" {
			accountID = req.DefaultAccountID
		}

		// §4.6 invoice-to-credit mode: route purchase lines to the credit
		// account even when the caller's default is checking, skip
		// payment-received lines per skipCardPaymentLines.
		if isInvoiceRow {
			if isCardPayment {
				result.TotalCardPaymentsDetected++
			}
			if cardrouter.InvoiceMode(normalized, req.SkipCardPaymentLines) {
				continue
			}
			if !isCardPayment {
				destID, resolveErr := c.resolveInvoiceDestination(ctx, tx, req, row)
				if resolveErr != nil {
					return Result{}, fmt.Errorf("resolve invoice destination: %w", resolveErr)
				}
				accountID = destID
			}
		}

		// §4.6 statement-to-credit mode: convert the single-row expense
		// into a matched transfer pair against a chosen credit destination.
		if isCardPayment && !isInvoiceRow {
			result.TotalCardPaymentsDetected++
			if req.ConvertCardPaymentsToTransfer {
				destID, converted, notConvertedReason, routeErr := c.routeCardPayment(ctx, tx, req, row, priorWindowEntries)
				if routeErr != nil {
					return Result{}, fmt.Errorf("route card payment: %w", routeErr)
				}
				if converted {
					out, in, synthErr := c.synthesizeCardPaymentTransfer(ctx, tx, req, row, accountID, destID, batchID)
					if synthErr != nil {
						return Result{}, synthErr
					}
					if out == nil {
						result.Duplicates++
						continue
					}
					insertedEntries = append(insertedEntries, *out, *in)
					result.TotalImported++
					result.TotalTransfersCreated++
					continue
				}
				c.deps.Logger.InfoContext(ctx, "card payment not converted", slog.String("reason", notConvertedReason))
				result.TotalCardPaymentsNotConverted++
			}
		}

		entryType, direction := classifyEntry(row, isInvoiceRow && !isCardPayment)

		// Manual category override (§4.4 commitIndex, §8 "always wins over
		// any rule") takes precedence regardless of applyRules.
		var categoryID *string
		if manual := row.CategoryID; manual != "" {
			categoryID = &manual
		} else if engine != nil {
			if catID, deterministic := engine.Categorize(row, ""); catID != "" {
				categoryID = &catID
				if deterministic {
					result.DeterministicCategorizedCount++
				}
			}
		}

		importedHash, err := ComputeImportedHash(req.UserID, accountID, row, direction, entryType)
		if err != nil {
			result.InvalidRows++
			continue
		}

		entry := model.LedgerEntry{
			UserID:                req.UserID,
			AccountID:             accountID,
			CategoryID:            categoryID,
			ImportBatchID:         &batchID,
			PostedAt:              row.Date,
			Description:           row.Description,
			NormalizedDescription: row.NormalizedDescription,
			AmountCents:           row.AmountCents,
			Type:                  entryType,
			Direction:             direction,
			Status:                model.StatusPosted,
			IsInternalTransfer:    entryType == model.EntryTransfer,
			ImportedHash:          &importedHash,
			ExternalID:            nonEmptyPtr(row.ExternalID),
			RawJSON:               row.Raw,
		}

		id, inserted, err := c.deps.Repo.UpsertLedgerEntry(ctx, tx, entry)
		if err != nil {
			return Result{}, fmt.Errorf("upsert ledger entry: %w", err)
		}
		if !inserted {
			result.Duplicates++
			continue
		}
		entry.ID = id
		insertedEntries = append(insertedEntries, entry)
		result.TotalImported++
	}

	// The transfer matcher runs over prior entries plus what this batch
	// just inserted (read within the same transaction), so two rows of the
	// same incoming batch can match each other (§8 scenario 3).
	outgoing, incoming := partitionCandidates(append(append([]model.LedgerEntry{}, priorWindowEntries...), insertedEntries...))
	matches := transfermatch.FindMatches(outgoing, incoming)
	for _, m := range matches {
		switch m.Decision {
		case transfermatch.DecisionAutoMatch:
			groupID := fmt.Sprintf("%s-%s", m.Outgoing.ID, m.Incoming.ID)
			out, in := transfermatch.ApplyAutoMatch(groupID, m.Outgoing, m.Incoming, m.Outgoing.AccountID, m.Incoming.AccountID)
			out.TransferFromAccountID = &m.Outgoing.AccountID
			out.TransferToAccountID = &m.Incoming.AccountID
			in.TransferFromAccountID = &m.Outgoing.AccountID
			in.TransferToAccountID = &m.Incoming.AccountID
			if err := c.deps.Repo.LinkTransferPair(ctx, tx, out, in); err != nil {
				return Result{}, fmt.Errorf("link transfer pair: %w", err)
			}
			result.TotalTransfersCreated++
		case transfermatch.DecisionSuggest:
			result.TransferReviewSuggestions = append(result.TransferReviewSuggestions, transfermatch.BuildSuggestion(m))
		}
	}

	if err := c.deps.Repo.UpdateImportBatchTotals(ctx, tx, batchID, result.TotalImported, result.Duplicates+result.InvalidRows); err != nil {
		return Result{}, fmt.Errorf("finalize import batch: %w", err)
	}
	result.ImportBatchID = batchID
	_ = sourceID

	if err := tx.Commit(ctx); err != nil {
		return Result{}, fmt.Errorf("commit tx: %w", err)
	}

	c.deps.Telemetry.RecordCommitExit(ctx, now, req.UserID, req.SourceType,
		result.TotalImported, result.TotalSkipped, result.Duplicates, result.InvalidRows,
		result.TotalTransfersCreated, result.TotalCardPaymentsDetected, result.TotalCardPaymentsNotConverted)

	return result, nil
}

func sourceKind(accountType model.AccountType) model.ImportSourceKind {
	if accountType == model.AccountCredit {
		return model.KindCCStatement
	}
	return model.KindBankStatement
}

// classifyEntry derives the persisted type/direction for a row that did not
// go through card-payment synthesis. isInvoicePurchase marks a row that was
// redirected to a credit account by the invoice-to-credit router, so it
// persists as a card purchase rather than a plain expense.
func classifyEntry(row model.CanonicalImportRow, isInvoicePurchase bool) (model.EntryType, model.Direction) {
	direction := model.DirectionIn
	if row.AmountCents < 0 {
		direction = model.DirectionOut
	}

	if isInvoicePurchase {
		return model.EntryCCPurchase, direction
	}
	switch row.Type {
	case model.RowTransfer:
		return model.EntryTransfer, direction
	case model.RowIncome:
		return model.EntryIncome, direction
	default:
		return model.EntryExpense, direction
	}
}

// resolveInvoiceDestination picks the credit account a portable-document
// invoice's purchase lines route to (§4.6 invoice-to-credit mode):
// institution match wins, then an account already parented to the caller's
// default, else a new credit account is synthesized.
func (c *Committer) resolveInvoiceDestination(ctx context.Context, tx pgx.Tx, req Request, row model.CanonicalImportRow) (string, error) {
	creditAccounts, err := c.deps.Repo.ListAccountsByType(ctx, tx, req.UserID, model.AccountCredit)
	if err != nil {
		return "", fmt.Errorf("list credit accounts: %w", err)
	}

	institution := row.AccountHint
	for _, acc := range creditAccounts {
		if institution != "" && acc.Institution == institution {
			return acc.ID, nil
		}
	}
	for _, acc := range creditAccounts {
		if acc.ParentAccountID != nil && *acc.ParentAccountID == req.DefaultAccountID {
			return acc.ID, nil
		}
	}

	name := institution
	if name == "" {
		name = "Imported credit card"
	}
	return c.deps.Repo.CreateAccount(ctx, tx, cardrouter.SynthesizeCreditAccount(req.UserID, institution, name, req.DefaultAccountID))
}

// routeCardPayment selects the destination credit account for one
// statement-to-credit card-payment row (§4.6), scoring candidates from the
// pre-batch window entries for the recent-purchase-debt signal.
func (c *Committer) routeCardPayment(ctx context.Context, tx pgx.Tx, req Request, row model.CanonicalImportRow, priorWindowEntries []model.LedgerEntry) (destinationAccountID string, converted bool, notConvertedReason string, err error) {
	creditAccounts, err := c.deps.Repo.ListAccountsByType(ctx, tx, req.UserID, model.AccountCredit)
	if err != nil {
		return "", false, "", fmt.Errorf("list credit accounts: %w", err)
	}

	defaultAccount := model.Account{ID: req.DefaultAccountID, Institution: req.DefaultAccountInstitution}
	candidates := make([]cardrouter.Candidate, 0, len(creditAccounts))
	for _, acc := range creditAccounts {
		cand := cardrouter.Candidate{Account: acc, DueDayProximity: -1, RecentPurchaseDebtDeltaCents: -1}
		for _, e := range priorWindowEntries {
			if e.AccountID != acc.ID || e.Direction != model.DirectionOut {
				continue
			}
			if absDuration(row.Date.Sub(e.PostedAt)) > recentPurchaseWindow {
				continue
			}
			delta := absInt64(absInt64(e.AmountCents) - absInt64(row.AmountCents))
			if !cand.HasRecentPurchase || delta < cand.RecentPurchaseDebtDeltaCents {
				cand.HasRecentPurchase = true
				cand.RecentPurchaseDebtDeltaCents = delta
			}
		}
		candidates = append(candidates, cand)
	}

	conversion := cardrouter.Route(defaultAccount, req.CardPaymentTargetAccountID, candidates)
	return conversion.DestinationID, conversion.Converted, conversion.NotConvertedReason, nil
}

const recentPurchaseWindow = 45 * 24 * time.Hour

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// synthesizeCardPaymentTransfer writes the matched transfer pair a
// statement-to-credit conversion produces: the existing row becomes the
// outgoing leg on the source account, a synthesized incoming leg is
// inserted on the destination credit account, and both are cross-linked.
// Returns nil entries (no error) when the outgoing leg was already
// imported under this hash — a no-op retry, not a failure.
func (c *Committer) synthesizeCardPaymentTransfer(ctx context.Context, tx pgx.Tx, req Request, row model.CanonicalImportRow, sourceAccountID, destAccountID, batchID string) (out, in *model.LedgerEntry, err error) {
	description := textnorm.NormalizeForMatch("TRANSFER: " + row.Description)

	outHash, err := ComputeImportedHash(req.UserID, sourceAccountID, row, model.DirectionOut, model.EntryTransfer)
	if err != nil {
		return nil, nil, fmt.Errorf("hash card payment outgoing leg: %w", err)
	}
	outEntry := model.LedgerEntry{
		UserID:                req.UserID,
		AccountID:             sourceAccountID,
		ImportBatchID:         &batchID,
		PostedAt:              row.Date,
		Description:           row.Description,
		NormalizedDescription: description,
		AmountCents:           -absInt64(row.AmountCents),
		Type:                  model.EntryTransfer,
		Direction:             model.DirectionOut,
		Status:                model.StatusPosted,
		ImportedHash:          &outHash,
		IsInternalTransfer:    true,
		RawJSON:               row.Raw,
	}
	outID, inserted, err := c.deps.Repo.UpsertLedgerEntry(ctx, tx, outEntry)
	if err != nil {
		return nil, nil, fmt.Errorf("insert card payment outgoing leg: %w", err)
	}
	if !inserted {
		return nil, nil, nil
	}
	outEntry.ID = outID

	inRow := row
	inRow.NormalizedDescription = "CARD PAYMENT RECEIVED " + row.NormalizedDescription
	inHash, err := ComputeImportedHash(req.UserID, destAccountID, inRow, model.DirectionIn, model.EntryTransfer)
	if err != nil {
		return nil, nil, fmt.Errorf("hash card payment incoming leg: %w", err)
	}
	inEntry := model.LedgerEntry{
		UserID:                req.UserID,
		AccountID:             destAccountID,
		ImportBatchID:         &batchID,
		PostedAt:              row.Date,
		Description:           row.Description,
		NormalizedDescription: description,
		AmountCents:           absInt64(row.AmountCents),
		Type:                  model.EntryTransfer,
		Direction:             model.DirectionIn,
		Status:                model.StatusPosted,
		ImportedHash:          &inHash,
		IsInternalTransfer:    true,
		RawJSON:               row.Raw,
	}
	inID, _, err := c.deps.Repo.UpsertLedgerEntry(ctx, tx, inEntry)
	if err != nil {
		return nil, nil, fmt.Errorf("insert card payment incoming leg: %w", err)
	}
	inEntry.ID = inID

	groupID := fmt.Sprintf("%s-%s", outID, inID)
	outEntry.TransferGroupID = &groupID
	outEntry.TransferPeerID = &inID
	outEntry.TransferFromAccountID = &sourceAccountID
	outEntry.TransferToAccountID = &destAccountID
	inEntry.TransferGroupID = &groupID
	inEntry.TransferPeerID = &outID
	inEntry.TransferFromAccountID = &sourceAccountID
	inEntry.TransferToAccountID = &destAccountID

	if err := c.deps.Repo.LinkTransferPair(ctx, tx, outEntry, inEntry); err != nil {
		return nil, nil, fmt.Errorf("link card payment transfer pair: %w", err)
	}
	return &outEntry, &inEntry, nil
}

func nonEmptyPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func dateRange(rows []model.CanonicalImportRow) (time.Time, time.Time) {
	if len(rows) == 0 {
		now := time.Now()
		return now, now
	}
	min, max := rows[0].Date, rows[0].Date
	for _, r := range rows[1:] {
		if r.Date.Before(min) {
			min = r.Date
		}
		if r.Date.After(max) {
			max = r.Date
		}
	}
	return min, max
}

func partitionCandidates(entries []model.LedgerEntry) (outgoing, incoming []transfermatch.Candidate) {
	for _, e := range entries {
		if e.TransferGroupID != nil {
			continue
		}
		isCardPayment := e.Type == model.EntryCCPayment || cardrouter.IsCardPaymentDescription(e.NormalizedDescription)
		c := transfermatch.Candidate{
			ID:                    e.ID,
			AccountID:             e.AccountID,
			AmountCents:           e.AmountCents,
			PostedAt:              e.PostedAt,
			NormalizedDescription: e.NormalizedDescription,
			MerchantKey:           textnorm.BuildMerchantKey(e.NormalizedDescription),
			IsCardPayment:         isCardPayment,
		}
		if e.AmountCents < 0 {
			outgoing = append(outgoing, c)
		} else {
			incoming = append(incoming, c)
		}
	}
	return outgoing, incoming
}

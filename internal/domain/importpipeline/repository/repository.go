// Package repository is the ownership-scoped data-access façade for the
// import & ledger pipeline: reads and inserts are scoped by userId, while
// LinkTransferPair and UpdateImportBatchTotals address rows by id alone
// and do not check the owning user; failures are surfaced as StorageError.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/finledger/pipeline/internal/domain/common"
	"github.com/finledger/pipeline/internal/domain/importpipeline/model"
)

// PgxPool is the subset of *pgxpool.Pool the façade depends on, narrowed so
// tests can substitute pgxmock.
type PgxPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

var _ PgxPool = (*pgxpool.Pool)(nil)

// StorageError wraps an underlying storage fault for callers that need to
// distinguish it from a pipeline-logic error.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string { return fmt.Sprintf("storage: %s: %v", e.Op, e.Err) }
func (e *StorageError) Unwrap() error { return e.Err }

func wrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

var tracerName = "ImportRepo"

// Repository is the ownership-scoped Postgres-backed façade over accounts,
// categories, category rules, ledger entries, import batches, import
// sources and import events.
type Repository struct {
	logger *slog.Logger
	pool   PgxPool
}

func New(pool PgxPool, logger *slog.Logger) *Repository {
	return &Repository{logger: logger, pool: pool}
}

// BeginTx starts the single logical transaction a commit runs under,
// following the teacher's Begin/Commit/Rollback idiom.
func (r *Repository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite})
	if err != nil {
		return nil, wrapStorage("BeginTx", err)
	}
	return tx, nil
}

func (r *Repository) startSpan(ctx context.Context, op, table, userID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, op, trace.WithAttributes(
		semconv.DBSystemPostgreSQL,
		attribute.String("db.operation", op),
		attribute.String("db.sql.table", table),
		attribute.String("db.user.id", userID),
	))
}

func failSpan(span trace.Span, msg string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
}

// ListAccounts returns every account owned by userID.
func (r *Repository) ListAccounts(ctx context.Context, userID string) ([]model.Account, error) {
	ctx, span := r.startSpan(ctx, "ListAccounts", "accounts", userID)
	defer span.End()

	l := r.logger.With(slog.String("method", "ListAccounts"), slog.String("userID", userID))
	l.DebugContext(ctx, "listing accounts")

	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, type, name, institution, currency, parent_account_id
		 FROM accounts WHERE user_id = $1 ORDER BY name`, userID)
	if err != nil {
		failSpan(span, "query failed", err)
		return nil, wrapStorage("ListAccounts", err)
	}
	defer rows.Close()

	accounts, err := pgx.CollectRows(rows, pgx.RowToStructByName[model.Account])
	if err != nil {
		failSpan(span, "scan failed", err)
		return nil, wrapStorage("ListAccounts", err)
	}
	span.SetStatus(codes.Ok, "listed")
	return accounts, nil
}

// GetAccount returns a single account, rejecting a mismatched owner.
func (r *Repository) GetAccount(ctx context.Context, userID, accountID string) (*model.Account, error) {
	ctx, span := r.startSpan(ctx, "GetAccount", "accounts", userID)
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, type, name, institution, currency, parent_account_id
		 FROM accounts WHERE id = $1 AND user_id = $2`, accountID, userID)
	if err != nil {
		failSpan(span, "query failed", err)
		return nil, wrapStorage("GetAccount", err)
	}
	defer rows.Close()

	account, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[model.Account])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Ok, "not found")
			return nil, common.ErrNotFound
		}
		failSpan(span, "scan failed", err)
		return nil, wrapStorage("GetAccount", err)
	}
	span.SetStatus(codes.Ok, "fetched")
	return &account, nil
}

// CreateAccount persists a new account owned by userID, typically used to
// synthesize a credit account for card-payment routing.
func (r *Repository) CreateAccount(ctx context.Context, tx pgx.Tx, account model.Account) (string, error) {
	var id string
	err := tx.QueryRow(ctx,
		`INSERT INTO accounts (user_id, type, name, institution, currency, parent_account_id)
		 VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		account.UserID, account.Type, account.Name, account.Institution, account.Currency, account.ParentAccountID,
	).Scan(&id)
	if err != nil {
		return "", wrapStorage("CreateAccount", err)
	}
	return id, nil
}

// ListAccountsByType returns userID's accounts of the given type, scoped to
// the commit transaction so card-payment/invoice routing sees a consistent
// snapshot of candidate destination accounts.
func (r *Repository) ListAccountsByType(ctx context.Context, tx pgx.Tx, userID string, accountType model.AccountType) ([]model.Account, error) {
	rows, err := tx.Query(ctx,
		`SELECT id, user_id, type, name, institution, currency, parent_account_id
		 FROM accounts WHERE user_id = $1 AND type = $2 ORDER BY name`, userID, accountType)
	if err != nil {
		return nil, wrapStorage("ListAccountsByType", err)
	}
	defer rows.Close()

	accounts, err := pgx.CollectRows(rows, pgx.RowToStructByName[model.Account])
	if err != nil {
		return nil, wrapStorage("ListAccountsByType", err)
	}
	return accounts, nil
}

// ListCategoryRules returns a user's rule set ordered for the rule engine.
func (r *Repository) ListCategoryRules(ctx context.Context, userID string) ([]model.CategoryRule, error) {
	ctx, span := r.startSpan(ctx, "ListCategoryRules", "category_rules", userID)
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, name, priority, enabled, match_type, pattern, account_id,
		        min_amount_cents, max_amount_cents, category_id, created_at
		 FROM category_rules WHERE user_id = $1 ORDER BY priority, created_at`, userID)
	if err != nil {
		failSpan(span, "query failed", err)
		return nil, wrapStorage("ListCategoryRules", err)
	}
	defer rows.Close()

	rules, err := pgx.CollectRows(rows, pgx.RowToStructByName[model.CategoryRule])
	if err != nil {
		failSpan(span, "scan failed", err)
		return nil, wrapStorage("ListCategoryRules", err)
	}
	span.SetStatus(codes.Ok, "listed")
	return rules, nil
}

// CreateCategoryRule validates the rule's pattern before persisting it —
// invalid_pattern must be rejected here, never at commit time.
func (r *Repository) CreateCategoryRule(ctx context.Context, rule model.CategoryRule, validate func(model.CategoryRule) error) (string, error) {
	if err := validate(rule); err != nil {
		return "", err
	}

	ctx, span := r.startSpan(ctx, "CreateCategoryRule", "category_rules", rule.UserID)
	defer span.End()

	var id string
	err := r.pool.QueryRow(ctx,
		`INSERT INTO category_rules (user_id, name, priority, enabled, match_type, pattern, account_id,
		        min_amount_cents, max_amount_cents, category_id)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`,
		rule.UserID, rule.Name, rule.Priority, rule.Enabled, rule.MatchType, rule.Pattern, rule.AccountID,
		rule.MinAmountCents, rule.MaxAmountCents, rule.CategoryID,
	).Scan(&id)
	if err != nil {
		failSpan(span, "insert failed", err)
		return "", wrapStorage("CreateCategoryRule", err)
	}
	span.SetStatus(codes.Ok, "created")
	return id, nil
}

// FindImportSource looks up an existing ImportSource by its content hash.
func (r *Repository) FindImportSource(ctx context.Context, tx pgx.Tx, userID, fileHash string) (*model.ImportSource, error) {
	rows, err := tx.Query(ctx,
		`SELECT id, user_id, kind, file_name, file_hash, institution_hint, created_at
		 FROM import_sources WHERE user_id = $1 AND file_hash = $2`, userID, fileHash)
	if err != nil {
		return nil, wrapStorage("FindImportSource", err)
	}
	defer rows.Close()

	source, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[model.ImportSource])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, wrapStorage("FindImportSource", err)
	}
	return &source, nil
}

// CreateImportSource persists a new ImportSource row inside the commit
// transaction.
func (r *Repository) CreateImportSource(ctx context.Context, tx pgx.Tx, source model.ImportSource) (string, error) {
	var id string
	err := tx.QueryRow(ctx,
		`INSERT INTO import_sources (user_id, kind, file_name, file_hash, institution_hint)
		 VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		source.UserID, source.Kind, source.FileName, source.FileHash, source.InstitutionHint,
	).Scan(&id)
	if err != nil {
		return "", wrapStorage("CreateImportSource", err)
	}
	return id, nil
}

// UpsertLedgerEntry inserts one row, relying on the unique constraint on
// (user_id, imported_hash) to suppress duplicates; returns inserted=false
// when the conflict fired.
func (r *Repository) UpsertLedgerEntry(ctx context.Context, tx pgx.Tx, entry model.LedgerEntry) (id string, inserted bool, err error) {
	// Serialize concurrent commits racing on the same hash before the
	// conflict check — a latency optimization, not a correctness
	// requirement (§5): the unique constraint is what actually prevents
	// a duplicate under contention.
	if entry.ImportedHash != nil {
		if _, lockErr := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, *entry.ImportedHash); lockErr != nil {
			return "", false, wrapStorage("UpsertLedgerEntry.lock", lockErr)
		}
	}

	row := tx.QueryRow(ctx,
		`INSERT INTO transactions (
			user_id, account_id, category_id, import_batch_id, posted_at, description,
			normalized_description, amount_cents, currency, type, direction, status,
			is_internal_transfer, imported_hash, external_id, raw_json
		 ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		 ON CONFLICT (user_id, imported_hash) WHERE imported_hash IS NOT NULL DO NOTHING
		 RETURNING id`,
		entry.UserID, entry.AccountID, entry.CategoryID, entry.ImportBatchID, entry.PostedAt, entry.Description,
		entry.NormalizedDescription, entry.AmountCents, entry.Currency, entry.Type, entry.Direction, entry.Status,
		entry.IsInternalTransfer, entry.ImportedHash, entry.ExternalID, entry.RawJSON,
	)

	if scanErr := row.Scan(&id); scanErr != nil {
		if errors.Is(scanErr, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, wrapStorage("UpsertLedgerEntry", scanErr)
	}
	return id, true, nil
}

// LinkTransferPair writes the shared transferGroupId/transferPeerId fields
// onto an auto-matched pair of entries.
func (r *Repository) LinkTransferPair(ctx context.Context, tx pgx.Tx, out, in model.LedgerEntry) error {
	_, err := tx.Exec(ctx,
		`UPDATE transactions SET type=$1, direction=$2, is_internal_transfer=true, transfer_group_id=$3,
		        transfer_peer_id=$4, transfer_from_account_id=$5, transfer_to_account_id=$6, normalized_description=$7
		 WHERE id=$8`,
		out.Type, out.Direction, out.TransferGroupID, out.TransferPeerID,
		out.TransferFromAccountID, out.TransferToAccountID, out.NormalizedDescription, out.ID)
	if err != nil {
		return wrapStorage("LinkTransferPair.out", err)
	}
	_, err = tx.Exec(ctx,
		`UPDATE transactions SET type=$1, direction=$2, is_internal_transfer=true, transfer_group_id=$3,
		        transfer_peer_id=$4, transfer_from_account_id=$5, transfer_to_account_id=$6, normalized_description=$7
		 WHERE id=$8`,
		in.Type, in.Direction, in.TransferGroupID, in.TransferPeerID,
		in.TransferFromAccountID, in.TransferToAccountID, in.NormalizedDescription, in.ID)
	if err != nil {
		return wrapStorage("LinkTransferPair.in", err)
	}
	return nil
}

// CreateImportBatch writes the batch row before any of its entries are
// inserted, so each entry's import_batch_id can point back at it (§4.8).
// Totals start at zero and are finalized by UpdateImportBatchTotals once
// the commit loop has run.
func (r *Repository) CreateImportBatch(ctx context.Context, tx pgx.Tx, batch model.ImportBatch) (string, error) {
	var id string
	err := tx.QueryRow(ctx,
		`INSERT INTO import_batches (user_id, source, file_name, mapping_json, total_imported, total_skipped)
		 VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		batch.UserID, batch.Source, batch.FileName, batch.MappingJSON, batch.TotalImported, batch.TotalSkipped,
	).Scan(&id)
	if err != nil {
		return "", wrapStorage("CreateImportBatch", err)
	}
	return id, nil
}

// UpdateImportBatchTotals writes the final imported/skipped counts once the
// commit loop has finished inserting entries against this batch.
func (r *Repository) UpdateImportBatchTotals(ctx context.Context, tx pgx.Tx, batchID string, totalImported, totalSkipped int) error {
	_, err := tx.Exec(ctx,
		`UPDATE import_batches SET total_imported=$1, total_skipped=$2 WHERE id=$3`,
		totalImported, totalSkipped, batchID)
	if err != nil {
		return wrapStorage("UpdateImportBatchTotals", err)
	}
	return nil
}

// ListImportBatches returns a user's most recent import batches.
func (r *Repository) ListImportBatches(ctx context.Context, userID string, limit int) ([]model.ImportBatch, error) {
	ctx, span := r.startSpan(ctx, "ListImportBatches", "import_batches", userID)
	defer span.End()

	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, source, file_name, mapping_json, total_imported, total_skipped, imported_at
		 FROM import_batches WHERE user_id = $1 ORDER BY imported_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		failSpan(span, "query failed", err)
		return nil, wrapStorage("ListImportBatches", err)
	}
	defer rows.Close()

	batches, err := pgx.CollectRows(rows, pgx.RowToStructByName[model.ImportBatch])
	if err != nil {
		failSpan(span, "scan failed", err)
		return nil, wrapStorage("ListImportBatches", err)
	}
	span.SetStatus(codes.Ok, "listed")
	return batches, nil
}

// WriteImportEvent persists one append-only telemetry record; satisfies
// telemetry.Writer.
func (r *Repository) WriteImportEvent(ctx context.Context, event model.ImportEvent) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO import_events (
			user_id, source_type, event, phase, error_code, total_rows, valid_rows, ignored_rows,
			error_rows, imported, skipped, duplicates, invalid_rows, transfer_created,
			card_payment_detected, card_payment_not_converted
		 ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		event.UserID, event.SourceType, event.Event, event.Phase, event.ErrorCode, event.TotalRows,
		event.ValidRows, event.IgnoredRows, event.ErrorRows, event.Imported, event.Skipped,
		event.Duplicates, event.InvalidRows, event.TransferCreated, event.CardPaymentDetected,
		event.CardPaymentNotConv,
	)
	if err != nil {
		return wrapStorage("WriteImportEvent", err)
	}
	return nil
}

// WindowEntries returns a user's entries posted within [from, to], for the
// transfer matcher's candidate search.
func (r *Repository) WindowEntries(ctx context.Context, tx pgx.Tx, userID string, fromISO, toISO string) ([]model.LedgerEntry, error) {
	rows, err := tx.Query(ctx,
		`SELECT id, user_id, account_id, category_id, import_batch_id, posted_at, description,
		        normalized_description, amount_cents, currency, type, direction, status,
		        is_internal_transfer, imported_hash, transfer_group_id, transfer_peer_id,
		        transfer_from_account_id, transfer_to_account_id, external_id, raw_json, created_at, updated_at
		 FROM transactions
		 WHERE user_id = $1 AND posted_at BETWEEN $2 AND $3`,
		userID, fromISO, toISO)
	if err != nil {
		return nil, wrapStorage("WindowEntries", err)
	}
	defer rows.Close()

	entries, err := pgx.CollectRows(rows, pgx.RowToStructByName[model.LedgerEntry])
	if err != nil {
		return nil, wrapStorage("WindowEntries", err)
	}
	return entries, nil
}

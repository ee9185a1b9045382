package commit

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/finledger/pipeline/internal/domain/importpipeline/model"
	"github.com/finledger/pipeline/internal/domain/importpipeline/telemetry"
)

type fakeTx struct {
	pgx.Tx
}

func (fakeTx) Commit(context.Context) error   { return nil }
func (fakeTx) Rollback(context.Context) error { return nil }

type fakeRepo struct {
	existingSource   *model.ImportSource
	inserted         map[string]bool
	creditAccounts   []model.Account
	insertedEntries  []model.LedgerEntry
	finalizedBatchID string
	finalizedTotal   int
	finalizedSkipped int
}

func (f *fakeRepo) BeginTx(context.Context) (pgx.Tx, error) { return fakeTx{}, nil }

func (f *fakeRepo) FindImportSource(context.Context, pgx.Tx, string, string) (*model.ImportSource, error) {
	return f.existingSource, nil
}

func (f *fakeRepo) CreateImportSource(context.Context, pgx.Tx, model.ImportSource) (string, error) {
	return "source-1", nil
}

func (f *fakeRepo) UpsertLedgerEntry(_ context.Context, _ pgx.Tx, entry model.LedgerEntry) (string, bool, error) {
	if f.inserted == nil {
		f.inserted = map[string]bool{}
	}
	key := *entry.ImportedHash
	if f.inserted[key] {
		return "", false, nil
	}
	f.inserted[key] = true
	entry.ID = "entry-" + key[:8]
	f.insertedEntries = append(f.insertedEntries, entry)
	return entry.ID, true, nil
}

func (f *fakeRepo) LinkTransferPair(context.Context, pgx.Tx, model.LedgerEntry, model.LedgerEntry) error {
	return nil
}

func (f *fakeRepo) CreateImportBatch(context.Context, pgx.Tx, model.ImportBatch) (string, error) {
	return "batch-1", nil
}

func (f *fakeRepo) UpdateImportBatchTotals(_ context.Context, _ pgx.Tx, batchID string, totalImported, totalSkipped int) error {
	f.finalizedBatchID = batchID
	f.finalizedTotal = totalImported
	f.finalizedSkipped = totalSkipped
	return nil
}

func (f *fakeRepo) WindowEntries(context.Context, pgx.Tx, string, string, string) ([]model.LedgerEntry, error) {
	return nil, nil
}

func (f *fakeRepo) ListCategoryRules(context.Context, string) ([]model.CategoryRule, error) {
	return nil, nil
}

func (f *fakeRepo) CreateAccount(context.Context, pgx.Tx, model.Account) (string, error) {
	return "acc-new", nil
}

func (f *fakeRepo) ListAccountsByType(context.Context, pgx.Tx, string, model.AccountType) ([]model.Account, error) {
	return f.creditAccounts, nil
}

type fakeWriter struct{}

func (fakeWriter) WriteImportEvent(context.Context, model.ImportEvent) error { return nil }

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(os.Stderr, nil)) }

func TestCommitter_Commit_NewRows(t *testing.T) {
	repo := &fakeRepo{}
	committer := New(Dependencies{Repo: repo, Logger: testLogger(), Telemetry: telemetry.New(fakeWriter{}, testLogger())})

	rows := []model.CanonicalImportRow{
		{Date: time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC), AmountCents: -1000, Description: "Padaria", NormalizedDescription: "PADARIA", MerchantKey: "PADARIA", Type: model.RowExpense},
		{Date: time.Date(2026, 2, 6, 0, 0, 0, 0, time.UTC), AmountCents: 5000, Description: "Salario", NormalizedDescription: "SALARIO", MerchantKey: "SALARIO", Type: model.RowIncome},
	}

	result, err := committer.Commit(context.Background(), time.Now(), Request{
		UserID: "user-1", SourceType: model.SourceCSV, FileName: "f.csv", DefaultAccountID: "acc-1", Rows: rows,
	})
	require.NoError(t, err)
	require.Equal(t, 2, result.TotalImported)
	require.Equal(t, 0, result.Duplicates)
	require.False(t, result.IdempotentDuplicateSource)

	require.Equal(t, "batch-1", result.ImportBatchID)
	require.Equal(t, "batch-1", repo.finalizedBatchID)
	require.Equal(t, 2, repo.finalizedTotal)
	require.Len(t, repo.insertedEntries, 2)
	for _, e := range repo.insertedEntries {
		require.NotNil(t, e.ImportBatchID)
		require.Equal(t, "batch-1", *e.ImportBatchID)
	}
}

func TestCommitter_Commit_ManualCategoryOverridesRuleAndAppliesWithRulesOff(t *testing.T) {
	repo := &fakeRepo{}
	committer := New(Dependencies{Repo: repo, Logger: testLogger(), Telemetry: telemetry.New(fakeWriter{}, testLogger())})

	rows := []model.CanonicalImportRow{
		{
			Date: time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC), AmountCents: -1000,
			Description: "Padaria", NormalizedDescription: "PADARIA", MerchantKey: "PADARIA",
			Type: model.RowExpense, CategoryID: "cat-manual",
		},
	}

	result, err := committer.Commit(context.Background(), time.Now(), Request{
		UserID: "user-1", SourceType: model.SourceCSV, FileName: "f.csv", DefaultAccountID: "acc-1",
		ApplyRules: false, Rows: rows,
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.TotalImported)
	require.Len(t, repo.insertedEntries, 1)
	require.NotNil(t, repo.insertedEntries[0].CategoryID)
	require.Equal(t, "cat-manual", *repo.insertedEntries[0].CategoryID)
}

func TestCommitter_Commit_TransferTypeRowSetsIsInternalTransfer(t *testing.T) {
	repo := &fakeRepo{}
	committer := New(Dependencies{Repo: repo, Logger: testLogger(), Telemetry: telemetry.New(fakeWriter{}, testLogger())})

	rows := []model.CanonicalImportRow{
		{
			Date: time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC), AmountCents: -1000,
			Description: "To savings", NormalizedDescription: "TO SAVINGS", MerchantKey: "TOSAVINGS",
			Type: model.RowTransfer,
		},
	}

	result, err := committer.Commit(context.Background(), time.Now(), Request{
		UserID: "user-1", SourceType: model.SourceCSV, FileName: "f.csv", DefaultAccountID: "acc-1", Rows: rows,
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.TotalImported)
	require.Len(t, repo.insertedEntries, 1)
	require.True(t, repo.insertedEntries[0].IsInternalTransfer)
	require.Equal(t, model.EntryTransfer, repo.insertedEntries[0].Type)
}

func TestCommitter_Commit_DuplicateSource(t *testing.T) {
	repo := &fakeRepo{existingSource: &model.ImportSource{ID: "source-1"}}
	committer := New(Dependencies{Repo: repo, Logger: testLogger(), Telemetry: telemetry.New(fakeWriter{}, testLogger())})

	rows := []model.CanonicalImportRow{
		{Date: time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC), AmountCents: -1000, Description: "Padaria"},
	}

	result, err := committer.Commit(context.Background(), time.Now(), Request{
		UserID: "user-1", SourceType: model.SourceCSV, FileName: "f.csv", DefaultAccountID: "acc-1", Rows: rows,
	})
	require.NoError(t, err)
	require.True(t, result.IdempotentDuplicateSource)
	require.Equal(t, 1, result.TotalSkipped)
}

func TestCommitter_Commit_CardPaymentConvertedToTransfer(t *testing.T) {
	repo := &fakeRepo{creditAccounts: []model.Account{
		{ID: "acc-credit", Type: model.AccountCredit, ParentAccountID: strPtr("acc-checking")},
	}}
	committer := New(Dependencies{Repo: repo, Logger: testLogger(), Telemetry: telemetry.New(fakeWriter{}, testLogger())})

	rows := []model.CanonicalImportRow{
		{
			Date: time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC), AmountCents: -100000,
			Description: "PAGAMENTO FATURA CARTAO", NormalizedDescription: "PAGAMENTO FATURA CARTAO",
			Type: model.RowExpense,
		},
	}

	result, err := committer.Commit(context.Background(), time.Now(), Request{
		UserID: "user-1", SourceType: model.SourceCSV, FileName: "fatura.csv",
		DefaultAccountID: "acc-checking", DefaultAccountType: model.AccountChecking,
		ConvertCardPaymentsToTransfer: true, Rows: rows,
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.TotalImported)
	require.Equal(t, 1, result.TotalTransfersCreated)
	require.Equal(t, 0, result.TotalCardPaymentsNotConverted)
	require.Equal(t, 1, result.TotalCardPaymentsDetected)
}

func TestCommitter_Commit_CardPaymentNotConvertedWithoutCreditAccount(t *testing.T) {
	repo := &fakeRepo{}
	committer := New(Dependencies{Repo: repo, Logger: testLogger(), Telemetry: telemetry.New(fakeWriter{}, testLogger())})

	rows := []model.CanonicalImportRow{
		{
			Date: time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC), AmountCents: -100000,
			Description: "PAGAMENTO FATURA CARTAO", NormalizedDescription: "PAGAMENTO FATURA CARTAO",
			Type: model.RowExpense,
		},
	}

	result, err := committer.Commit(context.Background(), time.Now(), Request{
		UserID: "user-1", SourceType: model.SourceCSV, FileName: "fatura.csv",
		DefaultAccountID: "acc-checking", DefaultAccountType: model.AccountChecking,
		ConvertCardPaymentsToTransfer: true, Rows: rows,
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.TotalCardPaymentsDetected)
	require.Equal(t, 1, result.TotalCardPaymentsNotConverted)
	require.Equal(t, 0, result.TotalTransfersCreated)
	require.Equal(t, 1, result.TotalImported)
}

func strPtr(s string) *string { return &s }

func TestCommitter_Commit_DuplicateRowWithinBatch(t *testing.T) {
	repo := &fakeRepo{}
	committer := New(Dependencies{Repo: repo, Logger: testLogger(), Telemetry: telemetry.New(fakeWriter{}, testLogger())})

	row := model.CanonicalImportRow{Date: time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC), AmountCents: -1000, Description: "Padaria", NormalizedDescription: "PADARIA", MerchantKey: "PADARIA", Type: model.RowExpense}

	result, err := committer.Commit(context.Background(), time.Now(), Request{
		UserID: "user-1", SourceType: model.SourceCSV, FileName: "f.csv", DefaultAccountID: "acc-1", Rows: []model.CanonicalImportRow{row, row},
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.TotalImported)
	require.Equal(t, 1, result.Duplicates)
}

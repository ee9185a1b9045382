package telemetry

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finledger/pipeline/internal/domain/importpipeline/model"
)

type fakeWriter struct {
	mu     sync.Mutex
	events []model.ImportEvent
	fail   bool
}

func (f *fakeWriter) WriteImportEvent(_ context.Context, event model.ImportEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return assert.AnError
	}
	f.events = append(f.events, event)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func TestRecorder_RecordParseError_DedupWithinWindow(t *testing.T) {
	w := &fakeWriter{}
	r := New(w, testLogger())

	base := time.Date(2026, 2, 5, 10, 0, 0, 0, time.UTC)
	r.RecordParseError(context.Background(), base, "user-1", model.SourceCSV, "f.csv", "invalid_mapping")
	r.RecordParseError(context.Background(), base.Add(5*time.Second), "user-1", model.SourceCSV, "f.csv", "invalid_mapping")

	require.Len(t, w.events, 1)
}

func TestRecorder_RecordParseError_FiresAgainAfterWindow(t *testing.T) {
	w := &fakeWriter{}
	r := New(w, testLogger())

	base := time.Date(2026, 2, 5, 10, 0, 0, 0, time.UTC)
	r.RecordParseError(context.Background(), base, "user-1", model.SourceCSV, "f.csv", "invalid_mapping")
	r.RecordParseError(context.Background(), base.Add(20*time.Second), "user-1", model.SourceCSV, "f.csv", "invalid_mapping")

	require.Len(t, w.events, 2)
}

func TestRecorder_WriteFailureDoesNotPanic(t *testing.T) {
	w := &fakeWriter{fail: true}
	r := New(w, testLogger())
	assert.NotPanics(t, func() {
		r.RecordParseEntry(context.Background(), time.Now(), "user-1", model.SourceCSV)
	})
}

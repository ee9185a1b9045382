// Package telemetry writes the append-only import-pipeline event trail and
// deduplicates repeated parse-error bursts.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/finledger/pipeline/internal/domain/importpipeline/model"
)

const dedupWindow = 15 * time.Second

// Writer persists ImportEvent rows; implemented by repository.Repository
// in production and a fake in tests.
type Writer interface {
	WriteImportEvent(ctx context.Context, event model.ImportEvent) error
}

// Recorder is the append-only telemetry sink for the import pipeline. It
// deduplicates repeated parse-error events within a short window and never
// lets a write failure interrupt the caller's pipeline.
type Recorder struct {
	logger *slog.Logger
	writer Writer

	mu   sync.Mutex
	seen map[string]time.Time
}

func New(writer Writer, logger *slog.Logger) *Recorder {
	return &Recorder{writer: writer, logger: logger, seen: map[string]time.Time{}}
}

// RecordParseError deduplicates repeated {userId, sourceType, fileName,
// errorCode} bursts within a 15-second window before writing.
func (r *Recorder) RecordParseError(ctx context.Context, now time.Time, userID string, sourceType model.SourceType, fileName, errorCode string) {
	key := fmt.Sprintf("%s|%s|%s|%s", userID, sourceType, fileName, errorCode)

	r.mu.Lock()
	last, ok := r.seen[key]
	if ok && now.Sub(last) < dedupWindow {
		r.mu.Unlock()
		return
	}
	r.seen[key] = now
	r.evictLocked(now)
	r.mu.Unlock()

	code := errorCode
	r.write(ctx, model.ImportEvent{
		UserID:     userID,
		SourceType: sourceType,
		Event:      "parse_error",
		Phase:      model.PhaseParse,
		ErrorCode:  &code,
		CreatedAt:  now,
	})
}

// evictLocked drops entries older than the dedup window so the map does
// not grow unbounded across a long-lived process; caller holds r.mu.
func (r *Recorder) evictLocked(now time.Time) {
	for k, t := range r.seen {
		if now.Sub(t) >= dedupWindow {
			delete(r.seen, k)
		}
	}
}

// RecordParseEntry/RecordParseExit/RecordCommitEntry/RecordCommitExit mark
// pipeline phase boundaries; none of these are deduplicated.

func (r *Recorder) RecordParseEntry(ctx context.Context, now time.Time, userID string, sourceType model.SourceType) {
	r.write(ctx, model.ImportEvent{UserID: userID, SourceType: sourceType, Event: "parse_entry", Phase: model.PhaseParse, CreatedAt: now})
}

func (r *Recorder) RecordParseExit(ctx context.Context, now time.Time, userID string, sourceType model.SourceType, totalRows, validRows, ignoredRows, errorRows int) {
	r.write(ctx, model.ImportEvent{
		UserID: userID, SourceType: sourceType, Event: "parse_exit", Phase: model.PhaseParse,
		TotalRows: &totalRows, ValidRows: &validRows, IgnoredRows: &ignoredRows, ErrorRows: &errorRows,
		CreatedAt: now,
	})
}

func (r *Recorder) RecordCommitEntry(ctx context.Context, now time.Time, userID string, sourceType model.SourceType) {
	r.write(ctx, model.ImportEvent{UserID: userID, SourceType: sourceType, Event: "commit_entry", Phase: model.PhaseCommit, CreatedAt: now})
}

func (r *Recorder) RecordCommitExit(ctx context.Context, now time.Time, userID string, sourceType model.SourceType, imported, skipped, duplicates, invalidRows, transferCreated, cardDetected, cardNotConverted int) {
	r.write(ctx, model.ImportEvent{
		UserID: userID, SourceType: sourceType, Event: "commit_exit", Phase: model.PhaseCommit,
		Imported: &imported, Skipped: &skipped, Duplicates: &duplicates, InvalidRows: &invalidRows,
		TransferCreated: &transferCreated, CardPaymentDetected: &cardDetected, CardPaymentNotConv: &cardNotConverted,
		CreatedAt: now,
	})
}

// write is best-effort: a failure is logged at Warn and never returned, so
// telemetry can never fail the pipeline it is observing (§4.10).
func (r *Recorder) write(ctx context.Context, event model.ImportEvent) {
	if err := r.writer.WriteImportEvent(ctx, event); err != nil {
		r.logger.WarnContext(ctx, "telemetry write failed", slog.String("event", event.Event), slog.Any("error", err))
	}
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/finledger/pipeline/internal/domain/importpipeline/analyze"
	"github.com/finledger/pipeline/internal/domain/importpipeline/canonicalize"
	"github.com/finledger/pipeline/internal/domain/importpipeline/commit"
	"github.com/finledger/pipeline/internal/domain/importpipeline/model"
	"github.com/finledger/pipeline/internal/domain/importpipeline/repository"
	"github.com/finledger/pipeline/internal/domain/importpipeline/sourceparse"
	"github.com/finledger/pipeline/internal/domain/importpipeline/sourceparse/delimited"
	"github.com/finledger/pipeline/internal/domain/importpipeline/sourceparse/document"
	"github.com/finledger/pipeline/internal/domain/importpipeline/sourceparse/markup"
	"github.com/finledger/pipeline/internal/domain/importpipeline/telemetry"
)

// Repository is the subset of repository.Repository the handler needs
// beyond what commit.Committer already depends on.
type Repository interface {
	GetAccount(ctx context.Context, userID, accountID string) (*model.Account, error)
	ListImportBatches(ctx context.Context, userID string, limit int) ([]model.ImportBatch, error)
}

var _ Repository = (*repository.Repository)(nil)

// Limits controls the request-envelope guards enforced before any parsing
// or commit work happens (§6).
type Limits struct {
	MaxFileSizeBytes       int64
	MaxCommitRows          int
	PDFExtractTimeoutSeconds int
	MaxInFlight            int
}

// Handler serves the three plain-HTTP import endpoints.
type Handler struct {
	repo        Repository
	committer   *commit.Committer
	telemetry   *telemetry.Recorder
	logger      *slog.Logger
	limits      Limits
	jwtSecret   []byte
	middlewares []func(http.Handler) http.Handler
}

func New(repo Repository, committer *commit.Committer, rec *telemetry.Recorder, logger *slog.Logger, jwtSecret []byte, limits Limits) *Handler {
	if limits.MaxFileSizeBytes <= 0 {
		limits.MaxFileSizeBytes = 12 << 20
	}
	if limits.MaxCommitRows <= 0 {
		limits.MaxCommitRows = 5000
	}
	return &Handler{repo: repo, committer: committer, telemetry: rec, logger: logger, limits: limits, jwtSecret: jwtSecret}
}

// Use appends outer middleware (e.g. tracing, metrics) applied to every
// route before authentication and the concurrency limiter; returns h for
// chaining at construction time.
func (h *Handler) Use(mw ...func(http.Handler) http.Handler) *Handler {
	h.middlewares = append(h.middlewares, mw...)
	return h
}

// Mount registers the three endpoints on mux, each behind the configured
// outer middleware, token authentication, and the concurrency limiter
// (grounded on likme-CODEX's edge backpressure).
func (h *Handler) Mount(mux *http.ServeMux) {
	max := h.limits.MaxInFlight
	if max <= 0 {
		max = mustIntEnv("IMPORT_HTTP_MAX_INFLIGHT", 32)
	}
	wrap := func(fn http.HandlerFunc) http.Handler {
		var handler http.Handler = RequireAuth(h.jwtSecret, withConcurrencyLimit(fn, max))
		for i := len(h.middlewares) - 1; i >= 0; i-- {
			handler = h.middlewares[i](handler)
		}
		return handler
	}
	mux.Handle("/imports/parse", wrap(h.ParsePreview))
	mux.Handle("/imports/commit", wrap(h.Commit))
	mux.Handle("/imports", wrap(h.ListBatches))
}

func detectSourceType(declared, fileName string) (model.SourceType, error) {
	switch strings.ToLower(declared) {
	case "csv":
		return model.SourceCSV, nil
	case "ofx", "qfx":
		return model.SourceOFX, nil
	case "pdf":
		return model.SourcePDF, nil
	}

	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv", ".txt":
		return model.SourceCSV, nil
	case ".ofx", ".qfx":
		return model.SourceOFX, nil
	case ".pdf":
		return model.SourcePDF, nil
	default:
		return "", errors.New("invalid_content_type")
	}
}

func parserFor(sourceType model.SourceType) (sourceparse.Parser, error) {
	switch sourceType {
	case model.SourceCSV:
		return delimited.NewParser(), nil
	case model.SourceOFX:
		return markup.NewParser(), nil
	case model.SourcePDF:
		return document.NewParser(), nil
	default:
		return nil, errors.New("invalid_content_type")
	}
}

// previewRow is the JSON wire shape for one row in the parse-preview
// response, combining the analyze.Diagnostic with its canonical row.
type previewRow struct {
	Index       int                       `json:"index"`
	Status      analyze.Status            `json:"status"`
	Reason      string                    `json:"reason,omitempty"`
	CommitIndex *int                      `json:"commitIndex,omitempty"`
	Row         *wireCanonicalRow         `json:"row,omitempty"`
}

func (h *Handler) ParsePreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, "method_not_allowed")
		return
	}
	userID, err := requireUserID(r)
	if err != nil {
		writeErr(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.limits.MaxFileSizeBytes+1<<20)
	if err := r.ParseMultipartForm(h.limits.MaxFileSizeBytes); err != nil {
		writeErr(w, http.StatusRequestEntityTooLarge, "file_size_limit_exceeded")
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck

	file, header, err := r.FormFile("file")
	if err != nil {
		writeErr(w, http.StatusBadRequest, "file_missing")
		return
	}
	defer file.Close()

	data, err := readLimited(file, h.limits.MaxFileSizeBytes)
	if err != nil {
		writeErr(w, http.StatusRequestEntityTooLarge, "file_size_limit_exceeded")
		return
	}
	if len(data) == 0 {
		writeErr(w, http.StatusBadRequest, "file_empty")
		return
	}

	sourceType, err := detectSourceType(r.FormValue("sourceType"), header.Filename)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_content_type")
		return
	}

	opts := sourceparse.Options{PDFPassword: r.FormValue("pdfPassword")}
	if rawMapping := r.FormValue("mapping"); rawMapping != "" {
		var m sourceparse.ColumnMapping
		if err := json.Unmarshal([]byte(rawMapping), &m); err != nil {
			writeErr(w, http.StatusBadRequest, "invalid_mapping_json")
			return
		}
		opts.Mapping = &m
	}

	parser, err := parserFor(sourceType)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_content_type")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.pdfTimeout())
	defer cancel()

	h.telemetry.RecordParseEntry(ctx, time.Now(), userID, sourceType)

	result, err := parser.Parse(ctx, data, opts)
	if err != nil {
		status, code := httpStatusForErr(err)
		h.telemetry.RecordParseError(ctx, time.Now(), userID, sourceType, header.Filename, code)
		writeErr(w, status, code)
		return
	}

	inputs := make([]analyze.RowInput, 0, len(result.Rows))
	for _, pr := range result.Rows {
		in := analyze.RowInput{MissingDate: pr.Date == ""}
		if !in.MissingDate {
			row, convErr := canonicalize.Canonicalize(pr, sourceType, canonicalize.Hint{})
			if convErr != nil {
				in.InvalidDate = true
			} else {
				in.Row = &row
			}
		}
		inputs = append(inputs, in)
	}

	analyzed := analyze.Analyze(inputs)
	h.telemetry.RecordParseExit(ctx, time.Now(), userID, sourceType,
		analyzed.Totals.TotalRows, analyzed.Totals.ValidRows, analyzed.Totals.IgnoredRows, analyzed.Totals.ErrorRows)

	resp := parsePreviewResponse{
		SourceType:   sourceType,
		DocumentType: nonEmpty(result.DocumentType),
		IssuerProfile: nonEmpty(result.IssuerProfile),
		Metadata:     result.Metadata,
		NeedsMapping: len(result.MissingRequired) > 0,
		Columns:      result.Columns,
		SampleRows:   result.SampleRows,
		SuggestedMapping: result.SuggestedMapping,
		SuggestedMappingConfidence: mappingConfidenceView{
			Confidence:      string(result.MappingConfidence),
			MissingRequired: result.MissingRequired,
		},
		AppliedMapping: opts.Mapping,
		TotalRows:      analyzed.Totals.TotalRows,
		ValidRows:      analyzed.Totals.ValidRows,
		IgnoredRows:    analyzed.Totals.IgnoredRows,
		ErrorRows:      analyzed.Totals.ErrorRows,
		Reasons:        analyzed.Totals.Reasons,
		Preview:        toWirePreview(analyzed.Preview),
		Rows:           toWirePreview(analyzed.Diagnostics),
	}

	status := http.StatusOK
	if resp.NeedsMapping {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, resp)
}

// mappingConfidenceView is the §6 confidence object: the rating plus the
// required fields the suggester could not assign (Scenario 5).
type mappingConfidenceView struct {
	Confidence      string   `json:"confidence"`
	MissingRequired []string `json:"missingRequired,omitempty"`
}

type parsePreviewResponse struct {
	SourceType                 model.SourceType           `json:"sourceType"`
	DocumentType               *string                    `json:"documentType,omitempty"`
	IssuerProfile              *string                    `json:"issuerProfile,omitempty"`
	Metadata                   map[string]string          `json:"metadata,omitempty"`
	NeedsMapping               bool                       `json:"needsMapping"`
	Columns                    []string                   `json:"columns"`
	SampleRows                 [][]string                 `json:"sampleRows,omitempty"`
	SuggestedMapping           *sourceparse.ColumnMapping `json:"suggestedMapping,omitempty"`
	SuggestedMappingConfidence mappingConfidenceView      `json:"suggestedMappingConfidence"`
	AppliedMapping             *sourceparse.ColumnMapping `json:"appliedMapping,omitempty"`
	TotalRows                  int                        `json:"totalRows"`
	ValidRows                  int                        `json:"validRows"`
	IgnoredRows                int                        `json:"ignoredRows"`
	ErrorRows                  int                        `json:"errorRows"`
	Reasons                    map[string]int             `json:"reasons"`
	Rows                       []previewRow               `json:"rows"`
	Preview                    []previewRow               `json:"preview"`
}

func toWirePreview(diagnostics []analyze.Diagnostic) []previewRow {
	out := make([]previewRow, 0, len(diagnostics))
	for _, d := range diagnostics {
		pr := previewRow{Index: d.Index, Status: d.Status, Reason: d.Reason, CommitIndex: d.CommitIndex}
		if d.Row != nil {
			wr := wireRowFromCanonical(*d.Row)
			pr.Row = &wr
		}
		out = append(out, pr)
	}
	return out
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errors.New("file_size_limit_exceeded")
	}
	return data, nil
}

func (h *Handler) pdfTimeout() time.Duration {
	if h.limits.PDFExtractTimeoutSeconds <= 0 {
		return 12 * time.Second
	}
	return time.Duration(h.limits.PDFExtractTimeoutSeconds) * time.Second
}

// --- commit ---

type commitMapping struct {
	ConvertCardPaymentsToTransfer *bool  `json:"convertCardPaymentsToTransfer,omitempty"`
	CardPaymentTargetAccountID    string `json:"cardPaymentTargetAccountId,omitempty"`
	SkipCardPaymentLines          bool   `json:"skipCardPaymentLines,omitempty"`
}

type commitRequest struct {
	SourceType       model.SourceType `json:"sourceType"`
	FileName         string           `json:"fileName"`
	DefaultAccountID string           `json:"defaultAccountId,omitempty"`
	Mapping          *commitMapping   `json:"mapping,omitempty"`
	ApplyRules       bool             `json:"applyRules"`
	Rows             []wireCanonicalRow `json:"rows"`
}

type commitResponse struct {
	TotalImported                  int                           `json:"totalImported"`
	TotalSkipped                   int                           `json:"totalSkipped"`
	Duplicates                     int                           `json:"duplicates"`
	InvalidRows                    int                           `json:"invalidRows"`
	TotalTransfersCreated          int                           `json:"totalTransfersCreated"`
	TotalCardPaymentsDetected      int                           `json:"totalCardPaymentsDetected"`
	TotalCardPaymentsNotConverted  int                           `json:"totalCardPaymentsNotConverted"`
	TransferReviewSuggestions      any                           `json:"transferReviewSuggestions,omitempty"`
	DeterministicCategorizedCount  int                           `json:"deterministicCategorizedCount"`
	Idempotent                     bool                          `json:"idempotent"`
}

func (h *Handler) Commit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, "method_not_allowed")
		return
	}
	userID, err := requireUserID(r)
	if err != nil {
		writeErr(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	var req commitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_payload")
		return
	}
	if len(req.Rows) > h.limits.MaxCommitRows {
		writeErr(w, http.StatusBadRequest, "rows_limit_exceeded")
		return
	}

	defaultAccountType := model.AccountChecking
	var defaultAccountInstitution string
	if req.DefaultAccountID != "" {
		account, err := h.repo.GetAccount(r.Context(), userID, req.DefaultAccountID)
		if err == nil && account != nil {
			defaultAccountType = account.Type
			defaultAccountInstitution = account.Institution
		}
	}

	convert := defaultAccountType != model.AccountCredit
	var targetAccountID string
	var skipCardPaymentLines bool
	if req.Mapping != nil {
		if req.Mapping.ConvertCardPaymentsToTransfer != nil {
			convert = *req.Mapping.ConvertCardPaymentsToTransfer
		}
		targetAccountID = req.Mapping.CardPaymentTargetAccountID
		skipCardPaymentLines = req.Mapping.SkipCardPaymentLines
	}

	rows := make([]model.CanonicalImportRow, 0, len(req.Rows))
	for _, wr := range req.Rows {
		row, err := wr.toCanonical()
		if err != nil {
			writeErr(w, http.StatusBadRequest, "invalid_payload")
			return
		}
		rows = append(rows, row)
	}

	commitReq := commit.Request{
		UserID:                        userID,
		SourceType:                    req.SourceType,
		FileName:                      req.FileName,
		DefaultAccountID:              req.DefaultAccountID,
		DefaultAccountType:            defaultAccountType,
		DefaultAccountInstitution:     defaultAccountInstitution,
		ConvertCardPaymentsToTransfer: convert,
		CardPaymentTargetAccountID:    targetAccountID,
		SkipCardPaymentLines:          skipCardPaymentLines,
		ApplyRules:                    req.ApplyRules,
		Rows:                          rows,
	}

	result, err := h.committer.Commit(r.Context(), time.Now(), commitReq)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "commit failed", slog.Any("error", err))
		writeErr(w, http.StatusInternalServerError, "import_commit_failed")
		return
	}

	status := http.StatusCreated
	if result.IdempotentDuplicateSource {
		status = http.StatusOK
	}

	writeJSON(w, status, commitResponse{
		TotalImported:                 result.TotalImported,
		TotalSkipped:                  result.TotalSkipped,
		Duplicates:                    result.Duplicates,
		InvalidRows:                   result.InvalidRows,
		TotalTransfersCreated:         result.TotalTransfersCreated,
		TotalCardPaymentsDetected:     result.TotalCardPaymentsDetected,
		TotalCardPaymentsNotConverted: result.TotalCardPaymentsNotConverted,
		TransferReviewSuggestions:     result.TransferReviewSuggestions,
		DeterministicCategorizedCount: result.DeterministicCategorizedCount,
		Idempotent:                    true,
	})
}

// --- list ---

type importBatchView struct {
	ID            string    `json:"id"`
	Source        string    `json:"source"`
	FileName      string    `json:"fileName"`
	TotalImported int       `json:"totalImported"`
	TotalSkipped  int       `json:"totalSkipped"`
	ImportedAt    time.Time `json:"importedAt"`
}

func (h *Handler) ListBatches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, "method_not_allowed")
		return
	}
	userID, err := requireUserID(r)
	if err != nil {
		writeErr(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	batches, err := h.repo.ListImportBatches(r.Context(), userID, limit)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list import batches failed", slog.Any("error", err))
		writeErr(w, http.StatusInternalServerError, "import_parse_failed")
		return
	}

	views := make([]importBatchView, 0, len(batches))
	for _, b := range batches {
		views = append(views, importBatchView{
			ID: b.ID, Source: b.Source, FileName: b.FileName,
			TotalImported: b.TotalImported, TotalSkipped: b.TotalSkipped, ImportedAt: b.ImportedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"batches": views})
}

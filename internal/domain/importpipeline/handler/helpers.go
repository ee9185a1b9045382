package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"

	"github.com/finledger/pipeline/internal/domain/importpipeline/sourceparse"
)

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// errResponse is the body for every non-2xx response; code is the §7
// taxonomy code, never the raw Go error.
type errResponse struct {
	Error                   string   `json:"error"`
	TechnicalReason         string   `json:"technicalReason,omitempty"`
	MissingColumns          []string `json:"missingColumns,omitempty"`
	SupportedIssuerProfiles []string `json:"supportedIssuerProfiles,omitempty"`
}

func writeErr(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, errResponse{Error: code})
}

// httpStatusForErr centralizes the §7 code-to-status dispatch in one
// place per handler package, grounded on likme-CODEX's
// httpStatusForErr/publicErrMessage pair.
func httpStatusForErr(err error) (status int, code string) {
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.Is(err, sourceparse.ErrPasswordRequired):
		return http.StatusUnprocessableEntity, "pdf_password_required"
	case errors.Is(err, sourceparse.ErrPasswordInvalid):
		return http.StatusUnprocessableEntity, "pdf_password_invalid"
	case errors.Is(err, sourceparse.ErrNoTransactionsFound):
		return http.StatusUnprocessableEntity, "pdf_no_transactions"
	case errors.Is(err, sourceparse.ErrUnsupportedIssuerProfile):
		return http.StatusUnprocessableEntity, "source_parser_unavailable"
	case errors.Is(err, sourceparse.ErrParserUnavailable):
		return http.StatusUnprocessableEntity, "source_parser_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "import_parse_failed"
	default:
		return http.StatusInternalServerError, "import_parse_failed"
	}
}

// withConcurrencyLimit bounds in-flight requests to this handler package
// so a burst of large uploads cannot queue unbounded goroutines ahead of
// the database; grounded on likme-CODEX's edge backpressure wrapper.
func withConcurrencyLimit(next http.Handler, max int) http.Handler {
	if max <= 0 {
		max = 32
	}
	sem := make(chan struct{}, max)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case sem <- struct{}{}:
			defer func() { <-sem }()
			next.ServeHTTP(w, r)
		default:
			writeErr(w, http.StatusServiceUnavailable, "server_busy")
		}
	})
}

func mustIntEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

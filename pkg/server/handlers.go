package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/shunichi-ikebuchi/ledgersync/pkg/ledger"
	"github.com/shunichi-ikebuchi/ledgersync/pkg/syncer"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// SyncStatusResponse represents the response for GET /sync.
type SyncStatusResponse struct {
	LastSync     *time.Time `json:"last_sync"`
	Transactions int        `json:"transactions"`
}

// SyncResponse represents the response for POST /sync.
type SyncResponse struct {
	Skipped      bool     `json:"skipped"`
	WindowDays   int      `json:"window_days"`
	Fetched      int      `json:"fetched"`
	Duplicates   int      `json:"duplicates"`
	Appended     int      `json:"appended"`
	Transactions string   `json:"transactions"`
	Errors       []string `json:"errors,omitempty"`
}

// Ledger handles GET /ledger.
func (h *Handler) Ledger(w http.ResponseWriter, r *http.Request) {
	l, err := h.session.Ledger()
	if err != nil {
		slog.Error("Failed to read ledger", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "server_error", "Failed to read ledger")
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(l.String()))
}

// SyncStatus handles GET /sync.
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	last, ok, err := h.session.LastSync(r.Context())
	if err != nil {
		slog.Error("Failed to read last sync time", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "server_error", "Failed to read last sync time")
		return
	}
	l, err := h.session.Ledger()
	if err != nil {
		writeJSONError(w, http.StatusInternalServerError, "server_error", "Failed to read ledger")
		return
	}

	response := SyncStatusResponse{Transactions: l.Len()}
	if ok {
		response.LastSync = &last
	}
	writeJSON(w, http.StatusOK, response)
}

// Sync handles POST /sync. Query flags dry_run, sort and opening_balances
// map to the sync options.
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	opts, err := syncOptions(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_parameter", err.Error())
		return
	}

	result, err := h.session.Sync(r.Context(), h.now(), opts)

	var srcErrs syncer.SourceErrors
	if err != nil && !errors.As(err, &srcErrs) {
		slog.Error("Sync failed", "error", err)
		writeJSONError(w, syncErrorStatus(err), "sync_failed", err.Error())
		return
	}

	response := SyncResponse{
		Skipped:      result.Skipped,
		WindowDays:   result.WindowDays,
		Fetched:      result.Fetched,
		Duplicates:   result.Duplicates,
		Appended:     len(result.Appended),
		Transactions: ledger.Render(result.Appended),
	}
	for _, e := range srcErrs {
		response.Errors = append(response.Errors, e.Error())
	}

	w.Header().Set("X-Sync-Errors", strconv.Itoa(len(srcErrs)))
	writeJSON(w, http.StatusOK, response)
}

// Download handles GET /download: a dry run whose new transactions are
// returned as a ledger file attachment.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	result, err := h.session.Sync(r.Context(), h.now(), syncer.Options{DryRun: true, IgnoreInterval: true})

	var srcErrs syncer.SourceErrors
	if err != nil && !errors.As(err, &srcErrs) {
		slog.Error("Download failed", "error", err)
		writeJSONError(w, syncErrorStatus(err), "sync_failed", err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="new-transactions.journal"`)
	w.Header().Set("X-Sync-Errors", strconv.Itoa(len(srcErrs)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(ledger.Render(result.Appended)))
}

func syncOptions(r *http.Request) (syncer.Options, error) {
	var opts syncer.Options
	flags := []struct {
		name string
		dst  *bool
	}{
		{"dry_run", &opts.DryRun},
		{"sort", &opts.Sort},
		{"opening_balances", &opts.OpeningBalances},
	}

	q := r.URL.Query()
	for _, f := range flags {
		v := q.Get(f.name)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, errors.New("invalid " + f.name + " flag: " + v)
		}
		*f.dst = b
	}
	return opts, nil
}

func syncErrorStatus(err error) int {
	var dup *syncer.DuplicateOpeningBalanceError
	var skew *syncer.ClockSkewError
	switch {
	case errors.As(err, &dup), errors.As(err, &skew):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes a JSON error response.
func writeJSONError(w http.ResponseWriter, status int, error, description string) {
	writeJSON(w, status, ErrorResponse{
		Error:            error,
		ErrorDescription: description,
	})
}

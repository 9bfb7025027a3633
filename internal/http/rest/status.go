package rest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/italolelis/chunk_transfer/internal/logctx"
	"github.com/italolelis/chunk_transfer/internal/storage"
	"github.com/italolelis/chunk_transfer/internal/transfer"
)

const defaultHistoryLimit = 20

// StatusProvider exposes the live state of a transfer session.
type StatusProvider interface {
	Status() transfer.Status
}

type StatusResponse struct {
	transfer.Status

	Progress string `json:"progress"`
	SizeText string `json:"size_text,omitempty"`
}

type HistoryEntry struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id,omitempty"`
	Name       string    `json:"name"`
	Direction  string    `json:"direction"`
	Protocol   string    `json:"protocol,omitempty"`
	Status     string    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	Size       int64     `json:"size"`
	Parts      int       `json:"parts"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

type StatusHandler struct {
	provider StatusProvider
	history  storage.TransferReadRepository
}

// NewStatusHandler creates a status handler. history may be nil.
func NewStatusHandler(provider StatusProvider, history storage.TransferReadRepository) *StatusHandler {
	return &StatusHandler{provider: provider, history: history}
}

func (h *StatusHandler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/status", h.HandleStatus)
	r.Get("/history", h.HandleHistory)

	return r
}

// HandleStatus reports the running session.
func (h *StatusHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if h.provider == nil {
		http.Error(w, "no transfer in progress", http.StatusNotFound)

		return
	}

	st := h.provider.Status()

	resp := StatusResponse{Status: st, Progress: progressText(st)}
	if st.Size > 0 {
		resp.SizeText = humanize.IBytes(uint64(st.Size))
	}

	writeJSON(w, r, http.StatusOK, resp)
}

// HandleHistory lists finished sessions from the journal.
func (h *StatusHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	logger := logctx.LoggerFromContext(r.Context())

	if h.history == nil {
		http.Error(w, "history is not enabled", http.StatusNotFound)

		return
	}

	limit := defaultHistoryLimit

	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)

			return
		}

		limit = n
	}

	records, err := h.history.GetTransfers(r.Context(), limit)
	if err != nil {
		logger.ErrorContext(r.Context(), "failed to load transfer history", "err", err)
		http.Error(w, "failed to load history", http.StatusInternalServerError)

		return
	}

	entries := make([]HistoryEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, HistoryEntry{
			ID:         rec.ID,
			SessionID:  rec.SessionID,
			Name:       rec.Name,
			Direction:  rec.Direction,
			Protocol:   rec.Protocol,
			Status:     rec.Status,
			Reason:     rec.Reason,
			Size:       rec.Size,
			Parts:      rec.Parts,
			StartedAt:  rec.StartedAt,
			FinishedAt: rec.FinishedAt,
		})
	}

	writeJSON(w, r, http.StatusOK, entries)
}

// HandleHealth is the liveness probe.
func HandleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func progressText(st transfer.Status) string {
	if st.Indeterminate && !st.State.IsTerminal() {
		return "unknown"
	}

	return fmt.Sprintf("%.1f%%", st.Percent)
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logctx.LoggerFromContext(r.Context()).ErrorContext(r.Context(), "failed to encode response", "err", err)
	}
}

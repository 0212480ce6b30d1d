// Package handlers implements the HTTP endpoints of the subzap API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dvloznov/subzap/internal/api/middleware"
	"github.com/dvloznov/subzap/internal/domain"
	"github.com/dvloznov/subzap/internal/ledger"
	"github.com/dvloznov/subzap/internal/pipeline"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// maxBatchBytes bounds POST /api/candidates bodies.
const maxBatchBytes = 10 << 20

// BatchIngestor is implemented by *pipeline.Ingestor.
type BatchIngestor interface {
	IngestBatch(ctx context.Context, candidates []domain.RawCandidate) (*pipeline.BatchReport, error)
}

// LedgerReader is the read side of ledger.Store.
type LedgerReader interface {
	Scan(ctx context.Context, f ledger.Filter) ([]*domain.Transaction, error)
	Get(ctx context.Context, id string) (*domain.Transaction, error)
}

// CandidatesHandler handles candidate batch submission.
type CandidatesHandler struct {
	ingestor BatchIngestor
	log      zerolog.Logger
}

// NewCandidatesHandler creates a new candidates handler.
func NewCandidatesHandler(ingestor BatchIngestor, log zerolog.Logger) *CandidatesHandler {
	return &CandidatesHandler{
		ingestor: ingestor,
		log:      log,
	}
}

// IngestCandidates handles POST /api/candidates
func (h *CandidatesHandler) IngestCandidates(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Candidates []domain.RawCandidate `json:"candidates"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBatchBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	report, err := h.ingestor.IngestBatch(r.Context(), req.Candidates)
	if err != nil {
		h.log.Error().Err(err).Int("candidates", len(req.Candidates)).Msg("Failed to ingest batch")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to ingest batch")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, report)
}

// TransactionsHandler handles ledger read endpoints.
type TransactionsHandler struct {
	ledger LedgerReader
	log    zerolog.Logger
}

// NewTransactionsHandler creates a new transactions handler.
func NewTransactionsHandler(reader LedgerReader, log zerolog.Logger) *TransactionsHandler {
	return &TransactionsHandler{
		ledger: reader,
		log:    log,
	}
}

// ListTransactions handles GET /api/transactions
func (h *TransactionsHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	transactions, err := h.ledger.Scan(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to scan ledger")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to query transactions")
		return
	}
	if transactions == nil {
		transactions = []*domain.Transaction{}
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": transactions,
		"count":        len(transactions),
	})
}

// GetTransaction handles GET /api/transactions/{id}
func (h *TransactionsHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	tx, err := h.ledger.Get(r.Context(), id)
	if errors.Is(err, ledger.ErrNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Transaction not found")
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("transaction_id", id).Msg("Failed to get transaction")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get transaction")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, tx)
}

package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"budget/internal/core"
)

type transactionResponse struct {
	ID          string     `json:"id"`
	Type        core.Kind  `json:"type"`
	Amount      core.Money `json:"amount"`
	Category    string     `json:"category"`
	Description string     `json:"description"`
	Date        time.Time  `json:"date"`
	CreatedAt   time.Time  `json:"createdAt"`
}

func toTransactionResponse(t core.Transaction) transactionResponse {
	return transactionResponse{
		ID:          t.ID,
		Type:        t.Kind,
		Amount:      t.Amount,
		Category:    t.Category,
		Description: t.Description,
		Date:        t.OccurredAt,
		CreatedAt:   t.CreatedAt,
	}
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	period, err := parsePeriod(r.URL.Query())
	if err != nil {
		writeError(w, r, "list transactions", err)
		return
	}

	txs, err := s.transactions.List(r.Context(), ownerFrom(r), period)
	if err != nil {
		writeError(w, r, "list transactions", err)
		return
	}

	out := make([]transactionResponse, 0, len(txs))
	for _, t := range txs {
		out = append(out, toTransactionResponse(t))
	}
	writeJSON(w, r, http.StatusOK, out)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	in, err := parseTransaction(NewRequestBodyParser(w, r))
	if err != nil {
		writeError(w, r, "create transaction", err)
		return
	}

	tx, err := s.transactions.Create(r.Context(), ownerFrom(r), in)
	if err != nil {
		writeError(w, r, "create transaction", err)
		return
	}
	writeJSON(w, r, http.StatusCreated, toTransactionResponse(tx))
}

// handleDeleteTransaction answers 404 both for unknown ids and for ids owned
// by someone else.
func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	deleted, err := s.transactions.Delete(r.Context(), ownerFrom(r), id)
	if err != nil {
		writeError(w, r, "delete transaction", err)
		return
	}
	if !deleted {
		writeMessage(w, r, http.StatusNotFound, "Transaction not found")
		return
	}
	writeMessage(w, r, http.StatusOK, "Transaction deleted")
}

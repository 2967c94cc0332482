// Package api is the thin HTTP/WebSocket surface over the transaction
// orchestrator. Controllers here only decode requests, call the
// orchestrator, and encode responses; all business logic lives in
// internal/engine.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"moneychanger/internal/core"
	"moneychanger/internal/engine"
)

// TransactionController adapts HTTP requests to TransactionOrchestrator
// calls.
type TransactionController struct {
	orch    *engine.TransactionOrchestrator
	txStore transactionReader
	log     *logrus.Entry
}

// transactionReader is the read-side the controller needs for GET
// /transaction/{id}; satisfied by *store.TransactionStore.
type transactionReader interface {
	Get(id string) (*core.Transaction, bool)
}

func NewTransactionController(orch *engine.TransactionOrchestrator, txStore transactionReader, log *logrus.Logger) *TransactionController {
	return &TransactionController{orch: orch, txStore: txStore, log: log.WithField("component", "api")}
}

type startTransactionRequest struct {
	Type                   core.TxType `json:"type"`
	Amount                 int         `json:"amount"`
	Fee                    int         `json:"fee"`
	SelectedDispenseDenoms []int       `json:"selected_dispense_denoms"`
}

// Create handles POST /transaction.
func (c *TransactionController) Create(w http.ResponseWriter, r *http.Request) {
	var req startTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	tx, err := c.orch.StartTransaction(r.Context(), req.Type, req.Amount, req.Fee, req.SelectedDispenseDenoms)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

// Get handles GET /transaction/{id}.
func (c *TransactionController) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	tx, ok := c.txStore.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("transaction not found"))
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// Cancel handles DELETE /transaction/{id}.
func (c *TransactionController) Cancel(w http.ResponseWriter, r *http.Request) {
	tx, err := c.orch.CancelTransaction(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// Confirm handles POST /transaction/{id}/confirm.
func (c *TransactionController) Confirm(w http.ResponseWriter, r *http.Request) {
	tx, err := c.orch.ConfirmTransaction(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// AcceptBill handles POST /transaction/{id}/accept-bill.
func (c *TransactionController) AcceptBill(w http.ResponseWriter, r *http.Request) {
	tx, err := c.orch.HandleBillInserted(r.Context())
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func statusFor(err error) int {
	var txErr *core.TransactionError
	if errors.As(err, &txErr) {
		return http.StatusConflict
	}
	var insufficient *core.InsufficientInventory
	if errors.As(err, &insufficient) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/minseo/accountd/internal/domain"
)

// AccountService is the CRUD surface consumed by the handlers.
type AccountService interface {
	CreateAccount(ctx context.Context, userID string, initialBalance int64) (domain.Account, error)
	CloseAccount(ctx context.Context, userID, accountNumber string) (domain.Account, error)
	ListAccounts(ctx context.Context, userID string) ([]domain.Account, error)
	GetTransaction(ctx context.Context, transactionID string) (domain.Transaction, error)
	ListTransactions(ctx context.Context, accountNumber string) ([]domain.Transaction, error)
}

// TransactionService is the coordinator surface consumed by the handlers.
type TransactionService interface {
	UseBalance(ctx context.Context, userID, accountNumber string, amount int64) (domain.Transaction, error)
	CancelBalance(ctx context.Context, accountNumber string, amount int64) (domain.Transaction, error)
}

// APIHandlers exposes HTTP handlers for the REST API.
type APIHandlers struct {
	logger       *slog.Logger
	accounts     AccountService
	transactions TransactionService
}

// NewAPIHandlers constructs an APIHandlers instance.
func NewAPIHandlers(logger *slog.Logger, accounts AccountService, transactions TransactionService) *APIHandlers {
	return &APIHandlers{
		logger:       logger,
		accounts:     accounts,
		transactions: transactions,
	}
}

type createAccountRequest struct {
	UserID         string `json:"userId"`
	InitialBalance int64  `json:"initialBalance"`
}

type closeAccountRequest struct {
	UserID        string `json:"userId"`
	AccountNumber string `json:"accountNumber"`
}

type useBalanceRequest struct {
	UserID        string `json:"userId"`
	AccountNumber string `json:"accountNumber"`
	Amount        int64  `json:"amount"`
}

type cancelBalanceRequest struct {
	AccountNumber string `json:"accountNumber"`
	Amount        int64  `json:"amount"`
}

type accountResponse struct {
	AccountNumber string `json:"accountNumber"`
	UserID        string `json:"userId"`
	Status        string `json:"status"`
	Balance       int64  `json:"balance"`
	RegisteredAt  string `json:"registeredAt"`
	ClosedAt      string `json:"closedAt,omitempty"`
}

type transactionResponse struct {
	TransactionID   string `json:"transactionId"`
	AccountNumber   string `json:"accountNumber"`
	Type            string `json:"type"`
	Result          string `json:"result"`
	Amount          int64  `json:"amount"`
	BalanceSnapshot int64  `json:"balanceSnapshot"`
	TransactedAt    string `json:"transactedAt"`
}

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func (h *APIHandlers) handleAccounts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createAccount(w, r)
	case http.MethodGet:
		h.listAccounts(w, r)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (h *APIHandlers) createAccount(w http.ResponseWriter, r *http.Request) {
	var payload createAccountRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if payload.UserID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	acct, err := h.accounts.CreateAccount(r.Context(), payload.UserID, payload.InitialBalance)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, toAccountResponse(acct))
}

func (h *APIHandlers) listAccounts(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId query parameter is required")
		return
	}

	accounts, err := h.accounts.ListAccounts(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	response := make([]accountResponse, 0, len(accounts))
	for _, acct := range accounts {
		response = append(response, toAccountResponse(acct))
	}
	respondJSON(w, http.StatusOK, response)
}

func (h *APIHandlers) handleCloseAccount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var payload closeAccountRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if payload.UserID == "" || payload.AccountNumber == "" {
		writeError(w, http.StatusBadRequest, "userId and accountNumber are required")
		return
	}

	acct, err := h.accounts.CloseAccount(r.Context(), payload.UserID, payload.AccountNumber)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toAccountResponse(acct))
}

// handleAccountSubresources serves GET /accounts/{number}/transactions.
func (h *APIHandlers) handleAccountSubresources(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/accounts/"), "/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "transactions" {
		writeError(w, http.StatusNotFound, "unknown resource")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	txs, err := h.accounts.ListTransactions(r.Context(), parts[0])
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	response := make([]transactionResponse, 0, len(txs))
	for _, tx := range txs {
		response = append(response, toTransactionResponse(tx))
	}
	respondJSON(w, http.StatusOK, response)
}

func (h *APIHandlers) handleUseBalance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var payload useBalanceRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if payload.UserID == "" || payload.AccountNumber == "" {
		writeError(w, http.StatusBadRequest, "userId and accountNumber are required")
		return
	}

	tx, err := h.transactions.UseBalance(r.Context(), payload.UserID, payload.AccountNumber, payload.Amount)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toTransactionResponse(tx))
}

func (h *APIHandlers) handleCancelBalance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var payload cancelBalanceRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if payload.AccountNumber == "" {
		writeError(w, http.StatusBadRequest, "accountNumber is required")
		return
	}

	tx, err := h.transactions.CancelBalance(r.Context(), payload.AccountNumber, payload.Amount)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toTransactionResponse(tx))
}

// handleTransactionByID serves GET /transactions/{id}.
func (h *APIHandlers) handleTransactionByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	txID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/transactions/"), "/")
	if txID == "" {
		writeError(w, http.StatusBadRequest, "transaction id is required")
		return
	}

	tx, err := h.accounts.GetTransaction(r.Context(), txID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, toTransactionResponse(tx))
}

// writeDomainError maps an error kind to an HTTP status and a structured
// error body so callers can route on the kind without parsing messages.
func (h *APIHandlers) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)

	status := http.StatusUnprocessableEntity
	switch kind {
	case domain.KindNotFound:
		status = http.StatusNotFound
	case domain.KindResourceBusy:
		status = http.StatusTooManyRequests
	case domain.KindOwnershipMismatch:
		status = http.StatusForbidden
	case domain.KindInfrastructure:
		status = http.StatusBadGateway
	}

	if kind == domain.KindInfrastructure {
		h.logger.Error("request failed on infrastructure",
			"method", r.Method, "path", r.URL.Path, "error", err)
		respondJSON(w, status, errorResponse{Error: errorBody{
			Kind:    string(kind),
			Message: "backend fault; transaction outcome is indeterminate",
		}})
		return
	}

	var de *domain.Error
	message := err.Error()
	if errors.As(err, &de) {
		message = de.Message
	}
	respondJSON(w, status, errorResponse{Error: errorBody{Kind: string(kind), Message: message}})
}

func toAccountResponse(acct domain.Account) accountResponse {
	resp := accountResponse{
		AccountNumber: acct.Number,
		UserID:        acct.UserID,
		Status:        string(acct.Status),
		Balance:       acct.Balance,
		RegisteredAt:  acct.RegisteredAt.UTC().Format(time.RFC3339),
	}
	if acct.ClosedAt != nil {
		resp.ClosedAt = acct.ClosedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

func toTransactionResponse(tx domain.Transaction) transactionResponse {
	return transactionResponse{
		TransactionID:   tx.ID,
		AccountNumber:   tx.AccountNumber,
		Type:            string(tx.Type),
		Result:          string(tx.Result),
		Amount:          tx.Amount,
		BalanceSnapshot: tx.BalanceSnapshot,
		TransactedAt:    tx.TransactedAt.UTC().Format(time.RFC3339),
	}
}

func decodeJSON(r *http.Request, dst any) error {
	defer func() {
		_, _ = io.Copy(io.Discard, r.Body)
	}()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func writeError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: errorBody{
		Kind:    "BAD_REQUEST",
		Message: message,
	}})
}

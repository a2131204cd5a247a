package api

import (
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/punchamoorthee/ledgerbank/internal/domain"
	"github.com/punchamoorthee/ledgerbank/internal/service"
	"github.com/punchamoorthee/ledgerbank/internal/store"
	"github.com/shopspring/decimal"
)

type transferRequest struct {
	SourceAccountID      uuid.UUID       `json:"sourceAccountId"`
	DestinationAccountID uuid.UUID       `json:"destinationAccountId"`
	Amount               decimal.Decimal `json:"amount"`
	Description          string          `json:"description"`
	Category             string          `json:"category"`
}

func (h *Handler) CreateTransferHandler(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondWithErr(w, err)
		return
	}
	if req.SourceAccountID == uuid.Nil || req.DestinationAccountID == uuid.Nil {
		h.respondWithErr(w, domain.Validation("sourceAccountId and destinationAccountId are required"))
		return
	}

	result, err := h.ledger.Transfer(r.Context(), domain.TransferRequest{
		UserID:               caller(r),
		SourceAccountID:      req.SourceAccountID,
		DestinationAccountID: req.DestinationAccountID,
		Amount:               req.Amount,
		Description:          req.Description,
		Category:             req.Category,
	})
	if err != nil {
		h.respondWithErr(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, result)
}

type createAccountRequest struct {
	Name           string             `json:"name"`
	Type           domain.AccountType `json:"type"`
	Currency       string             `json:"currency"`
	OpeningBalance decimal.Decimal    `json:"openingBalance"`
	DailyLimit     *decimal.Decimal   `json:"dailyLimit"`
	MonthlyLimit   *decimal.Decimal   `json:"monthlyLimit"`
}

func (h *Handler) CreateAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondWithErr(w, err)
		return
	}
	account, err := h.ledger.CreateAccount(r.Context(), service.NewAccount{
		UserID:         caller(r),
		Name:           req.Name,
		Type:           req.Type,
		Currency:       req.Currency,
		OpeningBalance: req.OpeningBalance,
		DailyLimit:     req.DailyLimit,
		MonthlyLimit:   req.MonthlyLimit,
	})
	if err != nil {
		h.respondWithErr(w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/accounts/"+account.ID.String())
	respondWithJSON(w, http.StatusCreated, account)
}

func (h *Handler) ListAccountsHandler(w http.ResponseWriter, r *http.Request) {
	status := domain.AccountStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		h.respondWithErr(w, domain.Validation("status must be one of active, closed, frozen"))
		return
	}
	accounts, err := h.ledger.ListAccounts(r.Context(), caller(r), status)
	if err != nil {
		h.respondWithErr(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, accounts)
}

func (h *Handler) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondWithErr(w, err)
		return
	}
	account, err := h.ledger.GetAccount(r.Context(), caller(r), id)
	if err != nil {
		h.respondWithErr(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, account)
}

type updateAccountRequest struct {
	Name         *string          `json:"name"`
	DailyLimit   *decimal.Decimal `json:"dailyLimit"`
	MonthlyLimit *decimal.Decimal `json:"monthlyLimit"`
}

func (h *Handler) UpdateAccountHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondWithErr(w, err)
		return
	}
	var req updateAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondWithErr(w, err)
		return
	}
	account, err := h.ledger.UpdateAccount(r.Context(), caller(r), id, service.AccountPatch{
		Name:         req.Name,
		DailyLimit:   req.DailyLimit,
		MonthlyLimit: req.MonthlyLimit,
	})
	if err != nil {
		h.respondWithErr(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, account)
}

func (h *Handler) CloseAccountHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondWithErr(w, err)
		return
	}
	account, err := h.ledger.CloseAccount(r.Context(), caller(r), id)
	if err != nil {
		h.respondWithErr(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, account)
}

type recordTransactionRequest struct {
	AccountID   uuid.UUID              `json:"accountId"`
	Type        domain.TransactionType `json:"type"`
	Amount      decimal.Decimal        `json:"amount"`
	Description string                 `json:"description"`
	Category    string                 `json:"category"`
}

func (h *Handler) RecordTransactionHandler(w http.ResponseWriter, r *http.Request) {
	var req recordTransactionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.respondWithErr(w, err)
		return
	}
	if req.AccountID == uuid.Nil {
		h.respondWithErr(w, domain.Validation("accountId is required"))
		return
	}
	txn, err := h.ledger.RecordTransaction(r.Context(), service.RecordRequest{
		UserID:      caller(r),
		AccountID:   req.AccountID,
		Type:        req.Type,
		Amount:      req.Amount,
		Description: req.Description,
		Category:    req.Category,
	})
	if err != nil {
		h.respondWithErr(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, txn)
}

func (h *Handler) GetTransactionHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		h.respondWithErr(w, err)
		return
	}
	txn, err := h.ledger.GetTransaction(r.Context(), caller(r), id)
	if err != nil {
		h.respondWithErr(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, txn)
}

type transactionPage struct {
	Transactions []domain.Transaction `json:"transactions"`
	Limit        int                  `json:"limit"`
	Offset       int                  `json:"offset"`
}

func (h *Handler) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.TransactionFilter{
		UserID: caller(r),
		Status: domain.TransactionStatus(q.Get("status")),
		Type:   domain.TransactionType(q.Get("type")),
	}
	if raw := q.Get("accountId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.respondWithErr(w, domain.Validation("invalid accountId"))
			return
		}
		f.AccountID = &id
	}
	var err error
	if f.From, f.To, err = dateRange(q); err != nil {
		h.respondWithErr(w, err)
		return
	}
	limit, err := intParam(q, "limit")
	if err != nil {
		h.respondWithErr(w, err)
		return
	}
	offset, err := intParam(q, "offset")
	if err != nil {
		h.respondWithErr(w, err)
		return
	}

	page := service.ClampPage(store.Page{Limit: limit, Offset: offset})
	txns, err := h.ledger.ListTransactions(r.Context(), f, page)
	if err != nil {
		h.respondWithErr(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, transactionPage{Transactions: txns, Limit: page.Limit, Offset: page.Offset})
}

func intParam(q url.Values, key string) (int, error) {
	raw := q.Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, domain.Validation("%s must be a non-negative integer", key)
	}
	return n, nil
}

// dateRange reads from/to as a date or an RFC 3339 instant. A bare "to" date
// covers that whole day.
func dateRange(q url.Values) (from, to *time.Time, err error) {
	if raw := q.Get("from"); raw != "" {
		t, _, err := parseTime(raw)
		if err != nil {
			return nil, nil, domain.Validation("from must be YYYY-MM-DD or RFC 3339")
		}
		from = &t
	}
	if raw := q.Get("to"); raw != "" {
		t, dateOnly, err := parseTime(raw)
		if err != nil {
			return nil, nil, domain.Validation("to must be YYYY-MM-DD or RFC 3339")
		}
		if dateOnly {
			t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
		to = &t
	}
	return from, to, nil
}

func parseTime(raw string) (time.Time, bool, error) {
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, true, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	return t, false, err
}

package handler

import (
	"errors"
	"net/http"
	"strconv"

	"homeledger/internal/apperr"
	"homeledger/internal/service"
	"homeledger/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Handler holds the services behind the HTTP API.
type Handler struct {
	ledger *service.LedgerService
	loans  *service.LoanService
	cards  *service.CreditCardService
	log    *logrus.Logger
}

func NewHandler(ledger *service.LedgerService, loans *service.LoanService, cards *service.CreditCardService, log *logrus.Logger) *Handler {
	return &Handler{ledger: ledger, loans: loans, cards: cards, log: log}
}

// fail maps a service error onto a status and business code. Anything
// unclassified is logged and reported as a 500 without detail.
func (h *Handler) fail(c *gin.Context, err error) {
	switch kind := apperr.Kind(err); {
	case errors.Is(kind, apperr.ErrValidation):
		response.Error(c, http.StatusBadRequest, response.CodeValidation, err.Error())
	case errors.Is(kind, apperr.ErrNotFound):
		response.Error(c, http.StatusNotFound, response.CodeNotFound, err.Error())
	case errors.Is(kind, apperr.ErrLimitExceeded):
		response.Error(c, http.StatusUnprocessableEntity, response.CodeLimitExceeded, err.Error())
	case errors.Is(kind, apperr.ErrInsufficientFunds):
		response.Error(c, http.StatusUnprocessableEntity, response.CodeInsufficientFunds, err.Error())
	case errors.Is(kind, apperr.ErrConflict):
		response.Error(c, http.StatusConflict, response.CodeConflict, err.Error())
	default:
		h.log.WithError(err).WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
		}).Error("request failed")
		response.ServerError(c, "internal server error")
	}
}

func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		response.ParamError(c, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func queryInt(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		response.ParamError(c, name+" must be an integer")
		return 0, false
	}
	return v, true
}

// ============================================================
// Accounts and transactions
// ============================================================

// CreateAccount POST /api/v1/accounts
func (h *Handler) CreateAccount(c *gin.Context) {
	var req service.CreateAccountRequest
	if !bind(c, &req) {
		return
	}
	account, err := h.ledger.CreateAccount(c.Request.Context(), householdID(c), &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, account)
}

// GetAccount GET /api/v1/accounts/:id
func (h *Handler) GetAccount(c *gin.Context) {
	account, err := h.ledger.GetAccount(c.Request.Context(), householdID(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, account)
}

// ListTransactions GET /api/v1/accounts/:id/transactions?page=1&page_size=20
func (h *Handler) ListTransactions(c *gin.Context) {
	page, ok := queryInt(c, "page", 1)
	if !ok {
		return
	}
	size, ok := queryInt(c, "page_size", 20)
	if !ok {
		return
	}
	items, total, err := h.ledger.ListTransactions(c.Request.Context(), householdID(c), c.Param("id"), page, size)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{
		"list":      items,
		"total":     total,
		"page":      page,
		"page_size": size,
	})
}

// PostTransaction POST /api/v1/transactions
func (h *Handler) PostTransaction(c *gin.Context) {
	var req service.PostTransactionRequest
	if !bind(c, &req) {
		return
	}
	trans, err := h.ledger.Post(c.Request.Context(), householdID(c), &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, trans)
}

// ReverseTransaction DELETE /api/v1/transactions/:id
func (h *Handler) ReverseTransaction(c *gin.Context) {
	if err := h.ledger.Reverse(c.Request.Context(), householdID(c), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Transfer POST /api/v1/transfers
func (h *Handler) Transfer(c *gin.Context) {
	var req service.TransferRequest
	if !bind(c, &req) {
		return
	}
	debit, credit, err := h.ledger.Transfer(c.Request.Context(), householdID(c), &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, gin.H{"debit": debit, "credit": credit})
}

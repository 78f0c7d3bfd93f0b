package handler

import (
	"homeledger/internal/service"
	"homeledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// CreateCard POST /api/v1/cards
func (h *Handler) CreateCard(c *gin.Context) {
	var req service.CreateCreditCardRequest
	if !bind(c, &req) {
		return
	}
	card, err := h.cards.CreateCard(c.Request.Context(), householdID(c), &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, card)
}

// GetCard GET /api/v1/cards/:id
func (h *Handler) GetCard(c *gin.Context) {
	card, err := h.cards.GetCard(c.Request.Context(), householdID(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, card)
}

// ChargeCard POST /api/v1/cards/:id/charges
func (h *Handler) ChargeCard(c *gin.Context) {
	var req service.ChargeRequest
	if !bind(c, &req) {
		return
	}
	req.CardID = c.Param("id")
	trans, err := h.cards.Charge(c.Request.Context(), householdID(c), &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, trans)
}

// ApplyPayment POST /api/v1/cards/:id/payments
func (h *Handler) ApplyPayment(c *gin.Context) {
	var req service.ApplyPaymentRequest
	if !bind(c, &req) {
		return
	}
	req.CardID = c.Param("id")
	payment, err := h.cards.ApplyPayment(c.Request.Context(), householdID(c), &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, payment)
}

// ListPayments GET /api/v1/cards/:id/payments
func (h *Handler) ListPayments(c *gin.Context) {
	items, err := h.cards.ListPayments(c.Request.Context(), householdID(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, items)
}

// GenerateStatement POST /api/v1/cards/:id/statements
func (h *Handler) GenerateStatement(c *gin.Context) {
	var req service.GenerateStatementRequest
	if !bind(c, &req) {
		return
	}
	statement, err := h.cards.GenerateStatement(c.Request.Context(), householdID(c), c.Param("id"), req.AsOf)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, statement)
}

// ListStatements GET /api/v1/cards/:id/statements
func (h *Handler) ListStatements(c *gin.Context) {
	items, err := h.cards.ListStatements(c.Request.Context(), householdID(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, items)
}

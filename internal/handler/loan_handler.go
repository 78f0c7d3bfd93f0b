package handler

import (
	"strconv"

	"homeledger/internal/service"
	"homeledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// OriginateLoan POST /api/v1/loans
func (h *Handler) OriginateLoan(c *gin.Context) {
	var req service.OriginateLoanRequest
	if !bind(c, &req) {
		return
	}
	loan, schedule, err := h.loans.Originate(c.Request.Context(), householdID(c), &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Created(c, gin.H{"loan": loan, "schedule": schedule})
}

// GetLoan GET /api/v1/loans/:id
func (h *Handler) GetLoan(c *gin.Context) {
	loan, err := h.loans.GetLoan(c.Request.Context(), householdID(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, loan)
}

// ListSchedule GET /api/v1/loans/:id/schedule
func (h *Handler) ListSchedule(c *gin.Context) {
	emis, err := h.loans.ListSchedule(c.Request.Context(), householdID(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, emis)
}

// PayEMI POST /api/v1/loans/:id/emis/:number/pay
func (h *Handler) PayEMI(c *gin.Context) {
	number, err := strconv.Atoi(c.Param("number"))
	if err != nil || number < 1 {
		response.ParamError(c, "emi number must be a positive integer")
		return
	}
	emi, trans, err := h.loans.PayEMI(c.Request.Context(), householdID(c), c.Param("id"), number)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{"emi": emi, "transaction": trans})
}

// PrepayLoan POST /api/v1/loans/:id/prepayments
func (h *Handler) PrepayLoan(c *gin.Context) {
	var req service.PrepayLoanRequest
	if !bind(c, &req) {
		return
	}
	req.LoanID = c.Param("id")
	loan, schedule, err := h.loans.Prepay(c.Request.Context(), householdID(c), &req)
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, gin.H{"loan": loan, "schedule": schedule})
}

// ListPrepayments GET /api/v1/loans/:id/prepayments
func (h *Handler) ListPrepayments(c *gin.Context) {
	items, err := h.loans.ListPrepayments(c.Request.Context(), householdID(c), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	response.Success(c, items)
}

package service

import (
	"time"

	"homeledger/internal/model"

	"github.com/shopspring/decimal"
)

// Request types double as HTTP bodies. Path parameters are tagged json:"-"
// and filled in by the handler.

type CreateAccountRequest struct {
	Name     string            `json:"name" binding:"required"`
	Kind     model.AccountKind `json:"kind" binding:"required"`
	Currency string            `json:"currency" binding:"required,len=3"`
	OwnerID  *string           `json:"owner_id"`
}

// PostTransactionRequest posts one INCOME or EXPENSE. A non-empty ID makes
// the call idempotent: replaying it returns the stored transaction.
type PostTransactionRequest struct {
	ID          string                `json:"id"`
	AccountID   string                `json:"account_id" binding:"required"`
	Kind        model.TransactionKind `json:"kind" binding:"required"`
	Amount      decimal.Decimal       `json:"amount"`
	CategoryID  *string               `json:"category_id"`
	Date        time.Time             `json:"date"`
	Description string                `json:"description"`
}

type TransferRequest struct {
	ID            string          `json:"id"` // optional, applies to the debit leg
	FromAccountID string          `json:"from_account_id" binding:"required"`
	ToAccountID   string          `json:"to_account_id" binding:"required"`
	Amount        decimal.Decimal `json:"amount"`
	Date          time.Time       `json:"date"`
	Description   string          `json:"description"`
}

type OriginateLoanRequest struct {
	LinkedAccountID string          `json:"linked_account_id" binding:"required"`
	Principal       decimal.Decimal `json:"principal"`
	InterestRate    decimal.Decimal `json:"interest_rate"` // annual percent
	TenureMonths    int             `json:"tenure_months" binding:"required,gt=0"`
	StartDate       time.Time       `json:"start_date" binding:"required"`
}

type PrepayLoanRequest struct {
	LoanID   string                   `json:"-"`
	Amount   decimal.Decimal          `json:"amount"`
	Date     time.Time                `json:"date"`
	Strategy model.PrepaymentStrategy `json:"strategy" binding:"required"`
}

type CreateCreditCardRequest struct {
	AccountID            string          `json:"account_id" binding:"required"`
	CreditLimit          decimal.Decimal `json:"credit_limit"`
	BillingCycleStartDay int             `json:"billing_cycle_start_day" binding:"required,min=1,max=31"`
	DueDays              int             `json:"due_days" binding:"min=0"`
	InterestRateMonthly  decimal.Decimal `json:"interest_rate_monthly"`
	MinimumDuePercent    decimal.Decimal `json:"minimum_due_percent"`
}

type ChargeRequest struct {
	CardID      string          `json:"-"`
	Amount      decimal.Decimal `json:"amount"`
	CategoryID  *string         `json:"category_id"`
	Date        time.Time       `json:"date"`
	Description string          `json:"description"`
}

type ApplyPaymentRequest struct {
	CardID          string             `json:"-"`
	SourceAccountID string             `json:"source_account_id" binding:"required"`
	Amount          decimal.Decimal    `json:"amount"`
	Date            time.Time          `json:"date"`
	PaymentType     *model.PaymentType `json:"payment_type"`
}

type GenerateStatementRequest struct {
	AsOf time.Time `json:"as_of" binding:"required"`
}

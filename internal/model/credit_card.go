package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	CardStatusActive  = "ACTIVE"
	CardStatusBlocked = "BLOCKED"
	CardStatusClosed  = "CLOSED"
)

const (
	StatementStatusOpen    = "OPEN"
	StatementStatusOverdue = "OVERDUE"
	StatementStatusPaid    = "PAID"
)

var statementTransitions = map[string][]string{
	StatementStatusOpen:    {StatementStatusPaid, StatementStatusOverdue},
	StatementStatusOverdue: {StatementStatusPaid},
}

func CanStatementTransition(from, to string) bool {
	for _, s := range statementTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type PaymentType string

const (
	PaymentTypeFull    PaymentType = "FULL"
	PaymentTypePartial PaymentType = "PARTIAL"
	PaymentTypeMinimum PaymentType = "MINIMUM"
)

func (p PaymentType) Valid() bool {
	switch p {
	case PaymentTypeFull, PaymentTypePartial, PaymentTypeMinimum:
		return true
	}
	return false
}

// CreditCard is linked 1:1 to an account of kind CREDIT_CARD.
// OutstandingAmount mirrors the negated balance movement of that account since
// the card was created.
type CreditCard struct {
	ID                   string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	HouseholdID          string          `gorm:"type:varchar(36);index;not null" json:"household_id"`
	AccountID            string          `gorm:"type:varchar(36);uniqueIndex;not null" json:"account_id"`
	CreditLimit          decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"credit_limit"`
	BillingCycleStartDay int             `gorm:"not null" json:"billing_cycle_start_day"`
	DueDays              int             `gorm:"not null" json:"due_days"`
	InterestRateMonthly  decimal.Decimal `gorm:"type:decimal(10,4);not null" json:"interest_rate_monthly"`
	MinimumDuePercent    decimal.Decimal `gorm:"type:decimal(10,4);not null" json:"minimum_due_percent"`
	OutstandingAmount    decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"outstanding_amount"`
	Status               string          `gorm:"type:varchar(10);index;not null" json:"status"`
	CreatedAt            time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (CreditCard) TableName() string {
	return "credit_card"
}

type CreditCardStatement struct {
	ID              string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	StatementNo     string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"statement_no"`
	CreditCardID    string          `gorm:"type:varchar(36);uniqueIndex:idx_statement_cycle;not null" json:"credit_card_id"`
	CycleStart      time.Time       `gorm:"not null" json:"cycle_start"`
	CycleEnd        time.Time       `gorm:"uniqueIndex:idx_statement_cycle;not null" json:"cycle_end"`
	StatementDate   time.Time       `gorm:"not null" json:"statement_date"`
	OpeningBalance  decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"opening_balance"`
	TotalSpends     decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"total_spends"`
	TotalPayments   decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"total_payments"`
	InterestCharged decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"interest_charged"`
	ClosingBalance  decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"closing_balance"`
	MinimumDue      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"minimum_due"`
	DueDate         time.Time       `gorm:"index;not null" json:"due_date"`
	AmountPaid      decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"amount_paid"`
	Status          string          `gorm:"type:varchar(10);index;not null" json:"status"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (CreditCardStatement) TableName() string {
	return "credit_card_statement"
}

// Remaining is the part of the closing balance not yet covered by payments.
func (s CreditCardStatement) Remaining() decimal.Decimal {
	r := s.ClosingBalance.Sub(s.AmountPaid)
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}

type CreditCardPayment struct {
	ID            string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	CreditCardID  string          `gorm:"type:varchar(36);index;not null" json:"credit_card_id"`
	StatementID   *string         `gorm:"type:varchar(36);index" json:"statement_id,omitempty"`
	Amount        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	PaymentDate   time.Time       `gorm:"not null" json:"payment_date"`
	PaymentType   PaymentType     `gorm:"type:varchar(10);not null" json:"payment_type"`
	TransactionID string          `gorm:"type:varchar(36);index;not null" json:"transaction_id"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (CreditCardPayment) TableName() string {
	return "credit_card_payment"
}

package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	LoanStatusActive = "ACTIVE"
	LoanStatusClosed = "CLOSED"
)

const (
	EMIStatusPending = "PENDING"
	EMIStatusPaid    = "PAID"
)

type PrepaymentStrategy string

const (
	PrepaymentReduceTenure PrepaymentStrategy = "REDUCE_TENURE"
	PrepaymentReduceEMI    PrepaymentStrategy = "REDUCE_EMI"
)

func (s PrepaymentStrategy) Valid() bool {
	return s == PrepaymentReduceTenure || s == PrepaymentReduceEMI
}

// Loan keeps OutstandingPrincipal equal to Principal minus the principal of
// paid EMIs minus every prepayment.
type Loan struct {
	ID                   string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	HouseholdID          string          `gorm:"type:varchar(36);index;not null" json:"household_id"`
	LinkedAccountID      string          `gorm:"type:varchar(36);index;not null" json:"linked_account_id"`
	Principal            decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"principal"`
	InterestRate         decimal.Decimal `gorm:"type:decimal(10,4);not null" json:"interest_rate"` // annual, percent
	TenureMonths         int             `gorm:"not null" json:"tenure_months"`
	EMIAmount            decimal.Decimal `gorm:"column:emi_amount;type:decimal(20,4);not null" json:"emi_amount"`
	OutstandingPrincipal decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"outstanding_principal"`
	Status               string          `gorm:"type:varchar(10);index;not null" json:"status"`
	StartDate            time.Time       `gorm:"not null" json:"start_date"`
	Version              int             `gorm:"not null;default:0" json:"version"` // bumped on every balance write
	CreatedAt            time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Loan) TableName() string {
	return "loan"
}

type LoanEMI struct {
	ID                 string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	LoanID             string          `gorm:"type:varchar(36);uniqueIndex:idx_emi_loan_number;not null" json:"loan_id"`
	EMINumber          int             `gorm:"column:emi_number;uniqueIndex:idx_emi_loan_number;not null" json:"emi_number"`
	DueDate            time.Time       `gorm:"not null" json:"due_date"`
	PrincipalComponent decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"principal_component"`
	InterestComponent  decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"interest_component"`
	TotalAmount        decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"total_amount"`
	Status             string          `gorm:"type:varchar(10);index;not null" json:"status"`
	PaidDate           *time.Time      `json:"paid_date,omitempty"`
	TransactionID      *string         `gorm:"type:varchar(36);index" json:"transaction_id,omitempty"`
}

func (LoanEMI) TableName() string {
	return "loan_emi"
}

type LoanPrepayment struct {
	ID        string             `gorm:"type:varchar(36);primaryKey" json:"id"`
	LoanID    string             `gorm:"type:varchar(36);index;not null" json:"loan_id"`
	Amount    decimal.Decimal    `gorm:"type:decimal(20,4);not null" json:"amount"`
	Date      time.Time          `gorm:"not null" json:"date"`
	Strategy  PrepaymentStrategy `gorm:"type:varchar(20);not null" json:"strategy"`
	CreatedAt time.Time          `gorm:"autoCreateTime" json:"created_at"`
}

func (LoanPrepayment) TableName() string {
	return "loan_prepayment"
}

package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionKind string

const (
	TransactionKindIncome  TransactionKind = "INCOME"
	TransactionKindExpense TransactionKind = "EXPENSE"
)

func (k TransactionKind) Valid() bool {
	return k == TransactionKindIncome || k == TransactionKindExpense
}

// Transaction is one posting against an account.
//
// Amount is the magnitude supplied by the caller; the sign comes from Kind.
// A transfer is two transactions pointing at each other through
// LinkedTransactionID.
type Transaction struct {
	ID                  string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	ReferenceNo         string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"reference_no"`
	HouseholdID         string          `gorm:"type:varchar(36);index;not null" json:"household_id"`
	AccountID           string          `gorm:"type:varchar(36);index:idx_txn_account_date;not null" json:"account_id"`
	CategoryID          *string         `gorm:"type:varchar(36)" json:"category_id,omitempty"`
	Kind                TransactionKind `gorm:"type:varchar(10);not null" json:"kind"`
	Amount              decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	Date                time.Time       `gorm:"index:idx_txn_account_date;not null" json:"date"`
	Description         string          `gorm:"type:varchar(256)" json:"description"`
	LinkedTransactionID *string         `gorm:"type:varchar(36)" json:"linked_transaction_id,omitempty"`
	CreatedAt           time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (Transaction) TableName() string {
	return "account_transaction"
}

// SignedAmount is the delta this transaction contributes to its account.
func (t Transaction) SignedAmount() decimal.Decimal {
	if t.Kind == TransactionKindExpense {
		return t.Amount.Neg()
	}
	return t.Amount
}

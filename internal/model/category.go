package model

import "time"

const LoanRepaymentCategory = "Loan Repayment"

// Category is owned by the category directory; the ledger only looks
// categories up or creates the few it needs.
type Category struct {
	ID          string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	HouseholdID string          `gorm:"type:varchar(36);uniqueIndex:idx_category_name;not null" json:"household_id"`
	Name        string          `gorm:"type:varchar(64);uniqueIndex:idx_category_name;not null" json:"name"`
	Kind        TransactionKind `gorm:"type:varchar(10);not null" json:"kind"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (Category) TableName() string {
	return "category"
}

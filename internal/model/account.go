package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type AccountKind string

const (
	AccountKindBank        AccountKind = "BANK"
	AccountKindCreditCard  AccountKind = "CREDIT_CARD"
	AccountKindCashReserve AccountKind = "CASH_RESERVE"
	AccountKindInvestment  AccountKind = "INVESTMENT"
)

func (k AccountKind) Valid() bool {
	switch k {
	case AccountKindBank, AccountKindCreditCard, AccountKindCashReserve, AccountKindInvestment:
		return true
	}
	return false
}

// Account is a household money container. Balance always equals the signed
// sum of the transactions posted to it and is written only by the ledger.
type Account struct {
	ID          string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	HouseholdID string          `gorm:"type:varchar(36);index;not null" json:"household_id"`
	OwnerID     *string         `gorm:"type:varchar(36)" json:"owner_id,omitempty"` // nil means shared/reserve
	Name        string          `gorm:"type:varchar(128)" json:"name"`
	Kind        AccountKind     `gorm:"type:varchar(20);not null" json:"kind"`
	Currency    string          `gorm:"type:varchar(3);not null" json:"currency"`
	Balance     decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"balance"`
	Version     int             `gorm:"not null;default:0" json:"version"` // bumped on every balance write
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Account) TableName() string {
	return "account"
}

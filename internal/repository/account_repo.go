package repository

import (
	"context"
	"errors"

	"homeledger/internal/apperr"
	"homeledger/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) Create(ctx context.Context, account *model.Account) error {
	return r.db.WithContext(ctx).Create(account).Error
}

// Get loads an account of the household. Accounts of other households are
// reported as not found.
func (r *AccountRepository) Get(ctx context.Context, householdID, id string) (*model.Account, error) {
	return r.get(r.db.WithContext(ctx), householdID, id)
}

// GetForUpdate is Get with a row lock; only meaningful inside a unit of work.
func (r *AccountRepository) GetForUpdate(ctx context.Context, householdID, id string) (*model.Account, error) {
	return r.get(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), householdID, id)
}

func (r *AccountRepository) get(q *gorm.DB, householdID, id string) (*model.Account, error) {
	var account model.Account
	err := q.Where("id = ? AND household_id = ?", id, householdID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("account " + id)
		}
		return nil, err
	}
	return &account, nil
}

// ApplyDelta writes account.Balance + delta guarded by the version the
// caller read. On success the passed struct reflects the stored row.
func (r *AccountRepository) ApplyDelta(ctx context.Context, account *model.Account, delta decimal.Decimal) error {
	newBalance := account.Balance.Add(delta)
	result := r.db.WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ? AND version = ?", account.ID, account.Version).
		Updates(map[string]interface{}{
			"balance": newBalance,
			"version": gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperr.Conflict("account %s was modified concurrently", account.ID)
	}
	account.Balance = newBalance
	account.Version++
	return nil
}

package repository

import (
	"context"
	"errors"

	"homeledger/internal/apperr"
	"homeledger/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CreditCardRepository struct {
	db *gorm.DB
}

func NewCreditCardRepository(db *gorm.DB) *CreditCardRepository {
	return &CreditCardRepository{db: db}
}

func (r *CreditCardRepository) Create(ctx context.Context, card *model.CreditCard) error {
	return r.db.WithContext(ctx).Create(card).Error
}

func (r *CreditCardRepository) Get(ctx context.Context, householdID, id string) (*model.CreditCard, error) {
	return r.get(r.db.WithContext(ctx), householdID, id)
}

func (r *CreditCardRepository) GetForUpdate(ctx context.Context, householdID, id string) (*model.CreditCard, error) {
	return r.get(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), householdID, id)
}

func (r *CreditCardRepository) get(q *gorm.DB, householdID, id string) (*model.CreditCard, error) {
	var card model.CreditCard
	err := q.Where("id = ? AND household_id = ?", id, householdID).First(&card).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("credit card " + id)
		}
		return nil, err
	}
	return &card, nil
}

// FindByAccount returns the card linked to an account, or nil.
func (r *CreditCardRepository) FindByAccount(ctx context.Context, accountID string) (*model.CreditCard, error) {
	var card model.CreditCard
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("account_id = ?", accountID).
		First(&card).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &card, nil
}

func (r *CreditCardRepository) UpdateOutstanding(ctx context.Context, card *model.CreditCard) error {
	return r.db.WithContext(ctx).
		Model(&model.CreditCard{}).
		Where("id = ?", card.ID).
		Update("outstanding_amount", card.OutstandingAmount).Error
}

func (r *CreditCardRepository) ListActive(ctx context.Context) ([]*model.CreditCard, error) {
	var cards []*model.CreditCard
	err := r.db.WithContext(ctx).
		Where("status = ?", model.CardStatusActive).
		Order("created_at ASC").
		Find(&cards).Error
	return cards, err
}

func (r *CreditCardRepository) CreatePayment(ctx context.Context, p *model.CreditCardPayment) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *CreditCardRepository) ListPayments(ctx context.Context, cardID string) ([]*model.CreditCardPayment, error) {
	var payments []*model.CreditCardPayment
	err := r.db.WithContext(ctx).
		Where("credit_card_id = ?", cardID).
		Order("payment_date ASC, created_at ASC").
		Find(&payments).Error
	return payments, err
}

// PaysTransactions reports whether a recorded card payment points at any of ids.
func (r *CreditCardRepository) PaysTransactions(ctx context.Context, ids ...string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&model.CreditCardPayment{}).
		Where("transaction_id IN ?", ids).
		Count(&n).Error
	return n > 0, err
}

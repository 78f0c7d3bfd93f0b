package repository

import (
	"context"
	"errors"
	"time"

	"homeledger/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type StatementRepository struct {
	db *gorm.DB
}

func NewStatementRepository(db *gorm.DB) *StatementRepository {
	return &StatementRepository{db: db}
}

func (r *StatementRepository) Create(ctx context.Context, s *model.CreditCardStatement) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *StatementRepository) first(q *gorm.DB) (*model.CreditCardStatement, error) {
	var s model.CreditCardStatement
	if err := q.First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// Latest returns the card's most recent statement, or nil.
func (r *StatementRepository) Latest(ctx context.Context, cardID string) (*model.CreditCardStatement, error) {
	return r.first(r.db.WithContext(ctx).
		Where("credit_card_id = ?", cardID).
		Order("cycle_end DESC"))
}

func (r *StatementRepository) ForCycle(ctx context.Context, cardID string, cycleEnd time.Time) (*model.CreditCardStatement, error) {
	return r.first(r.db.WithContext(ctx).
		Where("credit_card_id = ? AND cycle_end = ?", cardID, cycleEnd))
}

// OldestUnpaid locks and returns the OPEN or OVERDUE statement with the
// earliest due date, or nil.
func (r *StatementRepository) OldestUnpaid(ctx context.Context, cardID string) (*model.CreditCardStatement, error) {
	return r.first(r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("credit_card_id = ? AND status IN ?", cardID, []string{model.StatementStatusOpen, model.StatementStatusOverdue}).
		Order("due_date ASC, cycle_end ASC"))
}

func (r *StatementRepository) UpdatePayment(ctx context.Context, s *model.CreditCardStatement) error {
	return r.db.WithContext(ctx).
		Model(&model.CreditCardStatement{}).
		Where("id = ?", s.ID).
		Updates(map[string]interface{}{
			"amount_paid": s.AmountPaid,
			"status":      s.Status,
		}).Error
}

func (r *StatementRepository) ListByCard(ctx context.Context, cardID string) ([]*model.CreditCardStatement, error) {
	var statements []*model.CreditCardStatement
	err := r.db.WithContext(ctx).
		Where("credit_card_id = ?", cardID).
		Order("cycle_end DESC").
		Find(&statements).Error
	return statements, err
}

// MarkOverdue moves OPEN statements due before asOf to OVERDUE.
func (r *StatementRepository) MarkOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.CreditCardStatement{}).
		Where("status = ? AND due_date < ?", model.StatementStatusOpen, asOf).
		Update("status", model.StatementStatusOverdue)
	return result.RowsAffected, result.Error
}

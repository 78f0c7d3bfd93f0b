package repository

import (
	"context"
	"errors"
	"fmt"

	"homeledger/internal/apperr"
	"homeledger/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type LoanRepository struct {
	db *gorm.DB
}

func NewLoanRepository(db *gorm.DB) *LoanRepository {
	return &LoanRepository{db: db}
}

func (r *LoanRepository) Create(ctx context.Context, loan *model.Loan) error {
	return r.db.WithContext(ctx).Create(loan).Error
}

func (r *LoanRepository) Get(ctx context.Context, householdID, id string) (*model.Loan, error) {
	return r.get(r.db.WithContext(ctx), householdID, id)
}

func (r *LoanRepository) GetForUpdate(ctx context.Context, householdID, id string) (*model.Loan, error) {
	return r.get(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), householdID, id)
}

func (r *LoanRepository) get(q *gorm.DB, householdID, id string) (*model.Loan, error) {
	var loan model.Loan
	err := q.Where("id = ? AND household_id = ?", id, householdID).First(&loan).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("loan " + id)
		}
		return nil, err
	}
	return &loan, nil
}

// UpdateBalance persists the mutable part of a loan, guarded by the version
// the caller read. A loan changed underneath the caller surfaces as a
// ConflictError; on success loan.Version reflects the stored row.
func (r *LoanRepository) UpdateBalance(ctx context.Context, loan *model.Loan) error {
	result := r.db.WithContext(ctx).
		Model(&model.Loan{}).
		Where("id = ? AND version = ?", loan.ID, loan.Version).
		Updates(map[string]interface{}{
			"outstanding_principal": loan.OutstandingPrincipal,
			"emi_amount":            loan.EMIAmount,
			"status":                loan.Status,
			"version":               gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperr.Conflict("loan %s was modified concurrently", loan.ID)
	}
	loan.Version++
	return nil
}

func (r *LoanRepository) CreateEMIs(ctx context.Context, emis []*model.LoanEMI) error {
	if len(emis) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(emis, 100).Error
}

func (r *LoanRepository) GetEMI(ctx context.Context, loanID string, number int) (*model.LoanEMI, error) {
	var emi model.LoanEMI
	err := r.db.WithContext(ctx).
		Where("loan_id = ? AND emi_number = ?", loanID, number).
		First(&emi).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(fmt.Sprintf("emi %d of loan %s", number, loanID))
		}
		return nil, err
	}
	return &emi, nil
}

// MarkEMIPaid flips a PENDING row to PAID; a row that is no longer pending
// is a conflict.
func (r *LoanRepository) MarkEMIPaid(ctx context.Context, emi *model.LoanEMI) error {
	result := r.db.WithContext(ctx).
		Model(&model.LoanEMI{}).
		Where("id = ? AND status = ?", emi.ID, model.EMIStatusPending).
		Updates(map[string]interface{}{
			"status":         model.EMIStatusPaid,
			"paid_date":      emi.PaidDate,
			"transaction_id": emi.TransactionID,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperr.Conflict("emi %d already paid", emi.EMINumber)
	}
	emi.Status = model.EMIStatusPaid
	return nil
}

func (r *LoanRepository) ListEMIs(ctx context.Context, loanID string) ([]*model.LoanEMI, error) {
	var emis []*model.LoanEMI
	err := r.db.WithContext(ctx).
		Where("loan_id = ?", loanID).
		Order("emi_number ASC").
		Find(&emis).Error
	return emis, err
}

func (r *LoanRepository) DeletePendingEMIs(ctx context.Context, loanID string) error {
	return r.db.WithContext(ctx).
		Where("loan_id = ? AND status = ?", loanID, model.EMIStatusPending).
		Delete(&model.LoanEMI{}).Error
}

func (r *LoanRepository) CreatePrepayment(ctx context.Context, p *model.LoanPrepayment) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *LoanRepository) ListPrepayments(ctx context.Context, loanID string) ([]*model.LoanPrepayment, error) {
	var prepayments []*model.LoanPrepayment
	err := r.db.WithContext(ctx).
		Where("loan_id = ?", loanID).
		Order("date ASC, created_at ASC").
		Find(&prepayments).Error
	return prepayments, err
}

// PaysTransactions reports whether a paid installment points at any of ids.
func (r *LoanRepository) PaysTransactions(ctx context.Context, ids ...string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&model.LoanEMI{}).
		Where("transaction_id IN ?", ids).
		Count(&n).Error
	return n > 0, err
}

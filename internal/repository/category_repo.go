package repository

import (
	"context"

	"homeledger/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CategoryRepository struct {
	db *gorm.DB
}

func NewCategoryRepository(db *gorm.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// Ensure returns the household's category with the given name, creating it
// when missing. Concurrent creators converge on a single row through the
// unique (household_id, name) index.
func (r *CategoryRepository) Ensure(ctx context.Context, householdID, name string, kind model.TransactionKind) (*model.Category, error) {
	category := &model.Category{
		ID:          uuid.NewString(),
		HouseholdID: householdID,
		Name:        name,
		Kind:        kind,
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "household_id"}, {Name: "name"}},
			DoNothing: true,
		}).
		Create(category).Error
	if err != nil {
		return nil, err
	}

	var stored model.Category
	err = r.db.WithContext(ctx).
		Where("household_id = ? AND name = ?", householdID, name).
		First(&stored).Error
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

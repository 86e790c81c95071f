package repository

import (
	"context"

	"github.com/venturus/cdm-teller/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DenominationRepository mirrors the note catalog reported by the machines.
type DenominationRepository interface {
	BaseRepository
	Upsert(ctx context.Context, denominations []*models.Denomination) error
	FindByCurrency(ctx context.Context, currency string) ([]*models.Denomination, error)
}

type denominationRepo struct {
	*BaseRepo
}

// NewDenominationRepository creates the denomination repository.
func NewDenominationRepository(db *gorm.DB) DenominationRepository {
	return &denominationRepo{
		BaseRepo: &BaseRepo{db: db},
	}
}

// Upsert refreshes catalog rows keyed by (currency, denomination_id).
func (r *denominationRepo) Upsert(ctx context.Context, denominations []*models.Denomination) error {
	if len(denominations) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "currency"}, {Name: "denomination_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"description", "value", "active", "updated_at"}),
	}).Create(denominations).Error
}

func (r *denominationRepo) FindByCurrency(ctx context.Context, currency string) ([]*models.Denomination, error) {
	var denominations []*models.Denomination
	err := r.db.WithContext(ctx).
		Where("currency = ? AND active = ?", currency, true).
		Order("value DESC").
		Find(&denominations).Error
	return denominations, err
}

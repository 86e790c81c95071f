package repository

import (
	"context"
	"errors"

	apperrors "github.com/venturus/cdm-teller/internal/errors"
	"github.com/venturus/cdm-teller/internal/models"
	"gorm.io/gorm"
)

// ConceptRepository provides catalog persistence.
type ConceptRepository interface {
	BaseRepository
	Create(ctx context.Context, concept *models.Concept) error
	Update(ctx context.Context, concept *models.Concept) error
	Delete(ctx context.Context, id uint) error
	FindByPrefix(ctx context.Context, prefix int) ([]*models.Concept, error)
	FindCurrency(ctx context.Context, abbreviation string) (*models.Concept, error)
	FindBankEndpoint(ctx context.Context) (*models.Concept, error)
}

type conceptRepo struct {
	*BaseRepo
}

// NewConceptRepository creates the concept repository.
func NewConceptRepository(db *gorm.DB) ConceptRepository {
	return &conceptRepo{
		BaseRepo: &BaseRepo{db: db},
	}
}

func (r *conceptRepo) Create(ctx context.Context, concept *models.Concept) error {
	return r.db.WithContext(ctx).Create(concept).Error
}

func (r *conceptRepo) Update(ctx context.Context, concept *models.Concept) error {
	return r.db.WithContext(ctx).Save(concept).Error
}

func (r *conceptRepo) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.Concept{}, id).Error
}

// FindByPrefix lists the entries of one catalog group ordered by sequence.
func (r *conceptRepo) FindByPrefix(ctx context.Context, prefix int) ([]*models.Concept, error) {
	var concepts []*models.Concept
	err := r.db.WithContext(ctx).
		Where("prefix = ?", prefix).
		Order("sequence").
		Find(&concepts).Error
	return concepts, err
}

// FindCurrency resolves a currency entry by its abbreviation (BOB, USD).
func (r *conceptRepo) FindCurrency(ctx context.Context, abbreviation string) (*models.Concept, error) {
	var concept models.Concept
	err := r.db.WithContext(ctx).
		Where("prefix = ? AND abbreviation = ?", models.ConceptPrefixCurrency, abbreviation).
		First(&concept).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Newf(apperrors.ErrCurrencyInvalid, "unknown currency %s", abbreviation)
		}
		return nil, err
	}
	return &concept, nil
}

// FindBankEndpoint returns the first bank endpoint descriptor.
func (r *conceptRepo) FindBankEndpoint(ctx context.Context) (*models.Concept, error) {
	var concept models.Concept
	err := r.db.WithContext(ctx).
		Where("prefix = ?", models.ConceptPrefixBankEndpoint).
		Order("sequence").
		First(&concept).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.ErrBankNotConfigured, "no bank endpoint configured")
		}
		return nil, err
	}
	return &concept, nil
}

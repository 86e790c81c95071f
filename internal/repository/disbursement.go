package repository

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/venturus/cdm-teller/internal/errors"
	"github.com/venturus/cdm-teller/internal/models"
	"gorm.io/gorm"
)

// DisbursementRepository provides collection request persistence.
type DisbursementRepository interface {
	BaseRepository
	Create(ctx context.Context, req *models.DisbursementRequest) error
	FindByID(ctx context.Context, id uint) (*models.DisbursementRequest, error)
	FindPending(ctx context.Context) ([]*models.DisbursementRequest, error)
	FindPendingByDevice(ctx context.Context, deviceCode string) (*models.DisbursementRequest, error)
	Resolve(ctx context.Context, id uint, state, resolvedBy, observation string) error
}

type disbursementRepo struct {
	*BaseRepo
}

// NewDisbursementRepository creates the disbursement repository.
func NewDisbursementRepository(db *gorm.DB) DisbursementRepository {
	return &disbursementRepo{
		BaseRepo: &BaseRepo{db: db},
	}
}

func (r *disbursementRepo) Create(ctx context.Context, req *models.DisbursementRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *disbursementRepo) FindByID(ctx context.Context, id uint) (*models.DisbursementRequest, error) {
	var req models.DisbursementRequest
	err := r.db.WithContext(ctx).First(&req, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.ErrNotFound, "disbursement request not found")
		}
		return nil, err
	}
	return &req, nil
}

func (r *disbursementRepo) FindPending(ctx context.Context) ([]*models.DisbursementRequest, error) {
	var reqs []*models.DisbursementRequest
	err := r.db.WithContext(ctx).
		Where("state = ?", models.DisbursementRequested).
		Order("id").
		Find(&reqs).Error
	return reqs, err
}

func (r *disbursementRepo) FindPendingByDevice(ctx context.Context, deviceCode string) (*models.DisbursementRequest, error) {
	var req models.DisbursementRequest
	err := r.db.WithContext(ctx).
		Where("device_code = ? AND state = ?", deviceCode, models.DisbursementRequested).
		First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.ErrNotFound, "no pending disbursement for device")
		}
		return nil, err
	}
	return &req, nil
}

// Resolve settles a pending request. Requests already resolved stay as
// they are.
func (r *disbursementRepo) Resolve(ctx context.Context, id uint, state, resolvedBy, observation string) error {
	now := time.Now()
	result := r.db.WithContext(ctx).Model(&models.DisbursementRequest{}).
		Where("id = ? AND state = ?", id, models.DisbursementRequested).
		Updates(map[string]interface{}{
			"state":       state,
			"resolved_by": resolvedBy,
			"resolved_at": &now,
			"observation": observation,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.New(apperrors.ErrDataIntegrity, "disbursement already resolved")
	}
	return nil
}

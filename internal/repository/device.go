package repository

import (
	"context"
	"errors"

	apperrors "github.com/venturus/cdm-teller/internal/errors"
	"github.com/venturus/cdm-teller/internal/models"
	"gorm.io/gorm"
)

// DeviceRepository provides deposit machine persistence.
type DeviceRepository interface {
	BaseRepository
	Create(ctx context.Context, device *models.Device) error
	Update(ctx context.Context, device *models.Device) error
	Delete(ctx context.Context, id uint) error
	FindByID(ctx context.Context, id uint) (*models.Device, error)
	FindByCode(ctx context.Context, code string) (*models.Device, error)
	GetActive(ctx context.Context) ([]*models.Device, error)
	GetAll(ctx context.Context, pagination *Pagination) ([]*models.Device, error)
}

type deviceRepo struct {
	*BaseRepo
}

// NewDeviceRepository creates the device repository.
func NewDeviceRepository(db *gorm.DB) DeviceRepository {
	return &deviceRepo{
		BaseRepo: &BaseRepo{db: db},
	}
}

func (r *deviceRepo) Create(ctx context.Context, device *models.Device) error {
	return r.db.WithContext(ctx).Create(device).Error
}

func (r *deviceRepo) Update(ctx context.Context, device *models.Device) error {
	return r.db.WithContext(ctx).Save(device).Error
}

func (r *deviceRepo) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.Device{}, id).Error
}

func (r *deviceRepo) FindByID(ctx context.Context, id uint) (*models.Device, error) {
	var device models.Device
	err := r.db.WithContext(ctx).First(&device, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.ErrNotFound, "device not found")
		}
		return nil, err
	}
	return &device, nil
}

func (r *deviceRepo) FindByCode(ctx context.Context, code string) (*models.Device, error) {
	var device models.Device
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&device).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.ErrNotFound, "device not found")
		}
		return nil, err
	}
	return &device, nil
}

func (r *deviceRepo) GetActive(ctx context.Context) ([]*models.Device, error) {
	var devices []*models.Device
	err := r.db.WithContext(ctx).
		Where("status = ?", models.DeviceStatusActive).
		Order("code").
		Find(&devices).Error
	return devices, err
}

func (r *deviceRepo) GetAll(ctx context.Context, pagination *Pagination) ([]*models.Device, error) {
	var devices []*models.Device
	query := r.db.WithContext(ctx).Model(&models.Device{})

	if err := query.Count(&pagination.Total).Error; err != nil {
		return nil, err
	}

	err := query.Scopes(Paginate(pagination)).Order("code").Find(&devices).Error
	return devices, err
}

package repository

import (
	"context"
	"errors"
	"time"

	apperrors "github.com/venturus/cdm-teller/internal/errors"
	"github.com/venturus/cdm-teller/internal/models"
	"gorm.io/gorm"
)

// TransactionRepository provides deposit persistence. Register writes the
// header and the denomination detail in one database transaction so a
// deposit is never visible half-written.
type TransactionRepository interface {
	BaseRepository
	Register(ctx context.Context, tx *models.Transaction) error
	FindByID(ctx context.Context, id uint) (*models.Transaction, error)
	FindByDeviceAndStates(ctx context.Context, deviceCode string, states []int) ([]*models.Transaction, error)
	FindByStates(ctx context.Context, states []int, pagination *Pagination) ([]*models.Transaction, error)
	HasBlocking(ctx context.Context, deviceCode string) (bool, error)
	NextNumber(ctx context.Context, deviceCode string) (int, error)
	UpdateState(ctx context.Context, ids []uint, state int) error
	Report(ctx context.Context, deviceCode string, from, to time.Time, pagination *Pagination) ([]*models.Transaction, error)
}

type transactionRepo struct {
	*BaseRepo
}

// NewTransactionRepository creates the transaction repository.
func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &transactionRepo{
		BaseRepo: &BaseRepo{db: db},
	}
}

// Register stores the deposit header and its detail lines atomically.
func (r *transactionRepo) Register(ctx context.Context, tx *models.Transaction) error {
	if len(tx.Details) == 0 {
		return apperrors.New(apperrors.ErrEmptyDetail, "transaction has no denomination detail")
	}
	err := r.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		// Create cascades into Details through the gorm association.
		return dbtx.Create(tx).Error
	})
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrDatabaseInsert, "failed to register transaction")
	}
	return nil
}

func (r *transactionRepo) FindByID(ctx context.Context, id uint) (*models.Transaction, error) {
	var tx models.Transaction
	err := r.db.WithContext(ctx).Preload("Details").First(&tx, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.ErrNotFound, "transaction not found")
		}
		return nil, err
	}
	return &tx, nil
}

func (r *transactionRepo) FindByDeviceAndStates(ctx context.Context, deviceCode string, states []int) ([]*models.Transaction, error) {
	var txs []*models.Transaction
	err := r.db.WithContext(ctx).
		Where("device_code = ? AND state IN ?", deviceCode, states).
		Order("id").
		Find(&txs).Error
	return txs, err
}

func (r *transactionRepo) FindByStates(ctx context.Context, states []int, pagination *Pagination) ([]*models.Transaction, error) {
	var txs []*models.Transaction
	query := r.db.WithContext(ctx).Model(&models.Transaction{}).Where("state IN ?", states)

	if err := query.Count(&pagination.Total).Error; err != nil {
		return nil, err
	}

	err := query.Scopes(Paginate(pagination)).Order("id DESC").Find(&txs).Error
	return txs, err
}

// HasBlocking reports whether the machine has transactions awaiting
// collection. Deposits are refused while any exist.
func (r *transactionRepo) HasBlocking(ctx context.Context, deviceCode string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("device_code = ? AND state IN ?", deviceCode,
			[]int{models.TxStateDisbursementPending, models.TxStateInCollection}).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// NextNumber returns the next transaction number for the machine.
func (r *transactionRepo) NextNumber(ctx context.Context, deviceCode string) (int, error) {
	var max int
	err := r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("device_code = ?", deviceCode).
		Select("COALESCE(MAX(number), 0)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}

func (r *transactionRepo) UpdateState(ctx context.Context, ids []uint, state int) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("id IN ?", ids).
		Update("state", state).Error
}

func (r *transactionRepo) Report(ctx context.Context, deviceCode string, from, to time.Time, pagination *Pagination) ([]*models.Transaction, error) {
	var txs []*models.Transaction
	query := r.db.WithContext(ctx).Model(&models.Transaction{}).
		Where("created_at >= ? AND created_at < ?", from, to)
	if deviceCode != "" {
		query = query.Where("device_code = ?", deviceCode)
	}

	if err := query.Count(&pagination.Total).Error; err != nil {
		return nil, err
	}

	err := query.Scopes(Paginate(pagination)).
		Preload("Details").
		Order("created_at DESC").
		Find(&txs).Error
	return txs, err
}

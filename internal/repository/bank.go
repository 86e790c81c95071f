package repository

import (
	"context"
	"errors"

	apperrors "github.com/venturus/cdm-teller/internal/errors"
	"github.com/venturus/cdm-teller/internal/models"
	"gorm.io/gorm"
)

// BankAccountRepository links operators to the accounts credited on deposit.
type BankAccountRepository interface {
	BaseRepository
	Create(ctx context.Context, account *models.BankAccount) error
	Update(ctx context.Context, account *models.BankAccount) error
	Delete(ctx context.Context, id uint) error
	FindByUsername(ctx context.Context, username string) (*models.BankAccount, error)
	GetAll(ctx context.Context, pagination *Pagination) ([]*models.BankAccount, error)
}

type bankAccountRepo struct {
	*BaseRepo
}

// NewBankAccountRepository creates the bank account repository.
func NewBankAccountRepository(db *gorm.DB) BankAccountRepository {
	return &bankAccountRepo{
		BaseRepo: &BaseRepo{db: db},
	}
}

func (r *bankAccountRepo) Create(ctx context.Context, account *models.BankAccount) error {
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *bankAccountRepo) Update(ctx context.Context, account *models.BankAccount) error {
	return r.db.WithContext(ctx).Save(account).Error
}

func (r *bankAccountRepo) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.BankAccount{}, id).Error
}

func (r *bankAccountRepo) FindByUsername(ctx context.Context, username string) (*models.BankAccount, error) {
	var account models.BankAccount
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.ErrNotFound, "bank account not found")
		}
		return nil, err
	}
	return &account, nil
}

func (r *bankAccountRepo) GetAll(ctx context.Context, pagination *Pagination) ([]*models.BankAccount, error) {
	var accounts []*models.BankAccount
	query := r.db.WithContext(ctx).Model(&models.BankAccount{})

	if err := query.Count(&pagination.Total).Error; err != nil {
		return nil, err
	}

	err := query.Scopes(Paginate(pagination)).Order("username").Find(&accounts).Error
	return accounts, err
}

// BankAuditRepository records bank notification outcomes. An audit row is
// created pending before the first attempt and finalized exactly once.
type BankAuditRepository interface {
	BaseRepository
	CreatePending(ctx context.Context, audit *models.BankAPIAudit) error
	AttachTransaction(ctx context.Context, id, transactionID uint) error
	Finalize(ctx context.Context, id uint, status, observation, answerCode string, attempts int, response models.JSONMap) error
	FindByTransaction(ctx context.Context, transactionID uint) (*models.BankAPIAudit, error)
	GetByStatus(ctx context.Context, status string, pagination *Pagination) ([]*models.BankAPIAudit, error)
}

type bankAuditRepo struct {
	*BaseRepo
}

// NewBankAuditRepository creates the bank audit repository.
func NewBankAuditRepository(db *gorm.DB) BankAuditRepository {
	return &bankAuditRepo{
		BaseRepo: &BaseRepo{db: db},
	}
}

func (r *bankAuditRepo) CreatePending(ctx context.Context, audit *models.BankAPIAudit) error {
	audit.Status = models.BankAuditPending
	return r.db.WithContext(ctx).Create(audit).Error
}

// AttachTransaction links an audit created before the deposit row
// existed to its transaction.
func (r *bankAuditRepo) AttachTransaction(ctx context.Context, id, transactionID uint) error {
	return r.db.WithContext(ctx).Model(&models.BankAPIAudit{}).
		Where("id = ?", id).
		Update("transaction_id", transactionID).Error
}

// Finalize moves a pending audit to its outcome. Rows already final are
// left untouched so the status never moves backwards.
func (r *bankAuditRepo) Finalize(ctx context.Context, id uint, status, observation, answerCode string, attempts int, response models.JSONMap) error {
	result := r.db.WithContext(ctx).Model(&models.BankAPIAudit{}).
		Where("id = ? AND status = ?", id, models.BankAuditPending).
		Updates(map[string]interface{}{
			"status":      status,
			"observation": observation,
			"answer_code": answerCode,
			"attempts":    attempts,
			"response":    response,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.New(apperrors.ErrDataIntegrity, "audit already finalized")
	}
	return nil
}

func (r *bankAuditRepo) FindByTransaction(ctx context.Context, transactionID uint) (*models.BankAPIAudit, error) {
	var audit models.BankAPIAudit
	err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("id DESC").
		First(&audit).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.ErrNotFound, "bank audit not found")
		}
		return nil, err
	}
	return &audit, nil
}

func (r *bankAuditRepo) GetByStatus(ctx context.Context, status string, pagination *Pagination) ([]*models.BankAPIAudit, error) {
	var audits []*models.BankAPIAudit
	query := r.db.WithContext(ctx).Model(&models.BankAPIAudit{}).Where("status = ?", status)

	if err := query.Count(&pagination.Total).Error; err != nil {
		return nil, err
	}

	err := query.Scopes(Paginate(pagination)).Order("id DESC").Find(&audits).Error
	return audits, err
}

package service

import (
	"context"

	"go.uber.org/zap"
	"gorm.io/gorm"

	apperrors "github.com/venturus/cdm-teller/internal/errors"
	"github.com/venturus/cdm-teller/internal/models"
	"github.com/venturus/cdm-teller/internal/repository"
)

type collectionService struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewCollectionService creates the collection service. Every step runs
// inside a database transaction so the request and the deposit states
// never diverge.
func NewCollectionService(db *gorm.DB, log *zap.Logger) CollectionService {
	return &collectionService{db: db, log: log}
}

// Generate groups the machine's registered deposits into a disbursement
// request and marks them disbursement-pending. Only one request per
// machine can be open at a time.
func (s *collectionService) Generate(ctx context.Context, deviceCode, requestedBy string) (*models.DisbursementRequest, error) {
	var request *models.DisbursementRequest

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		disbursements := repository.NewDisbursementRepository(tx)
		transactions := repository.NewTransactionRepository(tx)

		if _, err := disbursements.FindPendingByDevice(ctx, deviceCode); err == nil {
			return apperrors.New(apperrors.ErrAlreadyExists, "device already has a pending disbursement request")
		} else if !apperrors.Is(err, apperrors.ErrNotFound) {
			return err
		}

		registered, err := transactions.FindByDeviceAndStates(ctx, deviceCode, []int{models.TxStateRegistered})
		if err != nil {
			return err
		}
		if len(registered) == 0 {
			return apperrors.New(apperrors.ErrNotFound, "no registered deposits to collect")
		}

		var amount float64
		ids := make([]uint, 0, len(registered))
		for _, t := range registered {
			amount += t.Amount
			ids = append(ids, t.ID)
		}

		request = &models.DisbursementRequest{
			DeviceCode:  deviceCode,
			RequestedBy: requestedBy,
			Amount:      amount,
			Currency:    registered[0].Currency,
			State:       models.DisbursementRequested,
		}
		if err := disbursements.Create(ctx, request); err != nil {
			return apperrors.Wrap(err, apperrors.ErrDatabaseInsert, "failed to create disbursement request")
		}

		return transactions.UpdateState(ctx, ids, models.TxStateDisbursementPending)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("disbursement request generated",
		zap.Uint("request_id", request.ID),
		zap.String("device_code", deviceCode),
		zap.Float64("amount", request.Amount),
	)
	return request, nil
}

// Authorize approves a pending request and moves its deposits to the
// in-collection state, which keeps the machine blocked until pickup.
func (s *collectionService) Authorize(ctx context.Context, requestID uint, resolvedBy, observation string) error {
	return s.resolve(ctx, requestID, resolvedBy, observation,
		models.DisbursementApproved, models.TxStateInCollection)
}

// Reject declines a pending request and returns its deposits to the
// registered state so the machine can operate again.
func (s *collectionService) Reject(ctx context.Context, requestID uint, resolvedBy, observation string) error {
	return s.resolve(ctx, requestID, resolvedBy, observation,
		models.DisbursementRejected, models.TxStateRegistered)
}

func (s *collectionService) resolve(ctx context.Context, requestID uint, resolvedBy, observation, state string, txState int) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		disbursements := repository.NewDisbursementRepository(tx)
		transactions := repository.NewTransactionRepository(tx)

		request, err := disbursements.FindByID(ctx, requestID)
		if err != nil {
			return err
		}
		if request.State != models.DisbursementRequested {
			return apperrors.Newf(apperrors.ErrInvalidParam, "request already %s", request.State)
		}

		if err := disbursements.Resolve(ctx, requestID, state, resolvedBy, observation); err != nil {
			return err
		}

		pending, err := transactions.FindByDeviceAndStates(ctx, request.DeviceCode, []int{models.TxStateDisbursementPending})
		if err != nil {
			return err
		}
		ids := make([]uint, 0, len(pending))
		for _, t := range pending {
			ids = append(ids, t.ID)
		}
		return transactions.UpdateState(ctx, ids, txState)
	})
	if err != nil {
		return err
	}

	s.log.Info("disbursement request resolved",
		zap.Uint("request_id", requestID),
		zap.String("state", state),
		zap.String("resolved_by", resolvedBy),
	)
	return nil
}

// Collect confirms the physical pickup: every in-collection deposit of
// the machine becomes collected. Returns how many deposits were closed.
func (s *collectionService) Collect(ctx context.Context, deviceCode, collectedBy string) (int, error) {
	var count int

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		transactions := repository.NewTransactionRepository(tx)

		inCollection, err := transactions.FindByDeviceAndStates(ctx, deviceCode, []int{models.TxStateInCollection})
		if err != nil {
			return err
		}
		if len(inCollection) == 0 {
			return apperrors.New(apperrors.ErrNotFound, "no deposits awaiting pickup")
		}

		ids := make([]uint, 0, len(inCollection))
		for _, t := range inCollection {
			ids = append(ids, t.ID)
		}
		count = len(ids)
		return transactions.UpdateState(ctx, ids, models.TxStateCollected)
	})
	if err != nil {
		return 0, err
	}

	s.log.Info("collection confirmed",
		zap.String("device_code", deviceCode),
		zap.String("collected_by", collectedBy),
		zap.Int("transactions", count),
	)
	return count, nil
}

func (s *collectionService) Pending(ctx context.Context) ([]*models.DisbursementRequest, error) {
	return repository.NewDisbursementRepository(s.db).FindPending(ctx)
}

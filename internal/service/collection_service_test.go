package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	apperrors "github.com/venturus/cdm-teller/internal/errors"
	"github.com/venturus/cdm-teller/internal/models"
	"github.com/venturus/cdm-teller/internal/repository"
)

type CollectionServiceTestSuite struct {
	suite.Suite
	db      *gorm.DB
	svc     CollectionService
	txRepo  repository.TransactionRepository
	ctx     context.Context
}

func (s *CollectionServiceTestSuite) SetupTest() {
	s.db = repository.SetupTestDB()
	s.ctx = context.Background()
	s.svc = NewCollectionService(s.db, zap.NewNop())
	s.txRepo = repository.NewTransactionRepository(s.db)
}

func (s *CollectionServiceTestSuite) TearDownTest() {
	repository.CleanupTestDB(s.db)
}

func (s *CollectionServiceTestSuite) seedDeposit(deviceCode string, number int, amount float64) *models.Transaction {
	tx := &models.Transaction{
		Number:     number,
		DeviceCode: deviceCode,
		Username:   "cajero1",
		Currency:   "BOB",
		Amount:     amount,
		State:      models.TxStateRegistered,
		Details: []models.TransactionDetail{
			{DenominationID: 1, Description: "100 Bs", Value: 100, Quantity: int(amount / 100)},
		},
	}
	s.Require().NoError(s.txRepo.Register(s.ctx, tx))
	return tx
}

func (s *CollectionServiceTestSuite) statesOf(deviceCode string, states []int) int {
	txs, err := s.txRepo.FindByDeviceAndStates(s.ctx, deviceCode, states)
	s.Require().NoError(err)
	return len(txs)
}

func (s *CollectionServiceTestSuite) TestGenerateGroupsRegisteredDeposits() {
	s.seedDeposit("CDM-001", 1, 300)
	s.seedDeposit("CDM-001", 2, 500)
	s.seedDeposit("CDM-002", 1, 700)

	req, err := s.svc.Generate(s.ctx, "CDM-001", "supervisor1")
	s.Require().NoError(err)
	s.Equal(800.0, req.Amount)
	s.Equal("CDM-001", req.DeviceCode)
	s.Equal(models.DisbursementRequested, req.State)

	// Only the machine's deposits move to disbursement-pending.
	s.Equal(2, s.statesOf("CDM-001", []int{models.TxStateDisbursementPending}))
	s.Equal(1, s.statesOf("CDM-002", []int{models.TxStateRegistered}))

	blocked, err := s.txRepo.HasBlocking(s.ctx, "CDM-001")
	s.Require().NoError(err)
	s.True(blocked)
}

func (s *CollectionServiceTestSuite) TestGenerateWithoutDeposits() {
	_, err := s.svc.Generate(s.ctx, "CDM-001", "supervisor1")
	s.Require().Error(err)
	s.True(apperrors.Is(err, apperrors.ErrNotFound))
}

func (s *CollectionServiceTestSuite) TestGenerateTwiceRefused() {
	s.seedDeposit("CDM-001", 1, 300)

	_, err := s.svc.Generate(s.ctx, "CDM-001", "supervisor1")
	s.Require().NoError(err)

	s.seedDeposit("CDM-001", 2, 100)
	_, err = s.svc.Generate(s.ctx, "CDM-001", "supervisor1")
	s.Require().Error(err)
	s.True(apperrors.Is(err, apperrors.ErrAlreadyExists))
}

func (s *CollectionServiceTestSuite) TestAuthorizeMovesToInCollection() {
	s.seedDeposit("CDM-001", 1, 300)
	req, err := s.svc.Generate(s.ctx, "CDM-001", "supervisor1")
	s.Require().NoError(err)

	s.Require().NoError(s.svc.Authorize(s.ctx, req.ID, "admin1", "ok"))

	s.Equal(1, s.statesOf("CDM-001", []int{models.TxStateInCollection}))

	got := &models.DisbursementRequest{}
	s.Require().NoError(s.db.First(got, req.ID).Error)
	s.Equal(models.DisbursementApproved, got.State)
	s.Equal("admin1", got.ResolvedBy)
	s.NotNil(got.ResolvedAt)

	// Settled requests stay settled.
	s.Require().Error(s.svc.Authorize(s.ctx, req.ID, "admin2", "again"))
}

func (s *CollectionServiceTestSuite) TestRejectReturnsDeposits() {
	s.seedDeposit("CDM-001", 1, 300)
	req, err := s.svc.Generate(s.ctx, "CDM-001", "supervisor1")
	s.Require().NoError(err)

	s.Require().NoError(s.svc.Reject(s.ctx, req.ID, "admin1", "wrong amount"))

	s.Equal(1, s.statesOf("CDM-001", []int{models.TxStateRegistered}))

	blocked, err := s.txRepo.HasBlocking(s.ctx, "CDM-001")
	s.Require().NoError(err)
	s.False(blocked)

	// A fresh request can be generated after the rejection.
	_, err = s.svc.Generate(s.ctx, "CDM-001", "supervisor1")
	s.NoError(err)
}

func (s *CollectionServiceTestSuite) TestCollectClosesDeposits() {
	s.seedDeposit("CDM-001", 1, 300)
	s.seedDeposit("CDM-001", 2, 200)
	req, err := s.svc.Generate(s.ctx, "CDM-001", "supervisor1")
	s.Require().NoError(err)
	s.Require().NoError(s.svc.Authorize(s.ctx, req.ID, "admin1", ""))

	count, err := s.svc.Collect(s.ctx, "CDM-001", "recolector1")
	s.Require().NoError(err)
	s.Equal(2, count)

	s.Equal(2, s.statesOf("CDM-001", []int{models.TxStateCollected}))

	blocked, err := s.txRepo.HasBlocking(s.ctx, "CDM-001")
	s.Require().NoError(err)
	s.False(blocked)

	_, err = s.svc.Collect(s.ctx, "CDM-001", "recolector1")
	s.Require().Error(err)
	s.True(apperrors.Is(err, apperrors.ErrNotFound))
}

func (s *CollectionServiceTestSuite) TestPending() {
	s.seedDeposit("CDM-001", 1, 300)
	s.seedDeposit("CDM-002", 1, 100)

	r1, err := s.svc.Generate(s.ctx, "CDM-001", "supervisor1")
	s.Require().NoError(err)
	_, err = s.svc.Generate(s.ctx, "CDM-002", "supervisor1")
	s.Require().NoError(err)

	pending, err := s.svc.Pending(s.ctx)
	s.Require().NoError(err)
	s.Len(pending, 2)

	s.Require().NoError(s.svc.Authorize(s.ctx, r1.ID, "admin1", ""))

	pending, err = s.svc.Pending(s.ctx)
	s.Require().NoError(err)
	s.Len(pending, 1)
	s.Equal("CDM-002", pending[0].DeviceCode)
}

func TestCollectionServiceTestSuite(t *testing.T) {
	suite.Run(t, new(CollectionServiceTestSuite))
}

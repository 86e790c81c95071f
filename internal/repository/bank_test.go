package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	apperrors "github.com/venturus/cdm-teller/internal/errors"
	"github.com/venturus/cdm-teller/internal/models"
)

type BankRepositoryTestSuite struct {
	suite.Suite
	db        *gorm.DB
	accounts  BankAccountRepository
	audits    BankAuditRepository
}

func (suite *BankRepositoryTestSuite) SetupTest() {
	suite.db = SetupTestDB()
	suite.accounts = NewBankAccountRepository(suite.db)
	suite.audits = NewBankAuditRepository(suite.db)
}

func (suite *BankRepositoryTestSuite) TearDownTest() {
	CleanupTestDB(suite.db)
}

func (suite *BankRepositoryTestSuite) TestAccountFindByUsername() {
	ctx := context.Background()

	account := &models.BankAccount{
		Username:      "teller1",
		AccountNumber: "201-50081-3-36",
		AccountType:   "CA",
		Currency:      "BOB",
	}
	assert.NoError(suite.T(), suite.accounts.Create(ctx, account))

	found, err := suite.accounts.FindByUsername(ctx, "teller1")
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), account.AccountNumber, found.AccountNumber)

	_, err = suite.accounts.FindByUsername(ctx, "nobody")
	assert.True(suite.T(), apperrors.Is(err, apperrors.ErrNotFound))
}

func (suite *BankRepositoryTestSuite) TestAuditLifecycle() {
	ctx := context.Background()

	audit := &models.BankAPIAudit{TransactionID: 7, URL: "https://bank.example/deposit"}
	assert.NoError(suite.T(), suite.audits.CreatePending(ctx, audit))
	assert.Equal(suite.T(), models.BankAuditPending, audit.Status)

	err := suite.audits.Finalize(ctx, audit.ID, models.BankAuditSuccess, "approved", "00", 2,
		models.JSONMap{"answerCode": "00"})
	assert.NoError(suite.T(), err)

	found, err := suite.audits.FindByTransaction(ctx, 7)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.BankAuditSuccess, found.Status)
	assert.Equal(suite.T(), "00", found.AnswerCode)
	assert.Equal(suite.T(), 2, found.Attempts)
	assert.True(suite.T(), found.IsFinal())
}

func (suite *BankRepositoryTestSuite) TestAuditFinalizeIsOneShot() {
	ctx := context.Background()

	audit := &models.BankAPIAudit{TransactionID: 8}
	assert.NoError(suite.T(), suite.audits.CreatePending(ctx, audit))

	assert.NoError(suite.T(), suite.audits.Finalize(ctx, audit.ID, models.BankAuditRejected, "bank said no", "05", 1, nil))

	// a second outcome must not overwrite the first
	err := suite.audits.Finalize(ctx, audit.ID, models.BankAuditSuccess, "late success", "00", 3, nil)
	assert.Error(suite.T(), err)

	found, err := suite.audits.FindByTransaction(ctx, 8)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), models.BankAuditRejected, found.Status)
}

func TestBankRepositoryTestSuite(t *testing.T) {
	suite.Run(t, new(BankRepositoryTestSuite))
}

package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	apperrors "github.com/venturus/cdm-teller/internal/errors"
	"github.com/venturus/cdm-teller/internal/models"
	"github.com/venturus/cdm-teller/internal/repository"
	"github.com/venturus/cdm-teller/internal/utils"
)

type AuthServiceTestSuite struct {
	suite.Suite
	db       *gorm.DB
	services *Services
	ctx      context.Context
}

func (s *AuthServiceTestSuite) SetupTest() {
	s.db = repository.SetupTestDB()
	s.ctx = context.Background()
	s.services = NewServices(s.db, &Config{
		JWTSecret:          "test-secret",
		AccessTokenExpiry:  time.Minute,
		RefreshTokenExpiry: time.Hour,
	}, zap.NewNop())

	hash, err := utils.HashPassword("s3cret-pass")
	s.Require().NoError(err)
	s.Require().NoError(s.db.Create(&models.User{
		Username:   "cajero1",
		FullName:   "Cajero Uno",
		Password:   hash,
		Role:       models.RoleTeller,
		Status:     "active",
		DeviceCode: "CDM-001",
	}).Error)
}

func (s *AuthServiceTestSuite) TearDownTest() {
	repository.CleanupTestDB(s.db)
}

func (s *AuthServiceTestSuite) TestLoginSuccess() {
	resp, err := s.services.Auth.Login(s.ctx, &LoginRequest{
		Username: "cajero1",
		Password: "s3cret-pass",
		IP:       "10.0.0.5",
	})
	s.Require().NoError(err)
	s.NotEmpty(resp.AccessToken)
	s.NotEmpty(resp.RefreshToken)
	s.Equal("cajero1", resp.User.Username)

	claims, err := s.services.Auth.ValidateToken(resp.AccessToken)
	s.Require().NoError(err)
	s.Equal("cajero1", claims.Username)
	s.Equal(models.RoleTeller, claims.Role)
	s.Equal("CDM-001", claims.DeviceCode)

	// Login stamps the audit fields.
	var user models.User
	s.Require().NoError(s.db.Where("username = ?", "cajero1").First(&user).Error)
	s.NotNil(user.LastLoginAt)
	s.Equal("10.0.0.5", user.LastLoginIP)
}

func (s *AuthServiceTestSuite) TestLoginWrongPassword() {
	_, err := s.services.Auth.Login(s.ctx, &LoginRequest{
		Username: "cajero1",
		Password: "wrong",
	})
	s.Require().Error(err)
	s.True(apperrors.Is(err, apperrors.ErrAuthentication))
}

func (s *AuthServiceTestSuite) TestLoginUnknownUser() {
	_, err := s.services.Auth.Login(s.ctx, &LoginRequest{
		Username: "nobody",
		Password: "whatever",
	})
	s.Require().Error(err)
	s.True(apperrors.Is(err, apperrors.ErrAuthentication))
}

func (s *AuthServiceTestSuite) TestLoginFrozenAccount() {
	s.Require().NoError(s.db.Model(&models.User{}).
		Where("username = ?", "cajero1").
		Update("status", "frozen").Error)

	_, err := s.services.Auth.Login(s.ctx, &LoginRequest{
		Username: "cajero1",
		Password: "s3cret-pass",
	})
	s.Require().Error(err)
	s.True(apperrors.Is(err, apperrors.ErrAuthorization))
}

func (s *AuthServiceTestSuite) TestRefreshToken() {
	resp, err := s.services.Auth.Login(s.ctx, &LoginRequest{
		Username: "cajero1",
		Password: "s3cret-pass",
	})
	s.Require().NoError(err)

	refreshed, err := s.services.Auth.RefreshToken(s.ctx, resp.RefreshToken)
	s.Require().NoError(err)
	s.NotEmpty(refreshed.AccessToken)

	claims, err := s.services.Auth.ValidateToken(refreshed.AccessToken)
	s.Require().NoError(err)
	s.Equal("cajero1", claims.Username)
}

func (s *AuthServiceTestSuite) TestRefreshWithAccessTokenRejected() {
	resp, err := s.services.Auth.Login(s.ctx, &LoginRequest{
		Username: "cajero1",
		Password: "s3cret-pass",
	})
	s.Require().NoError(err)

	_, err = s.services.Auth.RefreshToken(s.ctx, resp.AccessToken)
	s.Require().Error(err)
}

func TestAuthServiceTestSuite(t *testing.T) {
	suite.Run(t, new(AuthServiceTestSuite))
}

type UserServiceTestSuite struct {
	suite.Suite
	db       *gorm.DB
	services *Services
	ctx      context.Context
}

func (s *UserServiceTestSuite) SetupTest() {
	s.db = repository.SetupTestDB()
	s.ctx = context.Background()
	s.services = NewServices(s.db, DefaultConfig(), zap.NewNop())

	s.Require().NoError(s.db.Create(&models.Device{
		Code:   "CDM-001",
		Name:   "Agencia Central",
		APIURL: "http://192.168.1.50:8080",
		Status: models.DeviceStatusActive,
	}).Error)
}

func (s *UserServiceTestSuite) TearDownTest() {
	repository.CleanupTestDB(s.db)
}

func (s *UserServiceTestSuite) TestCreateAndAuthenticate() {
	user, err := s.services.User.Create(s.ctx, &CreateUserRequest{
		Username:   "cajero2",
		Password:   "password123",
		FullName:   "Cajero Dos",
		DeviceCode: "CDM-001",
	})
	s.Require().NoError(err)
	s.Equal(models.RoleTeller, user.Role)
	s.NotEqual("password123", user.Password)

	resp, err := s.services.Auth.Login(s.ctx, &LoginRequest{
		Username: "cajero2",
		Password: "password123",
	})
	s.Require().NoError(err)
	s.Equal(user.ID, resp.User.ID)
}

func (s *UserServiceTestSuite) TestCreateDuplicateUsername() {
	_, err := s.services.User.Create(s.ctx, &CreateUserRequest{
		Username: "cajero2",
		Password: "password123",
	})
	s.Require().NoError(err)

	_, err = s.services.User.Create(s.ctx, &CreateUserRequest{
		Username: "cajero2",
		Password: "otherpassword",
	})
	s.Require().Error(err)
	s.True(apperrors.Is(err, apperrors.ErrAlreadyExists))
}

func (s *UserServiceTestSuite) TestCreateWithUnknownDevice() {
	_, err := s.services.User.Create(s.ctx, &CreateUserRequest{
		Username:   "cajero3",
		Password:   "password123",
		DeviceCode: "CDM-999",
	})
	s.Require().Error(err)
	s.True(apperrors.Is(err, apperrors.ErrNotFound))
}

func (s *UserServiceTestSuite) TestUpdatePassword() {
	user, err := s.services.User.Create(s.ctx, &CreateUserRequest{
		Username: "cajero2",
		Password: "password123",
	})
	s.Require().NoError(err)

	err = s.services.User.UpdatePassword(s.ctx, user.ID, "wrong-old", "newpassword1")
	s.Require().Error(err)
	s.True(apperrors.Is(err, apperrors.ErrAuthentication))

	s.Require().NoError(s.services.User.UpdatePassword(s.ctx, user.ID, "password123", "newpassword1"))

	_, err = s.services.Auth.Login(s.ctx, &LoginRequest{
		Username: "cajero2",
		Password: "newpassword1",
	})
	s.NoError(err)
}

func (s *UserServiceTestSuite) TestAssignDevice() {
	user, err := s.services.User.Create(s.ctx, &CreateUserRequest{
		Username: "cajero2",
		Password: "password123",
	})
	s.Require().NoError(err)
	s.Empty(user.DeviceCode)

	s.Require().NoError(s.services.User.AssignDevice(s.ctx, user.ID, "CDM-001"))

	got, err := s.services.User.GetByID(s.ctx, user.ID)
	s.Require().NoError(err)
	s.Equal("CDM-001", got.DeviceCode)

	// Unassigning clears the code.
	s.Require().NoError(s.services.User.AssignDevice(s.ctx, user.ID, ""))
	got, err = s.services.User.GetByID(s.ctx, user.ID)
	s.Require().NoError(err)
	s.Empty(got.DeviceCode)
}

func (s *UserServiceTestSuite) TestUpdateStatus() {
	user, err := s.services.User.Create(s.ctx, &CreateUserRequest{
		Username: "cajero2",
		Password: "password123",
	})
	s.Require().NoError(err)

	s.Require().Error(s.services.User.UpdateStatus(s.ctx, user.ID, "banana"))
	s.Require().NoError(s.services.User.UpdateStatus(s.ctx, user.ID, "frozen"))

	_, err = s.services.Auth.Login(s.ctx, &LoginRequest{
		Username: "cajero2",
		Password: "password123",
	})
	s.Require().Error(err)
	s.True(apperrors.Is(err, apperrors.ErrAuthorization))
}

func TestUserServiceTestSuite(t *testing.T) {
	suite.Run(t, new(UserServiceTestSuite))
}

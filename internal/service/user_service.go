package service

import (
	"context"

	"go.uber.org/zap"

	apperrors "github.com/venturus/cdm-teller/internal/errors"
	"github.com/venturus/cdm-teller/internal/models"
	"github.com/venturus/cdm-teller/internal/repository"
	"github.com/venturus/cdm-teller/internal/utils"
)

type userService struct {
	userRepo   repository.UserRepository
	deviceRepo repository.DeviceRepository
	log        *zap.Logger
}

// NewUserService creates the user service.
func NewUserService(userRepo repository.UserRepository, deviceRepo repository.DeviceRepository, log *zap.Logger) UserService {
	return &userService{
		userRepo:   userRepo,
		deviceRepo: deviceRepo,
		log:        log,
	}
}

func (s *userService) Create(ctx context.Context, req *CreateUserRequest) (*models.User, error) {
	if _, err := s.userRepo.FindByUsername(ctx, req.Username); err == nil {
		return nil, apperrors.New(apperrors.ErrAlreadyExists, "username already taken")
	}

	if req.DeviceCode != "" {
		if _, err := s.deviceRepo.FindByCode(ctx, req.DeviceCode); err != nil {
			return nil, err
		}
	}

	hash, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrUnknown, "failed to hash password")
	}

	role := req.Role
	if role == "" {
		role = models.RoleTeller
	}

	user := &models.User{
		Username:   req.Username,
		FullName:   req.FullName,
		Email:      req.Email,
		Password:   hash,
		Role:       role,
		Status:     "active",
		DeviceCode: req.DeviceCode,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDatabaseInsert, "failed to create user")
	}

	s.log.Info("user created",
		zap.String("username", user.Username),
		zap.String("role", user.Role),
	)
	return user, nil
}

func (s *userService) GetByID(ctx context.Context, id uint) (*models.User, error) {
	return s.userRepo.FindByID(ctx, id)
}

func (s *userService) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.userRepo.FindByUsername(ctx, username)
}

func (s *userService) List(ctx context.Context, page, pageSize int) ([]*models.User, int64, error) {
	pagination := repository.NewPagination(page, pageSize)
	users, err := s.userRepo.GetAll(ctx, pagination)
	if err != nil {
		return nil, 0, err
	}
	return users, pagination.Total, nil
}

func (s *userService) UpdatePassword(ctx context.Context, userID uint, oldPassword, newPassword string) error {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return err
	}

	valid, err := utils.VerifyPassword(oldPassword, user.Password)
	if err != nil || !valid {
		return apperrors.New(apperrors.ErrAuthentication, "current password is wrong")
	}

	hash, err := utils.HashPassword(newPassword)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrUnknown, "failed to hash password")
	}

	user.Password = hash
	return s.userRepo.Update(ctx, user)
}

func (s *userService) UpdateStatus(ctx context.Context, userID uint, status string) error {
	if status != "active" && status != "frozen" {
		return apperrors.Newf(apperrors.ErrInvalidParam, "unknown status %q", status)
	}
	return s.userRepo.UpdateStatus(ctx, userID, status)
}

func (s *userService) AssignDevice(ctx context.Context, userID uint, deviceCode string) error {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return err
	}

	if deviceCode != "" {
		device, err := s.deviceRepo.FindByCode(ctx, deviceCode)
		if err != nil {
			return err
		}
		if !device.IsActive() {
			return apperrors.New(apperrors.ErrInvalidParam, "device is inactive")
		}
	}

	user.DeviceCode = deviceCode
	return s.userRepo.Update(ctx, user)
}

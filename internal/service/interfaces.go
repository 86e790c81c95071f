package service

import (
	"context"

	"github.com/venturus/cdm-teller/internal/models"
	"github.com/venturus/cdm-teller/internal/utils"
)

// AuthService authenticates teller operators.
type AuthService interface {
	Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error)
	RefreshToken(ctx context.Context, refreshToken string) (*AuthResponse, error)
	ValidateToken(token string) (*utils.JWTClaims, error)
}

// UserService manages operator accounts.
type UserService interface {
	Create(ctx context.Context, req *CreateUserRequest) (*models.User, error)
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	List(ctx context.Context, page, pageSize int) ([]*models.User, int64, error)
	UpdatePassword(ctx context.Context, userID uint, oldPassword, newPassword string) error
	UpdateStatus(ctx context.Context, userID uint, status string) error
	AssignDevice(ctx context.Context, userID uint, deviceCode string) error
}

// CollectionService runs the cash pickup workflow: group registered
// deposits into a disbursement request, authorize or reject it, and
// confirm the physical collection.
type CollectionService interface {
	Generate(ctx context.Context, deviceCode, requestedBy string) (*models.DisbursementRequest, error)
	Authorize(ctx context.Context, requestID uint, resolvedBy, observation string) error
	Reject(ctx context.Context, requestID uint, resolvedBy, observation string) error
	Collect(ctx context.Context, deviceCode, collectedBy string) (int, error)
	Pending(ctx context.Context) ([]*models.DisbursementRequest, error)
}

// LoginRequest carries operator credentials.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	IP       string `json:"-"`
}

// AuthResponse carries the issued tokens.
type AuthResponse struct {
	User         *models.User `json:"user"`
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
}

// CreateUserRequest creates an operator account.
type CreateUserRequest struct {
	Username   string `json:"username" binding:"required"`
	Password   string `json:"password" binding:"required,min=8"`
	FullName   string `json:"full_name"`
	Email      string `json:"email"`
	Role       string `json:"role"`
	DeviceCode string `json:"device_code"`
}

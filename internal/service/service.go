package service

import (
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/venturus/cdm-teller/internal/repository"
	"github.com/venturus/cdm-teller/internal/utils"
)

// Config holds the service layer settings.
type Config struct {
	JWTSecret          string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
}

// DefaultConfig returns development defaults.
func DefaultConfig() *Config {
	return &Config{
		JWTSecret:          "change-me-in-production",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 7 * 24 * time.Hour,
	}
}

// Services bundles the application services.
type Services struct {
	Auth       AuthService
	User       UserService
	Collection CollectionService
	JWT        *utils.JWTManager
}

// NewServices wires repositories into services.
func NewServices(db *gorm.DB, config *Config, log *zap.Logger) *Services {
	userRepo := repository.NewUserRepository(db)
	deviceRepo := repository.NewDeviceRepository(db)

	jwtManager := utils.NewJWTManager(
		config.JWTSecret,
		config.AccessTokenExpiry,
		config.RefreshTokenExpiry,
	)

	return &Services{
		Auth:       NewAuthService(userRepo, jwtManager, log),
		User:       NewUserService(userRepo, deviceRepo, log),
		Collection: NewCollectionService(db, log),
		JWT:        jwtManager,
	}
}

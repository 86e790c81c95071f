package service

import (
	"context"

	"go.uber.org/zap"

	apperrors "github.com/venturus/cdm-teller/internal/errors"
	"github.com/venturus/cdm-teller/internal/models"
	"github.com/venturus/cdm-teller/internal/repository"
	"github.com/venturus/cdm-teller/internal/utils"
)

type authService struct {
	userRepo   repository.UserRepository
	jwtManager *utils.JWTManager
	log        *zap.Logger
}

// NewAuthService creates the authentication service.
func NewAuthService(userRepo repository.UserRepository, jwtManager *utils.JWTManager, log *zap.Logger) AuthService {
	return &authService{
		userRepo:   userRepo,
		jwtManager: jwtManager,
		log:        log,
	}
}

func (s *authService) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	user, err := s.userRepo.FindByUsername(ctx, req.Username)
	if err != nil {
		s.log.Warn("login failed: user not found", zap.String("username", req.Username))
		return nil, apperrors.New(apperrors.ErrAuthentication, "invalid credentials")
	}

	if !user.IsActive() {
		return nil, apperrors.New(apperrors.ErrAuthorization, "account is frozen")
	}

	valid, err := utils.VerifyPassword(req.Password, user.Password)
	if err != nil || !valid {
		s.log.Warn("login failed: invalid password", zap.Uint("user_id", user.ID))
		return nil, apperrors.New(apperrors.ErrAuthentication, "invalid credentials")
	}

	if err := s.userRepo.UpdateLastLogin(ctx, user.ID, req.IP); err != nil {
		s.log.Warn("failed to record last login", zap.Error(err))
	}

	return s.issueTokens(user)
}

func (s *authService) RefreshToken(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	claims, err := s.jwtManager.ValidateToken(refreshToken)
	if err != nil || claims.TokenType != "refresh" {
		return nil, apperrors.New(apperrors.ErrTokenInvalid, "invalid refresh token")
	}

	user, err := s.userRepo.FindByID(ctx, claims.UserID)
	if err != nil {
		return nil, apperrors.New(apperrors.ErrTokenInvalid, "user no longer exists")
	}
	if !user.IsActive() {
		return nil, apperrors.New(apperrors.ErrAuthorization, "account is frozen")
	}

	return s.issueTokens(user)
}

func (s *authService) ValidateToken(token string) (*utils.JWTClaims, error) {
	claims, err := s.jwtManager.ValidateToken(token)
	if err != nil {
		if err == utils.ErrExpiredToken {
			return nil, apperrors.New(apperrors.ErrTokenExpired, "token expired")
		}
		return nil, apperrors.New(apperrors.ErrTokenInvalid, "invalid token")
	}
	if claims.TokenType != "access" {
		return nil, apperrors.New(apperrors.ErrTokenInvalid, "not an access token")
	}
	return claims, nil
}

func (s *authService) issueTokens(user *models.User) (*AuthResponse, error) {
	accessToken, err := s.jwtManager.GenerateAccessToken(user.ID, user.Username, user.Role, user.DeviceCode)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrUnknown, "failed to sign access token")
	}
	refreshToken, err := s.jwtManager.GenerateRefreshToken(user.ID, user.Username)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrUnknown, "failed to sign refresh token")
	}

	return &AuthResponse{
		User:         user,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

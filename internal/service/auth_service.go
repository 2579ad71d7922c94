package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/inboxvault/inboxvault/internal/models"
	"github.com/inboxvault/inboxvault/pkg/config"
	appErrors "github.com/inboxvault/inboxvault/pkg/errors"
)

// AuthService authenticates the single configured operator and issues
// access tokens for the control surface.
type AuthService struct {
	jwtCfg    config.JWTConfig
	authCfg   config.AuthConfig
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
}

func NewAuthService(jwtCfg config.JWTConfig, authCfg config.AuthConfig, audit auditLogger, logger *zap.Logger) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		jwtCfg:    jwtCfg,
		authCfg:   authCfg,
		audit:     audit,
		validator: validator.New(),
		logger:    logger,
	}
}

// Login verifies the operator credential and returns a signed access
// token. Both the unknown-username and wrong-password paths return the
// same error.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return models.LoginResponse{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	usernameOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(s.authCfg.OperatorUsername)) == 1
	passwordErr := bcrypt.CompareHashAndPassword([]byte(s.authCfg.OperatorPasswordHash), []byte(req.Password))
	if !usernameOK || passwordErr != nil {
		s.logger.Warn("login rejected", zap.String("username", req.Username))
		return models.LoginResponse{}, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	}

	token, issuedAt, err := s.generateAccessToken(req.Username)
	if err != nil {
		return models.LoginResponse{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "sign access token")
	}

	s.emitAudit(ctx, models.AuditActionLogin, nil, map[string]interface{}{"username": req.Username})
	return models.LoginResponse{
		AccessToken: token,
		ExpiresIn:   int64(s.jwtCfg.Expiration.Seconds()),
		IssuedAt:    issuedAt,
	}, nil
}

// ValidateToken parses and validates an access token returning the claims.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtCfg.Secret), nil
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}

	return claims, nil
}

func (s *AuthService) generateAccessToken(username string) (string, time.Time, error) {
	issuedAt := time.Now().UTC()
	claims := &models.JWTClaims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.jwtCfg.Issuer,
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.jwtCfg.Expiration)),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.jwtCfg.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, issuedAt, nil
}

func (s *AuthService) emitAudit(ctx context.Context, action string, recordID *string, detail map[string]interface{}) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, action, recordID, detail)
}

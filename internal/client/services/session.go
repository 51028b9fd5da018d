package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/techtrack/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/techtrack/internal/common"
	"github.com/dmitrijs2005/techtrack/internal/logging"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SessionService keeps the bearer token the backend issued and the identity
// of this device.
//
// Contract:
//   - SetToken: check the token is a well-formed, unexpired JWT and store it.
//   - Token: the stored token, "" when there is none.
//   - DeviceID: a random id generated on first use and kept until logout.
//   - Logout: wipe every local record, the queue and metadata.
type SessionService interface {
	SetToken(ctx context.Context, token string) error
	Token(ctx context.Context) (string, error)
	DeviceID(ctx context.Context) (string, error)
	Logout(ctx context.Context) error
}

type sessionService struct {
	db     *sql.DB
	logger logging.Logger
	now    func() time.Time
}

func NewSessionService(db *sql.DB, logger logging.Logger) SessionService {
	return &sessionService{db: db, logger: logger, now: time.Now}
}

func (s *sessionService) getMetadataRepo() metadata.Repository {
	return metadata.NewSQLiteRepository(s.db)
}

// SetToken does not verify the signature: the client has no key, the
// backend checks it on every request.
func (s *sessionService) SetToken(ctx context.Context, token string) error {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return fmt.Errorf("%w: %w", common.ErrInvalidToken, err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrInvalidToken, err)
	}
	if exp != nil && !exp.After(s.now()) {
		return common.ErrTokenExpired
	}

	if err := s.getMetadataRepo().Set(ctx, metadata.KeyToken, []byte(token)); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	s.logger.Info(ctx, "token saved")
	return nil
}

func (s *sessionService) Token(ctx context.Context) (string, error) {
	return s.getMetadataRepo().GetString(ctx, metadata.KeyToken)
}

func (s *sessionService) DeviceID(ctx context.Context) (string, error) {
	repo := s.getMetadataRepo()
	id, err := repo.GetString(ctx, metadata.KeyDeviceID)
	if err != nil || id != "" {
		return id, err
	}

	id = uuid.NewString()
	if err := repo.Set(ctx, metadata.KeyDeviceID, []byte(id)); err != nil {
		return "", fmt.Errorf("failed to save device id: %w", err)
	}
	return id, nil
}

func (s *sessionService) Logout(ctx context.Context) error {
	if err := clearAll(ctx, s.db); err != nil {
		return fmt.Errorf("logout failed: %w", err)
	}
	s.logger.Info(ctx, "local data cleared")
	return nil
}

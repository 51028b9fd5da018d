package services

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/techtrack/internal/client/models"
	"github.com/dmitrijs2005/techtrack/internal/common"
	"github.com/dmitrijs2005/techtrack/internal/logging"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "tech-1",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func TestSetToken(t *testing.T) {
	db := setupDB(t)
	s := NewSessionService(db, logging.NewNopLogger())
	ctx := context.Background()

	tok, err := s.Token(ctx)
	require.NoError(t, err)
	assert.Empty(t, tok)

	valid := signedToken(t, time.Now().Add(time.Hour))
	require.NoError(t, s.SetToken(ctx, valid))

	tok, err = s.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, valid, tok)
}

func TestSetToken_Rejects(t *testing.T) {
	s := NewSessionService(setupDB(t), logging.NewNopLogger())
	ctx := context.Background()

	require.ErrorIs(t, s.SetToken(ctx, "not-a-jwt"), common.ErrInvalidToken)
	require.ErrorIs(t, s.SetToken(ctx, signedToken(t, time.Now().Add(-time.Minute))), common.ErrTokenExpired)

	tok, err := s.Token(ctx)
	require.NoError(t, err)
	assert.Empty(t, tok)
}

func TestDeviceID_IsStable(t *testing.T) {
	s := NewSessionService(setupDB(t), logging.NewNopLogger())
	ctx := context.Background()

	first, err := s.DeviceID(ctx)
	require.NoError(t, err)
	assert.Len(t, first, 36)

	second, err := s.DeviceID(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestLogout_ClearsEverything(t *testing.T) {
	db := setupDB(t)
	s := NewSessionService(db, logging.NewNopLogger())
	svc := NewEntityService(db, Scope{City: "Almaty"}, logging.NewNopLogger())
	ctx := context.Background()

	require.NoError(t, s.SetToken(ctx, signedToken(t, time.Now().Add(time.Hour))))
	_, err := svc.Create(ctx, &models.TaskPayload{Title: ptr("Secret")})
	require.NoError(t, err)

	require.NoError(t, s.Logout(ctx))

	tok, err := s.Token(ctx)
	require.NoError(t, err)
	assert.Empty(t, tok)

	pending, err := svc.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
	tasks, err := svc.List(ctx, models.EntityTask)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

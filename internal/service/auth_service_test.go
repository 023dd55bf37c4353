package service

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/sma-report-api/internal/models"
	appErrors "github.com/noah-isme/sma-report-api/pkg/errors"
)

func newAuthFixture(t *testing.T, active bool) *AuthService {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret-pass"), bcrypt.MinCost)
	require.NoError(t, err)
	repo := newMockUserRepo(models.User{
		ID: "u-head", Email: "head@school.test", PasswordHash: string(hash),
		FullName: "Head Teacher", Role: models.RoleHeadteacher, Active: active,
	})
	return NewAuthService(repo, nil, nil, AuthConfig{AccessTokenSecret: "test-secret", AccessTokenExpiry: time.Hour, Issuer: "test"})
}

func TestLoginIssuesTokenCarryingPrincipal(t *testing.T) {
	svc := newAuthFixture(t, true)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "head@school.test", Password: "s3cret-pass"})
	require.NoError(t, err)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Equal(t, models.RoleHeadteacher, resp.User.Role)

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, models.Principal{UserID: "u-head", Role: models.RoleHeadteacher}, claims.Principal())
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc := newAuthFixture(t, true)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "head@school.test", Password: "wrong"})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrInvalidCredentials.Code))

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "nobody@school.test", Password: "wrong"})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrInvalidCredentials.Code))

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "not-an-email", Password: "x"})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrValidation.Code))
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	svc := newAuthFixture(t, false)
	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "head@school.test", Password: "s3cret-pass"})
	assert.True(t, appErrors.IsCode(err, appErrors.ErrInactiveAccount.Code))
}

func TestValidateTokenRejectsForeignSignature(t *testing.T) {
	svc := newAuthFixture(t, true)

	claims := &models.JWTClaims{UserID: "u1", Role: models.RoleAdmin, RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("other-secret"))
	require.NoError(t, err)

	_, err = svc.ValidateToken(forged)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrUnauthorized.Code))
}

func TestValidateTokenRejectsExpiredToken(t *testing.T) {
	svc := newAuthFixture(t, true)
	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "head@school.test", Password: "s3cret-pass"})
	require.NoError(t, err)

	_, err = svc.ValidateToken(resp.AccessToken)
	assert.True(t, appErrors.IsCode(err, appErrors.ErrUnauthorized.Code))
}

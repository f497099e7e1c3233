package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/orgpulse/orgpulse_server/config"
	"github.com/orgpulse/orgpulse_server/internal/model"
	"github.com/orgpulse/orgpulse_server/internal/model/dto"
	pkgjwt "github.com/orgpulse/orgpulse_server/internal/pkg/jwt"
	"github.com/orgpulse/orgpulse_server/internal/repository"
	"github.com/orgpulse/orgpulse_server/internal/testutil"
)

func setupAuthService(t *testing.T) (*AuthService, *gorm.DB, func()) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	cfg := &config.Config{JWT: config.JWTConfig{Secret: "test-secret", ExpireHours: 24}}
	svc := NewAuthService(repository.NewTenantRepository(db), cfg)

	return svc, db, func() { testutil.CleanupTestDB(t, db) }
}

func authTenant(t *testing.T, db *gorm.DB, apiKey string) *model.Tenant {
	t.Helper()

	hash, err := HashAPIKey(apiKey)
	require.NoError(t, err)
	return testutil.TestTenant(t, db, func(tn *model.Tenant) {
		tn.APIKeyHash = hash
	})
}

func TestToken_Success(t *testing.T) {
	svc, db, cleanup := setupAuthService(t)
	defer cleanup()

	tenant := authTenant(t, db, "sk-orgpulse-abc123")

	resp, err := svc.Token(&dto.TokenRequest{TenantID: tenant.ID, APIKey: "sk-orgpulse-abc123"})
	require.NoError(t, err)
	assert.Equal(t, 24*3600, resp.ExpiresIn)

	claims, err := pkgjwt.ParseToken(resp.Token, "test-secret")
	require.NoError(t, err)
	assert.Equal(t, tenant.ID, claims.TenantID)
}

func TestToken_WrongKey(t *testing.T) {
	svc, db, cleanup := setupAuthService(t)
	defer cleanup()

	tenant := authTenant(t, db, "sk-orgpulse-abc123")

	_, err := svc.Token(&dto.TokenRequest{TenantID: tenant.ID, APIKey: "sk-orgpulse-wrong"})
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestToken_InactiveTenant(t *testing.T) {
	svc, db, cleanup := setupAuthService(t)
	defer cleanup()

	tenant := authTenant(t, db, "sk-orgpulse-abc123")
	require.NoError(t, db.Model(tenant).Update("is_active", false).Error)

	_, err := svc.Token(&dto.TokenRequest{TenantID: tenant.ID, APIKey: "sk-orgpulse-abc123"})
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestToken_NoAPIKeyConfigured(t *testing.T) {
	svc, db, cleanup := setupAuthService(t)
	defer cleanup()

	tenant := testutil.TestTenant(t, db)

	_, err := svc.Token(&dto.TokenRequest{TenantID: tenant.ID, APIKey: "anything"})
	assert.ErrorIs(t, err, ErrAuthFailed)
}

func TestToken_UnknownTenant(t *testing.T) {
	svc, _, cleanup := setupAuthService(t)
	defer cleanup()

	_, err := svc.Token(&dto.TokenRequest{TenantID: 99999, APIKey: "sk-orgpulse-abc123"})
	assert.ErrorIs(t, err, ErrAuthFailed)
}

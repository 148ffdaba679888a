package service

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mesapos/mesa-backend/internal/auth/jwt"
	"github.com/mesapos/mesa-backend/internal/auth/repository"
	"github.com/mesapos/mesa-backend/pkg/config"
	"github.com/mesapos/mesa-backend/pkg/errors"
	"github.com/mesapos/mesa-backend/pkg/logger"
	"github.com/mesapos/mesa-backend/pkg/testutil"
)

func newTestService(t *testing.T) (*AuthService, *testutil.MockDB) {
	mockDB := testutil.NewMockDB(t)
	manager := jwt.NewManager(&config.JWTConfig{
		Secret:        "test-secret-not-for-production",
		AccessExpiry:  15 * time.Minute,
		RefreshExpiry: 24 * time.Hour,
		Issuer:        "mesapos-test",
	})
	svc := NewAuthService(repository.New(mockDB.DB), manager, logger.Nop())
	return svc, mockDB
}

func userRow(t *testing.T, tenantID, password string) *sqlmock.Rows {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	now := time.Now()
	return testutil.MockRows("id", "tenant_id", "username", "password_hash", "role", "status", "version", "created_at", "updated_at").
		AddRow(uuid.New().String(), tenantID, "maria", string(hash), "CASHIER", "ACTIVE", 1, now, now)
}

func TestLogin_Success(t *testing.T) {
	svc, mockDB := newTestService(t)
	defer mockDB.Close()

	tenantID := uuid.New().String()
	mockDB.ExpectQuery("SELECT id, tenant_id, username, password_hash, role, status, version, created_at, updated_at").
		WillReturnRows(userRow(t, tenantID, "secret123"))
	mockDB.ExpectQuery("SELECT status FROM tenants").
		WillReturnRows(testutil.MockRows("status").AddRow("ACTIVE"))
	mockDB.ExpectExec("INSERT INTO refresh_tokens").
		WillReturnResult(sqlmock.NewResult(1, 1))

	resp, err := svc.Login(context.Background(), &LoginRequest{
		TenantID: tenantID,
		Username: "maria",
		Password: "secret123",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Equal(t, "maria", resp.User.Username)
	assert.Equal(t, tenantID, resp.User.TenantID)
	mockDB.ExpectationsWereMet(t)
}

func TestLogin_WrongPassword(t *testing.T) {
	svc, mockDB := newTestService(t)
	defer mockDB.Close()

	tenantID := uuid.New().String()
	mockDB.ExpectQuery("SELECT id, tenant_id, username, password_hash, role, status, version, created_at, updated_at").
		WillReturnRows(userRow(t, tenantID, "secret123"))

	_, err := svc.Login(context.Background(), &LoginRequest{
		TenantID: tenantID,
		Username: "maria",
		Password: "wrong-password",
	})
	require.Error(t, err)
	assert.Equal(t, errors.CodeAuthentication, errors.Code(err))
}

func TestLogin_SuspendedTenant(t *testing.T) {
	svc, mockDB := newTestService(t)
	defer mockDB.Close()

	tenantID := uuid.New().String()
	mockDB.ExpectQuery("SELECT id, tenant_id, username, password_hash, role, status, version, created_at, updated_at").
		WillReturnRows(userRow(t, tenantID, "secret123"))
	mockDB.ExpectQuery("SELECT status FROM tenants").
		WillReturnRows(testutil.MockRows("status").AddRow("SUSPENDED"))

	_, err := svc.Login(context.Background(), &LoginRequest{
		TenantID: tenantID,
		Username: "maria",
		Password: "secret123",
	})
	require.Error(t, err)
	assert.Equal(t, errors.CodeAuthorization, errors.Code(err))
}

func TestRefresh_RevokedTokenRevokesFamily(t *testing.T) {
	svc, mockDB := newTestService(t)
	defer mockDB.Close()

	manager := jwt.NewManager(&config.JWTConfig{
		Secret:        "test-secret-not-for-production",
		AccessExpiry:  15 * time.Minute,
		RefreshExpiry: 24 * time.Hour,
		Issuer:        "mesapos-test",
	})
	tokens, err := manager.GenerateTokenPair(&jwt.UserInfo{
		ID:       uuid.New().String(),
		Username: "maria",
		Role:     "CASHIER",
	})
	require.NoError(t, err)

	userID := uuid.New().String()
	mockDB.ExpectQuery("SELECT id, user_id, token_hash, expires_at, revoked, created_at").
		WillReturnRows(testutil.MockRows("id", "user_id", "token_hash", "expires_at", "revoked", "created_at").
			AddRow(uuid.New().String(), userID, repository.HashToken(tokens.RefreshToken), time.Now().Add(time.Hour), true, time.Now()))
	mockDB.ExpectExec("UPDATE refresh_tokens SET revoked = TRUE WHERE user_id").
		WillReturnResult(sqlmock.NewResult(0, 3))

	_, err = svc.Refresh(context.Background(), tokens.RefreshToken)
	require.Error(t, err)
	assert.Equal(t, errors.CodeAuthentication, errors.Code(err))
	mockDB.ExpectationsWereMet(t)
}

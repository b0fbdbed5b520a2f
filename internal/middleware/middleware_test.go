package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storefront/internal/config"
	"storefront/internal/domain/model"
	"storefront/internal/repository"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// =====================
// レスポンス確認用
// =====================

type mwOKResponse struct {
	UserID int64  `json:"user_id"`
	Role   string `json:"role"`
}

// =====================
// UserRepository モック
// =====================

type MockUserRepoForMiddleware struct {
	mock.Mock
}

func (m *MockUserRepoForMiddleware) Create(ctx context.Context, user *model.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepoForMiddleware) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	args := m.Called(ctx, email)
	u, _ := args.Get(0).(*model.User)
	return u, args.Error(1)
}

func (m *MockUserRepoForMiddleware) FindByID(ctx context.Context, id int64) (*model.User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(*model.User)
	return u, args.Error(1)
}

func (m *MockUserRepoForMiddleware) Update(ctx context.Context, user *model.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

var _ repository.UserRepository = (*MockUserRepoForMiddleware)(nil)

// =====================
// helper
// =====================

var testCfg = config.Config{JWTSecret: "test-secret"}

func mustMakeJWT(t *testing.T, secret string, sub int64, role string, exp time.Time, signingMethod jwt.SigningMethod) string {
	t.Helper()

	claims := jwt.MapClaims{
		"sub":  sub,
		"role": role,
		"iat":  1,
		"exp":  exp.Unix(),
	}

	s, err := jwt.NewWithClaims(signingMethod, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func validJWT(t *testing.T, sub int64, role string) string {
	return mustMakeJWT(t, testCfg.JWTSecret, sub, role, time.Now().Add(time.Hour), jwt.SigningMethodHS256)
}

func runRequest(t *testing.T, e *echo.Echo, authHeader string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func echoIdentity(c echo.Context) error {
	userID, _ := c.Get(CtxUserIDKey).(int64)
	role, _ := c.Get(CtxUserRoleKey).(string)
	return c.JSON(http.StatusOK, mwOKResponse{UserID: userID, Role: role})
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var r errorResponse
	_ = json.NewDecoder(rec.Body).Decode(&r)
	return r.Error
}

// =====================
// AuthJWT
// =====================

func TestAuthJWT_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"bad scheme", "Token abc.def.ghi"},
		{"bad signature", "Bearer " + mustMakeJWT(t, "wrong-secret", 1, "USER", time.Now().Add(time.Hour), jwt.SigningMethodHS256)},
		{"wrong alg", "Bearer " + mustMakeJWT(t, testCfg.JWTSecret, 1, "USER", time.Now().Add(time.Hour), jwt.SigningMethodHS512)},
		{"expired", "Bearer " + mustMakeJWT(t, testCfg.JWTSecret, 1, "USER", time.Now().Add(-time.Minute), jwt.SigningMethodHS256)},
		{"no role", "Bearer " + mustMakeJWT(t, testCfg.JWTSecret, 1, "", time.Now().Add(time.Hour), jwt.SigningMethodHS256)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			e.GET("/protected", echoIdentity, AuthJWT(testCfg))

			rec := runRequest(t, e, tt.header)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, "unauthorized", decodeError(t, rec))
		})
	}
}

func TestAuthJWT_SetsContext(t *testing.T) {
	e := echo.New()
	e.GET("/protected", echoIdentity, AuthJWT(testCfg))

	rec := runRequest(t, e, "Bearer "+validJWT(t, 123, "USER"))
	require.Equal(t, http.StatusOK, rec.Code)

	var body mwOKResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, int64(123), body.UserID)
	assert.Equal(t, "USER", body.Role)
}

// =====================
// OptionalAuthJWT
// =====================

func TestOptionalAuthJWT(t *testing.T) {
	e := echo.New()
	e.GET("/protected", echoIdentity, OptionalAuthJWT(testCfg))

	// ゲストはそのまま通る
	rec := runRequest(t, e, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body mwOKResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Zero(t, body.UserID)

	rec = runRequest(t, e, "Bearer "+validJWT(t, 9, "USER"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, int64(9), body.UserID)

	// 壊れたトークンはゲスト扱いにしない
	rec = runRequest(t, e, "Bearer broken")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// =====================
// AdminRoleGuard / ActiveUserGuard
// =====================

func TestAdminRoleGuard(t *testing.T) {
	e := echo.New()
	e.GET("/protected", echoIdentity, AuthJWT(testCfg), AdminRoleGuard())

	rec := runRequest(t, e, "Bearer "+validJWT(t, 1, "USER"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "admin only", decodeError(t, rec))

	rec = runRequest(t, e, "Bearer "+validJWT(t, 1, "ADMIN"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestActiveUserGuard(t *testing.T) {
	t.Run("missing context", func(t *testing.T) {
		e := echo.New()
		e.GET("/protected", echoIdentity, ActiveUserGuard(new(MockUserRepoForMiddleware)))

		rec := runRequest(t, e, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("deleted user", func(t *testing.T) {
		userRepo := new(MockUserRepoForMiddleware)
		userRepo.On("FindByID", mock.Anything, int64(1)).Return(nil, repository.ErrUserNotFound)

		e := echo.New()
		e.GET("/protected", echoIdentity, AuthJWT(testCfg), ActiveUserGuard(userRepo))

		rec := runRequest(t, e, "Bearer "+validJWT(t, 1, "USER"))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		userRepo.AssertExpectations(t)
	})

	t.Run("inactive user", func(t *testing.T) {
		userRepo := new(MockUserRepoForMiddleware)
		userRepo.On("FindByID", mock.Anything, int64(1)).Return(&model.User{ID: 1, Role: model.RoleUser, IsActive: false}, nil)

		e := echo.New()
		e.GET("/protected", echoIdentity, AuthJWT(testCfg), ActiveUserGuard(userRepo))

		rec := runRequest(t, e, "Bearer "+validJWT(t, 1, "USER"))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("demoted admin", func(t *testing.T) {
		userRepo := new(MockUserRepoForMiddleware)
		userRepo.On("FindByID", mock.Anything, int64(1)).Return(&model.User{ID: 1, Role: model.RoleUser, IsActive: true}, nil)

		e := echo.New()
		e.GET("/protected", echoIdentity, AuthJWT(testCfg), ActiveUserGuard(userRepo), AdminRoleGuard())

		// トークン上はADMINでもDBがUSERなら403
		rec := runRequest(t, e, "Bearer "+validJWT(t, 1, "ADMIN"))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

// =====================
// RequestLogger
// =====================

func TestRequestLogger_Levels(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	e := echo.New()
	e.Use(RequestLogger(zap.New(core)))
	e.GET("/ok", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/bad", func(c echo.Context) error { return c.NoContent(http.StatusBadRequest) })
	e.GET("/boom", func(c echo.Context) error {
		c.Set(CtxErrorKey, errors.New("db down"))
		return c.NoContent(http.StatusInternalServerError)
	})

	for _, path := range []string{"/ok", "/bad", "/boom"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, "db down", entries[2].ContextMap()["error"])
	assert.Equal(t, "/boom", entries[2].ContextMap()["path"])
}

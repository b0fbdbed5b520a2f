package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/repository"
	"storefront/internal/usecase"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// =====================
// Mock: UserRepository
// =====================

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *model.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	args := m.Called(ctx, email)
	u, _ := args.Get(0).(*model.User)
	return u, args.Error(1)
}

func (m *MockUserRepository) FindByID(ctx context.Context, id int64) (*model.User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(*model.User)
	return u, args.Error(1)
}

func (m *MockUserRepository) Update(ctx context.Context, user *model.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

var _ repository.UserRepository = (*MockUserRepository)(nil)

// =====================
// Mock: CartMerger
// =====================

type MockCartMerger struct {
	mock.Mock
}

func (m *MockCartMerger) MergeOnLogin(ctx context.Context, userID int64, guestItems []usecase.CartLine) (usecase.MergeResult, error) {
	args := m.Called(ctx, userID, guestItems)
	res, _ := args.Get(0).(usecase.MergeResult)
	return res, args.Error(1)
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// テストは速さ優先
const testCost = 4

func mustHash(t *testing.T, plain string) string {
	t.Helper()
	h, err := NewBcryptPasswordHasher(testCost).Hash(plain)
	require.NoError(t, err)
	return h
}

// =====================
// Register
// =====================

func TestRegisterUser_Success(t *testing.T) {
	ctx := context.Background()
	userRepo := new(MockUserRepository)

	userRepo.On("FindByEmail", ctx, "new@example.com").Return(nil, repository.ErrUserNotFound)
	userRepo.On("Create", ctx, mock.MatchedBy(func(u *model.User) bool {
		return u.Email == "new@example.com" && u.Role == model.RoleUser && u.PasswordHash != "correct horse battery"
	})).Run(func(args mock.Arguments) {
		args.Get(1).(*model.User).ID = 7
	}).Return(nil)

	uc := NewRegisterUserUsecase(userRepo, NewBcryptPasswordHasher(testCost))
	out, err := uc.Execute(ctx, RegisterUserInput{Email: "  New@Example.com ", Password: "correct horse battery"})

	require.NoError(t, err)
	assert.Equal(t, int64(7), out.User.ID)
	assert.True(t, NewBcryptPasswordVerifier().Verify("correct horse battery", out.User.PasswordHash))
	userRepo.AssertExpectations(t)
}

func TestRegisterUser_Validation(t *testing.T) {
	uc := NewRegisterUserUsecase(new(MockUserRepository), NewBcryptPasswordHasher(testCost))

	tests := []struct {
		name     string
		email    string
		password string
		want     error
	}{
		{"bad email", "nope", "correct horse battery", ErrInvalidEmailFormat},
		{"short password", "a@example.com", "short", ErrPasswordTooShort},
		{"display name form", "Alice <alice@example.com>", "correct horse battery", ErrInvalidEmailFormat},
		{"short in runes", "a@example.com", "ありがとうございました", ErrPasswordTooShort},
		{"too long for bcrypt", "a@example.com", strings.Repeat("ab", 37), ErrPasswordTooLong},
		{"weak password", "a@example.com", "123456789012", ErrWeakPassword},
		{"common password any case", "a@example.com", "PassWord1234", ErrWeakPassword},
		{"single repeated char", "a@example.com", "zzzzzzzzzzzzzz", ErrWeakPassword},
		{"contains email local part", "alice@example.com", "my-Alice-secret-2026", ErrWeakPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := uc.Execute(context.Background(), RegisterUserInput{Email: tt.email, Password: tt.password})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

// 短いローカル部は偶然含まれても弾かない
func TestRegisterUser_ShortLocalPartNotChecked(t *testing.T) {
	assert.NoError(t, checkPassword("a long enough pass phrase", "a@example.com"))
	assert.NoError(t, checkPassword("bob-builder-lives-here", "bob@example.com"))
}

func TestRegisterUser_Duplicate(t *testing.T) {
	ctx := context.Background()

	t.Run("found before insert", func(t *testing.T) {
		userRepo := new(MockUserRepository)
		userRepo.On("FindByEmail", ctx, "a@example.com").Return(&model.User{ID: 1}, nil)

		_, err := NewRegisterUserUsecase(userRepo, NewBcryptPasswordHasher(testCost)).
			Execute(ctx, RegisterUserInput{Email: "a@example.com", Password: "correct horse battery"})
		assert.ErrorIs(t, err, ErrEmailAlreadyExists)
		userRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("unique constraint", func(t *testing.T) {
		userRepo := new(MockUserRepository)
		userRepo.On("FindByEmail", ctx, "a@example.com").Return(nil, repository.ErrUserNotFound)
		userRepo.On("Create", ctx, mock.Anything).Return(repository.ErrDuplicateEmail)

		_, err := NewRegisterUserUsecase(userRepo, NewBcryptPasswordHasher(testCost)).
			Execute(ctx, RegisterUserInput{Email: "a@example.com", Password: "correct horse battery"})
		assert.ErrorIs(t, err, ErrEmailAlreadyExists)
	})
}

// =====================
// Login
// =====================

func TestLogin_SuccessMergesGuestCart(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	user := &model.User{ID: 3, Email: "a@example.com", PasswordHash: mustHash(t, "correct horse battery"), Role: model.RoleUser, IsActive: true}
	guest := []usecase.CartLine{{ProductID: 10, Quantity: 2}}
	merged := usecase.MergeResult{Merged: guest, Skipped: []usecase.SkippedLine{}}

	userRepo := new(MockUserRepository)
	userRepo.On("FindByEmail", ctx, "a@example.com").Return(user, nil)
	userRepo.On("Update", ctx, mock.MatchedBy(func(u *model.User) bool {
		return u.LastLoginAt != nil && u.LastLoginAt.Equal(now)
	})).Return(nil)

	merger := new(MockCartMerger)
	merger.On("MergeOnLogin", ctx, int64(3), guest).Return(merged, nil)

	uc := NewLoginUsecase(userRepo, NewBcryptPasswordVerifier(), NewHS256Issuer("test-secret", 0), merger, fixedClock{t: now})
	out, err := uc.Execute(ctx, LoginInput{Email: "a@example.com", Password: "correct horse battery", GuestCart: guest})

	require.NoError(t, err)
	assert.True(t, out.ClearGuestCart)
	assert.Equal(t, merged, out.Merge)
	assert.Equal(t, int(AccessTokenTTL.Seconds()), out.Token.ExpiresIn)

	claims := jwt.MapClaims{}
	_, err = jwt.NewParser(jwt.WithoutClaimsValidation()).ParseWithClaims(out.Token.AccessToken, claims, func(*jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, float64(3), claims["sub"])
	assert.Equal(t, "USER", claims["role"])

	userRepo.AssertExpectations(t)
	merger.AssertExpectations(t)
}

func TestLogin_WithoutGuestCartSkipsMerge(t *testing.T) {
	ctx := context.Background()
	user := &model.User{ID: 3, Email: "a@example.com", PasswordHash: mustHash(t, "correct horse battery"), IsActive: true}

	userRepo := new(MockUserRepository)
	userRepo.On("FindByEmail", ctx, "a@example.com").Return(user, nil)
	userRepo.On("Update", ctx, mock.Anything).Return(nil)
	merger := new(MockCartMerger)

	uc := NewLoginUsecase(userRepo, NewBcryptPasswordVerifier(), NewHS256Issuer("s", 0), merger, fixedClock{t: time.Now()})
	out, err := uc.Execute(ctx, LoginInput{Email: "a@example.com", Password: "correct horse battery"})

	require.NoError(t, err)
	assert.Empty(t, out.Merge.Merged)
	merger.AssertNotCalled(t, "MergeOnLogin", mock.Anything, mock.Anything, mock.Anything)
}

func TestLogin_Failures(t *testing.T) {
	ctx := context.Background()
	hash := mustHash(t, "correct horse battery")

	tests := []struct {
		name     string
		user     *model.User
		findErr  error
		password string
		want     error
	}{
		{"unknown email", nil, repository.ErrUserNotFound, "correct horse battery", ErrInvalidCredentials},
		{"wrong password", &model.User{ID: 1, PasswordHash: hash, IsActive: true}, nil, "wrong password!!", ErrInvalidCredentials},
		{"inactive", &model.User{ID: 1, PasswordHash: hash, IsActive: false}, nil, "correct horse battery", ErrUserInactive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			userRepo := new(MockUserRepository)
			userRepo.On("FindByEmail", ctx, "a@example.com").Return(tt.user, tt.findErr)

			uc := NewLoginUsecase(userRepo, NewBcryptPasswordVerifier(), NewHS256Issuer("s", 0), nil, fixedClock{t: time.Now()})
			_, err := uc.Execute(ctx, LoginInput{Email: "a@example.com", Password: tt.password})
			assert.ErrorIs(t, err, tt.want)
			userRepo.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
		})
	}
}

func TestLogin_MergeErrorFailsLogin(t *testing.T) {
	ctx := context.Background()
	user := &model.User{ID: 3, PasswordHash: mustHash(t, "correct horse battery"), IsActive: true}

	userRepo := new(MockUserRepository)
	userRepo.On("FindByEmail", ctx, "a@example.com").Return(user, nil)
	userRepo.On("Update", ctx, mock.Anything).Return(nil)
	merger := new(MockCartMerger)
	merger.On("MergeOnLogin", ctx, int64(3), mock.Anything).Return(nil, errors.New("db down"))

	uc := NewLoginUsecase(userRepo, NewBcryptPasswordVerifier(), NewHS256Issuer("s", 0), merger, fixedClock{t: time.Now()})
	_, err := uc.Execute(ctx, LoginInput{Email: "a@example.com", Password: "correct horse battery", GuestCart: []usecase.CartLine{{ProductID: 1, Quantity: 1}}})
	assert.Error(t, err)
}

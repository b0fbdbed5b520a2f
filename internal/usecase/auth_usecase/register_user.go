package auth

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/domain/model"
	"storefront/internal/repository"
)

type RegisterUserInput struct {
	Email    string
	Password string
}

type RegisterUserOutput struct {
	User model.User
}

var (
	// 入力が不正
	ErrInvalidEmailFormat = errors.New("invalid email format")
	ErrPasswordTooShort   = errors.New("password too short")
	ErrPasswordTooLong    = errors.New("password too long")
	ErrWeakPassword       = errors.New("weak password")

	// 競合
	ErrEmailAlreadyExists = errors.New("email already exists")
)

// 会員登録。
// 登録しても過去のゲスト注文には紐付けない（紐付けは決済確定時だけ）。
type RegisterUserUsecase struct {
	userRepo repository.UserRepository
	hasher   PasswordHasher
}

func NewRegisterUserUsecase(userRepo repository.UserRepository, hasher PasswordHasher) *RegisterUserUsecase {
	return &RegisterUserUsecase{userRepo: userRepo, hasher: hasher}
}

func (u *RegisterUserUsecase) Execute(ctx context.Context, in RegisterUserInput) (RegisterUserOutput, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return RegisterUserOutput{}, err
	}
	if err := checkPassword(in.Password, email); err != nil {
		return RegisterUserOutput{}, err
	}

	// 先に見つかれば早く返す。同時登録はCreateのユニーク制約で弾く
	_, err = u.userRepo.FindByEmail(ctx, email)
	switch {
	case err == nil:
		return RegisterUserOutput{}, ErrEmailAlreadyExists
	case !errors.Is(err, repository.ErrUserNotFound):
		return RegisterUserOutput{}, fmt.Errorf("find user: %w", err)
	}

	hashed, err := u.hasher.Hash(in.Password)
	if err != nil {
		return RegisterUserOutput{}, fmt.Errorf("hash password: %w", err)
	}

	user := model.User{
		Email:        email,
		PasswordHash: hashed,
		Role:         model.RoleUser,
		IsActive:     true,
	}
	err = u.userRepo.Create(ctx, &user)
	switch {
	case errors.Is(err, repository.ErrDuplicateEmail):
		return RegisterUserOutput{}, ErrEmailAlreadyExists
	case err != nil:
		return RegisterUserOutput{}, fmt.Errorf("create user: %w", err)
	}

	return RegisterUserOutput{User: user}, nil
}

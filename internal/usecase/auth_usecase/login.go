package auth

import (
	"context"
	"errors"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/repository"
	"storefront/internal/usecase"
)

// handlerからusecaseに渡す入力
type LoginInput struct {
	Email     string
	Password  string
	GuestCart []usecase.CartLine
}

// token 形（JwtAccessToken相当）
type JwtAccessToken struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// handlerがJSONにして返す
// ClearGuestCart はクライアント側のゲストカートを消してよいという合図
type LoginOutput struct {
	User           model.User          `json:"user"`
	Token          JwtAccessToken      `json:"token"`
	Merge          usecase.MergeResult `json:"merge"`
	ClearGuestCart bool                `json:"clear_guest_cart"`
}

// メールまたはパスワードが違う
var ErrInvalidCredentials = errors.New("invalid credentials")

// 停止済みユーザー
var ErrUserInactive = errors.New("user is inactive")

// JWTを発行する約束
type AccessTokenIssuer interface {
	Issue(userID int64, role model.Role, now time.Time) (token string, expiresAt time.Time, err error)
}

// 入力パスワードと保存したハッシュを比べる約束
type PasswordVerifier interface {
	Verify(plain string, hashed string) bool
}

// ゲストカートを会員カートへ
type CartMerger interface {
	MergeOnLogin(ctx context.Context, userID int64, guestItems []usecase.CartLine) (usecase.MergeResult, error)
}

type LoginUsecase struct {
	userRepo repository.UserRepository
	verifier PasswordVerifier
	issuer   AccessTokenIssuer
	merger   CartMerger
	clock    usecase.Clock
}

func NewLoginUsecase(
	userRepo repository.UserRepository,
	verifier PasswordVerifier,
	issuer AccessTokenIssuer,
	merger CartMerger,
	clock usecase.Clock,
) *LoginUsecase {
	return &LoginUsecase{
		userRepo: userRepo,
		verifier: verifier,
		issuer:   issuer,
		merger:   merger,
		clock:    clock,
	}
}

// ログイン処理を実行する
func (u *LoginUsecase) Execute(ctx context.Context, in LoginInput) (LoginOutput, error) {
	var out LoginOutput

	//emailでユーザー取得
	user, err := u.userRepo.FindByEmail(ctx, canonicalEmail(in.Email))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return out, ErrInvalidCredentials
		}
		return out, err
	}

	//停止ユーザーはログイン不可
	if !user.IsActive {
		return out, ErrUserInactive
	}

	//パスワード照合
	if ok := u.verifier.Verify(in.Password, user.PasswordHash); !ok {
		return out, ErrInvalidCredentials
	}

	//AccessToken発行
	now := u.clock.Now()
	accessToken, accessExp, err := u.issuer.Issue(user.ID, user.Role, now)
	if err != nil {
		return out, err
	}

	//最終ログイン時刻更新
	user.LastLoginAt = &now
	if err := u.userRepo.Update(ctx, user); err != nil {
		return out, err
	}

	//ゲストカートのマージ（使えない行は飛ばすだけでログインは失敗させない）
	merge := usecase.MergeResult{Merged: []usecase.CartLine{}, Skipped: []usecase.SkippedLine{}}
	if len(in.GuestCart) > 0 && u.merger != nil {
		merge, err = u.merger.MergeOnLogin(ctx, user.ID, in.GuestCart)
		if err != nil {
			return out, err
		}
	}

	out.User = *user
	out.Token = JwtAccessToken{
		AccessToken: accessToken,
		ExpiresIn:   int(accessExp.Sub(now).Seconds()),
	}
	out.Merge = merge
	out.ClearGuestCart = true
	return out, nil
}

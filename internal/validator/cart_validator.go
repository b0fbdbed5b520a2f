package validator

import (
	"errors"
	"strings"

	"storefront/internal/usecase"
)

// クライアントが持つカートの上限
const (
	MaxCartLines    = 100
	MaxLineQuantity = 999
	maxEmailLength  = 254
)

var (
	// 入力が不正
	ErrInvalidInput = errors.New("invalid input")

	// 行数・数量が多すぎる
	ErrCartTooLarge = errors.New("cart too large")
)

// ゲストが送ってくるカートの形だけ見る。
// 商品の有無や在庫はusecase側で見る。
func ValidateGuestCart(items []usecase.CartLine) error {
	if len(items) > MaxCartLines {
		return ErrCartTooLarge
	}
	for _, it := range items {
		if it.ProductID <= 0 || it.Quantity < 1 {
			return ErrInvalidInput
		}
		if it.Quantity > MaxLineQuantity {
			return ErrCartTooLarge
		}
	}
	return nil
}

// ゲスト注文のメール（形式はusecaseで見る）
func ValidateGuestEmail(email string) error {
	email = strings.TrimSpace(email)

	// 必須チェック
	if email == "" || len(email) > maxEmailLength {
		return ErrInvalidInput
	}
	return nil
}

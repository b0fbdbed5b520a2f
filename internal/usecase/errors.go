package usecase

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// 入力エラーや認証エラー用（handlerがそのままステータスにする）
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func NewHTTPError(status int, message string) error {
	return &HTTPError{
		Status:  status,
		Message: message,
	}
}

func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}

var (
	// 識別子がない、カートが空など
	ErrInvalidOrderRequest = errors.New("invalid order request")
	// 商品が無い or 非公開（カート操作）
	ErrProductUnavailable = errors.New("product unavailable")
	// Webhookの署名が不正
	ErrInvalidSignature = errors.New("invalid signature")
	ErrOrderNotFound    = errors.New("order not found")
	// 許可されていない状態遷移
	ErrInvalidStatusTransition = errors.New("invalid status transition")
)

// 注文に使えない商品がある
type ProductsUnavailableError struct {
	ProductIDs []int64
}

func (e *ProductsUnavailableError) Error() string {
	ids := make([]string, 0, len(e.ProductIDs))
	for _, id := range e.ProductIDs {
		ids = append(ids, strconv.FormatInt(id, 10))
	}
	return "products unavailable: " + strings.Join(ids, ",")
}

// 在庫が足りない
type InsufficientStockError struct {
	ProductID int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: product %d", e.ProductID)
}

// 決済セッションが作れなかった。注文は残っているので再試行できる。
type PaymentProviderError struct {
	OrderID string
	Err     error
}

func (e *PaymentProviderError) Error() string {
	return fmt.Sprintf("payment provider error (order %s): %v", e.OrderID, e.Err)
}

func (e *PaymentProviderError) Unwrap() error {
	return e.Err
}

package payments

import (
	"context"
	"errors"

	"storefront/internal/domain/model"
)

// 署名検証に失敗した
var ErrInvalidSignature = errors.New("payments: invalid signature")

// 決済完了イベント
const EventCheckoutCompleted = "checkout.session.completed"

// 注文IDを入れるmetadataのキー
const MetadataOrderID = "order_id"

// 決済画面に出す明細（注文作成時の金額をそのまま渡す）
type LineItem struct {
	Name            string
	Quantity        int64
	UnitAmountCents int64
}

type CheckoutSessionRequest struct {
	OrderID       string
	Currency      string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	Items         []LineItem
}

type CheckoutSession struct {
	ID          string
	RedirectURL string
	IntentID    string
}

// 検証済みのWebhookイベント。
// OrderIDなどは決済完了イベントのときだけ入る。
type Event struct {
	ID              string
	Type            string
	OrderID         string
	PaymentIntentID string
	CustomerID      string
	CustomerEmail   string
	BillingAddress  *model.Address
	ShippingAddress *model.Address
}

// 外部の決済サービス
type Provider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error)
	// 署名が不正なら ErrInvalidSignature
	VerifyAndParseEvent(payload []byte, signature string) (Event, error)
}

package notify

import (
	"context"
	"time"

	"storefront/internal/domain/model"
)

const (
	TypeOrderConfirmation   = "order_confirmation"
	TypePaymentConfirmation = "payment_confirmation"
)

// 通知の送信先（メールなど）は受け取り側のサービスが決める
type Notifier interface {
	SendOrderConfirmation(ctx context.Context, order model.Order) error
	SendPaymentConfirmation(ctx context.Context, order model.Order) error
}

// 送るメッセージ本体
type Message struct {
	Type       string        `json:"type"`
	OrderID    string        `json:"order_id"`
	Email      string        `json:"email"`
	TotalCents int64         `json:"total_cents"`
	Currency   string        `json:"currency"`
	Items      []MessageItem `json:"items"`
	SentAt     time.Time     `json:"sent_at"`
}

type MessageItem struct {
	ProductName    string `json:"product_name"`
	Quantity       int64  `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

func newMessage(typ string, order model.Order, now time.Time) Message {
	items := make([]MessageItem, 0, len(order.Items))
	for _, it := range order.Items {
		items = append(items, MessageItem{
			ProductName:    it.ProductName,
			Quantity:       it.Quantity,
			UnitPriceCents: it.UnitPriceCents,
		})
	}
	return Message{
		Type:       typ,
		OrderID:    order.ID,
		Email:      order.ContactEmail,
		TotalCents: order.TotalCents,
		Currency:   order.Currency,
		Items:      items,
		SentAt:     now.UTC(),
	}
}

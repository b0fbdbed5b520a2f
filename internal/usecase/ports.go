package usecase

import (
	"context"
	"time"

	"storefront/internal/domain/model"
)

// 注文・決済の通知（失敗しても処理は止めない）
type Notifier interface {
	SendOrderConfirmation(ctx context.Context, order model.Order) error
	SendPaymentConfirmation(ctx context.Context, order model.Order) error
}

// 処理済みWebhookイベントの記録
type EventLedger interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Mark(ctx context.Context, eventID string) error
}

// UUID 等のIDを作る約束
type IDGenerator interface {
	NewID() string
}

// 現在の時間
type Clock interface {
	Now() time.Time
}

// 通知の待ち時間の上限
const notifyTimeout = 3 * time.Second

// 呼び出し元のキャンセルに引きずられないように切り離す
func notifyContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
}

package repository

import (
	"context"
	"time"

	"storefront/internal/domain/model"
)

// 注文の更新項目。nilの項目は変更しない。
// 金額と明細はここに含めない（作成後は不変）。
type OrderUpdate struct {
	OrderStatus         *model.OrderStatus
	PaymentStatus       *model.PaymentStatus
	UserID              *int64
	CheckoutSessionID   *string
	PaymentIntentID     *string
	ShippingAddressJSON *string
	BillingAddressJSON  *string
	PaidAt              *time.Time
}

// 何も変更しないか
func (u OrderUpdate) IsEmpty() bool {
	return u.OrderStatus == nil && u.PaymentStatus == nil && u.UserID == nil &&
		u.CheckoutSessionID == nil && u.PaymentIntentID == nil &&
		u.ShippingAddressJSON == nil && u.BillingAddressJSON == nil && u.PaidAt == nil
}

type OrderRepository interface {
	Create(ctx context.Context, order *model.Order) error
	FindByID(ctx context.Context, orderID string) (model.Order, error)
	// Tx内で使う。決済確定など、同じ注文への更新を直列化する。
	FindByIDForUpdate(ctx context.Context, orderID string) (model.Order, error)
	ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Order, int64, error)
	Update(ctx context.Context, orderID string, upd OrderUpdate) error
}

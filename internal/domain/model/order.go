package model

import "time"

type OrderStatus string

const (
	OrderStatusDraft     OrderStatus = "DRAFT"
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusPaid      OrderStatus = "PAID"
	OrderStatusFulfilled OrderStatus = "FULFILLED"
	OrderStatusCanceled  OrderStatus = "CANCELED"
	OrderStatusRefunded  OrderStatus = "REFUNDED"
)

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusPaid     PaymentStatus = "PAID"
	PaymentStatusFailed   PaymentStatus = "FAILED"
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

// 注文。作成後に金額と明細は変えない。
// 更新できるのはステータスと決済プロバイダのIDと住所スナップショットだけ。
type Order struct {
	ID     string `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID *int64 `gorm:"index" json:"user_id"`

	//ゲスト注文のときだけ入る
	GuestEmail *string `gorm:"type:varchar(255);index" json:"guest_email,omitempty"`

	//通知先（user.email か guestEmail）
	ContactEmail string `gorm:"type:varchar(255);not null" json:"contact_email"`

	Currency      string `gorm:"type:varchar(3);not null" json:"currency"`
	SubtotalCents int64  `gorm:"not null" json:"subtotal_cents"`
	TaxCents      int64  `gorm:"not null" json:"tax_cents"`
	ShippingCents int64  `gorm:"not null" json:"shipping_cents"`
	TotalCents    int64  `gorm:"not null" json:"total_cents"`

	OrderStatus   OrderStatus   `gorm:"type:varchar(20);not null;index" json:"order_status"`
	PaymentStatus PaymentStatus `gorm:"type:varchar(20);not null;index" json:"payment_status"`

	//決済確定時に入る（JSON文字列）
	ShippingAddressJSON string `gorm:"type:text" json:"shipping_address,omitempty"`
	BillingAddressJSON  string `gorm:"type:text" json:"billing_address,omitempty"`

	CheckoutSessionID *string    `gorm:"type:varchar(255);index" json:"checkout_session_id,omitempty"`
	PaymentIntentID   *string    `gorm:"type:varchar(255)" json:"payment_intent_id,omitempty"`
	PaidAt            *time.Time `json:"paid_at,omitempty"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`

	Items []OrderItem `gorm:"-" json:"items"`
}

// ゲスト注文か
func (o Order) IsGuest() bool {
	return o.UserID == nil
}

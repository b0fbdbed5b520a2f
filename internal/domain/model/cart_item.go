package model

import "time"

// カートの明細
// UnitPriceCentsAtAdd は追加時点の価格（表示用。注文では使わない）
type CartItem struct {
	ID                  int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CartID              int64     `gorm:"not null;uniqueIndex:idx_cart_items_cart_product" json:"cart_id"`
	ProductID           int64     `gorm:"not null;uniqueIndex:idx_cart_items_cart_product" json:"product_id"`
	Quantity            int64     `gorm:"not null" json:"quantity"`
	UnitPriceCentsAtAdd int64     `gorm:"not null;column:unit_price_cents_at_add" json:"unit_price_cents_at_add"`
	CreatedAt           time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

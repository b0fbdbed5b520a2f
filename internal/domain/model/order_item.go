package model

import "time"

// 注文明細。商品名と単価は作成時点のコピー。
// ProductID は商品が消えても残るように nullable。
type OrderItem struct {
	ID              int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID         string    `gorm:"type:varchar(36);not null;index" json:"order_id"`
	ProductID       *int64    `gorm:"index" json:"product_id"`
	ProductName     string    `gorm:"type:varchar(255);not null" json:"product_name"`
	Quantity        int64     `gorm:"not null" json:"quantity"`
	UnitPriceCents  int64     `gorm:"not null" json:"unit_price_cents"`
	TotalPriceCents int64     `gorm:"not null" json:"total_price_cents"`
	CreatedAt       time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}

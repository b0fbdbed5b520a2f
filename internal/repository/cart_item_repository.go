package repository

import (
	"context"

	"storefront/internal/domain/model"
)

type CartItemRepository interface {
	ListByCartID(ctx context.Context, cartID int64) ([]model.CartItem, error)
	FindByCartAndProduct(ctx context.Context, cartID int64, productID int64) (model.CartItem, error)
	// 数量を絶対値でセット（無ければ作成）
	SetQuantity(ctx context.Context, cartID int64, productID int64, qty int64, unitPriceCentsAtAdd int64) error
	// 無ければ何もしない
	DeleteByCartAndProduct(ctx context.Context, cartID int64, productID int64) error
}

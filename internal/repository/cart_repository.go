package repository

import (
	"context"

	"storefront/internal/domain/model"
)

type CartRepository interface {
	// ユーザーのカートを行ロック付きで取得し、無ければ作る。
	// 同じユーザーへの操作はここで直列化される。
	GetOrCreateForUpdate(ctx context.Context, userID int64) (model.Cart, error)
	FindByUserID(ctx context.Context, userID int64) (model.Cart, error)
	Clear(ctx context.Context, cartID int64) error
}

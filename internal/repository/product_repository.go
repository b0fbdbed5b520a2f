package repository

import (
	"context"
	"errors"

	"storefront/internal/domain/model"
)

var ErrNotFound = errors.New("not found")

// 商品の取得だけを約束（カタログ管理は別システム）。
type ProductRepository interface {
	FindByID(ctx context.Context, id int64) (model.Product, error)

	// 公開中（is_active=true）の商品だけを1回のクエリで返す。
	// 見つからないIDは結果に含まれない。
	FindActiveByIDs(ctx context.Context, ids []int64) ([]model.Product, error)
}

package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"
)

// CartUsecase は会員カートの更新です。
// どの操作もカート行をロックしてから読む→チェック→書くので、
// 同じユーザーの同時リクエストが在庫チェックをすり抜けない。
type CartUsecase struct {
	tx repo.TransactionManager
}

func NewCartUsecase(tx repo.TransactionManager) *CartUsecase {
	return &CartUsecase{tx: tx}
}

// AddToCart はカートに追加（同一商品は数量加算）。
func (u *CartUsecase) AddToCart(ctx context.Context, userID int64, productID int64, quantity int64) error {
	if err := validateCartInput(userID, productID); err != nil {
		return err
	}
	if quantity < 1 {
		return NewHTTPError(http.StatusBadRequest, "invalid quantity")
	}

	return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		cart, err := r.Carts().GetOrCreateForUpdate(ctx, userID)
		if err != nil {
			return fmt.Errorf("lock cart: %w", err)
		}

		p, err := findAvailableProduct(ctx, r, productID)
		if err != nil {
			return err
		}

		var existingQty int64
		item, err := r.CartItems().FindByCartAndProduct(ctx, cart.ID, productID)
		switch {
		case err == nil:
			existingQty = item.Quantity
		case errors.Is(err, repo.ErrNotFound):
		default:
			return fmt.Errorf("find cart item: %w", err)
		}

		newQty := existingQty + quantity
		if newQty > p.Stock {
			return &InsufficientStockError{ProductID: productID}
		}

		// 追加時点の価格は表示用
		if err := r.CartItems().SetQuantity(ctx, cart.ID, productID, newQty, p.PriceCents); err != nil {
			return fmt.Errorf("set quantity: %w", err)
		}
		return nil
	})
}

// UpdateQuantity は数量を上書き。0なら削除と同じ。
func (u *CartUsecase) UpdateQuantity(ctx context.Context, userID int64, productID int64, quantity int64) error {
	if err := validateCartInput(userID, productID); err != nil {
		return err
	}
	if quantity < 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid quantity")
	}
	if quantity == 0 {
		return u.RemoveFromCart(ctx, userID, productID)
	}

	return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		cart, err := r.Carts().GetOrCreateForUpdate(ctx, userID)
		if err != nil {
			return fmt.Errorf("lock cart: %w", err)
		}

		p, err := findAvailableProduct(ctx, r, productID)
		if err != nil {
			return err
		}

		// 加算ではなく絶対値でチェック
		if quantity > p.Stock {
			return &InsufficientStockError{ProductID: productID}
		}

		if err := r.CartItems().SetQuantity(ctx, cart.ID, productID, quantity, p.PriceCents); err != nil {
			return fmt.Errorf("set quantity: %w", err)
		}
		return nil
	})
}

// RemoveFromCart は明細を削除。無ければ何もしない。
func (u *CartUsecase) RemoveFromCart(ctx context.Context, userID int64, productID int64) error {
	if err := validateCartInput(userID, productID); err != nil {
		return err
	}

	return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		cart, err := r.Carts().GetOrCreateForUpdate(ctx, userID)
		if err != nil {
			return fmt.Errorf("lock cart: %w", err)
		}
		if err := r.CartItems().DeleteByCartAndProduct(ctx, cart.ID, productID); err != nil {
			return fmt.Errorf("delete cart item: %w", err)
		}
		return nil
	})
}

// ClearCart は全明細を削除。
func (u *CartUsecase) ClearCart(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		cart, err := r.Carts().GetOrCreateForUpdate(ctx, userID)
		if err != nil {
			return fmt.Errorf("lock cart: %w", err)
		}
		if err := r.Carts().Clear(ctx, cart.ID); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}
		return nil
	})
}

func validateCartInput(userID int64, productID int64) error {
	if userID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if productID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid product_id")
	}
	return nil
}

// 公開中の商品だけ返す
func findAvailableProduct(ctx context.Context, r repo.TxRepos, productID int64) (model.Product, error) {
	p, err := r.Products().FindByID(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Product{}, ErrProductUnavailable
	}
	if err != nil {
		return model.Product{}, fmt.Errorf("find product: %w", err)
	}
	if !p.IsActive {
		return model.Product{}, ErrProductUnavailable
	}
	return p, nil
}

package usecase

import (
	"context"
	"errors"
	"fmt"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"
)

// カートの1行
type CartLine struct {
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

// 誰のカートか。UserIDがnilならゲスト。
type Identity struct {
	UserID *int64
}

func GuestIdentity() Identity { return Identity{} }

func UserIdentity(userID int64) Identity { return Identity{UserID: &userID} }

func (i Identity) IsAuthenticated() bool {
	return i.UserID != nil && *i.UserID > 0
}

// 表示用の1行。価格はいつも最新の商品価格。
type SnapshotLine struct {
	ProductID      int64  `json:"product_id"`
	Name           string `json:"name"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	Quantity       int64  `json:"quantity"`
	LineTotalCents int64  `json:"line_total_cents"`
	Stock          int64  `json:"stock"`
	InStock        bool   `json:"in_stock"`
}

type CartTotals struct {
	TotalItems      int64 `json:"total_items"`
	TotalPriceCents int64 `json:"total_price_cents"`
}

type CartSnapshot struct {
	Items []SnapshotLine `json:"items"`
	CartTotals
}

// ログイン時マージの結果
type MergeResult struct {
	Merged  []CartLine    `json:"merged"`
	Skipped []SkippedLine `json:"skipped"`
}

type SkippedLine struct {
	CartLine
	Reason string `json:"reason"`
}

const (
	SkipReasonUnavailable  = "product_unavailable"
	SkipReasonInsufficient = "insufficient_stock"
)

// ゲスト（クライアント保持）と会員（DB）のカートを1つの見え方にする
type CartResolver struct {
	products  repo.ProductRepository
	carts     repo.CartRepository
	cartItems repo.CartItemRepository
	mutations *CartUsecase
}

func NewCartResolver(
	products repo.ProductRepository,
	carts repo.CartRepository,
	cartItems repo.CartItemRepository,
	mutations *CartUsecase,
) *CartResolver {
	return &CartResolver{
		products:  products,
		carts:     carts,
		cartItems: cartItems,
		mutations: mutations,
	}
}

// 表示用のスナップショット。
// 無い商品・非公開の商品は黙って落とす。
func (r *CartResolver) Resolve(ctx context.Context, id Identity, guestItems []CartLine) (CartSnapshot, error) {
	lines, err := r.Lines(ctx, id, guestItems)
	if err != nil {
		return CartSnapshot{}, err
	}
	if len(lines) == 0 {
		return ResolveSnapshot(nil, nil), nil
	}

	live, err := r.products.FindActiveByIDs(ctx, productIDs(lines))
	if err != nil {
		return CartSnapshot{}, fmt.Errorf("find products: %w", err)
	}
	return ResolveSnapshot(lines, live), nil
}

// 注文作成に渡す行（フィルタしない）。
// 会員ならDBのカート、ゲストなら送られてきた行。
func (r *CartResolver) Lines(ctx context.Context, id Identity, guestItems []CartLine) ([]CartLine, error) {
	if !id.IsAuthenticated() {
		return NormalizeLines(guestItems), nil
	}

	cart, err := r.carts.FindByUserID(ctx, *id.UserID)
	if errors.Is(err, repo.ErrNotFound) {
		// まだ一度も追加していない
		return []CartLine{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find cart: %w", err)
	}

	items, err := r.cartItems.ListByCartID(ctx, cart.ID)
	if err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}

	lines := make([]CartLine, 0, len(items))
	for _, it := range items {
		lines = append(lines, CartLine{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return lines, nil
}

// ゲストのカートを会員カートへ足し込む。
// 1行ずつ addToCart と同じ扱い。使えない行は飛ばして結果で返す。
// ゲスト側のリストを消すのはクライアント。
func (r *CartResolver) MergeOnLogin(ctx context.Context, userID int64, guestItems []CartLine) (MergeResult, error) {
	out := MergeResult{Merged: []CartLine{}, Skipped: []SkippedLine{}}

	for _, line := range NormalizeLines(guestItems) {
		err := r.mutations.AddToCart(ctx, userID, line.ProductID, line.Quantity)

		var stockErr *InsufficientStockError
		switch {
		case err == nil:
			out.Merged = append(out.Merged, line)
		case errors.Is(err, ErrProductUnavailable):
			out.Skipped = append(out.Skipped, SkippedLine{CartLine: line, Reason: SkipReasonUnavailable})
		case errors.As(err, &stockErr):
			out.Skipped = append(out.Skipped, SkippedLine{CartLine: line, Reason: SkipReasonInsufficient})
		default:
			return out, err
		}
	}
	return out, nil
}

// 純粋関数。linesの順序を保つ。
func ResolveSnapshot(lines []CartLine, live []model.Product) CartSnapshot {
	byID := make(map[int64]model.Product, len(live))
	for _, p := range live {
		if p.IsActive {
			byID[p.ID] = p
		}
	}

	items := make([]SnapshotLine, 0, len(lines))
	for _, l := range lines {
		p, ok := byID[l.ProductID]
		if !ok || l.Quantity < 1 {
			continue
		}
		items = append(items, SnapshotLine{
			ProductID:      p.ID,
			Name:           p.Name,
			UnitPriceCents: p.PriceCents,
			Quantity:       l.Quantity,
			LineTotalCents: p.PriceCents * l.Quantity,
			Stock:          p.Stock,
			InStock:        p.Stock >= l.Quantity,
		})
	}

	snap := CartSnapshot{Items: items}
	snap.CartTotals = GetTotals(snap)
	return snap
}

// 合計（副作用なし）
func GetTotals(snap CartSnapshot) CartTotals {
	var t CartTotals
	for _, it := range snap.Items {
		t.TotalItems += it.Quantity
		t.TotalPriceCents += it.Quantity * it.UnitPriceCents
	}
	return t
}

// 同じ商品はまとめ、数量0以下は捨てる（最初に出た順）
func NormalizeLines(lines []CartLine) []CartLine {
	out := make([]CartLine, 0, len(lines))
	index := make(map[int64]int, len(lines))
	for _, l := range lines {
		if l.Quantity < 1 || l.ProductID <= 0 {
			continue
		}
		if i, ok := index[l.ProductID]; ok {
			out[i].Quantity += l.Quantity
			continue
		}
		index[l.ProductID] = len(out)
		out = append(out, l)
	}
	return out
}

func productIDs(lines []CartLine) []int64 {
	ids := make([]int64, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	return ids
}

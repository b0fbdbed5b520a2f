package usecase

import (
	"context"
	"errors"
	"testing"

	"storefront/internal/domain/model"
	infrarepo "storefront/internal/infra/repository"
	"storefront/internal/pricing"
	repo "storefront/internal/repository"
	"storefront/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestOrderAssembler_CreateOrder_UsesLivePrices(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := testutil.SeedUser(t, env.db, "a@example.com", model.RoleUser)
	p := testutil.SeedProduct(t, env.db, "P", 900, 5, true)
	q := testutil.SeedProduct(t, env.db, "Q", 500, 5, true)

	// カートに入れた時点では 900
	require.NoError(t, env.carts.AddToCart(ctx, u.ID, p.ID, 2))
	require.NoError(t, env.db.Model(&model.Product{}).Where("id = ?", p.ID).Update("price_cents", 1000).Error)

	order, err := env.assembler.CreateOrder(ctx, CreateOrderInput{
		Lines:  []CartLine{{ProductID: p.ID, Quantity: 2}, {ProductID: q.ID, Quantity: 1}},
		UserID: &u.ID,
	})
	require.NoError(t, err)

	assert.Equal(t, "order-1", order.ID)
	assert.Equal(t, int64(2500), order.SubtotalCents)
	assert.Equal(t, int64(2500), order.TotalCents)
	assert.Equal(t, model.OrderStatusDraft, order.OrderStatus)
	assert.Equal(t, model.PaymentStatusPending, order.PaymentStatus)
	assert.Equal(t, "a@example.com", order.ContactEmail)
	assert.Equal(t, "usd", order.Currency)
	require.NotNil(t, order.UserID)
	assert.Nil(t, order.GuestEmail)

	require.Len(t, order.Items, 2)
	var sum int64
	for _, it := range order.Items {
		assert.Equal(t, it.UnitPriceCents*it.Quantity, it.TotalPriceCents)
		sum += it.TotalPriceCents
	}
	assert.Equal(t, order.SubtotalCents, sum)
	assert.Equal(t, int64(1000), order.Items[0].UnitPriceCents)

	assert.Equal(t, int64(3), testutil.Stock(t, env.db, p.ID))
	assert.Equal(t, int64(4), testutil.Stock(t, env.db, q.ID))

	require.Len(t, env.notifier.orders, 1)
	assert.Equal(t, order.ID, env.notifier.orders[0].ID)
}

func TestOrderAssembler_CreateOrder_AppliesPolicy(t *testing.T) {
	env := newTestEnvWithPolicy(t, pricing.FlatRatePolicy{
		TaxRatePercent:        decimal.RequireFromString("10"),
		ShippingFlatCents:     500,
		FreeShippingOverCents: 5000,
	})
	p := testutil.SeedProduct(t, env.db, "P", 1000, 10, true)

	order, err := env.assembler.CreateOrder(context.Background(), CreateOrderInput{
		Lines:      []CartLine{{ProductID: p.ID, Quantity: 2}},
		GuestEmail: "Guest@Example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(2000), order.SubtotalCents)
	assert.Equal(t, int64(200), order.TaxCents)
	assert.Equal(t, int64(500), order.ShippingCents)
	assert.Equal(t, int64(2700), order.TotalCents)
	require.NotNil(t, order.GuestEmail)
	assert.Equal(t, "guest@example.com", *order.GuestEmail)
	assert.Nil(t, order.UserID)
}

func TestOrderAssembler_CreateOrder_ProductsUnavailable(t *testing.T) {
	env := newTestEnv(t)
	ok := testutil.SeedProduct(t, env.db, "OK", 1000, 5, true)
	gone := testutil.SeedProduct(t, env.db, "Gone", 1000, 5, true)
	require.NoError(t, env.db.Delete(&gone).Error)

	_, err := env.assembler.CreateOrder(context.Background(), CreateOrderInput{
		Lines:      []CartLine{{ProductID: ok.ID, Quantity: 1}, {ProductID: gone.ID, Quantity: 1}},
		GuestEmail: "g@example.com",
	})

	var unavailable *ProductsUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, []int64{gone.ID}, unavailable.ProductIDs)

	assert.Equal(t, int64(0), testutil.Count(t, env.db, &model.Order{}))
	assert.Equal(t, int64(0), testutil.Count(t, env.db, &model.OrderItem{}))
	assert.Equal(t, int64(5), testutil.Stock(t, env.db, ok.ID))
	assert.Empty(t, env.notifier.orders)
}

func TestOrderAssembler_CreateOrder_InsufficientStockIsAtomic(t *testing.T) {
	env := newTestEnv(t)
	a := testutil.SeedProduct(t, env.db, "A", 1000, 5, true)
	b := testutil.SeedProduct(t, env.db, "B", 1000, 1, true)

	_, err := env.assembler.CreateOrder(context.Background(), CreateOrderInput{
		Lines:      []CartLine{{ProductID: a.ID, Quantity: 2}, {ProductID: b.ID, Quantity: 2}},
		GuestEmail: "g@example.com",
	})

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, b.ID, stockErr.ProductID)

	assert.Equal(t, int64(0), testutil.Count(t, env.db, &model.Order{}))
	assert.Equal(t, int64(5), testutil.Stock(t, env.db, a.ID))
	assert.Equal(t, int64(1), testutil.Stock(t, env.db, b.ID))
}

func TestOrderAssembler_CreateOrder_InvalidRequest(t *testing.T) {
	env := newTestEnv(t)
	p := testutil.SeedProduct(t, env.db, "P", 1000, 5, true)
	uid := int64(1)
	lines := []CartLine{{ProductID: p.ID, Quantity: 1}}

	tests := []struct {
		name string
		in   CreateOrderInput
	}{
		{"no identity", CreateOrderInput{Lines: lines}},
		{"both identities", CreateOrderInput{Lines: lines, UserID: &uid, GuestEmail: "g@example.com"}},
		{"bad email", CreateOrderInput{Lines: lines, GuestEmail: "not-an-email"}},
		{"empty cart", CreateOrderInput{GuestEmail: "g@example.com"}},
		{"zero quantity", CreateOrderInput{Lines: []CartLine{{ProductID: p.ID}}, GuestEmail: "g@example.com"}},
		{"unknown user", CreateOrderInput{Lines: lines, UserID: ptr(int64(999))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.assembler.CreateOrder(context.Background(), tt.in)
			assert.ErrorIs(t, err, ErrInvalidOrderRequest)
		})
	}
	assert.Equal(t, int64(0), testutil.Count(t, env.db, &model.Order{}))
	assert.Equal(t, int64(5), testutil.Stock(t, env.db, p.ID))
}

func TestOrderAssembler_OrderItemsAreSnapshots(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := testutil.SeedProduct(t, env.db, "Mug", 1000, 5, true)

	order, err := env.assembler.CreateOrder(ctx, CreateOrderInput{
		Lines:      []CartLine{{ProductID: p.ID, Quantity: 1}},
		GuestEmail: "g@example.com",
	})
	require.NoError(t, err)

	require.NoError(t, env.db.Model(&model.Product{}).Where("id = ?", p.ID).
		Updates(map[string]interface{}{"name": "Renamed", "price_cents": 5000}).Error)
	require.NoError(t, env.db.Delete(&model.Product{}, p.ID).Error)

	items, err := infrarepo.NewOrderItemGormRepository(env.db).ListByOrderID(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Mug", items[0].ProductName)
	assert.Equal(t, int64(1000), items[0].UnitPriceCents)

	stored := env.loadOrder(t, order.ID)
	assert.Equal(t, int64(1000), stored.TotalCents)
}

func TestOrderAssembler_ConcurrentOrdersForLastUnit(t *testing.T) {
	env := newTestEnv(t)
	p := testutil.SeedProduct(t, env.db, "Last", 1000, 1, true)

	var g errgroup.Group
	results := make([]error, 5)
	for i := range results {
		i := i
		g.Go(func() error {
			_, results[i] = env.assembler.CreateOrder(context.Background(), CreateOrderInput{
				Lines:      []CartLine{{ProductID: p.ID, Quantity: 1}},
				GuestEmail: "g@example.com",
			})
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var ok int
	for _, err := range results {
		var stockErr *InsufficientStockError
		if err == nil {
			ok++
			continue
		}
		assert.True(t, errors.As(err, &stockErr), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, int64(0), testutil.Stock(t, env.db, p.ID))
	assert.Equal(t, int64(1), testutil.Count(t, env.db, &model.Order{}))
}

func TestOrderAssembler_NotifierFailureDoesNotFailOrder(t *testing.T) {
	env := newTestEnv(t)
	env.notifier.err = errors.New("broker down")
	p := testutil.SeedProduct(t, env.db, "P", 1000, 5, true)

	order, err := env.assembler.CreateOrder(context.Background(), CreateOrderInput{
		Lines:      []CartLine{{ProductID: p.ID, Quantity: 1}},
		GuestEmail: "g@example.com",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, order.ID)
	assert.Equal(t, int64(1), testutil.Count(t, env.db, &model.Order{}))
}

// 検証の読み取りは通ったのに減算で負けたら、作った注文と先に減らした在庫も戻る
func TestOrderAssembler_CreateOrder_LostDecrementRollsBack(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := testutil.SeedProduct(t, env.db, "P", 1000, 5, true)
	q := testutil.SeedProduct(t, env.db, "Q", 500, 5, true)

	tx := hookedTx{TransactionManager: env.tx, wrap: func(r repo.TxRepos) repo.TxRepos {
		return hookedRepos{TxRepos: r, inventory: lostRaceInventory{InventoryRepository: r.Inventory(), lost: q.ID}}
	}}
	assembler := NewOrderAssembler(tx, pricing.Zero{}, "usd", &seqIDGen{}, env.notifier, nil)

	_, err := assembler.CreateOrder(ctx, CreateOrderInput{
		Lines:      []CartLine{{ProductID: p.ID, Quantity: 2}, {ProductID: q.ID, Quantity: 1}},
		GuestEmail: "g@example.com",
	})

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, q.ID, stockErr.ProductID)

	assert.Equal(t, int64(0), testutil.Count(t, env.db, &model.Order{}))
	assert.Equal(t, int64(0), testutil.Count(t, env.db, &model.OrderItem{}))
	assert.Equal(t, int64(5), testutil.Stock(t, env.db, p.ID))
	assert.Equal(t, int64(5), testutil.Stock(t, env.db, q.ID))
	assert.Empty(t, env.notifier.orders)
}

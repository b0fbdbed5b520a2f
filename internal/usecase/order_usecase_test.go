package usecase

import (
	"context"
	"testing"

	"storefront/internal/domain/model"
	infrarepo "storefront/internal/infra/repository"
	"storefront/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderUsecase_ListAndDetail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := testutil.SeedUser(t, env.db, "owner@example.com", model.RoleUser)
	other := testutil.SeedUser(t, env.db, "other@example.com", model.RoleUser)
	p := testutil.SeedProduct(t, env.db, "Mug", 1000, 10, true)

	var ids []string
	for i := 0; i < 3; i++ {
		o, err := env.assembler.CreateOrder(ctx, CreateOrderInput{
			Lines:  []CartLine{{ProductID: p.ID, Quantity: 1}},
			UserID: &owner.ID,
		})
		require.NoError(t, err)
		ids = append(ids, o.ID)
	}

	uc := NewOrderUsecase(infrarepo.NewOrderGormRepository(env.db), infrarepo.NewOrderItemGormRepository(env.db))

	list, err := uc.ListMyOrders(ctx, owner.ID, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), list.Total)
	assert.Len(t, list.Items, 2)
	for _, o := range list.Items {
		require.Len(t, o.Items, 1)
		assert.Equal(t, "Mug", o.Items[0].Name)
	}

	// 範囲外のlimitはデフォルトに戻す
	list, err = uc.ListMyOrders(ctx, owner.ID, 0, 1000)
	require.NoError(t, err)
	assert.Equal(t, 1, list.Page)
	assert.Equal(t, 20, list.Limit)

	detail, err := uc.GetMyOrderDetail(ctx, owner.ID, ids[0])
	require.NoError(t, err)
	assert.Equal(t, ids[0], detail.ID)
	assert.Equal(t, int64(1000), detail.TotalCents)

	_, err = uc.GetMyOrderDetail(ctx, other.ID, ids[0])
	assert.ErrorIs(t, err, ErrOrderNotFound)

	_, err = uc.GetMyOrderDetail(ctx, owner.ID, "missing")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

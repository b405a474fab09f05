package services

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"krayotmarket/internal/models"
	"krayotmarket/internal/storage"
)

func strPtr(s string) *string { return &s }

func product(id string, price int64) models.Product {
	return models.Product{ID: id, Name: "מוצר " + id, Price: decimal.NewFromInt(price)}
}

func TestReduceAddIncrements(t *testing.T) {
	item := models.CartItem{ProductID: strPtr("p1"), Name: "חלב", Price: decimal.NewFromInt(7)}
	items := Reduce(nil, CartAction{Op: CartAdd, Item: item})
	items = Reduce(items, CartAction{Op: CartAdd, Item: item})

	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)
}

func TestReduceDoesNotMutateInput(t *testing.T) {
	items := []models.CartItem{{ProductID: strPtr("p1"), Quantity: 1, Price: decimal.NewFromInt(1)}}
	_ = Reduce(items, CartAction{Op: CartSetQuantity, ProductID: strPtr("p1"), Quantity: 4})
	assert.Equal(t, 1, items[0].Quantity)
}

func TestReduceSetQuantityZeroRemoves(t *testing.T) {
	items := []models.CartItem{
		{ProductID: strPtr("p1"), Quantity: 2, Price: decimal.NewFromInt(3)},
		{ProductID: strPtr("p2"), Quantity: 1, Price: decimal.NewFromInt(4)},
	}
	viaZero := Reduce(items, CartAction{Op: CartSetQuantity, ProductID: strPtr("p1"), Quantity: 0})
	viaRemove := Reduce(items, CartAction{Op: CartRemove, ProductID: strPtr("p1")})
	assert.Equal(t, viaRemove, viaZero)
	require.Len(t, viaZero, 1)
	assert.Equal(t, "p2", *viaZero[0].ProductID)
}

func TestReduceNullIDIsSingleton(t *testing.T) {
	test := models.CartItem{Name: TestItemName, Price: decimal.NewFromInt(5)}
	items := Reduce(nil, CartAction{Op: CartAdd, Item: test})
	items = Reduce(items, CartAction{Op: CartAdd, Item: test})
	items = Reduce(items, CartAction{Op: CartAdd, Item: models.CartItem{ProductID: strPtr("p1"), Price: decimal.NewFromInt(1)}})

	require.Len(t, items, 2)
	assert.Equal(t, 2, items[0].Quantity)

	items = Reduce(items, CartAction{Op: CartRemove, ProductID: nil})
	require.Len(t, items, 1)
	assert.Equal(t, "p1", *items[0].ProductID)
}

func TestTotals(t *testing.T) {
	p := DefaultPricing()
	tests := []struct {
		name     string
		items    []models.CartItem
		subtotal string
		fee      string
		total    string
		count    int
	}{
		{"empty", nil, "0", "0", "0", 0},
		{"below threshold", []models.CartItem{{ProductID: strPtr("a"), Price: decimal.NewFromInt(100), Quantity: 2}}, "200", "15", "215", 2},
		{"above threshold", []models.CartItem{{ProductID: strPtr("a"), Price: decimal.NewFromInt(300), Quantity: 1}}, "300", "0", "300", 1},
		{"exactly threshold", []models.CartItem{{ProductID: strPtr("a"), Price: decimal.NewFromInt(279), Quantity: 1}}, "279", "0", "279", 1},
		{"test item only", []models.CartItem{{Price: decimal.NewFromInt(5), Quantity: 1}}, "5", "0", "5", 1},
		{"test item with product", []models.CartItem{
			{Price: decimal.NewFromInt(5), Quantity: 1},
			{ProductID: strPtr("a"), Price: decimal.RequireFromString("9.90"), Quantity: 1},
		}, "14.9", "15", "29.9", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cart := Totals(tt.items, p)
			assert.True(t, decimal.RequireFromString(tt.subtotal).Equal(cart.Subtotal), "subtotal %s", cart.Subtotal)
			assert.True(t, decimal.RequireFromString(tt.fee).Equal(cart.DeliveryFee), "fee %s", cart.DeliveryFee)
			assert.True(t, decimal.RequireFromString(tt.total).Equal(cart.Total), "total %s", cart.Total)
			assert.True(t, cart.Total.Equal(cart.Subtotal.Add(cart.DeliveryFee)))
			assert.Equal(t, tt.count, cart.Count)
			assert.NotNil(t, cart.Items)
		})
	}
}

func TestCartServicePersistsPerSession(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	cs := NewCartService(store, DefaultPricing(), 0)

	_, err := cs.Add(ctx, "s1", product("p1", 100))
	require.NoError(t, err)
	cart, err := cs.Add(ctx, "s1", product("p1", 100))
	require.NoError(t, err)
	assert.Equal(t, "215", cart.Total.String())

	// A fresh service over the same store sees the same cart.
	again := NewCartService(store, DefaultPricing(), 0).Cart(ctx, "s1")
	assert.Equal(t, 2, again.Count)
	assert.Equal(t, 0, cs.Cart(ctx, "s2").Count)
}

func TestCartServiceSnapshotsPrice(t *testing.T) {
	ctx := context.Background()
	cs := NewCartService(storage.NewMemoryStore(), DefaultPricing(), 0)

	_, err := cs.Add(ctx, "s", product("p1", 10))
	require.NoError(t, err)
	cart, err := cs.Add(ctx, "s", product("p1", 99))
	require.NoError(t, err)

	require.Len(t, cart.Items, 1)
	assert.Equal(t, "10", cart.Items[0].Price.String())
}

func TestCartServiceCorruptDataIsEmpty(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	require.NoError(t, store.Set(ctx, CartKey+":s", []byte("{not json"), 0))

	cs := NewCartService(store, DefaultPricing(), 0)
	assert.Equal(t, 0, cs.Cart(ctx, "s").Count)

	cart, err := cs.Add(ctx, "s", product("p1", 1))
	require.NoError(t, err)
	assert.Equal(t, 1, cart.Count)
}

func TestCartServiceSetQuantityAndClear(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	cs := NewCartService(store, DefaultPricing(), 0)

	_, err := cs.Add(ctx, "s", product("p1", 20))
	require.NoError(t, err)
	cart, err := cs.SetQuantity(ctx, "s", strPtr("p1"), 5)
	require.NoError(t, err)
	assert.Equal(t, 5, cart.Count)

	cart, err = cs.SetQuantity(ctx, "s", strPtr("p1"), -1)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)

	_, err = store.Get(ctx, CartKey+":s")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = cs.Add(ctx, "s", product("p1", 20))
	require.NoError(t, err)
	require.NoError(t, cs.Clear(ctx, "s"))
	assert.Equal(t, 0, cs.Cart(ctx, "s").Count)
}

func TestReplaceWithTestItem(t *testing.T) {
	ctx := context.Background()
	cs := NewCartService(storage.NewMemoryStore(), DefaultPricing(), 0)
	_, err := cs.Add(ctx, "s", product("p1", 50))
	require.NoError(t, err)

	cart, err := cs.ReplaceWithTestItem(ctx, "s")
	require.NoError(t, err)
	require.Len(t, cart.Items, 1)
	assert.Nil(t, cart.Items[0].ProductID)
	assert.Equal(t, TestItemName, cart.Items[0].Name)
	assert.Equal(t, "5", cart.Total.String())
	assert.True(t, cart.DeliveryFee.IsZero())
}

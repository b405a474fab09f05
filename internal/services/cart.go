package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"krayotmarket/internal/models"
	"krayotmarket/internal/storage"
)

// CartKey prefixes every persisted cart.
const CartKey = "krayot-market-cart"

// TestItemName names the synthetic 5 shekel test-payment item.
const TestItemName = "בדיקת תשלום ₪5"

// Pricing holds the delivery fee rule.
type Pricing struct {
	DeliveryFee     decimal.Decimal
	FreeShippingMin decimal.Decimal
}

// DefaultPricing is a 15 shekel fee below 279.
func DefaultPricing() Pricing {
	return Pricing{
		DeliveryFee:     decimal.NewFromInt(15),
		FreeShippingMin: decimal.NewFromInt(279),
	}
}

// CartOp is a cart mutation kind.
type CartOp int

const (
	CartAdd CartOp = iota
	CartRemove
	CartSetQuantity
	CartClear
)

// CartAction is one mutation fed to Reduce.
type CartAction struct {
	Op        CartOp
	Item      models.CartItem // CartAdd: snapshot of the product
	ProductID *string         // CartRemove, CartSetQuantity
	Quantity  int             // CartSetQuantity
}

// Reduce applies a to items and returns the new item list. items is never
// modified.
func Reduce(items []models.CartItem, a CartAction) []models.CartItem {
	next := make([]models.CartItem, 0, len(items)+1)
	switch a.Op {
	case CartAdd:
		found := false
		for _, it := range items {
			if it.SameProduct(a.Item.ProductID) {
				it.Quantity++
				found = true
			}
			next = append(next, it)
		}
		if !found {
			it := a.Item
			it.Quantity = 1
			next = append(next, it)
		}
	case CartRemove:
		for _, it := range items {
			if !it.SameProduct(a.ProductID) {
				next = append(next, it)
			}
		}
	case CartSetQuantity:
		if a.Quantity <= 0 {
			return Reduce(items, CartAction{Op: CartRemove, ProductID: a.ProductID})
		}
		for _, it := range items {
			if it.SameProduct(a.ProductID) {
				it.Quantity = a.Quantity
			}
			next = append(next, it)
		}
	case CartClear:
	}
	return next
}

// Totals derives subtotal, fee, total and count. A cart holding only
// null-id test items never pays delivery.
func Totals(items []models.CartItem, p Pricing) models.Cart {
	cart := models.Cart{
		Items:       items,
		Subtotal:    decimal.Zero,
		DeliveryFee: decimal.Zero,
	}
	if cart.Items == nil {
		cart.Items = []models.CartItem{}
	}
	testOnly := len(items) > 0
	for _, it := range items {
		cart.Subtotal = cart.Subtotal.Add(it.LineTotal())
		cart.Count += it.Quantity
		if it.ProductID != nil {
			testOnly = false
		}
	}
	if !testOnly && cart.Subtotal.IsPositive() && cart.Subtotal.LessThan(p.FreeShippingMin) {
		cart.DeliveryFee = p.DeliveryFee
	}
	cart.Total = cart.Subtotal.Add(cart.DeliveryFee)
	return cart
}

// CartService keeps one cart per shopper session in a storage.Store. Every
// mutation is written through before it returns.
type CartService struct {
	store   storage.Store
	pricing Pricing
	ttl     time.Duration
	mu      sync.Mutex
}

// NewCartService, ttl of zero keeps carts forever.
func NewCartService(store storage.Store, pricing Pricing, ttl time.Duration) *CartService {
	return &CartService{store: store, pricing: pricing, ttl: ttl}
}

// Pricing returns the fee rule in use.
func (cs *CartService) Pricing() Pricing {
	return cs.pricing
}

func cartKey(sessionID string) string {
	return CartKey + ":" + sessionID
}

func (cs *CartService) load(ctx context.Context, sessionID string) []models.CartItem {
	var items []models.CartItem
	if !storage.LoadJSON(ctx, cs.store, cartKey(sessionID), &items) {
		return []models.CartItem{}
	}
	valid := items[:0]
	for _, it := range items {
		if it.Quantity >= 1 && !it.Price.IsNegative() {
			valid = append(valid, it)
		}
	}
	return valid
}

// Cart returns the session's cart. Missing or corrupt data is an empty cart.
func (cs *CartService) Cart(ctx context.Context, sessionID string) models.Cart {
	return Totals(cs.load(ctx, sessionID), cs.pricing)
}

func (cs *CartService) apply(ctx context.Context, sessionID string, actions ...CartAction) (models.Cart, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	items := cs.load(ctx, sessionID)
	for _, a := range actions {
		items = Reduce(items, a)
	}

	var err error
	if len(items) == 0 {
		err = cs.store.Delete(ctx, cartKey(sessionID))
	} else {
		err = storage.SaveJSON(ctx, cs.store, cartKey(sessionID), items, cs.ttl)
	}
	if err != nil {
		log.Printf("CartService.apply - Error saving cart for session %s: %v", sessionID, err)
		return models.Cart{}, fmt.Errorf("save cart: %w", err)
	}

	cart := Totals(items, cs.pricing)
	log.Printf("CartService.apply - Session %s: %d items, total %s", sessionID, cart.Count, cart.Total)
	return cart, nil
}

// Add puts one unit of p in the cart, snapshotting its name and price.
func (cs *CartService) Add(ctx context.Context, sessionID string, p models.Product) (models.Cart, error) {
	id := p.ID
	return cs.apply(ctx, sessionID, CartAction{
		Op:   CartAdd,
		Item: models.CartItem{ProductID: &id, Name: p.Name, Price: p.Price},
	})
}

// ReplaceWithTestItem empties the cart and adds the 5 shekel test item.
func (cs *CartService) ReplaceWithTestItem(ctx context.Context, sessionID string) (models.Cart, error) {
	return cs.apply(ctx, sessionID,
		CartAction{Op: CartClear},
		CartAction{Op: CartAdd, Item: models.CartItem{Name: TestItemName, Price: decimal.NewFromInt(5)}},
	)
}

// Remove drops the entry for productID. A nil id removes the test item.
func (cs *CartService) Remove(ctx context.Context, sessionID string, productID *string) (models.Cart, error) {
	return cs.apply(ctx, sessionID, CartAction{Op: CartRemove, ProductID: productID})
}

// SetQuantity sets an entry's quantity; quantity <= 0 removes it.
func (cs *CartService) SetQuantity(ctx context.Context, sessionID string, productID *string, quantity int) (models.Cart, error) {
	return cs.apply(ctx, sessionID, CartAction{Op: CartSetQuantity, ProductID: productID, Quantity: quantity})
}

// Clear empties the cart.
func (cs *CartService) Clear(ctx context.Context, sessionID string) error {
	_, err := cs.apply(ctx, sessionID, CartAction{Op: CartClear})
	return err
}

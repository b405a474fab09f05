package models

import "github.com/shopspring/decimal"

// CartItem is a snapshot of a product at the time it was added to the cart.
// ProductID is nil only for the synthetic test-payment item.
type CartItem struct {
	ProductID *string         `json:"product_id"`
	Name      string          `json:"name_he"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

// LineTotal returns price × quantity.
func (i CartItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// SameProduct reports whether the item belongs to the given product id.
// Two nil ids are the same (singleton test item).
func (i CartItem) SameProduct(id *string) bool {
	if i.ProductID == nil || id == nil {
		return i.ProductID == nil && id == nil
	}
	return *i.ProductID == *id
}

// Cart is the derived view of a shopper's cart.
type Cart struct {
	Items       []CartItem      `json:"items"`
	Subtotal    decimal.Decimal `json:"subtotal"`
	DeliveryFee decimal.Decimal `json:"delivery_fee"`
	Total       decimal.Decimal `json:"total"`
	Count       int             `json:"count"`
}

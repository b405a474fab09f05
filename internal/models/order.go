package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod is how the shopper pays.
type PaymentMethod string

const (
	PaymentCash PaymentMethod = "cash"
	PaymentCard PaymentMethod = "card"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	return m == PaymentCash || m == PaymentCard
}

// OrderStatus is the admin-controlled fulfilment flag.
type OrderStatus string

const (
	OrderSupplied    OrderStatus = "supplied"
	OrderNotSupplied OrderStatus = "not_supplied"
)

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	return s == OrderSupplied || s == OrderNotSupplied
}

// DeliverySlot is a one-hour delivery window. Value is "<yyyy-mm-dd> <hour>".
type DeliverySlot struct {
	Value string `json:"value"`
	Label string `json:"label"`
	Hour  int    `json:"hour"`
}

// CheckoutForm is the shopper's delivery form.
type CheckoutForm struct {
	CustomerName     string        `json:"customer_name" form:"customer_name"`
	CustomerPhone    string        `json:"customer_phone" form:"customer_phone"`
	DeliveryAddress  string        `json:"delivery_address" form:"delivery_address"`
	DeliveryCity     string        `json:"delivery_city" form:"delivery_city"`
	PaymentMethod    PaymentMethod `json:"payment_method" form:"payment_method"`
	DeliveryTimeSlot string        `json:"delivery_time_slot" form:"delivery_time_slot"`
	ExpressDelivery  bool          `json:"express_delivery" form:"express_delivery"`
}

// OrderLine is one item of an order payload.
type OrderLine struct {
	ProductID   *string         `json:"product_id"`
	ProductName string          `json:"product_name_he"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

// OrderPayload is the body posted to the order-creation endpoint. A nil
// DeliveryTimeSlot means "as soon as possible".
type OrderPayload struct {
	CustomerName     string        `json:"customer_name"`
	CustomerPhone    string        `json:"customer_phone"`
	DeliveryAddress  string        `json:"delivery_address"`
	DeliveryCity     string        `json:"delivery_city"`
	PaymentMethod    PaymentMethod `json:"payment_method"`
	ExpressDelivery  bool          `json:"express_delivery"`
	DeliveryTimeSlot *string       `json:"delivery_time_slot"`
	Items            []OrderLine   `json:"items"`
}

// Order is an order as listed in the admin console.
type Order struct {
	ID               string          `json:"id"`
	CreatedAt        time.Time       `json:"created_at"`
	CustomerName     string          `json:"customer_name"`
	CustomerPhone    string          `json:"customer_phone"`
	DeliveryAddress  string          `json:"delivery_address"`
	DeliveryCity     string          `json:"delivery_city"`
	PaymentMethod    PaymentMethod   `json:"payment_method"`
	ExpressDelivery  bool            `json:"express_delivery"`
	DeliveryTimeSlot string          `json:"delivery_time_slot"`
	Status           OrderStatus     `json:"order_status"`
	Total            decimal.Decimal `json:"total"`
	CustomerNotes    string          `json:"customer_notes,omitempty"`
	Items            []OrderItem     `json:"items"`
}

// OrderItem is a stored order line.
type OrderItem struct {
	ID          string          `json:"id"`
	ProductName string          `json:"product_name_he"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
}

// PaymentSession addresses one hosted payment form instance.
type PaymentSession struct {
	LowProfileID   string `json:"lowProfileId"`
	TerminalNumber string `json:"terminalNumber"`
}

// Package payment drives the hosted card fields embedded in the checkout page.
// The browser relays frame messages; this package decides what to send and
// how to read what comes back.
package payment

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/shopspring/decimal"

	"krayotmarket/internal/models"
)

var (
	// ErrUntrustedOrigin is returned for frame messages from any origin other
	// than the provider's. The origin is reported by the relaying page.
	ErrUntrustedOrigin = errors.New("payment: message from untrusted origin")
	// ErrUnknownMessage is returned for messages that are not payment results.
	ErrUnknownMessage = errors.New("payment: not a result message")
)

// Outbound actions.
const (
	ActionInit          = "init"
	ActionDoTransaction = "doTransaction"
)

// Inbound actions. "HandleEror" is spelled the way the provider sends it.
const (
	ActionHandleSubmit = "HandleSubmit"
	ActionHandleError  = "HandleEror"
)

// Message is a structured message posted into the master frame.
type Message map[string]interface{}

// Inbound is a message the page received from a frame, with its origin.
type Inbound struct {
	Origin string          `json:"origin"`
	Data   json.RawMessage `json:"data"`
}

// Result is a decoded payment outcome.
type Result struct {
	Success bool
	Message string
}

// Frames are the iframe URLs for one session.
type Frames struct {
	Master     string `json:"master"`
	CardNumber string `json:"card_number"`
	CVV        string `json:"cvv"`
}

// SessionRequest carries what the provider needs to open a session.
type SessionRequest struct {
	Amount        decimal.Decimal
	DeliveryFee   decimal.Decimal
	CustomerName  string
	Items         []models.OrderLine
	ReturnBaseURL string
}

// TransactionRequest is the shopper's billing input for one pay attempt.
type TransactionRequest struct {
	CardOwnerName    string   `json:"card_owner_name"`
	CardOwnerEmail   string   `json:"card_owner_email"`
	CardOwnerPhone   string   `json:"card_owner_phone"`
	ExpiryMonth      int      `json:"expiry_month"`
	ExpiryYear       int      `json:"expiry_year"`
	NumberOfPayments int      `json:"number_of_payments"`
	Document         Document `json:"-"`
}

// Document is the receipt the provider issues for the transaction.
type Document struct {
	Name     string         `json:"Name"`
	Email    string         `json:"Email,omitempty"`
	Phone    string         `json:"Phone,omitempty"`
	Products []DocumentLine `json:"Products"`
}

// DocumentLine is one receipt line.
type DocumentLine struct {
	Description string          `json:"Description"`
	Quantity    int             `json:"Quantity"`
	UnitCost    decimal.Decimal `json:"UnitCost"`
}

// Provider is the capability checkout needs from a card payment provider.
type Provider interface {
	InitiateSession(ctx context.Context, req SessionRequest) (models.PaymentSession, error)
	Frames(session models.PaymentSession) Frames
	InitMessage(session models.PaymentSession) Message
	SubmitTransaction(session models.PaymentSession, req TransactionRequest) (Message, error)
	ReceiveResult(in Inbound) (Result, error)
}

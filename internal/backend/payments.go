package backend

import (
	"context"

	"krayotmarket/internal/models"
	"krayotmarket/internal/payment"
)

// PaymentSessions adapts the client to payment.SessionInitiator.
type PaymentSessions struct {
	Client *Client
}

// InitiateSession forwards the request to the backend's card-init endpoint.
func (p PaymentSessions) InitiateSession(ctx context.Context, req payment.SessionRequest) (models.PaymentSession, error) {
	return p.Client.InitiateCardPayment(ctx, PaymentInitRequest{
		Amount:        req.Amount,
		DeliveryFee:   req.DeliveryFee,
		CustomerName:  req.CustomerName,
		Items:         req.Items,
		ReturnBaseURL: req.ReturnBaseURL,
	})
}

package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"krayotmarket/internal/models"
)

// SessionInitiator opens a low-profile session. The backend does this because
// it holds the terminal credentials.
type SessionInitiator interface {
	InitiateSession(ctx context.Context, req SessionRequest) (models.PaymentSession, error)
}

// HostedFields is a Provider for iframe-hosted card number and CVV fields
// controlled through a master frame.
type HostedFields struct {
	initiator     SessionInitiator
	trustedOrigin string
	fieldsBaseURL string
	now           func() time.Time
}

// NewHostedFields builds the provider. trustedOrigin is compared exactly
// against inbound message origins.
func NewHostedFields(initiator SessionInitiator, trustedOrigin, fieldsBaseURL string) *HostedFields {
	return &HostedFields{
		initiator:     initiator,
		trustedOrigin: strings.TrimRight(trustedOrigin, "/"),
		fieldsBaseURL: strings.TrimRight(fieldsBaseURL, "/"),
		now:           time.Now,
	}
}

func (h *HostedFields) InitiateSession(ctx context.Context, req SessionRequest) (models.PaymentSession, error) {
	return h.initiator.InitiateSession(ctx, req)
}

func (h *HostedFields) Frames(s models.PaymentSession) Frames {
	q := url.Values{}
	q.Set("lowProfileCode", s.LowProfileID)
	q.Set("terminalNumber", s.TerminalNumber)
	qs := "?" + q.Encode()
	return Frames{
		Master:     h.fieldsBaseURL + "/master" + qs,
		CardNumber: h.fieldsBaseURL + "/cardNumber" + qs,
		CVV:        h.fieldsBaseURL + "/CVV" + qs,
	}
}

func (h *HostedFields) InitMessage(s models.PaymentSession) Message {
	return Message{
		"action":         ActionInit,
		"lowProfileCode": s.LowProfileID,
		"terminalNumber": s.TerminalNumber,
	}
}

func (h *HostedFields) SubmitTransaction(s models.PaymentSession, req TransactionRequest) (Message, error) {
	if strings.TrimSpace(req.CardOwnerName) == "" {
		return nil, fmt.Errorf("card owner name is required")
	}
	if req.ExpiryMonth < 1 || req.ExpiryMonth > 12 {
		return nil, fmt.Errorf("invalid expiry month %d", req.ExpiryMonth)
	}
	year := req.ExpiryYear
	if year < 100 {
		year += 2000
	}
	now := h.now()
	if year < now.Year() || (year == now.Year() && req.ExpiryMonth < int(now.Month())) {
		return nil, fmt.Errorf("card expired %02d/%d", req.ExpiryMonth, year)
	}
	payments := req.NumberOfPayments
	if payments < 1 {
		payments = 1
	}

	return Message{
		"action":           ActionDoTransaction,
		"lowProfileCode":   s.LowProfileID,
		"cardOwnerName":    req.CardOwnerName,
		"cardOwnerEmail":   req.CardOwnerEmail,
		"cardOwnerPhone":   req.CardOwnerPhone,
		"expirationMonth":  fmt.Sprintf("%02d", req.ExpiryMonth),
		"expirationYear":   fmt.Sprintf("%02d", year%100),
		"numberOfPayments": payments,
		"document":         req.Document,
	}, nil
}

type resultEnvelope struct {
	Action  string      `json:"action"`
	Message string      `json:"message"`
	Data    *submitData `json:"data"`
}

type submitData struct {
	IsSuccess   bool   `json:"IsSuccess"`
	Description string `json:"Description"`
}

func (h *HostedFields) ReceiveResult(in Inbound) (Result, error) {
	if strings.TrimRight(in.Origin, "/") != h.trustedOrigin {
		return Result{}, ErrUntrustedOrigin
	}

	var env resultEnvelope
	if err := json.Unmarshal(in.Data, &env); err != nil {
		return Result{}, ErrUnknownMessage
	}

	switch env.Action {
	case ActionHandleSubmit:
		if env.Data == nil {
			return Result{}, ErrUnknownMessage
		}
		return Result{Success: env.Data.IsSuccess, Message: env.Data.Description}, nil
	case ActionHandleError:
		return Result{Success: false, Message: env.Message}, nil
	}
	return Result{}, ErrUnknownMessage
}

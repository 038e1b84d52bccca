package billing

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/stripe/stripe-go/v82"
)

// ErrMalformedEvent marks an event payload that failed to decode.
var ErrMalformedEvent = errors.New("billing: malformed event payload")

// DecodeSubscriptionEvent decodes the payload of a customer.subscription.*
// event into the normalized subscription shape.
func DecodeSubscriptionEvent(raw json.RawMessage) (*Subscription, error) {
	var s stripe.Subscription
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, errors.Join(ErrMalformedEvent, err)
	}
	return newSubscription(&s), nil
}

// DecodeCheckoutSessionEvent decodes the payload of a
// checkout.session.completed event. Webhook payloads carry unexpanded
// references, so the customer email may need a follow-up session fetch.
func DecodeCheckoutSessionEvent(raw json.RawMessage) (*CheckoutSession, error) {
	var s stripe.CheckoutSession
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, errors.Join(ErrMalformedEvent, err)
	}

	cs := &CheckoutSession{
		ID:            s.ID,
		Mode:          string(s.Mode),
		PaymentStatus: string(s.PaymentStatus),
		AmountTotal:   s.AmountTotal,
		Currency:      string(s.Currency),
		Metadata:      s.Metadata,
	}
	if s.Customer != nil {
		cs.CustomerID = s.Customer.ID
		cs.CustomerEmail = s.Customer.Email
	}
	if cs.CustomerEmail == "" {
		cs.CustomerEmail = s.CustomerEmail
	}
	if cs.CustomerEmail == "" && s.CustomerDetails != nil {
		cs.CustomerEmail = s.CustomerDetails.Email
	}
	if s.Subscription != nil {
		cs.SubscriptionID = s.Subscription.ID
	}
	return cs, nil
}

// InvoiceEvent is the slice of an invoice.payment_* payload the webhook
// pipeline acts on.
type InvoiceEvent struct {
	ID             string
	CustomerID     string
	SubscriptionID string
	Status         string
	AmountDue      int64
	Currency       string
	CreatedAt      time.Time
}

// DecodeInvoiceEvent decodes the payload of an invoice.payment_succeeded or
// invoice.payment_failed event.
func DecodeInvoiceEvent(raw json.RawMessage) (*InvoiceEvent, error) {
	var in stripe.Invoice
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, errors.Join(ErrMalformedEvent, err)
	}

	ev := &InvoiceEvent{
		ID:        in.ID,
		Status:    string(in.Status),
		AmountDue: in.AmountDue,
		Currency:  string(in.Currency),
		CreatedAt: time.Unix(in.Created, 0).UTC(),
	}
	if in.Customer != nil {
		ev.CustomerID = in.Customer.ID
	}
	if in.Parent != nil && in.Parent.SubscriptionDetails != nil && in.Parent.SubscriptionDetails.Subscription != nil {
		ev.SubscriptionID = in.Parent.SubscriptionDetails.Subscription.ID
	}
	return ev, nil
}

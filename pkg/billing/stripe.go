package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/invoice"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeGateway implements Gateway on top of the official Stripe SDK.
//
// The constructor sets the package-global API key; one process serves one
// Stripe account, which matches the single-tenant deployment model.
type StripeGateway struct {
	config Config
}

// NewStripeGateway creates a Stripe-backed Gateway.
func NewStripeGateway(cfg Config) (*StripeGateway, error) {
	if cfg.SecretKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}

	stripe.Key = cfg.SecretKey

	return &StripeGateway{config: cfg}, nil
}

// MustNewStripeGateway panics on invalid configuration, failing fast during
// process initialization.
func MustNewStripeGateway(cfg Config) *StripeGateway {
	g, err := NewStripeGateway(cfg)
	if err != nil {
		panic(err)
	}
	return g
}

func (g *StripeGateway) CreateCustomer(ctx context.Context, params CreateCustomerParams) (*Customer, error) {
	p := &stripe.CustomerParams{}
	p.Context = ctx
	if params.Email != "" {
		p.Email = stripe.String(params.Email)
	}
	if params.Name != "" {
		p.Name = stripe.String(params.Name)
	}
	if params.UserID != "" {
		p.AddMetadata("user_id", params.UserID)
	}
	for k, v := range params.Metadata {
		p.AddMetadata(k, v)
	}

	c, err := customer.New(p)
	if err != nil {
		return nil, wrapStripeError(err)
	}
	return newCustomer(c), nil
}

func (g *StripeGateway) FindCustomerByUserID(ctx context.Context, userID string) (*Customer, error) {
	p := &stripe.CustomerSearchParams{
		SearchParams: stripe.SearchParams{
			Query: fmt.Sprintf("metadata['user_id']:'%s'", userID),
		},
	}
	p.Context = ctx

	iter := customer.Search(p)
	for iter.Next() {
		c := iter.Customer()
		if !c.Deleted {
			return newCustomer(c), nil
		}
	}
	if err := iter.Err(); err != nil {
		return nil, wrapStripeError(err)
	}
	return nil, ErrCustomerNotFound
}

func (g *StripeGateway) GetCustomer(ctx context.Context, customerID string) (*Customer, error) {
	p := &stripe.CustomerParams{}
	p.Context = ctx

	c, err := customer.Get(customerID, p)
	if err != nil {
		return nil, wrapNotFound(err, ErrCustomerNotFound)
	}
	return newCustomer(c), nil
}

func (g *StripeGateway) UpdateCustomer(ctx context.Context, customerID string, params UpdateCustomerParams) (*Customer, error) {
	p := &stripe.CustomerParams{}
	p.Context = ctx
	if params.Email != "" {
		p.Email = stripe.String(params.Email)
	}
	for k, v := range params.Metadata {
		p.AddMetadata(k, v)
	}

	c, err := customer.Update(customerID, p)
	if err != nil {
		return nil, wrapNotFound(err, ErrCustomerNotFound)
	}
	return newCustomer(c), nil
}

func (g *StripeGateway) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	p := &stripe.CheckoutSessionParams{}
	p.Context = ctx
	p.AddExpand("customer")
	p.AddExpand("subscription")
	p.AddExpand("line_items")

	s, err := session.Get(sessionID, p)
	if err != nil {
		return nil, wrapNotFound(err, ErrSessionNotFound)
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
	// The session-level email survives even when the customer object was
	// created without one.
	if cs.CustomerEmail == "" {
		cs.CustomerEmail = s.CustomerEmail
	}
	if cs.CustomerEmail == "" && s.CustomerDetails != nil {
		cs.CustomerEmail = s.CustomerDetails.Email
	}
	// A declined subscription expansion still carries the bare ID.
	if s.Subscription != nil {
		cs.SubscriptionID = s.Subscription.ID
	}
	if s.LineItems != nil && len(s.LineItems.Data) > 0 && s.LineItems.Data[0].Price != nil {
		cs.PriceID = s.LineItems.Data[0].Price.ID
	}

	return cs, nil
}

func (g *StripeGateway) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	p := &stripe.SubscriptionParams{}
	p.Context = ctx

	s, err := subscription.Get(subscriptionID, p)
	if err != nil {
		return nil, wrapNotFound(err, ErrSubscriptionNotFound)
	}
	return newSubscription(s), nil
}

func (g *StripeGateway) UpdateSubscriptionMetadata(ctx context.Context, subscriptionID string, metadata map[string]string) error {
	p := &stripe.SubscriptionParams{}
	p.Context = ctx
	for k, v := range metadata {
		p.AddMetadata(k, v)
	}

	if _, err := subscription.Update(subscriptionID, p); err != nil {
		return wrapNotFound(err, ErrSubscriptionNotFound)
	}
	return nil
}

func (g *StripeGateway) ListSubscriptions(ctx context.Context, customerID string) ([]Subscription, error) {
	p := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String("all"),
	}
	p.Context = ctx

	var subs []Subscription
	iter := subscription.List(p)
	for iter.Next() {
		subs = append(subs, *newSubscription(iter.Subscription()))
	}
	if err := iter.Err(); err != nil {
		return nil, wrapStripeError(err)
	}
	return subs, nil
}

func (g *StripeGateway) ListInvoices(ctx context.Context, customerID string, limit int64) ([]Invoice, error) {
	p := &stripe.InvoiceListParams{Customer: stripe.String(customerID)}
	p.Context = ctx
	if limit > 0 {
		p.Limit = stripe.Int64(limit)
	}

	var invoices []Invoice
	iter := invoice.List(p)
	for iter.Next() {
		in := iter.Invoice()
		invoices = append(invoices, Invoice{
			ID:               in.ID,
			Number:           in.Number,
			Status:           string(in.Status),
			AmountDue:        in.AmountDue,
			AmountPaid:       in.AmountPaid,
			Currency:         string(in.Currency),
			HostedInvoiceURL: in.HostedInvoiceURL,
			CreatedAt:        time.Unix(in.Created, 0).UTC(),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, wrapStripeError(err)
	}
	return invoices, nil
}

func (g *StripeGateway) ListPaymentIntents(ctx context.Context, customerID string, limit int64) ([]PaymentIntent, error) {
	p := &stripe.PaymentIntentListParams{Customer: stripe.String(customerID)}
	p.Context = ctx
	if limit > 0 {
		p.Limit = stripe.Int64(limit)
	}

	var intents []PaymentIntent
	iter := paymentintent.List(p)
	for iter.Next() {
		pi := iter.PaymentIntent()
		intents = append(intents, PaymentIntent{
			ID:          pi.ID,
			Amount:      pi.Amount,
			Currency:    string(pi.Currency),
			Status:      string(pi.Status),
			Description: pi.Description,
			CreatedAt:   time.Unix(pi.Created, 0).UTC(),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, wrapStripeError(err)
	}
	return intents, nil
}

func (g *StripeGateway) GetBillingAddress(ctx context.Context, customerID string) (*Address, error) {
	p := &stripe.CustomerParams{}
	p.Context = ctx
	raw, err := customer.Get(customerID, p)
	if err != nil {
		return nil, wrapNotFound(err, ErrCustomerNotFound)
	}
	if raw.Address == nil {
		return nil, nil
	}
	return &Address{
		Line1:      raw.Address.Line1,
		Line2:      raw.Address.Line2,
		City:       raw.Address.City,
		State:      raw.Address.State,
		PostalCode: raw.Address.PostalCode,
		Country:    raw.Address.Country,
	}, nil
}

func (g *StripeGateway) UpdateBillingAddress(ctx context.Context, customerID string, addr Address) error {
	p := &stripe.CustomerParams{
		Address: &stripe.AddressParams{
			Line1:      stripe.String(addr.Line1),
			Line2:      stripe.String(addr.Line2),
			City:       stripe.String(addr.City),
			State:      stripe.String(addr.State),
			PostalCode: stripe.String(addr.PostalCode),
			Country:    stripe.String(addr.Country),
		},
	}
	p.Context = ctx

	if _, err := customer.Update(customerID, p); err != nil {
		return wrapNotFound(err, ErrCustomerNotFound)
	}
	return nil
}

func (g *StripeGateway) VerifyWebhook(payload []byte, sigHeader string) (*Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, g.config.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, errors.Join(ErrInvalidSignature, err)
	}
	return &Event{
		ID:   event.ID,
		Type: string(event.Type),
		Raw:  event.Data.Raw,
	}, nil
}

func newCustomer(c *stripe.Customer) *Customer {
	return &Customer{
		ID:       c.ID,
		Email:    c.Email,
		Name:     c.Name,
		Deleted:  c.Deleted,
		Metadata: c.Metadata,
	}
}

func newSubscription(s *stripe.Subscription) *Subscription {
	sub := &Subscription{
		ID:                s.ID,
		Status:            string(s.Status),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		Metadata:          s.Metadata,
	}
	if s.Customer != nil {
		sub.CustomerID = s.Customer.ID
	}
	if s.CanceledAt > 0 {
		t := time.Unix(s.CanceledAt, 0).UTC()
		sub.CanceledAt = &t
	}
	// Period bounds live on the subscription items since the basil API release.
	if s.Items != nil && len(s.Items.Data) > 0 {
		item := s.Items.Data[0]
		if item.Price != nil {
			sub.PriceID = item.Price.ID
		}
		sub.CurrentPeriodStart = time.Unix(item.CurrentPeriodStart, 0).UTC()
		sub.CurrentPeriodEnd = time.Unix(item.CurrentPeriodEnd, 0).UTC()
	}
	return sub
}

// wrapStripeError normalizes SDK errors into the package taxonomy.
func wrapStripeError(err error) error {
	return errors.Join(ErrProviderFailure, err)
}

// wrapNotFound maps Stripe resource_missing errors to the given sentinel,
// everything else to ErrProviderFailure.
func wrapNotFound(err error, notFound error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
		return errors.Join(notFound, err)
	}
	return wrapStripeError(err)
}

package billing

import (
	"context"
	"encoding/json"
	"time"
)

// Gateway defines the payment platform operations the application depends on.
// The abstraction keeps services testable and isolates Stripe SDK quirks
// (expansion behavior, metadata handling) inside one package.
type Gateway interface {
	// CreateCustomer creates a billing customer tagged with the application
	// user ID in its metadata.
	CreateCustomer(ctx context.Context, params CreateCustomerParams) (*Customer, error)

	// FindCustomerByUserID looks up a customer by the user_id metadata tag.
	// Returns ErrCustomerNotFound when no customer carries the tag.
	FindCustomerByUserID(ctx context.Context, userID string) (*Customer, error)

	// GetCustomer retrieves a customer by its billing-platform ID.
	GetCustomer(ctx context.Context, customerID string) (*Customer, error)

	// UpdateCustomer updates a customer's email and/or merges metadata keys.
	// Empty fields are left untouched.
	UpdateCustomer(ctx context.Context, customerID string, params UpdateCustomerParams) (*Customer, error)

	// GetCheckoutSession retrieves a checkout session with its customer and
	// subscription expanded. A subscription the platform declined to expand is
	// normalized into a bare subscription ID.
	GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)

	// GetSubscription retrieves a subscription by ID.
	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)

	// UpdateSubscriptionMetadata merges metadata keys into a subscription.
	UpdateSubscriptionMetadata(ctx context.Context, subscriptionID string, metadata map[string]string) error

	// ListSubscriptions returns all subscriptions of a customer, any status.
	ListSubscriptions(ctx context.Context, customerID string) ([]Subscription, error)

	// ListInvoices returns up to limit most recent invoices of a customer.
	ListInvoices(ctx context.Context, customerID string, limit int64) ([]Invoice, error)

	// ListPaymentIntents returns up to limit most recent payment intents.
	ListPaymentIntents(ctx context.Context, customerID string, limit int64) ([]PaymentIntent, error)

	// GetBillingAddress returns the customer's billing address, which may be nil.
	GetBillingAddress(ctx context.Context, customerID string) (*Address, error)

	// UpdateBillingAddress replaces the customer's billing address.
	UpdateBillingAddress(ctx context.Context, customerID string, addr Address) error

	// VerifyWebhook validates the signature header against the shared secret
	// and returns the parsed event. Must reject spoofed payloads.
	VerifyWebhook(payload []byte, sigHeader string) (*Event, error)
}

// CreateCustomerParams carries the fields for customer creation.
type CreateCustomerParams struct {
	UserID   string
	Email    string
	Name     string
	Metadata map[string]string
}

// UpdateCustomerParams carries a partial customer update.
// Metadata keys are merged into the existing set, not replaced wholesale.
type UpdateCustomerParams struct {
	Email    string
	Metadata map[string]string
}

// Customer is the normalized billing-platform customer record.
type Customer struct {
	ID       string
	Email    string
	Name     string
	Deleted  bool
	Metadata map[string]string
}

// UserID returns the application user ID tagged in the customer metadata,
// or an empty string when the customer is not linked to a user.
func (c *Customer) UserID() string {
	if c == nil || c.Metadata == nil {
		return ""
	}
	return c.Metadata["user_id"]
}

// CheckoutSession is the normalized checkout-session record.
type CheckoutSession struct {
	ID             string
	Mode           string
	PaymentStatus  string
	CustomerID     string
	CustomerEmail  string
	SubscriptionID string
	PriceID        string
	AmountTotal    int64
	Currency       string
	Metadata       map[string]string
}

const (
	ModeSubscription = "subscription"
	ModePayment      = "payment"

	PaymentStatusPaid   = "paid"
	PaymentStatusUnpaid = "unpaid"
)

// Subscription is the normalized subscription record.
type Subscription struct {
	ID                 string
	CustomerID         string
	Status             string
	PriceID            string
	CancelAtPeriodEnd  bool
	CanceledAt         *time.Time
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	Metadata           map[string]string
}

// Invoice is the normalized invoice record for payment history views.
type Invoice struct {
	ID               string
	Number           string
	Status           string
	AmountDue        int64
	AmountPaid       int64
	Currency         string
	HostedInvoiceURL string
	CreatedAt        time.Time
}

// PaymentIntent is the normalized payment-intent record.
type PaymentIntent struct {
	ID          string
	Amount      int64
	Currency    string
	Status      string
	Description string
	CreatedAt   time.Time
}

// Address is a billing address in the platform's shape.
type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// Event is a verified webhook event. Raw carries the provider object payload
// for handlers to decode into their own shapes.
type Event struct {
	ID   string
	Type string
	Raw  json.RawMessage
}

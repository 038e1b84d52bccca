// Package billing exposes the billing HTTP surface: the webhook receiver,
// guest-checkout account linking, customer provisioning, and billing
// address/payment-history endpoints.
package billing

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type Mountable interface {
	Handle() http.Handler
}

// RouterOptions configures which services to mount in the billing module.
// Each service is optional and will only be mounted if provided.
type RouterOptions struct {
	Webhook   Mountable
	Link      Mountable
	Customers Mountable
	Billing   Mountable
}

// Router creates the billing module router.
//
// Example:
//
//	r := chi.NewRouter()
//	r.Mount("/", billing.Router(billing.RouterOptions{
//	    Webhook:   webhookSvc,
//	    Link:      linkSvc,
//	    Customers: customerSvc,
//	    Billing:   billingSvc,
//	}))
func Router(opts RouterOptions) chi.Router {
	r := chi.NewRouter()

	if opts.Webhook != nil {
		r.Mount("/webhooks", opts.Webhook.Handle())
	}
	if opts.Link != nil {
		r.Mount("/account", opts.Link.Handle())
	}
	if opts.Customers != nil {
		r.Mount("/customers", opts.Customers.Handle())
	}
	if opts.Billing != nil {
		r.Mount("/billing", opts.Billing.Handle())
	}

	return r
}

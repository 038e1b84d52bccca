package billing

// Config holds Stripe credentials.
type Config struct {
	SecretKey     string `env:"STRIPE_SECRET_KEY,required"`     // SecretKey is the API secret key (sk_test_... or sk_live_...).
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET,required"` // WebhookSecret is the webhook signing secret (whsec_...).
}

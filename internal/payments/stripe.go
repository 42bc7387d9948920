package payments

import (
	"context"
	"os"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
	"github.com/stripe/stripe-go/v74/webhook"
)

// StripeClient is a thin wrapper around stripe-go for the payment
// collaborator: order creation (a manual-capture hold), capture on
// completion, cancel on ride cancellation, and webhook signature checks.
type StripeClient struct {
	webhookSecret string
}

// NewStripeClient initializes the stripe client with the STRIPE_API_KEY env var.
func NewStripeClient(webhookSecret string) *StripeClient {
	stripe.Key = os.Getenv("STRIPE_API_KEY")
	return &StripeClient{webhookSecret: webhookSecret}
}

// CreateOrder creates a PaymentIntent with capture_method=manual to hold the
// fare. It returns the PaymentIntent ID on success.
func (s *StripeClient) CreateOrder(ctx context.Context, amount int64, currency, customerID string) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(currency),
	}
	if customerID != "" {
		params.Customer = stripe.String(customerID)
	}
	params.CaptureMethod = stripe.String(string(stripe.PaymentIntentCaptureMethodManual))
	pi, err := paymentintent.New(params)
	if err != nil {
		return "", err
	}
	return pi.ID, nil
}

// Capture finalizes a previously-held PaymentIntent after the ride completes.
func (s *StripeClient) Capture(ctx context.Context, paymentIntentID string) error {
	_, err := paymentintent.Capture(paymentIntentID, nil)
	return err
}

// Cancel releases the hold when the ride is cancelled.
func (s *StripeClient) Cancel(ctx context.Context, paymentIntentID string) error {
	_, err := paymentintent.Cancel(paymentIntentID, nil)
	return err
}

// VerifySignature checks a webhook payload against its Stripe-Signature
// header and returns the parsed event type on success.
func (s *StripeClient) VerifySignature(payload []byte, sigHeader string) (string, bool) {
	ev, err := webhook.ConstructEvent(payload, sigHeader, s.webhookSecret)
	if err != nil {
		return "", false
	}
	return string(ev.Type), true
}

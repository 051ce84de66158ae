package billing

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
)

// CheckoutRequest describes a hosted checkout page for one profile.
type CheckoutRequest struct {
	CustomerID string
	UserID     string
	Mode       string
	PriceID    string
	SuccessURL string
	CancelURL  string
}

// CheckoutClient is the slice of the Stripe API the service needs.
type CheckoutClient interface {
	CreateCustomer(ctx context.Context, email, userID string) (string, error)
	CreateSession(ctx context.Context, req CheckoutRequest) (string, error)
}

type StripeClient struct {
	api *client.API
}

func NewStripeClient(secretKey string) *StripeClient {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeClient{api: api}
}

func (c *StripeClient) CreateCustomer(ctx context.Context, email, userID string) (string, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	if email != "" {
		params.Email = stripe.String(email)
	}
	params.AddMetadata(MetadataUserID, userID)
	cust, err := c.api.Customers.New(params)
	if err != nil {
		return "", err
	}
	return cust.ID, nil
}

func (c *StripeClient) CreateSession(ctx context.Context, req CheckoutRequest) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Customer: stripe.String(req.CustomerID),
		Mode:     stripe.String(req.Mode),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(req.PriceID), Quantity: stripe.Int64(1)},
		},
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	params.Context = ctx
	params.AddMetadata(MetadataUserID, req.UserID)
	sess, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return "", err
	}
	return sess.URL, nil
}

// CreateCheckoutSession returns the hosted checkout URL for a subscription
// or a one-off report purchase. A Stripe customer is created on first use.
func (s Service) CreateCheckoutSession(ctx context.Context, userID, mode string) (string, error) {
	if mode == "" {
		mode = ModeSubscription
	}
	var price string
	switch mode {
	case ModeSubscription:
		price = s.Config.ProPriceID
	case ModePayment:
		price = s.Config.CreditPriceID
	default:
		return "", ErrInvalidMode
	}
	if s.Checkout == nil || price == "" {
		return "", fmt.Errorf("%w: price for %s checkout", ErrNotConfigured, mode)
	}

	profile, err := s.Repo.GetProfile(ctx, userID)
	if err != nil {
		return "", err
	}
	cust := profile.StripeCustomerID
	if cust == "" {
		cust, err = s.Checkout.CreateCustomer(ctx, profile.Email, userID)
		if err != nil {
			return "", fmt.Errorf("create customer: %w", err)
		}
		if err := s.Repo.SetStripeCustomer(ctx, userID, cust, s.ts()); err != nil {
			return "", fmt.Errorf("store customer: %w", err)
		}
	}

	url, err := s.Checkout.CreateSession(ctx, CheckoutRequest{
		CustomerID: cust,
		UserID:     userID,
		Mode:       mode,
		PriceID:    price,
		SuccessURL: s.Config.SuccessURL,
		CancelURL:  s.Config.CancelURL,
	})
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	s.log().Info("checkout session created", "user_id", userID, "mode", mode)
	return url, nil
}

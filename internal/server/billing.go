package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"offerline/internal/billing"
)

func registerBilling(api huma.API, b billing.Service) {
	huma.Register(api, huma.Operation{
		OperationID: "stripe-webhook",
		Method:      http.MethodPost,
		Path:        "/stripe/webhook",
		Summary:     "Stripe webhook receiver",
		Errors:      []int{http.StatusBadRequest, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Signature string `header:"Stripe-Signature"`
		RawBody   []byte
	}) (*struct {
		Body WebhookResponse `json:"body"`
	}, error) {
		payload := input.RawBody
		if len(payload) == 0 {
			payload = bodyBytes(ctx)
		}
		if err := b.HandleWebhook(ctx, payload, input.Signature); err != nil {
			if errors.Is(err, billing.ErrNoSignature) || errors.Is(err, billing.ErrInvalidSignature) {
				return nil, handleError(err)
			}
			return nil, newAPIError(http.StatusInternalServerError, "internal_error", "webhook processing failed", map[string]any{"error": err.Error()})
		}
		return &struct {
			Body WebhookResponse `json:"body"`
		}{Body: WebhookResponse{Received: true}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "stripe-checkout-session",
		Method:      http.MethodPost,
		Path:        "/stripe/checkout-session",
		Summary:     "Create a hosted checkout page for Pro or a single report",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusServiceUnavailable,
		},
	}, func(ctx context.Context, input *struct {
		Body *CheckoutSessionRequest `json:"body,omitempty" required:"false"`
	}) (*struct {
		Body CheckoutSessionResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		mode := billing.ModeSubscription
		if input.Body != nil && input.Body.Mode != "" {
			mode = input.Body.Mode
		}
		url, err := b.CreateCheckoutSession(ctx, userID, mode)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CheckoutSessionResponse `json:"body"`
		}{Body: CheckoutSessionResponse{URL: url}}, nil
	})
}

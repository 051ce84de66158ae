package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"offerline/internal/config"
	"offerline/internal/domain"
	"offerline/internal/logger"
	"offerline/internal/repo"
)

var (
	ErrNoSignature      = errors.New("no signature provided")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrNotConfigured    = errors.New("billing is not configured")
	ErrInvalidMode      = errors.New("checkout mode must be subscription or payment")
)

// Checkout modes.
const (
	ModeSubscription = "subscription"
	ModePayment      = "payment"
)

// MetadataUserID is the metadata key linking Stripe objects to a profile.
const MetadataUserID = "user_id"

type Service struct {
	Repo     repo.Repo
	Checkout CheckoutClient
	Config   config.BillingConfig
	Log      *logger.Logger
	Now      func() time.Time
}

func (s Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s Service) ts() string {
	return s.now().UTC().Format(time.RFC3339)
}

func (s Service) log() *logger.Logger {
	if s.Log != nil {
		return s.Log
	}
	return logger.Nop()
}

// VerifyEvent checks the Stripe-Signature header against the webhook secret
// and decodes the event. Nothing is mutated before this succeeds.
func (s Service) VerifyEvent(payload []byte, sigHeader string) (stripe.Event, error) {
	if sigHeader == "" {
		return stripe.Event{}, ErrNoSignature
	}
	if s.Config.WebhookSecret == "" {
		return stripe.Event{}, fmt.Errorf("%w: webhook secret not set", ErrInvalidSignature)
	}
	evt, err := webhook.ConstructEventWithOptions(payload, sigHeader, s.Config.WebhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return evt, nil
}

// HandleWebhook verifies and applies one webhook delivery.
func (s Service) HandleWebhook(ctx context.Context, payload []byte, sigHeader string) error {
	evt, err := s.VerifyEvent(payload, sigHeader)
	if err != nil {
		s.log().Warn("webhook signature verification failed", "error", err)
		return err
	}
	return s.HandleEvent(ctx, evt)
}

// HandleEvent applies a verified event to the profiles it concerns.
// Unknown event types are logged and ignored.
func (s Service) HandleEvent(ctx context.Context, evt stripe.Event) error {
	log := s.log().With("event_id", evt.ID, "event_type", string(evt.Type))
	if evt.Data == nil {
		return fmt.Errorf("event %s has no data", evt.ID)
	}
	switch string(evt.Type) {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &sess); err != nil {
			return fmt.Errorf("decode checkout session: %w", err)
		}
		return s.checkoutCompleted(ctx, log, sess)
	case "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(evt.Data.Raw, &sub); err != nil {
			return fmt.Errorf("decode subscription: %w", err)
		}
		plan := domain.PlanFree
		if sub.Status == stripe.SubscriptionStatusActive {
			plan = domain.PlanPro
		}
		return s.syncPlan(ctx, log, customerID(sub.Customer), plan, false)
	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(evt.Data.Raw, &sub); err != nil {
			return fmt.Errorf("decode subscription: %w", err)
		}
		return s.syncPlan(ctx, log, customerID(sub.Customer), domain.PlanFree, true)
	case "invoice.payment_failed":
		var inv stripe.Invoice
		if err := json.Unmarshal(evt.Data.Raw, &inv); err != nil {
			return fmt.Errorf("decode invoice: %w", err)
		}
		cust := customerID(inv.Customer)
		p, err := s.Repo.GetProfileByCustomer(ctx, cust)
		if err != nil {
			log.Warn("payment failed for unknown customer", "customer_id", cust)
			return nil
		}
		log.Warn("payment failed", "user_id", p.ID, "customer_id", cust)
	default:
		log.Info("unhandled webhook event")
	}
	return nil
}

func (s Service) checkoutCompleted(ctx context.Context, log *logger.Logger, sess stripe.CheckoutSession) error {
	email := sess.CustomerEmail
	if sess.CustomerDetails != nil && sess.CustomerDetails.Email != "" {
		email = sess.CustomerDetails.Email
	}
	cust := customerID(sess.Customer)

	profile, err := s.resolveProfile(ctx, sess.Metadata[MetadataUserID], email)
	if errors.Is(err, repo.ErrNotFound) {
		log.Warn("no user found for checkout session", "customer_id", cust, "email", email)
		return nil
	}
	if err != nil {
		return err
	}

	now := s.ts()
	switch string(sess.Mode) {
	case ModeSubscription:
		if err := s.Repo.ActivatePro(ctx, profile.ID, cust, now); err != nil {
			return fmt.Errorf("activate pro: %w", err)
		}
		log.Info("upgraded to pro", "user_id", profile.ID)
	case ModePayment:
		if err := s.Repo.AddReportCredit(ctx, profile.ID, now); err != nil {
			return fmt.Errorf("add report credit: %w", err)
		}
		if cust != "" {
			if err := s.Repo.SetStripeCustomer(ctx, profile.ID, cust, now); err != nil {
				return fmt.Errorf("store customer: %w", err)
			}
		}
		log.Info("report credit purchased", "user_id", profile.ID, "credits", profile.ReportCredits+1)
	default:
		log.Info("ignoring checkout mode", "mode", string(sess.Mode))
	}
	return nil
}

// resolveProfile prefers the metadata user id and falls back to the email.
func (s Service) resolveProfile(ctx context.Context, userID, email string) (domain.Profile, error) {
	if userID != "" {
		p, err := s.Repo.GetProfile(ctx, userID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return domain.Profile{}, err
		}
	}
	if email == "" {
		return domain.Profile{}, repo.ErrNotFound
	}
	return s.Repo.GetProfileByEmail(ctx, email)
}

func (s Service) syncPlan(ctx context.Context, log *logger.Logger, cust, plan string, resetMonthly bool) error {
	if cust == "" {
		log.Warn("subscription event without customer")
		return nil
	}
	err := s.Repo.SetPlanByCustomer(ctx, cust, plan, resetMonthly, s.ts())
	if errors.Is(err, repo.ErrNotFound) {
		log.Warn("no profile for customer", "customer_id", cust)
		return nil
	}
	if err != nil {
		return fmt.Errorf("sync plan: %w", err)
	}
	log.Info("plan synced", "customer_id", cust, "plan", plan)
	return nil
}

func customerID(c *stripe.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}

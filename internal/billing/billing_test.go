package billing

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v82/webhook"

	"offerline/internal/config"
	"offerline/internal/db"
	"offerline/internal/domain"
	"offerline/internal/migrate"
	"offerline/internal/repo"
)

const testSecret = "whsec_test"

var fixedNow = time.Date(2025, 4, 2, 12, 0, 0, 0, time.UTC)

type fakeCheckout struct {
	customers int
	sessions  []CheckoutRequest
}

func (f *fakeCheckout) CreateCustomer(_ context.Context, _, _ string) (string, error) {
	f.customers++
	return fmt.Sprintf("cus_%d", f.customers), nil
}

func (f *fakeCheckout) CreateSession(_ context.Context, req CheckoutRequest) (string, error) {
	f.sessions = append(f.sessions, req)
	return "https://checkout.example/" + req.Mode, nil
}

func newTestService(t *testing.T) (Service, *fakeCheckout) {
	t.Helper()
	conn, err := db.Open(db.Config{Driver: "sqlite", Workspace: filepath.Join(t.TempDir(), "ws")})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))

	r := repo.Repo{DB: conn}
	ctx := context.Background()
	require.NoError(t, r.EnsureProfile(ctx, "user-1", "owner@example.com", fixedNow.Format(time.RFC3339)))

	fc := &fakeCheckout{}
	return Service{
		Repo:     r,
		Checkout: fc,
		Config: config.BillingConfig{
			WebhookSecret: testSecret,
			ProPriceID:    "price_pro",
			CreditPriceID: "price_credit",
			SuccessURL:    "https://app.example/ok",
			CancelURL:     "https://app.example/cancel",
		},
		Now: func() time.Time { return fixedNow },
	}, fc
}

func signed(t *testing.T, payload string) ([]byte, string) {
	t.Helper()
	sp := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testSecret,
		Timestamp: time.Now(),
	})
	return sp.Payload, sp.Header
}

func eventJSON(evtType, object string) string {
	return fmt.Sprintf(`{"id":"evt_1","object":"event","api_version":"2025-03-31","type":%q,"data":{"object":%s}}`, evtType, object)
}

func profile(t *testing.T, s Service) domain.Profile {
	t.Helper()
	p, err := s.Repo.GetProfile(context.Background(), "user-1")
	require.NoError(t, err)
	return p
}

func TestWebhookRejectsMissingAndBadSignatures(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	body := []byte(eventJSON("checkout.session.completed", `{"id":"cs_1","mode":"payment","metadata":{"user_id":"user-1"}}`))

	err := s.HandleWebhook(ctx, body, "")
	assert.ErrorIs(t, err, ErrNoSignature)

	err = s.HandleWebhook(ctx, body, "t=1,v1=deadbeef")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, header := signed(t, string(body))
	err = s.HandleWebhook(ctx, append([]byte(" "), body...), header)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	assert.Equal(t, 0, profile(t, s).ReportCredits)
}

func TestCheckoutSubscriptionActivatesPro(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	require.NoError(t, s.Repo.IncrementGenerationCounts(ctx, "user-1", fixedNow.Format(time.RFC3339)))

	payload, header := signed(t, eventJSON("checkout.session.completed",
		`{"id":"cs_1","object":"checkout.session","mode":"subscription","customer":"cus_9","metadata":{"user_id":"user-1"}}`))
	require.NoError(t, s.HandleWebhook(ctx, payload, header))

	p := profile(t, s)
	assert.Equal(t, domain.PlanPro, p.Plan)
	assert.Equal(t, "cus_9", p.StripeCustomerID)
	assert.Equal(t, 0, p.GenerationsThisMonth)
	assert.Equal(t, fixedNow.Format(time.RFC3339), p.BillingCycleStart)
}

func TestCheckoutPaymentByEmailAddsCredit(t *testing.T) {
	s, _ := newTestService(t)
	payload, header := signed(t, eventJSON("checkout.session.completed",
		`{"id":"cs_2","object":"checkout.session","mode":"payment","customer":"cus_5","customer_details":{"email":"owner@example.com"}}`))
	require.NoError(t, s.HandleWebhook(context.Background(), payload, header))

	p := profile(t, s)
	assert.Equal(t, domain.PlanFree, p.Plan)
	assert.Equal(t, 1, p.ReportCredits)
	assert.Equal(t, "cus_5", p.StripeCustomerID)
}

func TestCheckoutForUnknownUserIsIgnored(t *testing.T) {
	s, _ := newTestService(t)
	payload, header := signed(t, eventJSON("checkout.session.completed",
		`{"id":"cs_3","object":"checkout.session","mode":"payment","customer_email":"stranger@example.com"}`))
	require.NoError(t, s.HandleWebhook(context.Background(), payload, header))
	assert.Equal(t, 0, profile(t, s).ReportCredits)
}

func TestSubscriptionEventsSyncPlan(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	ts := fixedNow.Format(time.RFC3339)
	require.NoError(t, s.Repo.ActivatePro(ctx, "user-1", "cus_7", ts))
	require.NoError(t, s.Repo.IncrementGenerationCounts(ctx, "user-1", ts))

	payload, header := signed(t, eventJSON("customer.subscription.updated",
		`{"id":"sub_1","object":"subscription","status":"past_due","customer":"cus_7"}`))
	require.NoError(t, s.HandleWebhook(ctx, payload, header))
	p := profile(t, s)
	assert.Equal(t, domain.PlanFree, p.Plan)
	assert.Equal(t, 1, p.GenerationsThisMonth)

	payload, header = signed(t, eventJSON("customer.subscription.updated",
		`{"id":"sub_1","object":"subscription","status":"active","customer":"cus_7"}`))
	require.NoError(t, s.HandleWebhook(ctx, payload, header))
	assert.Equal(t, domain.PlanPro, profile(t, s).Plan)

	payload, header = signed(t, eventJSON("customer.subscription.deleted",
		`{"id":"sub_1","object":"subscription","status":"canceled","customer":"cus_7"}`))
	require.NoError(t, s.HandleWebhook(ctx, payload, header))
	p = profile(t, s)
	assert.Equal(t, domain.PlanFree, p.Plan)
	assert.Equal(t, 0, p.GenerationsThisMonth)
}

func TestUnhandledAndUnknownCustomerEventsSucceed(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	payload, header := signed(t, eventJSON("invoice.payment_failed", `{"id":"in_1","object":"invoice","customer":"cus_missing"}`))
	assert.NoError(t, s.HandleWebhook(ctx, payload, header))

	payload, header = signed(t, eventJSON("customer.subscription.deleted", `{"id":"sub_2","object":"subscription","customer":"cus_missing"}`))
	assert.NoError(t, s.HandleWebhook(ctx, payload, header))

	payload, header = signed(t, eventJSON("charge.refunded", `{"id":"ch_1","object":"charge"}`))
	assert.NoError(t, s.HandleWebhook(ctx, payload, header))
}

func TestCreateCheckoutSessionReusesCustomer(t *testing.T) {
	s, fc := newTestService(t)
	ctx := context.Background()

	url, err := s.CreateCheckoutSession(ctx, "user-1", "")
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.example/subscription", url)
	assert.Equal(t, "cus_1", profile(t, s).StripeCustomerID)

	url, err = s.CreateCheckoutSession(ctx, "user-1", ModePayment)
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.example/payment", url)

	assert.Equal(t, 1, fc.customers)
	require.Len(t, fc.sessions, 2)
	assert.Equal(t, "price_pro", fc.sessions[0].PriceID)
	assert.Equal(t, "price_credit", fc.sessions[1].PriceID)
	assert.Equal(t, "cus_1", fc.sessions[1].CustomerID)
	assert.Equal(t, "user-1", fc.sessions[1].UserID)
}

func TestCreateCheckoutSessionValidation(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	_, err := s.CreateCheckoutSession(ctx, "user-1", "lifetime")
	assert.ErrorIs(t, err, ErrInvalidMode)

	_, err = s.CreateCheckoutSession(ctx, "nobody", ModeSubscription)
	assert.True(t, errors.Is(err, repo.ErrNotFound))

	s.Config.ProPriceID = ""
	_, err = s.CreateCheckoutSession(ctx, "user-1", ModeSubscription)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

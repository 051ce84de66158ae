package repo

import (
	"context"
	"fmt"
	"strings"

	"offerline/internal/domain"
)

const profileColumns = `id,COALESCE(email,'') AS email,plan,COALESCE(stripe_customer_id,'') AS stripe_customer_id,
total_generations,generations_this_month,COALESCE(billing_cycle_start,'') AS billing_cycle_start,report_credits,
onboarding_complete,COALESCE(business_name,'') AS business_name,COALESCE(business_description,'') AS business_description,
COALESCE(target_avatar,'') AS target_avatar,COALESCE(price_range,'') AS price_range,COALESCE(competitors,'') AS competitors,
created_at,updated_at`

// EnsureProfile creates a free profile for id if none exists and fills in a
// missing email.
func (r Repo) EnsureProfile(ctx context.Context, id, email, ts string) error {
	if _, err := r.DB.ExecContext(ctx, r.q(`INSERT INTO profiles(id,email,plan,created_at,updated_at) VALUES (?,?,?,?,?) ON CONFLICT(id) DO NOTHING`),
		id, nullable(email), domain.PlanFree, ts, ts); err != nil {
		return err
	}
	if email == "" {
		return nil
	}
	_, err := r.DB.ExecContext(ctx, r.q(`UPDATE profiles SET email=?, updated_at=? WHERE id=? AND (email IS NULL OR email='')`), email, ts, id)
	return err
}

func (r Repo) GetProfile(ctx context.Context, id string) (domain.Profile, error) {
	var p domain.Profile
	err := r.DB.GetContext(ctx, &p, r.q(`SELECT `+profileColumns+` FROM profiles WHERE id=?`), id)
	return p, notFound(err)
}

func (r Repo) GetProfileByEmail(ctx context.Context, email string) (domain.Profile, error) {
	var p domain.Profile
	err := r.DB.GetContext(ctx, &p, r.q(`SELECT `+profileColumns+` FROM profiles WHERE email=? ORDER BY created_at LIMIT 1`), email)
	return p, notFound(err)
}

func (r Repo) GetProfileByCustomer(ctx context.Context, customerID string) (domain.Profile, error) {
	var p domain.Profile
	err := r.DB.GetContext(ctx, &p, r.q(`SELECT `+profileColumns+` FROM profiles WHERE stripe_customer_id=? LIMIT 1`), customerID)
	return p, notFound(err)
}

// ResetBillingCycle zeroes the monthly counter and moves the cycle anchor.
func (r Repo) ResetBillingCycle(ctx context.Context, id, anchor string) error {
	return mustAffect(r.DB.ExecContext(ctx, r.q(`UPDATE profiles SET generations_this_month=0, billing_cycle_start=?, updated_at=? WHERE id=?`),
		anchor, anchor, id))
}

// IncrementGenerationCounts bumps lifetime and monthly counters in one statement.
func (r Repo) IncrementGenerationCounts(ctx context.Context, id, ts string) error {
	return mustAffect(r.DB.ExecContext(ctx, r.q(`UPDATE profiles SET total_generations=total_generations+1, generations_this_month=generations_this_month+1, updated_at=? WHERE id=?`),
		ts, id))
}

// ProfileUpdate carries onboarding fields; nil leaves a field unchanged.
type ProfileUpdate struct {
	BusinessName        *string
	BusinessDescription *string
	TargetAvatar        *string
	PriceRange          *string
	Competitors         *string
}

// UpdateProfileDetails applies u and marks onboarding complete.
func (r Repo) UpdateProfileDetails(ctx context.Context, id string, u ProfileUpdate, ts string) error {
	fields := []string{"onboarding_complete=?"}
	args := []any{true}
	set := func(col string, v *string) {
		if v != nil {
			fields = append(fields, col+"=?")
			args = append(args, nullable(strings.TrimSpace(*v)))
		}
	}
	set("business_name", u.BusinessName)
	set("business_description", u.BusinessDescription)
	set("target_avatar", u.TargetAvatar)
	set("price_range", u.PriceRange)
	set("competitors", u.Competitors)
	fields = append(fields, "updated_at=?")
	args = append(args, ts, id)
	query := fmt.Sprintf(`UPDATE profiles SET %s WHERE id=?`, strings.Join(fields, ","))
	return mustAffect(r.DB.ExecContext(ctx, r.q(query), args...))
}

// ActivatePro starts a pro subscription: new cycle anchor, zeroed monthly count.
func (r Repo) ActivatePro(ctx context.Context, id, customerID, ts string) error {
	return mustAffect(r.DB.ExecContext(ctx, r.q(`UPDATE profiles SET plan=?, stripe_customer_id=COALESCE(?,stripe_customer_id), billing_cycle_start=?, generations_this_month=0, updated_at=? WHERE id=?`),
		domain.PlanPro, nullable(customerID), ts, ts, id))
}

func (r Repo) AddReportCredit(ctx context.Context, id, ts string) error {
	return mustAffect(r.DB.ExecContext(ctx, r.q(`UPDATE profiles SET report_credits=report_credits+1, updated_at=? WHERE id=?`), ts, id))
}

func (r Repo) SetStripeCustomer(ctx context.Context, id, customerID, ts string) error {
	return mustAffect(r.DB.ExecContext(ctx, r.q(`UPDATE profiles SET stripe_customer_id=?, updated_at=? WHERE id=?`), customerID, ts, id))
}

// SetPlanByCustomer syncs the plan of the profile linked to a Stripe customer.
// resetMonthly also zeroes the monthly counter.
func (r Repo) SetPlanByCustomer(ctx context.Context, customerID, plan string, resetMonthly bool, ts string) error {
	query := `UPDATE profiles SET plan=?, updated_at=? WHERE stripe_customer_id=?`
	if resetMonthly {
		query = `UPDATE profiles SET plan=?, generations_this_month=0, updated_at=? WHERE stripe_customer_id=?`
	}
	return mustAffect(r.DB.ExecContext(ctx, r.q(query), plan, ts, customerID))
}

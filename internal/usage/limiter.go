package usage

import (
	"context"
	"fmt"
	"time"

	"offerline/internal/domain"
	"offerline/internal/repo"
)

const (
	reasonFree = "Free plan limit reached. Purchase a single report or upgrade to Pro for %d offers per month."
	reasonPro  = "Monthly generation limit reached. Your limit resets at the start of your next billing cycle."
)

// Limits is the quota snapshot shown to users.
type Limits struct {
	Allowed     int  `json:"allowed"`
	Used        int  `json:"used"`
	Remaining   int  `json:"remaining"`
	IsUnlimited bool `json:"isUnlimited"`
}

// Decision is the outcome of CanGenerate.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
	Limits  Limits `json:"limits"`
}

// Limiter derives remaining quota from profile counters. One-off credits are
// never decremented; they raise the allowance instead.
type Limiter struct {
	Repo       repo.Repo
	Now        func() time.Time
	ProMonthly int
	FreeBase   int
}

func (l Limiter) now() time.Time {
	if l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

// GetLimits resets the billing cycle when due and returns the current quota.
func (l Limiter) GetLimits(ctx context.Context, userID string) (Limits, error) {
	profile, err := l.refresh(ctx, userID)
	if err != nil {
		return Limits{}, err
	}
	return l.compute(profile), nil
}

// CanGenerate reports whether userID may start another generation.
func (l Limiter) CanGenerate(ctx context.Context, userID string) (Decision, error) {
	profile, err := l.refresh(ctx, userID)
	if err != nil {
		return Decision{}, err
	}
	limits := l.compute(profile)
	if limits.Remaining > 0 {
		return Decision{Allowed: true, Limits: limits}, nil
	}
	reason := reasonPro
	if profile.Plan != domain.PlanPro {
		reason = fmt.Sprintf(reasonFree, l.ProMonthly)
	}
	return Decision{Allowed: false, Reason: reason, Limits: limits}, nil
}

// Increment counts one started generation against both counters.
func (l Limiter) Increment(ctx context.Context, userID string) error {
	return l.Repo.IncrementGenerationCounts(ctx, userID, l.now().Format(time.RFC3339))
}

func (l Limiter) refresh(ctx context.Context, userID string) (domain.Profile, error) {
	profile, err := l.Repo.GetProfile(ctx, userID)
	if err != nil {
		return domain.Profile{}, err
	}
	now := l.now()
	if !l.cycleDue(profile.BillingCycleStart, now) {
		return profile, nil
	}
	anchor := now.Format(time.RFC3339)
	if err := l.Repo.ResetBillingCycle(ctx, userID, anchor); err != nil {
		return domain.Profile{}, fmt.Errorf("reset billing cycle: %w", err)
	}
	profile.BillingCycleStart = anchor
	profile.GenerationsThisMonth = 0
	return profile, nil
}

// cycleDue is true when no anchor is set or a calendar month has passed since it.
func (l Limiter) cycleDue(anchor string, now time.Time) bool {
	if anchor == "" {
		return true
	}
	start, err := time.Parse(time.RFC3339, anchor)
	if err != nil {
		return true
	}
	return !now.Before(start.AddDate(0, 1, 0))
}

func (l Limiter) compute(p domain.Profile) Limits {
	var allowed, used int
	switch p.Plan {
	case domain.PlanFree, "":
		allowed = l.FreeBase + p.ReportCredits
		used = p.TotalGenerations
	case domain.PlanPro:
		allowed = l.ProMonthly + p.ReportCredits
		used = p.GenerationsThisMonth
	default:
		return Limits{}
	}
	remaining := allowed - used
	if remaining < 0 {
		remaining = 0
	}
	return Limits{Allowed: allowed, Used: used, Remaining: remaining}
}

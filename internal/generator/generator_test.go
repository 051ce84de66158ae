package generator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"offerline/internal/domain"
	"offerline/internal/llm"
)

type stubModel struct {
	out  string
	err  error
	last llm.Request
}

func (s *stubModel) Generate(_ context.Context, req llm.Request) (string, error) {
	s.last = req
	return s.out, s.err
}

func TestGenerateTrimsAndPassesContext(t *testing.T) {
	m := &stubModel{out: "\n\n  # Big Idea\nBody  \n"}
	g := &Generator{Model: m, MaxTokens: 1000, SearchCapable: true}
	out, err := g.Generate(context.Background(), domain.BigIdea,
		ProjectContext{BusinessDescription: "Bakery", DeepResearch: true},
		map[domain.DocType]string{domain.AvatarComplete: "AVATAR"})
	require.NoError(t, err)
	assert.Equal(t, "# Big Idea\nBody", out)
	assert.True(t, m.last.WebSearch)
	assert.Equal(t, 1000, m.last.MaxTokens)
	assert.Contains(t, m.last.Prompt, "Business: Bakery")
	assert.Contains(t, m.last.Prompt, "Customer Avatar:\nAVATAR")
	assert.NotEmpty(t, m.last.System)
}

func TestGenerateWrapsModelError(t *testing.T) {
	cause := errors.New("overloaded")
	g := &Generator{Model: &stubModel{err: cause}}
	_, err := g.Generate(context.Background(), domain.ValueLadder, ProjectContext{}, nil)
	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Equal(t, domain.ValueLadder, genErr.DocType)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "failed to generate value-ladder: overloaded", err.Error())
}

func TestGenerateRejectsBlankOutput(t *testing.T) {
	g := &Generator{Model: &stubModel{out: "   \n"}}
	_, err := g.Generate(context.Background(), domain.MarketResearch, ProjectContext{}, nil)
	assert.ErrorIs(t, err, ErrEmptyOutput)
}

func TestResolveDependenciesSkipsMissing(t *testing.T) {
	available := map[domain.DocType]string{
		domain.AvatarComplete: "a",
		domain.MarketResearch: "m",
	}
	got := ResolveDependencies(domain.LandingPageCopy, available)
	assert.Equal(t, map[domain.DocType]string{domain.AvatarComplete: "a"}, got)
	assert.Empty(t, ResolveDependencies(domain.MarketResearch, available))
}

func TestRetryTwoFailuresThenSuccess(t *testing.T) {
	var slept []time.Duration
	p := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, Sleep: func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}}
	calls := 0
	var failures []int
	out, err := p.Run(context.Background(), func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("boom")
		}
		return "third", nil
	}, func(attempt int, _ error) { failures = append(failures, attempt) })
	require.NoError(t, err)
	assert.Equal(t, "third", out)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, slept)
	assert.Equal(t, []int{1, 2}, failures)
}

func TestRetryExhaustedReturnsLastError(t *testing.T) {
	var slept int
	p := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, Sleep: func(context.Context, time.Duration) error {
		slept++
		return nil
	}}
	calls := 0
	_, err := p.Run(context.Background(), func(context.Context) (string, error) {
		calls++
		return "", errors.New(strings.Repeat("x", calls))
	}, nil)
	require.Error(t, err)
	assert.Equal(t, "xxx", err.Error())
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, slept)
}

func TestRetryStopsOnCancelledSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Hour}
	calls := 0
	_, err := p.Run(ctx, func(context.Context) (string, error) {
		calls++
		return "", errors.New("boom")
	}, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestRetryRealSleepIsShort(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond}
	start := time.Now()
	calls := 0
	out, err := p.Run(context.Background(), func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("boom")
		}
		return "ok", nil
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.GreaterOrEqual(t, time.Since(start), 2*time.Millisecond)
}

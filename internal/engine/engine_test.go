package engine_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"offerline/internal/config"
	"offerline/internal/db"
	"offerline/internal/domain"
	"offerline/internal/engine"
	"offerline/internal/generator"
	"offerline/internal/migrate"
	"offerline/internal/repo"
)

var fixedNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type call struct {
	docType domain.DocType
	deps    map[domain.DocType]string
}

// fakeGenerator answers "<doc type> body" unless failFor says otherwise.
type fakeGenerator struct {
	calls   []call
	failFor func(dt domain.DocType, attempt int) error
	hook    func(dt domain.DocType)
	counts  map[domain.DocType]int
}

func (f *fakeGenerator) Generate(_ context.Context, dt domain.DocType, _ generator.ProjectContext, deps map[domain.DocType]string) (string, error) {
	if f.counts == nil {
		f.counts = map[domain.DocType]int{}
	}
	f.counts[dt]++
	f.calls = append(f.calls, call{docType: dt, deps: deps})
	if f.hook != nil {
		f.hook(dt)
	}
	if f.failFor != nil {
		if err := f.failFor(dt, f.counts[dt]); err != nil {
			return "", &generator.GenerationError{DocType: dt, Err: err}
		}
	}
	return fmt.Sprintf("%s body v%d", dt, f.counts[dt]), nil
}

type testEnv struct {
	Engine engine.Engine
	Gen    *fakeGenerator
	Slept  *[]time.Duration
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Driver: "sqlite", Workspace: filepath.Join(t.TempDir(), "ws")})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	gen := &fakeGenerator{}
	eng := engine.New(conn, config.Default(), gen, nil)
	eng.Now = func() time.Time { return fixedNow }
	eng.Limiter.Now = eng.Now
	slept := []time.Duration{}
	eng.Retry.Sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	ctx := context.Background()
	if _, err := eng.EnsureProfile(ctx, "user-1", "owner@example.com"); err != nil {
		t.Fatalf("ensure profile: %v", err)
	}
	if err := eng.Repo.ActivatePro(ctx, "user-1", "", fixedNow.Format(time.RFC3339)); err != nil {
		t.Fatalf("activate pro: %v", err)
	}
	return testEnv{Engine: eng, Gen: gen, Slept: &slept, Ctx: ctx}
}

func (env testEnv) newProject(t *testing.T) domain.Project {
	t.Helper()
	p, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{UserID: "user-1", Name: "Acme Coaching", BusinessDescription: "Coaching for founders"})
	require.NoError(t, err)
	return p
}

func (env testEnv) start(t *testing.T, projectID string) domain.Generation {
	t.Helper()
	gen, err := env.Engine.StartGeneration(env.Ctx, "user-1", projectID)
	require.NoError(t, err)
	env.Engine.Wait()
	return gen
}

func TestFullRunCompletesEveryDocument(t *testing.T) {
	env := newTestEnv(t)
	p := env.newProject(t)
	gen := env.start(t, p.ID)

	docs, err := env.Engine.Repo.ListDocuments(env.Ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, docs, len(domain.GenerationSequence))
	for _, d := range docs {
		assert.Equal(t, domain.DocumentComplete, d.Status, d.DocType)
		require.True(t, d.HasContent(), d.DocType)
		assert.Equal(t, d.DocType.Config().Number, d.DocNumber)
	}

	project, err := env.Engine.Repo.GetProject(env.Ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProjectComplete, project.Status)

	stored, err := env.Engine.Repo.GetGeneration(env.Ctx, gen.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Status)
	assert.Equal(t, domain.OutcomeSuccess, *stored.Status)
	require.NotNil(t, stored.DurationSeconds)
	assert.EqualValues(t, 0, *stored.DurationSeconds)
	assert.Nil(t, stored.ErrorMessage)

	profile, err := env.Engine.Repo.GetProfile(env.Ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 1, profile.TotalGenerations)
	assert.Equal(t, 1, profile.GenerationsThisMonth)

	var order []domain.DocType
	for _, c := range env.Gen.calls {
		order = append(order, c.docType)
	}
	assert.Equal(t, domain.GenerationSequence, order)
	assert.Empty(t, *env.Slept)
}

func TestRunPassesCompletedDependencies(t *testing.T) {
	env := newTestEnv(t)
	p := env.newProject(t)
	env.start(t, p.ID)

	for _, c := range env.Gen.calls {
		if c.docType != domain.LandingPageCopy {
			continue
		}
		assert.Equal(t, map[domain.DocType]string{
			domain.AvatarComplete: "avatar-complete body v1",
			domain.BigIdea:        "big-idea body v1",
			domain.ValueLadder:    "value-ladder body v1",
		}, c.deps)
		return
	}
	t.Fatalf("landing page copy never generated")
}

func TestExhaustedRetriesHaltRunAsPartial(t *testing.T) {
	env := newTestEnv(t)
	env.Gen.failFor = func(dt domain.DocType, _ int) error {
		if dt == domain.BigIdea {
			return errors.New("model overloaded")
		}
		return nil
	}
	p := env.newProject(t)
	gen := env.start(t, p.ID)

	assert.Equal(t, 3, env.Gen.counts[domain.BigIdea])
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, *env.Slept)
	assert.Zero(t, env.Gen.counts[domain.ValueLadder])

	want := map[domain.DocType]string{
		domain.MarketResearch:          domain.DocumentComplete,
		domain.AvatarComplete:          domain.DocumentComplete,
		domain.BigIdea:                 domain.DocumentPending,
		domain.ValueLadder:             domain.DocumentPending,
		domain.AvatarValidation:        domain.DocumentPending,
		domain.LandingPageCopy:         domain.DocumentPending,
		domain.ImplementationChecklist: domain.DocumentPending,
	}
	docs, err := env.Engine.Repo.ListDocuments(env.Ctx, p.ID)
	require.NoError(t, err)
	for _, d := range docs {
		assert.Equal(t, want[d.DocType], d.Status, d.DocType)
	}

	project, err := env.Engine.Repo.GetProject(env.Ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProjectPartial, project.Status)

	stored, err := env.Engine.Repo.GetGeneration(env.Ctx, gen.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Status)
	assert.Equal(t, domain.OutcomePartial, *stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.Equal(t, "failed to generate The Big Idea: model overloaded", *stored.ErrorMessage)
}

func TestRetrySucceedsOnThirdAttempt(t *testing.T) {
	env := newTestEnv(t)
	env.Gen.failFor = func(dt domain.DocType, attempt int) error {
		if dt == domain.MarketResearch && attempt < 3 {
			return errors.New("timeout")
		}
		return nil
	}
	p := env.newProject(t)
	env.start(t, p.ID)

	doc, err := env.Engine.Repo.GetDocument(env.Ctx, p.ID, domain.MarketResearch)
	require.NoError(t, err)
	require.NotNil(t, doc.Content)
	assert.Equal(t, "market-research body v3", *doc.Content)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, *env.Slept)
}

func TestPersistenceFailureMarksRunFailed(t *testing.T) {
	env := newTestEnv(t)
	env.Gen.hook = func(dt domain.DocType) {
		if dt == domain.AvatarComplete {
			_, _ = env.Engine.DB.Exec(`DROP TABLE documents`)
		}
	}
	p := env.newProject(t)
	gen := env.start(t, p.ID)

	project, err := env.Engine.Repo.GetProject(env.Ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProjectFailed, project.Status)

	stored, err := env.Engine.Repo.GetGeneration(env.Ctx, gen.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.Status)
	assert.Equal(t, domain.OutcomeFailed, *stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.Contains(t, *stored.ErrorMessage, "save avatar-complete")
}

func TestStartRejections(t *testing.T) {
	env := newTestEnv(t)
	p := env.newProject(t)

	_, err := env.Engine.StartGeneration(env.Ctx, "someone-else", p.ID)
	assert.ErrorIs(t, err, repo.ErrNotFound)

	require.NoError(t, env.Engine.Repo.SetProjectStatus(env.Ctx, p.ID, domain.ProjectGenerating, fixedNow.Format(time.RFC3339)))
	_, err = env.Engine.StartGeneration(env.Ctx, "user-1", p.ID)
	assert.ErrorIs(t, err, engine.ErrAlreadyGenerating)
}

func TestStartDeniedByQuota(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.DB.Exec(`UPDATE profiles SET generations_this_month=5 WHERE id='user-1'`)
	require.NoError(t, err)
	p := env.newProject(t)

	_, err = env.Engine.StartGeneration(env.Ctx, "user-1", p.ID)
	var quotaErr *engine.QuotaError
	require.ErrorAs(t, err, &quotaErr)
	assert.False(t, quotaErr.Decision.Allowed)
	assert.Equal(t, 0, quotaErr.Decision.Limits.Remaining)

	project, err := env.Engine.Repo.GetProject(env.Ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ProjectDraft, project.Status)
	docs, err := env.Engine.Repo.ListDocuments(env.Ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestRerunKeepsOneRowPerDocType(t *testing.T) {
	env := newTestEnv(t)
	p := env.newProject(t)
	env.start(t, p.ID)
	env.start(t, p.ID)

	docs, err := env.Engine.Repo.ListDocuments(env.Ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, docs, len(domain.GenerationSequence))
	gens, err := env.Engine.Repo.ListGenerations(env.Ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, gens, 2)
}

func TestRegenerateFailurePreservesContent(t *testing.T) {
	env := newTestEnv(t)
	p := env.newProject(t)
	env.start(t, p.ID)

	before, err := env.Engine.Repo.GetDocument(env.Ctx, p.ID, domain.ValueLadder)
	require.NoError(t, err)

	env.Gen.failFor = func(dt domain.DocType, _ int) error { return errors.New("rate limited") }
	_, err = env.Engine.RegenerateDocument(env.Ctx, "user-1", p.ID, string(domain.ValueLadder))
	require.NoError(t, err)
	env.Engine.Wait()

	after, err := env.Engine.Repo.GetDocument(env.Ctx, p.ID, domain.ValueLadder)
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentComplete, after.Status)
	assert.Equal(t, *before.Content, *after.Content)
}

func TestOverlappingRegenerateIsRejectedAndStatusRestored(t *testing.T) {
	env := newTestEnv(t)
	p := env.newProject(t)
	env.start(t, p.ID)

	entered := make(chan struct{})
	release := make(chan struct{})
	env.Gen.hook = func(dt domain.DocType) {
		if dt == domain.BigIdea {
			select {
			case entered <- struct{}{}:
			default:
			}
			<-release
		}
	}
	env.Gen.failFor = func(dt domain.DocType, _ int) error { return errors.New("model unavailable") }

	_, err := env.Engine.RegenerateDocument(env.Ctx, "user-1", p.ID, string(domain.BigIdea))
	require.NoError(t, err)
	<-entered

	_, err = env.Engine.RegenerateDocument(env.Ctx, "user-1", p.ID, string(domain.BigIdea))
	assert.ErrorIs(t, err, engine.ErrAlreadyGenerating)

	close(release)
	env.Engine.Wait()

	doc, err := env.Engine.Repo.GetDocument(env.Ctx, p.ID, domain.BigIdea)
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentComplete, doc.Status)
	require.NotNil(t, doc.Content)
	assert.Equal(t, "big-idea body v1", *doc.Content)
}

func TestRegenerateFailureWithoutContentReturnsToPending(t *testing.T) {
	env := newTestEnv(t)
	p := env.newProject(t)
	env.Gen.failFor = func(dt domain.DocType, _ int) error {
		if dt == domain.MarketResearch {
			return errors.New("rate limited")
		}
		return nil
	}
	env.start(t, p.ID)

	_, err := env.Engine.RegenerateDocument(env.Ctx, "user-1", p.ID, string(domain.MarketResearch))
	require.NoError(t, err)
	env.Engine.Wait()

	doc, err := env.Engine.Repo.GetDocument(env.Ctx, p.ID, domain.MarketResearch)
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentPending, doc.Status)
	assert.False(t, doc.HasContent())
}

func TestRegenerateRejectedWhileProjectGenerating(t *testing.T) {
	env := newTestEnv(t)
	p := env.newProject(t)
	env.start(t, p.ID)
	require.NoError(t, env.Engine.Repo.SetProjectStatus(env.Ctx, p.ID, domain.ProjectGenerating, fixedNow.Format(time.RFC3339)))

	_, err := env.Engine.RegenerateDocument(env.Ctx, "user-1", p.ID, string(domain.BigIdea))
	assert.ErrorIs(t, err, engine.ErrAlreadyGenerating)
}

func TestRegenerateUsesStoredDependencies(t *testing.T) {
	env := newTestEnv(t)
	p := env.newProject(t)
	env.start(t, p.ID)
	env.Gen.calls = nil

	_, err := env.Engine.RegenerateDocument(env.Ctx, "user-1", p.ID, string(domain.AvatarValidation))
	require.NoError(t, err)
	env.Engine.Wait()

	require.Len(t, env.Gen.calls, 1)
	assert.Equal(t, map[domain.DocType]string{
		domain.MarketResearch: "market-research body v1",
		domain.AvatarComplete: "avatar-complete body v1",
	}, env.Gen.calls[0].deps)

	doc, err := env.Engine.Repo.GetDocument(env.Ctx, p.ID, domain.AvatarValidation)
	require.NoError(t, err)
	assert.Equal(t, domain.DocumentComplete, doc.Status)
	assert.Equal(t, "avatar-validation body v2", *doc.Content)
}

func TestRegenerateValidation(t *testing.T) {
	env := newTestEnv(t)
	p := env.newProject(t)

	_, err := env.Engine.RegenerateDocument(env.Ctx, "user-1", p.ID, "sales-letter")
	assert.ErrorIs(t, err, engine.ErrInvalidDocType)

	_, err = env.Engine.RegenerateDocument(env.Ctx, "user-1", p.ID, string(domain.BigIdea))
	assert.ErrorIs(t, err, repo.ErrNotFound)

	_, err = env.Engine.RegenerateDocument(env.Ctx, "intruder", p.ID, string(domain.BigIdea))
	assert.ErrorIs(t, err, repo.ErrNotFound)
}

func TestProjectContextFallsBackToProfile(t *testing.T) {
	env := newTestEnv(t)
	price, comps, avatar := "$2k", "Acme Inc", "Busy founders"
	require.NoError(t, env.Engine.Repo.UpdateProfileDetails(env.Ctx, "user-1", repo.ProfileUpdate{
		PriceRange: &price, Competitors: &comps, TargetAvatar: &avatar,
	}, fixedNow.Format(time.RFC3339)))
	p := env.newProject(t)

	pc, err := env.Engine.ProjectContext(env.Ctx, p)
	require.NoError(t, err)
	assert.Equal(t, "Acme Coaching", pc.BusinessName)
	assert.Equal(t, "Coaching for founders", pc.BusinessDescription)
	assert.Equal(t, "Busy founders", pc.TargetCustomer)
	assert.Equal(t, "$2k", pc.PriceRange)
	assert.Equal(t, "Acme Inc", pc.Competitors)
}

func TestEventsRecorded(t *testing.T) {
	env := newTestEnv(t)
	p := env.newProject(t)
	env.start(t, p.ID)

	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, 100, p.ID, "")
	require.NoError(t, err)
	counts := map[string]int{}
	for _, e := range evts {
		counts[e.Type]++
	}
	assert.Equal(t, 1, counts["project.created"])
	assert.Equal(t, 1, counts["generation.started"])
	assert.Equal(t, len(domain.GenerationSequence), counts["document.completed"])
	assert.Equal(t, 1, counts["generation.finished"])
}

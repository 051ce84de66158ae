package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"offerline/internal/config"
	"offerline/internal/domain"
	"offerline/internal/events"
	"offerline/internal/generator"
	"offerline/internal/logger"
	"offerline/internal/repo"
	"offerline/internal/usage"
)

var (
	ErrAlreadyGenerating = errors.New("generation already in progress")
	ErrInvalidDocType    = errors.New("invalid document type")
	ErrNameRequired      = errors.New("project name is required")
)

// QuotaError is returned when the usage limiter refuses a new generation.
type QuotaError struct {
	Decision usage.Decision
}

func (e *QuotaError) Error() string {
	if e.Decision.Reason != "" {
		return e.Decision.Reason
	}
	return "generation limit reached"
}

// DocumentGenerator produces the text of one document.
type DocumentGenerator interface {
	Generate(ctx context.Context, docType domain.DocType, pc generator.ProjectContext, deps map[domain.DocType]string) (string, error)
}

type Engine struct {
	DB        *sqlx.DB
	Repo      repo.Repo
	Events    events.Writer
	Limiter   usage.Limiter
	Generator DocumentGenerator
	Retry     generator.RetryPolicy
	Log       *logger.Logger
	Now       func() time.Time

	tasks *taskGroup
}

func New(db *sqlx.DB, cfg *config.Config, gen DocumentGenerator, log *logger.Logger) Engine {
	if log == nil {
		log = logger.Nop()
	}
	r := repo.Repo{DB: db}
	e := Engine{
		DB:        db,
		Repo:      r,
		Events:    events.Writer{DB: db},
		Generator: gen,
		Retry:     generator.DefaultRetry,
		Log:       log.With("component", "engine"),
		Now:       time.Now,
		tasks:     newTaskGroup(log),
	}
	e.Limiter = usage.Limiter{Repo: r, ProMonthly: 5}
	if cfg != nil {
		e.Retry = generator.RetryPolicy{MaxAttempts: cfg.Generation.MaxAttempts, BaseDelay: cfg.Generation.BaseDelay}
		e.Limiter.ProMonthly = cfg.Plans.ProMonthly
		e.Limiter.FreeBase = cfg.Plans.FreeBase
	}
	return e
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) ts() string {
	return e.now().UTC().Format(time.RFC3339)
}

// Wait blocks until every background run started by this engine has returned.
func (e Engine) Wait() {
	if e.tasks != nil {
		e.tasks.Wait()
	}
}

// EnsureProfile creates the caller's profile on first sight.
func (e Engine) EnsureProfile(ctx context.Context, userID, email string) (domain.Profile, error) {
	if err := e.Repo.EnsureProfile(ctx, userID, email, e.ts()); err != nil {
		return domain.Profile{}, fmt.Errorf("ensure profile: %w", err)
	}
	return e.Repo.GetProfile(ctx, userID)
}

// UpdateProfile saves onboarding details. Onboarding counts as complete
// even when every field is left out.
func (e Engine) UpdateProfile(ctx context.Context, userID string, u repo.ProfileUpdate) (domain.Profile, error) {
	if err := e.Repo.UpdateProfileDetails(ctx, userID, u, e.ts()); err != nil {
		return domain.Profile{}, err
	}
	return e.Repo.GetProfile(ctx, userID)
}

// ProjectCreateOptions are parameters for creating a project.
type ProjectCreateOptions struct {
	UserID              string
	Name                string
	BusinessDescription string
	AvatarDescription   string
	DeepResearch        bool
}

func (e Engine) CreateProject(ctx context.Context, opts ProjectCreateOptions) (domain.Project, error) {
	name := strings.TrimSpace(opts.Name)
	if name == "" {
		return domain.Project{}, ErrNameRequired
	}
	now := e.ts()
	p := domain.Project{
		ID:                  uuid.NewString(),
		UserID:              opts.UserID,
		Name:                name,
		BusinessDescription: strings.TrimSpace(opts.BusinessDescription),
		AvatarDescription:   strings.TrimSpace(opts.AvatarDescription),
		DeepResearch:        opts.DeepResearch,
		Status:              domain.ProjectDraft,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := e.Repo.InsertProject(ctx, p); err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}
	if err := e.Events.Append(ctx, nil, events.ProjectCreated, p.ID, "project", p.ID, opts.UserID, events.EventPayload{"name": p.Name}); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// UpdateProject changes the owner-editable fields of a project.
func (e Engine) UpdateProject(ctx context.Context, userID, projectID string, u repo.ProjectUpdate) (domain.Project, error) {
	if _, err := e.Repo.GetOwnedProject(ctx, userID, projectID); err != nil {
		return domain.Project{}, err
	}
	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if name == "" {
			return domain.Project{}, ErrNameRequired
		}
		u.Name = &name
	}
	if err := e.Repo.UpdateProjectDetails(ctx, projectID, u, e.ts()); err != nil {
		return domain.Project{}, err
	}
	return e.Repo.GetProject(ctx, projectID)
}

// ProjectContext merges a project with its owner's onboarding profile.
// Project fields win; price range and competitors only live on the profile.
func (e Engine) ProjectContext(ctx context.Context, p domain.Project) (generator.ProjectContext, error) {
	profile, err := e.Repo.GetProfile(ctx, p.UserID)
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		return generator.ProjectContext{}, err
	}
	return generator.ProjectContext{
		BusinessName:        p.Name,
		BusinessDescription: firstNonEmpty(p.BusinessDescription, profile.BusinessDescription),
		TargetCustomer:      firstNonEmpty(p.AvatarDescription, profile.TargetAvatar),
		PriceRange:          profile.PriceRange,
		Competitors:         profile.Competitors,
		DeepResearch:        p.DeepResearch,
	}, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

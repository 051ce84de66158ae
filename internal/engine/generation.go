package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"offerline/internal/domain"
	"offerline/internal/events"
	"offerline/internal/generator"
	"offerline/internal/logger"
)

// StartGeneration validates and books a full run for the project, then
// generates the documents in the background. The returned Generation is the
// audit record the run will finalize.
func (e Engine) StartGeneration(ctx context.Context, userID, projectID string) (domain.Generation, error) {
	p, err := e.Repo.GetOwnedProject(ctx, userID, projectID)
	if err != nil {
		return domain.Generation{}, err
	}
	if p.Status == domain.ProjectGenerating {
		return domain.Generation{}, ErrAlreadyGenerating
	}
	decision, err := e.Limiter.CanGenerate(ctx, userID)
	if err != nil {
		return domain.Generation{}, fmt.Errorf("check limits: %w", err)
	}
	if !decision.Allowed {
		return domain.Generation{}, &QuotaError{Decision: decision}
	}
	pc, err := e.ProjectContext(ctx, p)
	if err != nil {
		return domain.Generation{}, err
	}

	started := e.now()
	now := started.UTC().Format(time.RFC3339)
	marked, err := e.Repo.MarkGenerating(ctx, p.ID, now)
	if err != nil {
		return domain.Generation{}, fmt.Errorf("mark generating: %w", err)
	}
	if !marked {
		return domain.Generation{}, ErrAlreadyGenerating
	}

	gen := domain.Generation{ID: uuid.NewString(), UserID: userID, ProjectID: p.ID, StartedAt: now}
	if err := e.book(ctx, gen, now); err != nil {
		if rerr := e.Repo.SetProjectStatus(ctx, p.ID, p.Status, e.ts()); rerr != nil {
			e.Log.Error("restore project status", "project_id", p.ID, "error", rerr)
		}
		return domain.Generation{}, err
	}
	e.appendEvent(events.GenerationStarted, p.ID, "generation", gen.ID, userID, events.EventPayload{"deep_research": pc.DeepResearch})

	e.spawn("generation:"+gen.ID, func() {
		e.run(context.Background(), gen, pc, started)
	}, func(r any) {
		e.fail(context.Background(), gen, started, fmt.Errorf("panic: %v", r))
	})
	return gen, nil
}

// book records the generation, resets the documents, and counts usage.
func (e Engine) book(ctx context.Context, gen domain.Generation, now string) error {
	if err := e.Repo.InsertGeneration(ctx, gen); err != nil {
		return fmt.Errorf("insert generation: %w", err)
	}
	for _, dt := range domain.GenerationSequence {
		cfg := dt.Config()
		doc := domain.Document{
			ID:        uuid.NewString(),
			ProjectID: gen.ProjectID,
			DocType:   dt,
			DocNumber: cfg.Number,
			Title:     cfg.Title,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := e.Repo.UpsertPendingDocument(ctx, doc); err != nil {
			return fmt.Errorf("init document %s: %w", dt, err)
		}
	}
	if err := e.Limiter.Increment(ctx, gen.UserID); err != nil {
		return fmt.Errorf("increment usage: %w", err)
	}
	return nil
}

// run walks the generation sequence. The first document that exhausts its
// retries halts the run as partial; any persistence error fails it.
func (e Engine) run(ctx context.Context, gen domain.Generation, pc generator.ProjectContext, started time.Time) {
	log := e.Log.With("project_id", gen.ProjectID, "generation_id", gen.ID)
	completed := map[domain.DocType]string{}
	for _, dt := range domain.GenerationSequence {
		if err := e.Repo.SetDocumentStatus(ctx, gen.ProjectID, dt, domain.DocumentGenerating, e.ts()); err != nil {
			e.fail(ctx, gen, started, fmt.Errorf("set %s generating: %w", dt, err))
			return
		}
		deps := generator.ResolveDependencies(dt, completed)
		content, err := e.generateWithRetry(ctx, log, dt, pc, deps)
		if err != nil {
			e.halt(ctx, gen, started, dt, err)
			return
		}
		now := e.ts()
		if err := e.Repo.CompleteDocument(ctx, gen.ProjectID, dt, content, now); err != nil {
			e.fail(ctx, gen, started, fmt.Errorf("save %s: %w", dt, err))
			return
		}
		if err := e.Repo.TouchProject(ctx, gen.ProjectID, now); err != nil {
			e.fail(ctx, gen, started, fmt.Errorf("touch project: %w", err))
			return
		}
		completed[dt] = content
		e.appendEvent(events.DocumentCompleted, gen.ProjectID, "document", string(dt), gen.UserID, events.EventPayload{"doc_type": dt})
	}

	if err := e.Repo.SetProjectStatus(ctx, gen.ProjectID, domain.ProjectComplete, e.ts()); err != nil {
		e.fail(ctx, gen, started, fmt.Errorf("complete project: %w", err))
		return
	}
	e.finish(ctx, gen, started, domain.OutcomeSuccess, nil)
	log.Info("generation finished", "outcome", domain.OutcomeSuccess)
}

func (e Engine) generateWithRetry(ctx context.Context, log *logger.Logger, dt domain.DocType, pc generator.ProjectContext, deps map[domain.DocType]string) (string, error) {
	return e.Retry.Run(ctx, func(ctx context.Context) (string, error) {
		return e.Generator.Generate(ctx, dt, pc, deps)
	}, func(attempt int, err error) {
		log.Warn("document attempt failed", "doc_type", dt, "attempt", attempt, "error", err)
	})
}

// halt handles a document that ran out of retries.
func (e Engine) halt(ctx context.Context, gen domain.Generation, started time.Time, dt domain.DocType, cause error) {
	msg := failureMessage(dt, cause)
	e.appendEvent(events.DocumentFailed, gen.ProjectID, "document", string(dt), gen.UserID, events.EventPayload{"doc_type": dt, "error": msg})
	if err := e.Repo.SetDocumentStatus(ctx, gen.ProjectID, dt, domain.DocumentPending, e.ts()); err != nil {
		e.fail(ctx, gen, started, fmt.Errorf("revert %s: %w", dt, err))
		return
	}
	if err := e.Repo.SetProjectStatus(ctx, gen.ProjectID, domain.ProjectPartial, e.ts()); err != nil {
		e.fail(ctx, gen, started, fmt.Errorf("mark partial: %w", err))
		return
	}
	e.finish(ctx, gen, started, domain.OutcomePartial, &msg)
	e.Log.Warn("generation halted", "project_id", gen.ProjectID, "doc_type", dt, "error", msg)
}

// fail records a run that broke outside the per-document retry loop.
func (e Engine) fail(ctx context.Context, gen domain.Generation, started time.Time, cause error) {
	e.Log.Error("generation failed", "project_id", gen.ProjectID, "generation_id", gen.ID, "error", cause)
	if err := e.Repo.SetProjectStatus(ctx, gen.ProjectID, domain.ProjectFailed, e.ts()); err != nil {
		e.Log.Error("mark project failed", "project_id", gen.ProjectID, "error", err)
	}
	msg := cause.Error()
	e.finish(ctx, gen, started, domain.OutcomeFailed, &msg)
}

func (e Engine) finish(ctx context.Context, gen domain.Generation, started time.Time, outcome string, msg *string) {
	end := e.now()
	duration := int64(end.Sub(started) / time.Second)
	if duration < 0 {
		duration = 0
	}
	if err := e.Repo.FinishGeneration(ctx, gen.ID, outcome, end.UTC().Format(time.RFC3339), msg, &duration); err != nil {
		e.Log.Error("finalize generation", "generation_id", gen.ID, "error", err)
	}
	payload := events.EventPayload{"outcome": outcome, "duration_seconds": duration}
	if msg != nil {
		payload["error"] = *msg
	}
	e.appendEvent(events.GenerationFinished, gen.ProjectID, "generation", gen.ID, gen.UserID, payload)
}

// failureMessage names the document by title and keeps only the root cause.
func failureMessage(dt domain.DocType, err error) string {
	var genErr *generator.GenerationError
	if errors.As(err, &genErr) {
		err = genErr.Err
	}
	return fmt.Sprintf("failed to generate %s: %v", dt.Config().Title, err)
}

// RegenerateDocument re-runs one document of a project in the background.
// Dependencies come from the project's stored complete documents.
func (e Engine) RegenerateDocument(ctx context.Context, userID, projectID, docType string) (domain.Document, error) {
	dt, err := domain.ParseDocType(docType)
	if err != nil {
		return domain.Document{}, fmt.Errorf("%w: %q", ErrInvalidDocType, docType)
	}
	p, err := e.Repo.GetOwnedProject(ctx, userID, projectID)
	if err != nil {
		return domain.Document{}, err
	}
	if p.Status == domain.ProjectGenerating {
		return domain.Document{}, ErrAlreadyGenerating
	}
	doc, err := e.Repo.GetDocument(ctx, p.ID, dt)
	if err != nil {
		return domain.Document{}, err
	}
	pc, err := e.ProjectContext(ctx, p)
	if err != nil {
		return domain.Document{}, err
	}
	stored, err := e.Repo.CompleteContents(ctx, p.ID)
	if err != nil {
		return domain.Document{}, fmt.Errorf("load dependencies: %w", err)
	}
	deps := generator.ResolveDependencies(dt, stored)

	marked, err := e.Repo.MarkDocumentGenerating(ctx, p.ID, dt, e.ts())
	if err != nil {
		return domain.Document{}, fmt.Errorf("mark document generating: %w", err)
	}
	if !marked {
		return domain.Document{}, ErrAlreadyGenerating
	}
	e.spawn("regenerate:"+p.ID+":"+string(dt), func() {
		e.regenerate(context.Background(), userID, doc, pc, deps)
	}, func(r any) {
		if err := e.Repo.SetDocumentStatus(context.Background(), doc.ProjectID, dt, restoredStatus(doc), e.ts()); err != nil {
			e.Log.Error("restore document status", "project_id", doc.ProjectID, "doc_type", dt, "error", err)
		}
	})
	return doc, nil
}

func (e Engine) regenerate(ctx context.Context, userID string, doc domain.Document, pc generator.ProjectContext, deps map[domain.DocType]string) {
	log := e.Log.With("project_id", doc.ProjectID, "doc_type", doc.DocType)
	prior := restoredStatus(doc)
	content, err := e.generateWithRetry(ctx, log, doc.DocType, pc, deps)
	if err != nil {
		// Content is left untouched; only the status goes back.
		if rerr := e.Repo.SetDocumentStatus(ctx, doc.ProjectID, doc.DocType, prior, e.ts()); rerr != nil {
			log.Error("restore document status", "error", rerr)
		}
		msg := failureMessage(doc.DocType, err)
		e.appendEvent(events.DocumentRegenerationFailed, doc.ProjectID, "document", string(doc.DocType), userID, events.EventPayload{"doc_type": doc.DocType, "error": msg})
		log.Warn("regeneration failed", "error", msg)
		return
	}
	now := e.ts()
	if err := e.Repo.CompleteDocument(ctx, doc.ProjectID, doc.DocType, content, now); err != nil {
		log.Error("save regenerated document", "error", err)
		if rerr := e.Repo.SetDocumentStatus(ctx, doc.ProjectID, doc.DocType, prior, e.ts()); rerr != nil {
			log.Error("restore document status", "error", rerr)
		}
		return
	}
	if err := e.Repo.TouchProject(ctx, doc.ProjectID, now); err != nil {
		log.Error("touch project", "error", err)
	}
	e.appendEvent(events.DocumentRegenerated, doc.ProjectID, "document", string(doc.DocType), userID, events.EventPayload{"doc_type": doc.DocType})
	log.Info("document regenerated")
}

// restoredStatus is where a failed regeneration leaves a document: complete
// when it still holds earlier content, pending otherwise.
func restoredStatus(doc domain.Document) string {
	if doc.HasContent() {
		return domain.DocumentComplete
	}
	return domain.DocumentPending
}

func (e Engine) spawn(name string, fn func(), onPanic func(any)) {
	tasks := e.tasks
	if tasks == nil {
		tasks = newTaskGroup(e.Log)
	}
	tasks.Go(name, fn, onPanic)
}

// appendEvent records activity. Failures are logged, never fatal to the caller.
func (e Engine) appendEvent(evtType, projectID, entityKind, entityID, actorID string, payload events.EventPayload) {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	if err := w.Append(context.Background(), nil, evtType, projectID, entityKind, entityID, actorID, payload); err != nil {
		e.Log.Warn("append event", "type", evtType, "project_id", projectID, "error", err)
	}
}

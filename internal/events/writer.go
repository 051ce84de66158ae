package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// Event types written by the generation engine.
const (
	GenerationStarted          = "generation.started"
	GenerationFinished         = "generation.finished"
	DocumentCompleted          = "document.completed"
	DocumentFailed             = "document.failed"
	DocumentRegenerated        = "document.regenerated"
	DocumentRegenerationFailed = "document.regeneration_failed"
	ProjectCreated             = "project.created"
)

type Writer struct {
	DB  *sqlx.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append writes one event through exec, or through w.DB when exec is nil.
func (w Writer) Append(ctx context.Context, exec sqlx.ExtContext, evtType, projectID, entityKind, entityID, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	if exec == nil {
		exec = w.DB
	}
	ts := w.Now().UTC().Format(time.RFC3339Nano)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = exec.ExecContext(ctx, exec.Rebind(`INSERT INTO events(id,ts,type,project_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?,?)`),
		uuid.NewString(), ts, evtType, nullable(projectID), entityKind, nullable(entityID), actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

package repo

import (
	"context"

	"offerline/internal/domain"
)

const generationColumns = `id,user_id,project_id,started_at,completed_at,status,error_message,duration_seconds`

func (r Repo) InsertGeneration(ctx context.Context, g domain.Generation) error {
	_, err := r.DB.ExecContext(ctx, r.q(`INSERT INTO generations(id,user_id,project_id,started_at) VALUES (?,?,?,?)`),
		g.ID, g.UserID, g.ProjectID, g.StartedAt)
	return err
}

// FinishGeneration writes the terminal outcome of a run.
func (r Repo) FinishGeneration(ctx context.Context, id, outcome, completedAt string, errMsg *string, duration *int64) error {
	return mustAffect(r.DB.ExecContext(ctx, r.q(`UPDATE generations SET status=?, completed_at=?, error_message=?, duration_seconds=? WHERE id=?`),
		outcome, completedAt, nullableStringPtr(errMsg), nullableInt64Ptr(duration), id))
}

func (r Repo) GetGeneration(ctx context.Context, id string) (domain.Generation, error) {
	var g domain.Generation
	err := r.DB.GetContext(ctx, &g, r.q(`SELECT `+generationColumns+` FROM generations WHERE id=?`), id)
	return g, notFound(err)
}

func (r Repo) ListGenerations(ctx context.Context, projectID string) ([]domain.Generation, error) {
	res := []domain.Generation{}
	err := r.DB.SelectContext(ctx, &res, r.q(`SELECT `+generationColumns+` FROM generations WHERE project_id=? ORDER BY started_at DESC, id DESC`), projectID)
	return res, err
}

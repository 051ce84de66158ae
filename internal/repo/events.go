package repo

import (
	"context"
	"fmt"
	"strings"

	"offerline/internal/domain"
)

// LatestEvents returns up to limit events, newest first, optionally filtered.
func (r Repo) LatestEvents(ctx context.Context, limit int, projectID, evtType string) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"1=1"}
	var args []any
	if projectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, projectID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,COALESCE(project_id,'') AS project_id,entity_kind,COALESCE(entity_id,'') AS entity_id,actor_id,payload_json FROM events %s ORDER BY ts DESC, id DESC LIMIT ?`, where)
	args = append(args, limit)
	res := []domain.Event{}
	err := r.DB.SelectContext(ctx, &res, r.q(query), args...)
	return res, err
}

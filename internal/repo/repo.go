package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"offerline/internal/domain"
)

type Repo struct {
	DB *sqlx.DB
}

var ErrNotFound = errors.New("not found")

// q rewrites ? placeholders for the connected driver.
func (r Repo) q(query string) string {
	return r.DB.Rebind(query)
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func mustAffect(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const projectColumns = `id,user_id,name,COALESCE(business_description,'') AS business_description,
COALESCE(avatar_description,'') AS avatar_description,deep_research,status,created_at,updated_at`

func (r Repo) InsertProject(ctx context.Context, p domain.Project) error {
	_, err := r.DB.ExecContext(ctx, r.q(`INSERT INTO projects(id,user_id,name,business_description,avatar_description,deep_research,status,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?)`),
		p.ID, p.UserID, p.Name, nullable(p.BusinessDescription), nullable(p.AvatarDescription), p.DeepResearch, p.Status, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	var p domain.Project
	err := r.DB.GetContext(ctx, &p, r.q(`SELECT `+projectColumns+` FROM projects WHERE id=?`), id)
	return p, notFound(err)
}

// GetOwnedProject returns the project only when userID owns it; anything else is ErrNotFound.
func (r Repo) GetOwnedProject(ctx context.Context, userID, id string) (domain.Project, error) {
	var p domain.Project
	err := r.DB.GetContext(ctx, &p, r.q(`SELECT `+projectColumns+` FROM projects WHERE id=? AND user_id=?`), id, userID)
	return p, notFound(err)
}

func (r Repo) ListProjects(ctx context.Context, userID string) ([]domain.Project, error) {
	res := []domain.Project{}
	err := r.DB.SelectContext(ctx, &res, r.q(`SELECT `+projectColumns+` FROM projects WHERE user_id=? ORDER BY created_at DESC, id DESC`), userID)
	return res, err
}

// ProjectUpdate carries the owner-editable project fields; nil leaves a field unchanged.
type ProjectUpdate struct {
	Name                *string
	BusinessDescription *string
	AvatarDescription   *string
	DeepResearch        *bool
}

func (r Repo) UpdateProjectDetails(ctx context.Context, id string, u ProjectUpdate, updatedAt string) error {
	var (
		fields []string
		args   []any
	)
	if u.Name != nil {
		fields = append(fields, "name=?")
		args = append(args, *u.Name)
	}
	if u.BusinessDescription != nil {
		fields = append(fields, "business_description=?")
		args = append(args, nullable(*u.BusinessDescription))
	}
	if u.AvatarDescription != nil {
		fields = append(fields, "avatar_description=?")
		args = append(args, nullable(*u.AvatarDescription))
	}
	if u.DeepResearch != nil {
		fields = append(fields, "deep_research=?")
		args = append(args, *u.DeepResearch)
	}
	if len(fields) == 0 {
		return nil
	}
	fields = append(fields, "updated_at=?")
	args = append(args, updatedAt, id)
	query := fmt.Sprintf(`UPDATE projects SET %s WHERE id=?`, strings.Join(fields, ","))
	return mustAffect(r.DB.ExecContext(ctx, r.q(query), args...))
}

func (r Repo) SetProjectStatus(ctx context.Context, id, status, updatedAt string) error {
	return mustAffect(r.DB.ExecContext(ctx, r.q(`UPDATE projects SET status=?, updated_at=? WHERE id=?`), status, updatedAt, id))
}

// MarkGenerating flips a project to generating unless it already is. It reports
// false when another run holds the flag.
func (r Repo) MarkGenerating(ctx context.Context, id, updatedAt string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, r.q(`UPDATE projects SET status=?, updated_at=? WHERE id=? AND status<>?`),
		domain.ProjectGenerating, updatedAt, id, domain.ProjectGenerating)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r Repo) TouchProject(ctx context.Context, id, updatedAt string) error {
	return mustAffect(r.DB.ExecContext(ctx, r.q(`UPDATE projects SET updated_at=? WHERE id=?`), updatedAt, id))
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableInt64Ptr(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

package repo

import (
	"context"

	"offerline/internal/domain"
)

const documentColumns = `id,project_id,doc_type,doc_number,title,content,status,created_at,updated_at`

// UpsertPendingDocument creates the (project, doc_type) row or resets an existing
// one to pending. Existing content stays until a later stage overwrites it.
func (r Repo) UpsertPendingDocument(ctx context.Context, d domain.Document) error {
	_, err := r.DB.ExecContext(ctx, r.q(`INSERT INTO documents(id,project_id,doc_type,doc_number,title,content,status,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?)
ON CONFLICT(project_id,doc_type) DO UPDATE SET status=excluded.status, doc_number=excluded.doc_number, title=excluded.title, updated_at=excluded.updated_at`),
		d.ID, d.ProjectID, d.DocType, d.DocNumber, d.Title, nullableStringPtr(d.Content), domain.DocumentPending, d.CreatedAt, d.UpdatedAt)
	return err
}

func (r Repo) SetDocumentStatus(ctx context.Context, projectID string, docType domain.DocType, status, updatedAt string) error {
	return mustAffect(r.DB.ExecContext(ctx, r.q(`UPDATE documents SET status=?, updated_at=? WHERE project_id=? AND doc_type=?`),
		status, updatedAt, projectID, docType))
}

// MarkDocumentGenerating flips a document to generating unless it already is.
// It reports false when another run is writing the document.
func (r Repo) MarkDocumentGenerating(ctx context.Context, projectID string, docType domain.DocType, updatedAt string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, r.q(`UPDATE documents SET status=?, updated_at=? WHERE project_id=? AND doc_type=? AND status<>?`),
		domain.DocumentGenerating, updatedAt, projectID, docType, domain.DocumentGenerating)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// CompleteDocument stores generated content and marks the document complete.
func (r Repo) CompleteDocument(ctx context.Context, projectID string, docType domain.DocType, content, updatedAt string) error {
	return mustAffect(r.DB.ExecContext(ctx, r.q(`UPDATE documents SET content=?, status=?, updated_at=? WHERE project_id=? AND doc_type=?`),
		content, domain.DocumentComplete, updatedAt, projectID, docType))
}

func (r Repo) GetDocument(ctx context.Context, projectID string, docType domain.DocType) (domain.Document, error) {
	var d domain.Document
	err := r.DB.GetContext(ctx, &d, r.q(`SELECT `+documentColumns+` FROM documents WHERE project_id=? AND doc_type=?`), projectID, docType)
	return d, notFound(err)
}

func (r Repo) GetDocumentByID(ctx context.Context, projectID, id string) (domain.Document, error) {
	var d domain.Document
	err := r.DB.GetContext(ctx, &d, r.q(`SELECT `+documentColumns+` FROM documents WHERE id=? AND project_id=?`), id, projectID)
	return d, notFound(err)
}

// ListDocuments returns a project's documents in doc_number order.
func (r Repo) ListDocuments(ctx context.Context, projectID string) ([]domain.Document, error) {
	res := []domain.Document{}
	err := r.DB.SelectContext(ctx, &res, r.q(`SELECT `+documentColumns+` FROM documents WHERE project_id=? ORDER BY doc_number ASC`), projectID)
	return res, err
}

func (r Repo) ListCompleteDocuments(ctx context.Context, projectID string) ([]domain.Document, error) {
	res := []domain.Document{}
	err := r.DB.SelectContext(ctx, &res, r.q(`SELECT `+documentColumns+` FROM documents WHERE project_id=? AND status=? ORDER BY doc_number ASC`),
		projectID, domain.DocumentComplete)
	return res, err
}

// CompleteContents maps each complete document's type to its content.
func (r Repo) CompleteContents(ctx context.Context, projectID string) (map[domain.DocType]string, error) {
	docs, err := r.ListCompleteDocuments(ctx, projectID)
	if err != nil {
		return nil, err
	}
	out := make(map[domain.DocType]string, len(docs))
	for _, d := range docs {
		if d.HasContent() {
			out[d.DocType] = *d.Content
		}
	}
	return out, nil
}

package engine

import (
	"context"
	"errors"
	"fmt"

	"offerline/internal/export"
	"offerline/internal/repo"
)

var ErrNoContent = errors.New("document has no content")

// Export is a rendered attachment.
type Export struct {
	Filename    string
	ContentType string
	Body        []byte
}

// ExportDocumentPDF renders one of the caller's documents.
func (e Engine) ExportDocumentPDF(ctx context.Context, userID, projectID, documentID string) (Export, error) {
	p, err := e.Repo.GetOwnedProject(ctx, userID, projectID)
	if err != nil {
		return Export{}, err
	}
	doc, err := e.Repo.GetDocumentByID(ctx, p.ID, documentID)
	if err != nil {
		return Export{}, err
	}
	if !doc.HasContent() {
		return Export{}, ErrNoContent
	}
	body, err := export.RenderDocumentPDF(doc)
	if err != nil {
		return Export{}, err
	}
	return Export{
		Filename:    export.DocumentFilename(p.Name, doc.Title),
		ContentType: "application/pdf",
		Body:        body,
	}, nil
}

// ExportProjectZip bundles every complete document of the caller's project.
func (e Engine) ExportProjectZip(ctx context.Context, userID, projectID string) (Export, error) {
	p, err := e.Repo.GetOwnedProject(ctx, userID, projectID)
	if err != nil {
		return Export{}, err
	}
	docs, err := e.Repo.ListCompleteDocuments(ctx, p.ID)
	if err != nil {
		return Export{}, fmt.Errorf("list documents: %w", err)
	}
	body, err := export.RenderProjectZip(ctx, docs)
	if errors.Is(err, export.ErrNoDocuments) {
		return Export{}, fmt.Errorf("%w: %w", repo.ErrNotFound, err)
	}
	if err != nil {
		return Export{}, err
	}
	return Export{
		Filename:    export.ZipFilename(p.Name),
		ContentType: "application/zip",
		Body:        body,
	}, nil
}

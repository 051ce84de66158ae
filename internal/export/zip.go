package export

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"offerline/internal/domain"
)

var ErrNoDocuments = errors.New("no complete documents")

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9]`)

// Slug replaces every character outside [a-zA-Z0-9] with "-" and lowercases.
func Slug(s string) string {
	return strings.ToLower(unsafeChars.ReplaceAllString(s, "-"))
}

func DocumentFilename(projectName, title string) string {
	return fmt.Sprintf("%s-%s.pdf", Slug(projectName), Slug(title))
}

func ZipFilename(projectName string) string {
	return Slug(projectName) + "-offer-package.zip"
}

// EntryName is the name of a document inside the project archive.
func EntryName(doc domain.Document) string {
	return fmt.Sprintf("%02d-%s.pdf", doc.DocNumber, Slug(doc.Title))
}

// RenderDocumentPDF renders a stored document.
func RenderDocumentPDF(doc domain.Document) ([]byte, error) {
	content := ""
	if doc.Content != nil {
		content = *doc.Content
	}
	return RenderPDF(doc.Title, content)
}

// RenderProjectZip bundles one PDF per complete document, ordered by doc number.
func RenderProjectZip(ctx context.Context, docs []domain.Document) ([]byte, error) {
	var complete []domain.Document
	for _, d := range docs {
		if d.Status == domain.DocumentComplete {
			complete = append(complete, d)
		}
	}
	if len(complete) == 0 {
		return nil, ErrNoDocuments
	}
	sort.SliceStable(complete, func(i, j int) bool { return complete[i].DocNumber < complete[j].DocNumber })

	rendered := make([][]byte, len(complete))
	g, gctx := errgroup.WithContext(ctx)
	for i, d := range complete {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out, err := RenderDocumentPDF(d)
			if err != nil {
				return fmt.Errorf("%s: %w", d.DocType, err)
			}
			rendered[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for i, d := range complete {
		w, err := zw.Create(EntryName(d))
		if err != nil {
			return nil, fmt.Errorf("add %s: %w", d.DocType, err)
		}
		if _, err := w.Write(rendered[i]); err != nil {
			return nil, fmt.Errorf("write %s: %w", d.DocType, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close zip: %w", err)
	}
	return buf.Bytes(), nil
}

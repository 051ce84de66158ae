package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"offerline/internal/engine"
)

type binaryResponse struct {
	ContentType        string `header:"Content-Type"`
	ContentDisposition string `header:"Content-Disposition"`
	Body               []byte
}

func attachment(out engine.Export) *binaryResponse {
	return &binaryResponse{
		ContentType:        out.ContentType,
		ContentDisposition: fmt.Sprintf("attachment; filename=%q", out.Filename),
		Body:               out.Body,
	}
}

func registerExports(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "export-pdf",
		Method:      http.MethodPost,
		Path:        "/export-pdf",
		Summary:     "Export one document as PDF",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		Body ExportPDFRequest `json:"body"`
	}) (*binaryResponse, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		projectID := strings.TrimSpace(input.Body.ProjectID)
		documentID := strings.TrimSpace(input.Body.DocumentID)
		if projectID == "" || documentID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "documentId and projectId are required", nil)
		}
		out, err := e.ExportDocumentPDF(ctx, userID, projectID, documentID)
		if err != nil {
			return nil, handleError(err)
		}
		return attachment(out), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "export-zip",
		Method:      http.MethodPost,
		Path:        "/export-zip",
		Summary:     "Export every complete document as a ZIP of PDFs",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		Body ExportZipRequest `json:"body"`
	}) (*binaryResponse, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		projectID := strings.TrimSpace(input.Body.ProjectID)
		if projectID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "projectId is required", nil)
		}
		out, err := e.ExportProjectZip(ctx, userID, projectID)
		if err != nil {
			return nil, handleError(err)
		}
		return attachment(out), nil
	})
}

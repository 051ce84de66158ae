package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"offerline/internal/engine"
	"offerline/internal/usage"
)

func registerGeneration(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "start-generation",
		Method:        http.MethodPost,
		Path:          "/start-generation",
		Summary:       "Start generating every document of a project",
		DefaultStatus: http.StatusAccepted,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		Body StartGenerationRequest `json:"body"`
	}) (*struct {
		Body StartGenerationResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		projectID := strings.TrimSpace(input.Body.ProjectID)
		if projectID == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "projectId is required", nil)
		}
		gen, err := e.StartGeneration(ctx, userID, projectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StartGenerationResponse `json:"body"`
		}{Body: StartGenerationResponse{Success: true, ProjectID: projectID, GenerationID: gen.ID}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "regenerate-document",
		Method:        http.MethodPost,
		Path:          "/regenerate-document",
		Summary:       "Regenerate one document from stored dependencies",
		DefaultStatus: http.StatusAccepted,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		Body RegenerateDocumentRequest `json:"body"`
	}) (*struct {
		Body RegenerateDocumentResponse `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		projectID := strings.TrimSpace(input.Body.ProjectID)
		docType := strings.TrimSpace(input.Body.DocType)
		if projectID == "" || docType == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "projectId and docType are required", nil)
		}
		doc, err := e.RegenerateDocument(ctx, userID, projectID, docType)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RegenerateDocumentResponse `json:"body"`
		}{Body: RegenerateDocumentResponse{Success: true, DocType: string(doc.DocType)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "usage-limits",
		Method:      http.MethodGet,
		Path:        "/usage-limits",
		Summary:     "Remaining generation quota",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body usage.Limits `json:"body"`
	}, error) {
		userID, authErr := userIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		limits, err := e.Limiter.GetLimits(ctx, userID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body usage.Limits `json:"body"`
		}{Body: limits}, nil
	})
}

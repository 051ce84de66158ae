package server

import (
	"encoding/json"

	"offerline/internal/domain"
)

// Request payloads

type StartGenerationRequest struct {
	ProjectID string `json:"projectId,omitempty"`
}

type RegenerateDocumentRequest struct {
	ProjectID string `json:"projectId,omitempty"`
	DocType   string `json:"docType,omitempty"`
}

type ExportPDFRequest struct {
	ProjectID  string `json:"projectId,omitempty"`
	DocumentID string `json:"documentId,omitempty"`
}

type ExportZipRequest struct {
	ProjectID string `json:"projectId,omitempty"`
}

type CreateProjectRequest struct {
	Name                string `json:"name,omitempty"`
	BusinessDescription string `json:"business_description,omitempty"`
	AvatarDescription   string `json:"avatar_description,omitempty"`
	DeepResearch        bool   `json:"deep_research,omitempty"`
}

type UpdateProjectRequest struct {
	Name                *string `json:"name,omitempty"`
	BusinessDescription *string `json:"business_description,omitempty"`
	AvatarDescription   *string `json:"avatar_description,omitempty"`
	DeepResearch        *bool   `json:"deep_research,omitempty"`
}

type UpdateProfileRequest struct {
	BusinessName        *string `json:"business_name,omitempty"`
	BusinessDescription *string `json:"business_description,omitempty"`
	TargetAvatar        *string `json:"target_avatar,omitempty"`
	PriceRange          *string `json:"price_range,omitempty"`
	Competitors         *string `json:"competitors,omitempty"`
}

type CheckoutSessionRequest struct {
	Mode string `json:"mode,omitempty" enum:"subscription,payment"`
}

type DevLoginRequest struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
}

// Response payloads

type StartGenerationResponse struct {
	Success      bool   `json:"success"`
	ProjectID    string `json:"projectId"`
	GenerationID string `json:"generationId"`
}

type RegenerateDocumentResponse struct {
	Success bool   `json:"success"`
	DocType string `json:"docType"`
}

type CheckoutSessionResponse struct {
	URL string `json:"url"`
}

type WebhookResponse struct {
	Received bool `json:"received"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type WhoAmIResponse struct {
	UserID string `json:"user_id"`
	Email  string `json:"email,omitempty"`
	Source string `json:"source"`
}

type EventResponse struct {
	ID         string         `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// Conversion helpers

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		ProjectID:  e.ProjectID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func decodeJSONMap(raw string) map[string]any {
	out := map[string]any{}
	if raw == "" {
		return out
	}
	_ = json.Unmarshal([]byte(raw), &out)
	return out
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

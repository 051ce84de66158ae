package domain

// Project statuses.
const (
	ProjectDraft      = "draft"
	ProjectGenerating = "generating"
	ProjectComplete   = "complete"
	ProjectFailed     = "failed"
	ProjectPartial    = "partial"
)

// Document statuses.
const (
	DocumentPending    = "pending"
	DocumentGenerating = "generating"
	DocumentComplete   = "complete"
)

// Generation outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
	OutcomePartial = "partial"
)

// Plans.
const (
	PlanFree = "free"
	PlanPro  = "pro"
)

type Project struct {
	ID                  string `json:"id" db:"id"`
	UserID              string `json:"user_id" db:"user_id"`
	Name                string `json:"name" db:"name"`
	BusinessDescription string `json:"business_description,omitempty" db:"business_description"`
	AvatarDescription   string `json:"avatar_description,omitempty" db:"avatar_description"`
	DeepResearch        bool   `json:"deep_research" db:"deep_research"`
	Status              string `json:"status" db:"status" enum:"draft,generating,complete,failed,partial"`
	CreatedAt           string `json:"created_at" db:"created_at" format:"date-time"`
	UpdatedAt           string `json:"updated_at" db:"updated_at" format:"date-time"`
}

type Document struct {
	ID        string  `json:"id" db:"id"`
	ProjectID string  `json:"project_id" db:"project_id"`
	DocType   DocType `json:"doc_type" db:"doc_type"`
	DocNumber int     `json:"doc_number" db:"doc_number"`
	Title     string  `json:"title" db:"title"`
	Content   *string `json:"content,omitempty" db:"content"`
	Status    string  `json:"status" db:"status" enum:"pending,generating,complete"`
	CreatedAt string  `json:"created_at" db:"created_at" format:"date-time"`
	UpdatedAt string  `json:"updated_at" db:"updated_at" format:"date-time"`
}

// HasContent reports whether the document carries non-empty text.
func (d Document) HasContent() bool {
	return d.Content != nil && *d.Content != ""
}

type Generation struct {
	ID              string  `json:"id" db:"id"`
	UserID          string  `json:"user_id" db:"user_id"`
	ProjectID       string  `json:"project_id" db:"project_id"`
	StartedAt       string  `json:"started_at" db:"started_at" format:"date-time"`
	CompletedAt     *string `json:"completed_at,omitempty" db:"completed_at" format:"date-time"`
	Status          *string `json:"status,omitempty" db:"status" enum:"success,failed,partial"`
	ErrorMessage    *string `json:"error_message,omitempty" db:"error_message"`
	DurationSeconds *int64  `json:"duration_seconds,omitempty" db:"duration_seconds"`
}

type Profile struct {
	ID                   string `json:"id" db:"id"`
	Email                string `json:"email,omitempty" db:"email"`
	Plan                 string `json:"plan" db:"plan" enum:"free,pro"`
	StripeCustomerID     string `json:"stripe_customer_id,omitempty" db:"stripe_customer_id"`
	TotalGenerations     int    `json:"total_generations" db:"total_generations"`
	GenerationsThisMonth int    `json:"generations_this_month" db:"generations_this_month"`
	BillingCycleStart    string `json:"billing_cycle_start,omitempty" db:"billing_cycle_start"`
	ReportCredits        int    `json:"report_credits" db:"report_credits"`
	OnboardingComplete   bool   `json:"onboarding_complete" db:"onboarding_complete"`
	BusinessName         string `json:"business_name,omitempty" db:"business_name"`
	BusinessDescription  string `json:"business_description,omitempty" db:"business_description"`
	TargetAvatar         string `json:"target_avatar,omitempty" db:"target_avatar"`
	PriceRange           string `json:"price_range,omitempty" db:"price_range"`
	Competitors          string `json:"competitors,omitempty" db:"competitors"`
	CreatedAt            string `json:"created_at" db:"created_at" format:"date-time"`
	UpdatedAt            string `json:"updated_at" db:"updated_at" format:"date-time"`
}

type Event struct {
	ID         string `json:"id" db:"id"`
	TS         string `json:"ts" db:"ts" format:"date-time"`
	Type       string `json:"type" db:"type"`
	ProjectID  string `json:"project_id,omitempty" db:"project_id"`
	EntityKind string `json:"entity_kind" db:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty" db:"entity_id"`
	ActorID    string `json:"actor_id" db:"actor_id"`
	Payload    string `json:"payload_json" db:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id" db:"id"`
	UserID    string `json:"user_id" db:"user_id"`
	Name      string `json:"name,omitempty" db:"name"`
	KeyHash   string `json:"-" db:"key_hash"`
	CreatedAt string `json:"created_at" db:"created_at" format:"date-time"`
}

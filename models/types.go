// ABOUTME: Data models for CRM sync entities
// ABOUTME: Defines Connection, Lead, Message, Todo, Listing, AnalysisJob, and FollowupApproval structs
package models

import (
	"time"

	"github.com/google/uuid"
)

type Connection struct {
	ID           uuid.UUID  `json:"id"`
	UserID       string     `json:"user_id"`
	LocationID   string     `json:"location_id"`
	CompanyID    string     `json:"company_id,omitempty"`
	AccessToken  string     `json:"-"`
	RefreshToken string     `json:"-"`
	ExpiresAt    time.Time  `json:"expires_at"`
	IsActive     bool       `json:"is_active"`
	LastSyncAt   *time.Time `json:"last_sync_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

type Lead struct {
	ID               uuid.UUID  `json:"id"`
	ConnectionID     uuid.UUID  `json:"connection_id"`
	ExternalID       string     `json:"external_id"`
	Name             string     `json:"name"`
	Email            string     `json:"email,omitempty"`
	Phone            string     `json:"phone,omitempty"`
	Source           string     `json:"source,omitempty"`
	Status           string     `json:"status"`
	ListingID        *uuid.UUID `json:"listing_id,omitempty"`
	PipelineStage    string     `json:"pipeline_stage,omitempty"`
	ReachedViewing   bool       `json:"reached_viewing"`
	ReachedFinancing bool       `json:"reached_financing"`
	ReachedNotary    bool       `json:"reached_notary"`
	ReachedPurchase  bool       `json:"reached_purchase"`
	QualityScore     int        `json:"quality_score,omitempty"`
	Temperature      string     `json:"temperature,omitempty"`
	Summary          string     `json:"summary,omitempty"`
	LastAnalyzedAt   *time.Time `json:"last_analyzed_at,omitempty"`
	LastMessageAt    *time.Time `json:"last_message_at,omitempty"`
	Tags             string     `json:"tags,omitempty"`
	RawPayload       string     `json:"-"`
	Archived         bool       `json:"archived"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

type Message struct {
	ID             uuid.UUID `json:"id"`
	LeadID         uuid.UUID `json:"lead_id"`
	ExternalID     string    `json:"external_id"`
	ConversationID string    `json:"conversation_id,omitempty"`
	Direction      string    `json:"direction"`
	Channel        string    `json:"channel,omitempty"`
	Content        string    `json:"content"`
	Status         string    `json:"status"`
	FromTemplate   bool      `json:"from_template"`
	SentAt         time.Time `json:"sent_at"`
	CreatedAt      time.Time `json:"created_at"`
}

type Todo struct {
	ID          uuid.UUID  `json:"id"`
	LeadID      *uuid.UUID `json:"lead_id,omitempty"`
	ListingID   *uuid.UUID `json:"listing_id,omitempty"`
	ExternalID  string     `json:"external_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Type        string     `json:"type"`
	Priority    string     `json:"priority"`
	Source      string     `json:"source"`
	DueAt       *time.Time `json:"due_at,omitempty"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type Listing struct {
	ID                    uuid.UUID  `json:"id"`
	Name                  string     `json:"name"`
	City                  string     `json:"city"`
	Price                 int64      `json:"price"` // in cents
	Rooms                 float64    `json:"rooms"`
	AreaSqm               float64    `json:"area_sqm"`
	Status                string     `json:"status"`
	AIReady               bool       `json:"ai_ready"`
	Description           string     `json:"description,omitempty"`
	TranslatedDescription string     `json:"translated_description,omitempty"`
	TranslatedAt          *time.Time `json:"translated_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

type AnalysisJob struct {
	ID            uuid.UUID  `json:"id"`
	Kind          string     `json:"kind"`
	Status        string     `json:"status"`
	TotalItems    int        `json:"total_items"`
	AnalyzedCount int        `json:"analyzed_count"`
	SkippedCount  int        `json:"skipped_count"`
	FailedCount   int        `json:"failed_count"`
	BatchSize     int        `json:"batch_size"`
	FullRerun     bool       `json:"full_rerun"`
	ClaimedAt     *time.Time `json:"claimed_at,omitempty"`
	ClaimToken    string     `json:"-"`
	LastError     string     `json:"last_error,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Remaining reports how many items the job has not yet accounted for.
func (j *AnalysisJob) Remaining() int {
	r := j.TotalItems - j.AnalyzedCount - j.SkippedCount - j.FailedCount
	if r < 0 {
		return 0
	}
	return r
}

// IsTerminal reports whether the job reached a final state.
func (j *AnalysisJob) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

type FollowupApproval struct {
	ID        uuid.UUID  `json:"id"`
	LeadID    uuid.UUID  `json:"lead_id"`
	Draft     string     `json:"draft"`
	Reasoning string     `json:"reasoning,omitempty"`
	Status    string     `json:"status"`
	ExpiresAt time.Time  `json:"expires_at"`
	DecidedAt *time.Time `json:"decided_at,omitempty"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// IsExpired reports whether a pending approval has passed its deadline.
func (a *FollowupApproval) IsExpired(now time.Time) bool {
	return a.Status == ApprovalStatusPending && now.After(a.ExpiresAt)
}

type KnowledgeEntry struct {
	ID        uuid.UUID  `json:"id"`
	ListingID *uuid.UUID `json:"listing_id,omitempty"`
	Question  string     `json:"question"`
	Answer    string     `json:"answer"`
	Source    string     `json:"source"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type SyncRun struct {
	ID           uuid.UUID  `json:"id"`
	ConnectionID uuid.UUID  `json:"connection_id"`
	SyncType     string     `json:"sync_type"`
	Status       string     `json:"status"`
	Counts       string     `json:"counts,omitempty"`
	ErrorDetail  string     `json:"error_detail,omitempty"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
}

type WebhookEvent struct {
	ID         uuid.UUID `json:"id"`
	EventType  string    `json:"event_type"`
	LocationID string    `json:"location_id"`
	ExternalID string    `json:"external_id,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

type PromptTemplate struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Template  string    `json:"template"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

const (
	LeadStatusNew       = "neu"
	LeadStatusContacted = "kontaktiert"
	LeadStatusViewed    = "besichtigt"
	LeadStatusFinanced  = "finanzierung_bestaetigt"
	LeadStatusBought    = "gekauft"
)

// Lead temperature constants.
const (
	TemperatureHot  = "heiss"
	TemperatureWarm = "warm"
	TemperatureCold = "kalt"
)

// Message direction constants.
const (
	DirectionIncoming = "incoming"
	DirectionOutgoing = "outgoing"
)

// Message delivery status constants.
const (
	MessageStatusPending   = "pending"
	MessageStatusDelivered = "delivered"
	MessageStatusRead      = "read"
	MessageStatusFailed    = "failed"
)

// Todo type constants.
const (
	TodoTypeMessage   = "nachricht"
	TodoTypeCall      = "anruf"
	TodoTypeViewing   = "besichtigung"
	TodoTypeFinancing = "finanzierung"
	TodoTypeDocuments = "unterlagen"
)

// Todo priority constants.
const (
	PriorityNormal = "normal"
	PriorityUrgent = "dringend"
)

// Todo source constants.
const (
	TodoSourceTask   = "task"
	TodoSourceEvent  = "event"
	TodoSourceManual = "manual"
)

// Listing status constants.
const (
	ListingStatusActive   = "aktiv"
	ListingStatusReserved = "reserviert"
	ListingStatusSold     = "verkauft"
)

// AnalysisJob kind constants.
const (
	JobKindLeadAnalysis       = "lead_analysis"
	JobKindFollowupDrafts     = "followup_drafts"
	JobKindListingTranslation = "listing_translation"
)

// AnalysisJob status constants.
const (
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// FollowupApproval status constants.
const (
	ApprovalStatusPending  = "pending"
	ApprovalStatusApproved = "approved"
	ApprovalStatusRejected = "rejected"
	ApprovalStatusExpired  = "expired"
	ApprovalStatusSent     = "sent"
)

// KnowledgeEntry source constants.
const (
	KnowledgeSourceLearned = "learned"
	KnowledgeSourceManual  = "manual"
)

// Sync type constants.
const (
	SyncTypeFull          = "full"
	SyncTypeContacts      = "contacts"
	SyncTypeConversations = "conversations"
	SyncTypeAppointments  = "appointments"
	SyncTypeTasks         = "tasks"
	SyncTypePipeline      = "pipeline"
)

// SyncRun status constants.
const (
	SyncRunStatusSuccess = "success"
	SyncRunStatusPartial = "partial"
	SyncRunStatusFailed  = "failed"
)

// LeadOverview combines a Lead with listing and activity info for list views.
type LeadOverview struct {
	Lead
	ListingName   string `json:"listing_name,omitempty"`
	MessageCount  int    `json:"message_count"`
	OpenTodoCount int    `json:"open_todo_count"`
}

// StageFlags carries the reached-stage booleans derived from a pipeline
// stage. Stored flags only ever transition false to true.
type StageFlags struct {
	Viewing   bool `json:"viewing"`
	Financing bool `json:"financing"`
	Notary    bool `json:"notary"`
	Purchase  bool `json:"purchase"`
}

// StageCounts aggregates the sticky milestone flags across active leads.
// Because the flags never reset, each count includes leads whose current
// status already moved past that milestone.
type StageCounts struct {
	Total     int `json:"total"`
	Viewing   int `json:"viewing"`
	Financing int `json:"financing"`
	Notary    int `json:"notary"`
	Purchase  int `json:"purchase"`
}

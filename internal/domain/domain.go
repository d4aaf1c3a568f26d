package domain

import "strings"

// Role is the organizational role carried by an actor.
type Role string

const (
	RoleAdmin             Role = "admin"
	RoleOwner             Role = "owner"
	RoleSalesManager      Role = "sales_manager"
	RoleTeamLead          Role = "team_lead"
	RoleAgent             Role = "agent"
	RoleSiteIncharge      Role = "site_incharge"
	RoleContractor        Role = "contractor"
	RoleAccountant        Role = "accountant"
	RoleCustomerPurchased Role = "customer_purchased"
)

// Actor is the authenticated caller of a core operation.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
	Name string `json:"name,omitempty"`
}

// Priority orders tasks in listings.
type Priority string

const (
	PriorityHigh        Priority = "high"
	PriorityMedium      Priority = "medium"
	PriorityLow         Priority = "low"
	PriorityUnspecified Priority = "unspecified"
)

// Rank orders priorities for sorting; unknown values rank with unspecified.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// ParsePriority normalizes user input. Empty input is not valid here; callers apply defaults.
func ParsePriority(s string) (Priority, bool) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case PriorityHigh, PriorityMedium, PriorityLow, PriorityUnspecified:
		return p, true
	}
	return "", false
}

const (
	StatusInProgress          = "in_progress"
	StatusCompleted           = "completed"
	StatusPendingVerification = "pending verification"
	StatusApproved            = "approved"
)

// Project is one building/floor/unit combination and the aggregate owning its unit tasks.
type Project struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	BuildingID   string            `json:"building_id"`
	FloorUnitID  string            `json:"floor_unit_id"`
	UnitID       string            `json:"unit_id"`
	SiteIncharge string            `json:"site_incharge,omitempty"`
	Contractors  []string          `json:"contractors"`
	Units        map[string][]Task `json:"units"`
	CreatedBy    string            `json:"created_by"`
	UpdatedBy    string            `json:"updated_by,omitempty"`
	IsDeleted    bool              `json:"is_deleted"`
	CreatedAt    string            `json:"created_at" format:"date-time"`
	UpdatedAt    string            `json:"updated_at" format:"date-time"`
}

// HasContractor reports whether id is listed on the project.
func (p Project) HasContractor(id string) bool {
	for _, c := range p.Contractors {
		if c == id {
			return true
		}
	}
	return false
}

// Task is a unit of construction work. Identity is unique within its project only.
type Task struct {
	ID                string          `json:"id"`
	ProjectID         string          `json:"project_id"`
	UnitID            string          `json:"unit_id"`
	Position          int             `json:"position"`
	Title             string          `json:"title"`
	Description       string          `json:"description,omitempty"`
	ConstructionPhase string          `json:"construction_phase,omitempty"`
	Priority          Priority        `json:"priority" enum:"high,medium,low,unspecified"`
	Deadline          string          `json:"deadline,omitempty"`
	Contractor        string          `json:"contractor"`
	AddedBy           string          `json:"added_by"`
	QualityIssueID    string          `json:"quality_issue_id,omitempty"`
	Work              ContractorTrack `json:"contractor_track"`
	Review            ReviewTrack     `json:"review_track"`
	Version           int64           `json:"version"`
	CreatedAt         string          `json:"created_at" format:"date-time"`
	UpdatedAt         string          `json:"updated_at" format:"date-time"`
}

// ContractorTrack holds the fields only the assigned contractor writes.
type ContractorTrack struct {
	Status        string   `json:"status_for_contractor"`
	Progress      int      `json:"progress_percentage"`
	Approved      bool     `json:"is_approved_by_contractor"`
	Photos        []string `json:"contractor_uploaded_photos"`
	SubmittedOn   *string  `json:"submitted_by_contractor_on,omitempty" format:"date-time"`
	EvidenceTitle string   `json:"evidence_title_by_contractor,omitempty"`
}

// ReviewTrack holds the fields only the site incharge writes.
type ReviewTrack struct {
	Status               string   `json:"status_for_site_incharge"`
	Approved             bool     `json:"is_approved_by_site_manager"`
	Photos               []string `json:"site_incharge_uploaded_photos"`
	SubmittedOn          *string  `json:"submitted_by_site_incharge_on,omitempty" format:"date-time"`
	Note                 string   `json:"note_by_site_incharge,omitempty"`
	QualityAssessment    string   `json:"quality_assessment,omitempty"`
	VerificationDecision string   `json:"verification_decision,omitempty"`
}

// EffectivelyComplete reports completion for reporting purposes. It is never stored.
func (t Task) EffectivelyComplete() bool {
	return t.Work.Progress >= 100 || t.Review.Status == StatusApproved || t.Review.Approved
}

// IssueStatus is the lifecycle state of a quality issue.
type IssueStatus string

const (
	IssueOpen        IssueStatus = "open"
	IssueUnderReview IssueStatus = "under_review"
	IssueResolved    IssueStatus = "resolved"
)

// Valid reports whether s is a known issue status.
func (s IssueStatus) Valid() bool {
	switch s {
	case IssueOpen, IssueUnderReview, IssueResolved:
		return true
	}
	return false
}

type QualityIssue struct {
	ID          string      `json:"id"`
	ProjectID   string      `json:"project_id"`
	Contractor  string      `json:"contractor,omitempty"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Status      IssueStatus `json:"status" enum:"open,under_review,resolved"`
	CreatedBy   string      `json:"created_by"`
	CreatedAt   string      `json:"created_at" format:"date-time"`
	UpdatedAt   string      `json:"updated_at" format:"date-time"`
}

type Lead struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Phone     string `json:"phone,omitempty"`
	Email     string `json:"email,omitempty"`
	Status    string `json:"status"`
	AddedBy   string `json:"added_by"`
	IsDeleted bool   `json:"is_deleted"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

// Membership is one edge of the organizational graph: a team lead under a sales
// manager, or an agent under a team lead.
type Membership struct {
	ID        string `json:"id"`
	Kind      Role   `json:"kind" enum:"team_lead,agent"`
	MemberID  string `json:"member_id"`
	ManagerID string `json:"manager_id"`
	IsDeleted bool   `json:"is_deleted"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload,omitempty"`
}

// Notification is one outbox row awaiting delivery.
type Notification struct {
	ID            int64   `json:"id"`
	RecipientID   string  `json:"recipient_id"`
	Title         string  `json:"title"`
	Message       string  `json:"message"`
	TriggeredBy   string  `json:"triggered_by"`
	Attempts      int     `json:"attempts"`
	NextAttemptAt string  `json:"next_attempt_at" format:"date-time"`
	DeliveredAt   *string `json:"delivered_at,omitempty" format:"date-time"`
	LastError     string  `json:"last_error,omitempty"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"-"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

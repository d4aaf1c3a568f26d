package server

import (
	"sitework/internal/domain"
	"sitework/internal/taskstate"
)

// Request payloads

type CreateProjectRequest struct {
	Name         string   `json:"name,omitempty"`
	BuildingID   string   `json:"building_id"`
	FloorUnitID  string   `json:"floor_unit_id"`
	UnitID       string   `json:"unit_id"`
	SiteIncharge string   `json:"site_incharge,omitempty"`
	Contractors  []string `json:"contractors,omitempty"`
}

type UpdateProjectRequest struct {
	Name         *string `json:"name,omitempty"`
	SiteIncharge *string `json:"site_incharge,omitempty"`
}

type AddContractorRequest struct {
	ContractorID string `json:"contractor_id"`
}

type AssignTaskRequest struct {
	ContractorID   string `json:"contractor_id"`
	Title          string `json:"title"`
	Deadline       string `json:"deadline" doc:"RFC3339 timestamp or YYYY-MM-DD"`
	Priority       string `json:"priority,omitempty" enum:"high,medium,low,unspecified"`
	Description    string `json:"description,omitempty"`
	Phase          string `json:"construction_phase,omitempty"`
	QualityIssueID string `json:"quality_issue_id,omitempty"`
	UnitID         string `json:"unit_id,omitempty"`
}

// The task patch bodies are the taskstate patch types; each role can only name
// the fields of its own track.
type (
	ContractorUpdateRequest   = taskstate.ContractorPatch
	SiteInchargeUpdateRequest = taskstate.ReviewerPatch
	MiniUpdateRequest         = taskstate.MiniPatch
)

type IssueStatusRequest struct {
	Status domain.IssueStatus `json:"status" enum:"open,under_review,resolved"`
}

type CreateLeadRequest struct {
	Name   string `json:"name"`
	Phone  string `json:"phone,omitempty"`
	Email  string `json:"email,omitempty"`
	Status string `json:"status,omitempty"`
}

type UpdateLeadRequest struct {
	Name   *string `json:"name,omitempty"`
	Phone  *string `json:"phone,omitempty"`
	Email  *string `json:"email,omitempty"`
	Status *string `json:"status,omitempty"`
}

type CreateIssueRequest struct {
	Contractor  string `json:"contractor,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type CreateMembershipRequest struct {
	Kind      domain.Role `json:"kind" enum:"team_lead,agent"`
	MemberID  string      `json:"member_id"`
	ManagerID string      `json:"manager_id"`
}

type PutActorRequest struct {
	Name string      `json:"name,omitempty"`
	Role domain.Role `json:"role,omitempty"`
}

type CreateAPIKeyRequest struct {
	Name string `json:"name,omitempty"`
}

type DevLoginRequest struct {
	ActorID string      `json:"actor_id"`
	Role    domain.Role `json:"role"`
	Name    string      `json:"name,omitempty"`
}

// Response payloads

type CreateAPIKeyResponse struct {
	Key    string        `json:"key" doc:"Shown once; store it securely."`
	APIKey domain.APIKey `json:"api_key"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type WhoAmIResponse struct {
	ActorID string      `json:"actor_id"`
	Role    domain.Role `json:"role"`
	Name    string      `json:"name,omitempty"`
	Source  string      `json:"source"`
}

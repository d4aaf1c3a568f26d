package siteworksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal Sitework HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

// Project represents the API project model (partial).
type Project struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	BuildingID   string   `json:"building_id"`
	FloorUnitID  string   `json:"floor_unit_id"`
	UnitID       string   `json:"unit_id"`
	SiteIncharge string   `json:"site_incharge,omitempty"`
	Contractors  []string `json:"contractors"`
}

// NewProject is the body of a project creation. The server assigns the id.
type NewProject struct {
	Name         string   `json:"name,omitempty"`
	BuildingID   string   `json:"building_id"`
	FloorUnitID  string   `json:"floor_unit_id"`
	UnitID       string   `json:"unit_id"`
	SiteIncharge string   `json:"site_incharge,omitempty"`
	Contractors  []string `json:"contractors,omitempty"`
}

// Task represents the API task model (partial).
type Task struct {
	ID         string `json:"id"`
	ProjectID  string `json:"project_id"`
	UnitID     string `json:"unit_id"`
	Title      string `json:"title"`
	Priority   string `json:"priority"`
	Deadline   string `json:"deadline"`
	Contractor string `json:"contractor"`
	Version    int64  `json:"version"`
	Work       struct {
		Status   string `json:"status_for_contractor"`
		Progress int    `json:"progress_percentage"`
		Approved bool   `json:"is_approved_by_contractor"`
	} `json:"contractor_track"`
	Review struct {
		Status   string `json:"status_for_site_incharge"`
		Approved bool   `json:"is_approved_by_site_manager"`
	} `json:"review_track"`
}

// TaskView is a task as listed for the caller, with its role-specific status.
type TaskView struct {
	Task           Task   `json:"task"`
	Status         string `json:"status"`
	Completed      bool   `json:"completed"`
	ProjectName    string `json:"project_name"`
	ContractorName string `json:"contractor_name"`
}

// UnitProgress is the mean progress of a unit's tasks.
type UnitProgress struct {
	TotalTasks      int `json:"total_tasks"`
	OverallProgress int `json:"overall_progress"`
}

// AssignTask is the body of a task assignment.
type AssignTask struct {
	ContractorID string `json:"contractor_id"`
	Title        string `json:"title"`
	Deadline     string `json:"deadline"`
	Priority     string `json:"priority,omitempty"`
	Description  string `json:"description,omitempty"`
	UnitID       string `json:"unit_id,omitempty"`
}

// ContractorUpdate is a contractor progress report. Nil fields are left unchanged.
type ContractorUpdate struct {
	Status       *string  `json:"status,omitempty"`
	Progress     *int     `json:"progress_percentage,omitempty"`
	Photos       []string `json:"photos,omitempty"`
	ShouldSubmit bool     `json:"should_submit,omitempty"`
}

// Review is a site incharge review. Nil fields are left unchanged.
type Review struct {
	Status               *string `json:"status,omitempty"`
	Note                 *string `json:"note,omitempty"`
	VerificationDecision *string `json:"verification_decision,omitempty"`
}

// Lead represents the API lead model.
type Lead struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Status  string `json:"status"`
	AddedBy string `json:"added_by"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload"`
}

// APIError wraps non-2xx responses. Code is the machine-readable error code when present.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateProject creates a project for one building/floor/unit.
func (c *Client) CreateProject(ctx context.Context, p NewProject) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodPost, "projects", p, nil, &resp)
	return resp, err
}

// AssignTask assigns a task to a contractor in a project.
func (c *Client) AssignTask(ctx context.Context, projectID string, body AssignTask) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, taskPath(projectID, ""), body, nil, &resp)
	return resp, err
}

// UpdateTaskAsContractor reports contractor progress. A non-zero ifVersion makes the
// update fail with 409 when the task changed since it was read.
func (c *Client) UpdateTaskAsContractor(ctx context.Context, projectID, taskID string, ifVersion int64, body ContractorUpdate) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPatch, taskPath(projectID, taskID)+"/contractor", body, ifMatch(ifVersion), &resp)
	return resp, err
}

// ReviewTask records a site incharge review.
func (c *Client) ReviewTask(ctx context.Context, projectID, taskID string, ifVersion int64, body Review) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPatch, taskPath(projectID, taskID)+"/site-incharge", body, ifMatch(ifVersion), &resp)
	return resp, err
}

// Tasks lists the tasks visible to the caller.
func (c *Client) Tasks(ctx context.Context) ([]TaskView, error) {
	var resp []TaskView
	err := c.do(ctx, http.MethodGet, "tasks", nil, nil, &resp)
	return resp, err
}

// UnitProgress returns the mean progress of one unit.
func (c *Client) UnitProgress(ctx context.Context, buildingID, floorUnitID, unitID string) (UnitProgress, error) {
	q := url.Values{}
	q.Set("building_id", buildingID)
	q.Set("floor_unit_id", floorUnitID)
	q.Set("unit_id", unitID)
	var resp UnitProgress
	err := c.do(ctx, http.MethodGet, "units/progress?"+q.Encode(), nil, nil, &resp)
	return resp, err
}

// CreateLead creates a lead owned by the caller.
func (c *Client) CreateLead(ctx context.Context, name, phone, email string) (Lead, error) {
	body := map[string]any{"name": name, "phone": phone, "email": email}
	var resp Lead
	err := c.do(ctx, http.MethodPost, "leads", body, nil, &resp)
	return resp, err
}

// Leads lists the leads visible to the caller, optionally filtered by status.
func (c *Client) Leads(ctx context.Context, status string) ([]Lead, error) {
	endpoint := "leads"
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp []Lead
	err := c.do(ctx, http.MethodGet, endpoint, nil, nil, &resp)
	return resp, err
}

// SetLeadStatus moves a lead to another status.
func (c *Client) SetLeadStatus(ctx context.Context, id, status string) (Lead, error) {
	var resp Lead
	err := c.do(ctx, http.MethodPatch, "leads/"+url.PathEscape(id), map[string]any{"status": status}, nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	endpoint := "events"
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp []Event
	err := c.do(ctx, http.MethodGet, endpoint, nil, nil, &resp)
	return resp, err
}

func taskPath(projectID, taskID string) string {
	p := fmt.Sprintf("projects/%s/tasks", url.PathEscape(projectID))
	if taskID != "" {
		p += "/" + url.PathEscape(taskID)
	}
	return p
}

func ifMatch(version int64) map[string]string {
	if version <= 0 {
		return nil
	}
	return map[string]string{"If-Match": strconv.Quote(strconv.FormatInt(version, 10))}
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, headers map[string]string, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base()+"/"+strings.TrimLeft(endpoint, "/"), &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}

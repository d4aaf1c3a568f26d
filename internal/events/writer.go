package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Event types appended to the audit log.
const (
	ProjectCreate     = "project.create"
	ProjectDelete     = "project.delete"
	ProjectUpdate     = "project.update"
	ProjectContractor = "project.contractor"
	TaskAssign        = "task.assign"
	TaskWorkUpdate    = "task.contractor_update"
	TaskReviewUpdate  = "task.site_incharge_update"
	TaskMiniUpdate    = "task.mini_update"
	LeadCreate        = "lead.create"
	LeadUpdate        = "lead.update"
	LeadDelete        = "lead.delete"
	IssueCreate       = "issue.create"
	IssueStatus       = "issue.status"
	MembershipAdd     = "membership.add"
	MembershipRemove  = "membership.remove"
	APIKeyCreate      = "api_key.create"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Append records one event inside tx so it commits or rolls back with the change it describes.
func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, projectID, entityKind, entityID, actorID string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	ts := w.Now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,project_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		ts, evtType, nullable(projectID), entityKind, nullable(entityID), actorID, string(data)); err != nil {
		return fmt.Errorf("append %s event: %w", evtType, err)
	}
	return nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

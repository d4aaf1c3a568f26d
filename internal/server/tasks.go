package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"sitework/internal/aggregate"
	"sitework/internal/domain"
	"sitework/internal/engine"
)

// taskOutput carries the task version as an entity tag for If-Match.
type taskOutput struct {
	ETag string      `header:"ETag"`
	Body domain.Task `json:"body"`
}

func taskResponse(t domain.Task) *taskOutput {
	return &taskOutput{ETag: etag(t.Version), Body: t}
}

var taskUpdateErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusForbidden,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusServiceUnavailable,
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "assign-task",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/tasks",
		Summary:       "Assign a task to a contractor",
		Tags:          []string{"tasks"},
		DefaultStatus: http.StatusCreated,
		Errors:        taskUpdateErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string            `path:"project_id"`
		Body      AssignTaskRequest `json:"body"`
	}) (*taskOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		task, err := e.AssignTask(ctx, engine.AssignTaskOptions{
			ProjectID:      input.ProjectID,
			ContractorID:   input.Body.ContractorID,
			Title:          input.Body.Title,
			Deadline:       input.Body.Deadline,
			Priority:       input.Body.Priority,
			Description:    input.Body.Description,
			Phase:          input.Body.Phase,
			QualityIssueID: input.Body.QualityIssueID,
			UnitID:         input.Body.UnitID,
			Actor:          actor,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return taskResponse(task), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task-contractor",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}/tasks/{task_id}/contractor",
		Summary:     "Contractor progress update",
		Description: "Writes only the contractor track. should_submit stamps the submission and notifies the site incharge.",
		Tags:        []string{"tasks"},
		Errors:      taskUpdateErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string                  `path:"project_id"`
		TaskID    string                  `path:"task_id"`
		IfMatch   string                  `header:"If-Match" doc:"Task version the update is based on"`
		Body      ContractorUpdateRequest `json:"body"`
	}) (*taskOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts, verErr := versionOptions(input.IfMatch)
		if verErr != nil {
			return nil, verErr
		}
		task, err := e.UpdateTaskAsContractor(ctx, input.ProjectID, input.TaskID, actor, input.Body, opts...)
		if err != nil {
			return nil, handleError(err)
		}
		return taskResponse(task), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task-site-incharge",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}/tasks/{task_id}/site-incharge",
		Summary:     "Site incharge review update",
		Description: "Writes only the review track. A verification_decision of approved marks the task approved.",
		Tags:        []string{"tasks"},
		Errors:      taskUpdateErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string                    `path:"project_id"`
		TaskID    string                    `path:"task_id"`
		IfMatch   string                    `header:"If-Match"`
		Body      SiteInchargeUpdateRequest `json:"body"`
	}) (*taskOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts, verErr := versionOptions(input.IfMatch)
		if verErr != nil {
			return nil, verErr
		}
		task, err := e.UpdateTaskAsSiteIncharge(ctx, input.ProjectID, input.TaskID, actor, input.Body, opts...)
		if err != nil {
			return nil, handleError(err)
		}
		return taskResponse(task), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "mini-update-task",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}/tasks/{task_id}/mini",
		Summary:     "Lightweight contractor update",
		Tags:        []string{"tasks"},
		Errors:      taskUpdateErrors,
	}, func(ctx context.Context, input *struct {
		ProjectID string            `path:"project_id"`
		TaskID    string            `path:"task_id"`
		IfMatch   string            `header:"If-Match"`
		Body      MiniUpdateRequest `json:"body"`
	}) (*taskOutput, error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts, verErr := versionOptions(input.IfMatch)
		if verErr != nil {
			return nil, verErr
		}
		task, err := e.MiniUpdateTask(ctx, input.ProjectID, input.TaskID, actor, input.Body, opts...)
		if err != nil {
			return nil, handleError(err)
		}
		return taskResponse(task), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/tasks",
		Summary:     "Tasks visible to the caller, highest priority first",
		Tags:        []string{"tasks"},
		Errors:      []int{http.StatusUnauthorized, http.StatusServiceUnavailable},
	}, func(ctx context.Context, _ *struct{}) (*body[[]aggregate.TaskView], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		views, err := e.ListTasksForActor(ctx, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(views), nil
	})
}

func registerReports(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "unit-progress",
		Method:      http.MethodGet,
		Path:        "/units/progress",
		Summary:     "Mean progress of a unit's tasks",
		Tags:        []string{"reports"},
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		BuildingID  string `query:"building_id" required:"true"`
		FloorUnitID string `query:"floor_unit_id" required:"true"`
		UnitID      string `query:"unit_id" required:"true"`
	}) (*body[aggregate.UnitProgress], error) {
		if _, authErr := actorFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		out, err := e.GetUnitProgress(ctx, input.BuildingID, input.FloorUnitID, input.UnitID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(out), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "unit-completed-tasks",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/units/{unit_id}/completed-tasks",
		Summary:     "Tasks completed by the contractor and approved by the site incharge",
		Tags:        []string{"reports"},
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		UnitID    string `path:"unit_id"`
	}) (*body[[]domain.Task], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		tasks, err := e.CompletedTasksForUnit(ctx, input.ProjectID, input.UnitID, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(tasks), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "site-incharge-contractors",
		Method:      http.MethodGet,
		Path:        "/site-incharge/contractors",
		Summary:     "Completion summary per contractor across the caller's projects",
		Tags:        []string{"reports"},
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, _ *struct{}) (*body[[]aggregate.ContractorSummary], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		out, err := e.ContractorsForSiteIncharge(ctx, actor)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(out), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "site-incharge-contractor-tasks",
		Method:      http.MethodGet,
		Path:        "/site-incharge/contractors/{contractor_id}/tasks",
		Summary:     "One contractor's tasks across the caller's projects",
		Tags:        []string{"reports"},
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ContractorID string `path:"contractor_id"`
	}) (*body[[]aggregate.TaskView], error) {
		actor, authErr := actorFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		out, err := e.ContractorTasksForSiteIncharge(ctx, actor, input.ContractorID)
		if err != nil {
			return nil, handleError(err)
		}
		return respond(out), nil
	})
}

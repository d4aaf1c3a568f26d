package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sitework/internal/aggregate"
	"sitework/internal/app"
	"sitework/internal/domain"
	"sitework/internal/engine"
	"sitework/internal/taskstate"
)

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectShowCmd())
	prj.AddCommand(projectUpdateCmd())
	prj.AddCommand(projectDeleteCmd())
	prj.AddCommand(projectAddContractorCmd())
	return prj
}

func projectCreateCmd() *cobra.Command {
	var opts engine.ProjectCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project for one building/floor/unit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				opts.Actor = actor
				p, err := rt.Engine.CreateProject(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "display name")
	cmd.Flags().StringVar(&opts.BuildingID, "building", "", "building id")
	cmd.Flags().StringVar(&opts.FloorUnitID, "floor", "", "floor unit id")
	cmd.Flags().StringVar(&opts.UnitID, "unit", "", "unit id")
	cmd.Flags().StringVar(&opts.SiteIncharge, "site-incharge", "", "site incharge actor id")
	cmd.Flags().StringArrayVar(&opts.Contractors, "contractor", []string{}, "contractor actor id (repeatable)")
	_ = cmd.MarkFlagRequired("building")
	_ = cmd.MarkFlagRequired("floor")
	_ = cmd.MarkFlagRequired("unit")
	return cmd
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects visible to the actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				items, err := rt.Engine.ListProjectsForActor(ctx, actor)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, p := range items {
					rows = append(rows, table.Row{p.ID, p.Name, p.BuildingID + "/" + p.FloorUnitID + "/" + p.UnitID, p.SiteIncharge, len(p.Contractors)})
				}
				return renderTable(items, table.Row{"ID", "Name", "Location", "Site incharge", "Contractors"}, rows)
			})
		},
	}
}

func projectShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a project with its tasks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				p, err := rt.Engine.ProjectForActor(ctx, args[0], actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
}

func projectUpdateCmd() *cobra.Command {
	var name, siteIncharge string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Rename a project or change its site incharge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				p, err := rt.Engine.UpdateProject(ctx, engine.ProjectUpdateOptions{
					ID:           args[0],
					Name:         optionalString(cmd, "name", name),
					SiteIncharge: optionalString(cmd, "site-incharge", siteIncharge),
					Actor:        actor,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().StringVar(&siteIncharge, "site-incharge", "", "new site incharge actor id")
	return cmd
}

func projectDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Soft-delete a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				return rt.Engine.DeleteProject(ctx, args[0], actor)
			})
		},
	}
}

func projectAddContractorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add-contractor <project-id> <contractor-id>",
		Short: "Add a contractor to a project",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				p, err := rt.Engine.AddProjectContractor(ctx, args[0], args[1], actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
}

func taskCmd() *cobra.Command {
	task := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
		Long:  "Tasks belong to a unit of a project. The contractor reports progress with 'task update' or 'task mini'; the site incharge reviews with 'task review'.",
	}
	task.AddCommand(taskAssignCmd())
	task.AddCommand(taskUpdateCmd())
	task.AddCommand(taskReviewCmd())
	task.AddCommand(taskMiniCmd())
	task.AddCommand(taskListCmd())
	task.AddCommand(taskCompletedCmd())
	return task
}

func taskAssignCmd() *cobra.Command {
	var opts engine.AssignTaskOptions
	cmd := &cobra.Command{
		Use:   "assign <project-id>",
		Short: "Assign a task to a contractor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				opts.ProjectID = args[0]
				opts.Actor = actor
				t, err := rt.Engine.AssignTask(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&opts.ContractorID, "contractor", "", "contractor actor id")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Deadline, "deadline", "", "deadline (YYYY-MM-DD or RFC3339)")
	cmd.Flags().StringVar(&opts.Priority, "priority", "", "high, medium, low or unspecified")
	cmd.Flags().StringVar(&opts.Description, "description", "", "description")
	cmd.Flags().StringVar(&opts.Phase, "phase", "", "construction phase")
	cmd.Flags().StringVar(&opts.QualityIssueID, "issue", "", "quality issue this task fixes")
	cmd.Flags().StringVar(&opts.UnitID, "unit", "", "unit id (defaults to the project's unit)")
	_ = cmd.MarkFlagRequired("contractor")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("deadline")
	return cmd
}

func versionFlag(cmd *cobra.Command, version int64) []engine.UpdateOption {
	if !cmd.Flags().Changed("if-version") {
		return nil
	}
	return []engine.UpdateOption{engine.IfVersion(version)}
}

func taskUpdateCmd() *cobra.Command {
	var status, evidence, phase string
	var progress int
	var photos, removePhotos []string
	var submit bool
	var version int64
	cmd := &cobra.Command{
		Use:   "update <project-id> <task-id>",
		Short: "Contractor progress update",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch := taskstate.ContractorPatch{
				Status:        optionalString(cmd, "status", status),
				Progress:      optionalInt(cmd, "progress", progress),
				Photos:        photos,
				RemovePhotos:  removePhotos,
				ShouldSubmit:  submit,
				EvidenceTitle: optionalString(cmd, "evidence-title", evidence),
				Phase:         optionalString(cmd, "phase", phase),
			}
			return withActor(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				t, err := rt.Engine.UpdateTaskAsContractor(ctx, args[0], args[1], actor, patch, versionFlag(cmd, version)...)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "contractor status")
	cmd.Flags().IntVar(&progress, "progress", 0, "progress percentage (0-100)")
	cmd.Flags().StringArrayVar(&photos, "photo", []string{}, "photo reference to add (repeatable)")
	cmd.Flags().StringArrayVar(&removePhotos, "remove-photo", []string{}, "photo reference to remove (repeatable)")
	cmd.Flags().BoolVar(&submit, "submit", false, "submit the work for review")
	cmd.Flags().StringVar(&evidence, "evidence-title", "", "evidence title")
	cmd.Flags().StringVar(&phase, "phase", "", "construction phase")
	cmd.Flags().Int64Var(&version, "if-version", 0, "fail unless the task is still at this version")
	return cmd
}

func taskReviewCmd() *cobra.Command {
	var status, note, quality, decision string
	var photos []string
	var version int64
	cmd := &cobra.Command{
		Use:   "review <project-id> <task-id>",
		Short: "Site incharge review update",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch := taskstate.ReviewerPatch{
				Status:               optionalString(cmd, "status", status),
				Photos:               photos,
				Note:                 optionalString(cmd, "note", note),
				QualityAssessment:    optionalString(cmd, "quality", quality),
				VerificationDecision: optionalString(cmd, "decision", decision),
			}
			return withActor(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				t, err := rt.Engine.UpdateTaskAsSiteIncharge(ctx, args[0], args[1], actor, patch, versionFlag(cmd, version)...)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "site incharge status")
	cmd.Flags().StringArrayVar(&photos, "photo", []string{}, "photo reference to add (repeatable)")
	cmd.Flags().StringVar(&note, "note", "", "review note")
	cmd.Flags().StringVar(&quality, "quality", "", "quality assessment")
	cmd.Flags().StringVar(&decision, "decision", "", "verification decision (approved marks the task approved)")
	cmd.Flags().Int64Var(&version, "if-version", 0, "fail unless the task is still at this version")
	return cmd
}

func taskMiniCmd() *cobra.Command {
	var phase, status string
	var progress int
	var version int64
	cmd := &cobra.Command{
		Use:   "mini <project-id> <task-id>",
		Short: "Lightweight contractor update",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			patch := taskstate.MiniPatch{
				Phase:    optionalString(cmd, "phase", phase),
				Progress: optionalInt(cmd, "progress", progress),
				Status:   optionalString(cmd, "status", status),
			}
			return withActor(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				t, err := rt.Engine.MiniUpdateTask(ctx, args[0], args[1], actor, patch, versionFlag(cmd, version)...)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&phase, "phase", "", "construction phase")
	cmd.Flags().IntVar(&progress, "progress", 0, "progress percentage (0-100)")
	cmd.Flags().StringVar(&status, "status", "", "contractor status")
	cmd.Flags().Int64Var(&version, "if-version", 0, "fail unless the task is still at this version")
	return cmd
}

func taskViewRows(views []aggregate.TaskView) []table.Row {
	rows := make([]table.Row, 0, len(views))
	for _, v := range views {
		rows = append(rows, table.Row{v.Task.ProjectID, v.Task.ID, v.Task.Title, v.Task.Priority, v.Status, v.Task.Work.Progress, v.ContractorName})
	}
	return rows
}

var taskViewHeader = table.Row{"Project", "Task", "Title", "Priority", "Status", "Progress", "Contractor"}

func taskListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Tasks visible to the actor, highest priority first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				views, err := rt.Engine.ListTasksForActor(ctx, actor)
				if err != nil {
					return err
				}
				return renderTable(views, taskViewHeader, taskViewRows(views))
			})
		},
	}
}

func taskCompletedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "completed <project-id> <unit-id>",
		Short: "Tasks completed by the contractor and approved by the site incharge",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				tasks, err := rt.Engine.CompletedTasksForUnit(ctx, args[0], args[1], actor)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(tasks))
				for _, t := range tasks {
					rows = append(rows, table.Row{t.ID, t.Title, t.Contractor, t.UpdatedAt})
				}
				return renderTable(tasks, table.Row{"Task", "Title", "Contractor", "Updated"}, rows)
			})
		},
	}
}

func unitCmd() *cobra.Command {
	unit := &cobra.Command{Use: "unit", Short: "Unit reports"}
	var building, floor, unitID string
	progress := &cobra.Command{
		Use:   "progress",
		Short: "Mean progress of a unit's tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				out, err := rt.Engine.GetUnitProgress(ctx, building, floor, unitID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				fmt.Printf("%s/%s/%s: %d%% across %d tasks\n", out.BuildingID, out.FloorUnitID, out.UnitID, out.OverallProgress, out.TotalTasks)
				return nil
			})
		},
	}
	progress.Flags().StringVar(&building, "building", "", "building id")
	progress.Flags().StringVar(&floor, "floor", "", "floor unit id")
	progress.Flags().StringVar(&unitID, "unit", "", "unit id")
	_ = progress.MarkFlagRequired("building")
	_ = progress.MarkFlagRequired("floor")
	_ = progress.MarkFlagRequired("unit")
	unit.AddCommand(progress)
	return unit
}

func contractorCmd() *cobra.Command {
	c := &cobra.Command{Use: "contractor", Short: "Contractor reports for a site incharge"}
	c.AddCommand(&cobra.Command{
		Use:   "summary",
		Short: "Completion summary per contractor across the actor's projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				out, err := rt.Engine.ContractorsForSiteIncharge(ctx, actor)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(out))
				for _, s := range out {
					rows = append(rows, table.Row{s.ContractorID, s.Name, s.TotalTasks, s.CompletedTasks, fmt.Sprintf("%.1f%%", s.CompletionRate)})
				}
				return renderTable(out, table.Row{"Contractor", "Name", "Tasks", "Completed", "Rate"}, rows)
			})
		},
	})
	c.AddCommand(&cobra.Command{
		Use:   "tasks <contractor-id>",
		Short: "One contractor's tasks across the actor's projects",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				views, err := rt.Engine.ContractorTasksForSiteIncharge(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return renderTable(views, taskViewHeader, taskViewRows(views))
			})
		},
	})
	return c
}

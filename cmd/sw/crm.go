package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"sitework/internal/app"
	"sitework/internal/domain"
	"sitework/internal/engine"
)

func leadCmd() *cobra.Command {
	lead := &cobra.Command{
		Use:   "lead",
		Short: "Manage sales leads",
		Long:  "Leads are visible along the sales hierarchy: agents see their own, team leads see their agents', sales managers see their team's.",
	}
	lead.AddCommand(leadCreateCmd())
	lead.AddCommand(leadListCmd())
	lead.AddCommand(leadUpdateCmd())
	lead.AddCommand(leadDeleteCmd())
	return lead
}

func leadCreateCmd() *cobra.Command {
	var opts engine.LeadCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a lead",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				opts.Actor = actor
				l, err := rt.Engine.CreateLead(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(l)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Name, "name", "", "lead name")
	cmd.Flags().StringVar(&opts.Phone, "phone", "", "phone")
	cmd.Flags().StringVar(&opts.Email, "email", "", "email")
	cmd.Flags().StringVar(&opts.Status, "status", "", "initial status (default new)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func leadListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Leads visible to the actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				leads, err := rt.Engine.ListLeads(ctx, actor, status)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(leads))
				for _, l := range leads {
					rows = append(rows, table.Row{l.ID, l.Name, l.Phone, l.Status, l.AddedBy})
				}
				return renderTable(leads, table.Row{"ID", "Name", "Phone", "Status", "Owner"}, rows)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	return cmd
}

func leadUpdateCmd() *cobra.Command {
	var name, phone, email, status string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a lead",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				l, err := rt.Engine.UpdateLead(ctx, engine.LeadUpdateOptions{
					ID:     args[0],
					Name:   optionalString(cmd, "name", name),
					Phone:  optionalString(cmd, "phone", phone),
					Email:  optionalString(cmd, "email", email),
					Status: optionalString(cmd, "status", status),
					Actor:  actor,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(l)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "name")
	cmd.Flags().StringVar(&phone, "phone", "", "phone")
	cmd.Flags().StringVar(&email, "email", "", "email")
	cmd.Flags().StringVar(&status, "status", "", "status")
	return cmd
}

func leadDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Soft-delete a lead",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				return rt.Engine.DeleteLead(ctx, args[0], actor)
			})
		},
	}
}

func issueCmd() *cobra.Command {
	issue := &cobra.Command{Use: "issue", Short: "Manage quality issues"}

	var opts engine.IssueCreateOptions
	create := &cobra.Command{
		Use:   "create <project-id>",
		Short: "Raise a quality issue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				opts.ProjectID = args[0]
				opts.Actor = actor
				out, err := rt.Engine.CreateIssue(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(out)
			})
		},
	}
	create.Flags().StringVar(&opts.Title, "title", "", "title")
	create.Flags().StringVar(&opts.Description, "description", "", "description")
	create.Flags().StringVar(&opts.Contractor, "contractor", "", "contractor responsible")
	_ = create.MarkFlagRequired("title")

	var projectID, status string
	list := &cobra.Command{
		Use:   "list",
		Short: "Quality issues scoped to the actor's role",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				issues, err := rt.Engine.ListIssues(ctx, actor, projectID, domain.IssueStatus(status))
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(issues))
				for _, i := range issues {
					rows = append(rows, table.Row{i.ID, i.ProjectID, i.Title, i.Status, i.Contractor, i.CreatedBy})
				}
				return renderTable(issues, table.Row{"ID", "Project", "Title", "Status", "Contractor", "Raised by"}, rows)
			})
		},
	}
	list.Flags().StringVar(&projectID, "project", "", "project filter")
	list.Flags().StringVar(&status, "status", "", "open, under_review or resolved")

	setStatus := &cobra.Command{
		Use:   "status <issue-id> <status>",
		Short: "Move a quality issue to another status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				out, err := rt.Engine.UpdateIssueStatus(ctx, args[0], domain.IssueStatus(args[1]), actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(out)
			})
		},
	}

	issue.AddCommand(create, list, setStatus)
	return issue
}

func memberCmd() *cobra.Command {
	member := &cobra.Command{Use: "member", Short: "Manage the sales hierarchy"}
	member.AddCommand(&cobra.Command{
		Use:   "add-team-lead <team-lead-id> <sales-manager-id>",
		Short: "Place a team lead under a sales manager",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				m, err := rt.Engine.AddTeamLead(ctx, args[0], args[1], actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	})
	member.AddCommand(&cobra.Command{
		Use:   "add-agent <agent-id> <team-lead-id>",
		Short: "Place an agent under a team lead",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				m, err := rt.Engine.AddAgent(ctx, args[0], args[1], actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(m)
			})
		},
	})
	member.AddCommand(&cobra.Command{
		Use:   "remove <membership-id>",
		Short: "Remove a membership edge",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				if err := rt.Engine.RemoveMembership(ctx, args[0], actor); err != nil {
					return err
				}
				fmt.Printf("Removed %s\n", args[0])
				return nil
			})
		},
	})

	var manager string
	var includeDeleted bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List membership edges",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, rt *app.Runtime, actor domain.Actor) error {
				ms, err := rt.Engine.ListMemberships(ctx, manager, includeDeleted, actor)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(ms))
				for _, m := range ms {
					rows = append(rows, table.Row{m.ID, m.Kind, m.MemberID, m.ManagerID, m.IsDeleted})
				}
				return renderTable(ms, table.Row{"ID", "Kind", "Member", "Manager", "Deleted"}, rows)
			})
		},
	}
	list.Flags().StringVar(&manager, "manager", "", "manager filter")
	list.Flags().BoolVar(&includeDeleted, "include-deleted", false, "include removed edges")
	member.AddCommand(list)
	return member
}

package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"sitework/internal/app"
	"sitework/internal/domain"
	"sitework/internal/repo"
)

func actorCmd() *cobra.Command {
	actor := &cobra.Command{Use: "actor", Short: "Manage actors"}
	var name, role string
	add := &cobra.Command{
		Use:   "add <id>",
		Short: "Register an actor or update its name and role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, rt *app.Runtime, by domain.Actor) error {
				a, err := rt.Engine.RegisterActor(ctx, domain.Actor{ID: args[0], Name: name, Role: domain.Role(role)}, by)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	add.Flags().StringVar(&name, "name", "", "display name")
	add.Flags().StringVar(&role, "as", "", "role to give the actor")
	actor.AddCommand(add)
	return actor
}

func keyCmd() *cobra.Command {
	key := &cobra.Command{Use: "key", Short: "Manage API keys"}
	var name string
	create := &cobra.Command{
		Use:   "create <actor-id>",
		Short: "Issue an API key; the raw key is printed once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, rt *app.Runtime, by domain.Actor) error {
				raw, k, err := rt.Engine.CreateAPIKey(ctx, args[0], name, by)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"key": raw, "api_key": k})
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "key label")
	revoke := &cobra.Command{
		Use:   "revoke <key-id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, rt *app.Runtime, by domain.Actor) error {
				return rt.Engine.RevokeAPIKey(ctx, args[0], by)
			})
		},
	}
	key.AddCommand(create, revoke)
	return key
}

func logCmd() *cobra.Command {
	log := &cobra.Command{Use: "log", Short: "Inspect the event log"}
	var n int
	var f repo.EventFilters
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, rt *app.Runtime, by domain.Actor) error {
				evs, err := rt.Engine.RecentEvents(ctx, n, f, by)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(evs))
				for _, ev := range evs {
					rows = append(rows, table.Row{ev.TS, ev.Type, ev.EntityKind, ev.EntityID, ev.ActorID})
				}
				return renderTable(evs, table.Row{"Time", "Type", "Kind", "Entity", "Actor"}, rows)
			})
		},
	}
	tail.Flags().IntVar(&n, "n", 20, "number of events")
	tail.Flags().StringVar(&f.ProjectID, "project", "", "project filter")
	tail.Flags().StringVar(&f.Type, "type", "", "event type filter")
	tail.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	tail.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	log.AddCommand(tail)
	return log
}

func notifyCmd() *cobra.Command {
	n := &cobra.Command{Use: "notify", Short: "Inspect and drain the notification outbox"}
	var f repo.NotificationFilters
	list := &cobra.Command{
		Use:   "list",
		Short: "List notifications; non-admins see only their own",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withActor(cmd.Context(), func(ctx context.Context, rt *app.Runtime, by domain.Actor) error {
				ns, err := rt.Engine.Notifications(ctx, f, by)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(ns))
				for _, x := range ns {
					delivered := ""
					if x.DeliveredAt != nil {
						delivered = *x.DeliveredAt
					}
					rows = append(rows, table.Row{x.ID, x.RecipientID, x.Title, x.Attempts, delivered})
				}
				return renderTable(ns, table.Row{"ID", "Recipient", "Title", "Attempts", "Delivered"}, rows)
			})
		},
	}
	list.Flags().StringVar(&f.RecipientID, "recipient", "", "recipient filter")
	list.Flags().BoolVar(&f.PendingOnly, "pending", false, "only undelivered")
	list.Flags().IntVar(&f.Limit, "limit", 50, "max rows")

	flush := &cobra.Command{
		Use:   "flush",
		Short: "Deliver due notifications once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				d := rt.Dispatcher()
				if d == nil {
					return fmt.Errorf("notifications are disabled in config")
				}
				delivered, failed, err := d.DispatchOnce(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("delivered %d, failed %d\n", delivered, failed)
				return nil
			})
		},
	}
	n.AddCommand(list, flush)
	return n
}

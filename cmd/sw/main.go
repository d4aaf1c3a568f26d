package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"sitework/internal/app"
	"sitework/internal/config"
	"sitework/internal/db"
	"sitework/internal/domain"
	"sitework/internal/server"
	"sitework/internal/taskstate"
	"sitework/internal/visibility"
)

var rootCmd = &cobra.Command{
	Use:   "sw",
	Short: "Sitework CLI",
	Long: `Sitework tracks construction tasks per building unit, the sales team's leads and
site quality issues.
- Project: one building/floor/unit combination with a site incharge and its contractors.
- Task: work a contractor does in a unit. The contractor and the site incharge each
  keep their own status track; one never overwrites the other.
- Leads: visible along the sales hierarchy (sales manager -> team lead -> agent).
- Event log: every change is recorded, view with 'sw log tail'.
Commands act as the actor named by --actor/--role (or SITEWORK_ACTOR/SITEWORK_ROLE).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if _, err := db.EnsureWorkspace(viper.GetString("workspace")); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("SITEWORK")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.Bool("json", false, "output JSON")
	flags.String("actor", "", "acting actor id")
	flags.String("role", "", "acting actor role")
	flags.String("sales-manager-visibility", "", "override visibility.sales_manager (unrestricted, two_hop)")
	flags.String("progress-policy", "", "override tasks.progress (overwrite, monotonic)")
	flags.String("log-level", "", "override logging.level")
	for _, name := range []string{"workspace", "json", "actor", "role", "sales-manager-visibility", "progress-policy", "log-level"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(unitCmd())
	rootCmd.AddCommand(contractorCmd())
	rootCmd.AddCommand(leadCmd())
	rootCmd.AddCommand(issueCmd())
	rootCmd.AddCommand(memberCmd())
	rootCmd.AddCommand(actorCmd())
	rootCmd.AddCommand(keyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(notifyCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(serveCmd())
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Manage the workspace config file"}
	cfg.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default sitework.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				return printJSON(rt.Config)
			})
		},
	})
	return cfg
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			return withRuntime(ctx, func(ctx context.Context, rt *app.Runtime) error {
				if cmd.Flags().Changed("addr") {
					rt.Config.Server.Addr = addr
				}
				if cmd.Flags().Changed("base-path") {
					rt.Config.Server.BasePath = basePath
				}
				authCfg := server.AuthConfig{
					JWTSecret:              rt.Config.Auth.JWTSecret,
					AllowLegacyActorHeader: rt.Config.Auth.AllowLegacyActorHeader,
					Logger:                 rt.Logger,
				}
				if secret := viper.GetString("jwt-secret"); secret != "" {
					authCfg.JWTSecret = secret
				}
				if authCfg.JWTSecret == "" && !authCfg.AllowLegacyActorHeader {
					rt.Logger.Warn("no jwt secret configured; only API keys will authenticate")
				}
				handler, err := server.New(server.Config{Engine: rt.Engine, BasePath: rt.Config.Server.BasePath, Auth: authCfg})
				if err != nil {
					return err
				}
				if d := rt.Dispatcher(); d != nil {
					go d.Run(ctx)
				}
				srv := &http.Server{Addr: rt.Config.Server.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
					defer stop()
					srv.Shutdown(shutdownCtx)
				}()
				rt.Logger.Info("serving", "addr", srv.Addr, "base_path", rt.Config.Server.BasePath)
				fmt.Printf("Serving Sitework API on http://%s%s (OpenAPI at %s/openapi.json, docs at %s/docs)\n",
					srv.Addr, rt.Config.Server.BasePath, rt.Config.Server.BasePath, rt.Config.Server.BasePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().String("jwt-secret", "", "HS256 secret for bearer tokens (or SITEWORK_JWT_SECRET)")
	_ = viper.BindPFlag("jwt-secret", cmd.Flags().Lookup("jwt-secret"))
	return cmd
}

func tokenCmd() *cobra.Command {
	token := &cobra.Command{Use: "token", Short: "Bearer tokens for the HTTP API"}
	var ttl time.Duration
	var name string
	mint := &cobra.Command{
		Use:   "mint",
		Short: "Sign a bearer token for --actor/--role",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := currentActor()
			if err != nil {
				return err
			}
			actor.Name = name
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				secret := viper.GetString("jwt-secret")
				if secret == "" {
					secret = rt.Config.Auth.JWTSecret
				}
				if secret == "" {
					return fmt.Errorf("auth.jwt_secret is not configured; set it or SITEWORK_JWT_SECRET")
				}
				signed, err := server.SignToken(secret, actor, ttl, time.Now())
				if err != nil {
					return err
				}
				fmt.Println(signed)
				return nil
			})
		},
	}
	mint.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime (0 for none)")
	mint.Flags().StringVar(&name, "name", "", "display name carried in the token")
	token.AddCommand(mint)
	return token
}

// --- helpers ---

func currentActor() (domain.Actor, error) {
	id := strings.TrimSpace(viper.GetString("actor"))
	if id == "" {
		return domain.Actor{}, fmt.Errorf("--actor required (or SITEWORK_ACTOR)")
	}
	return domain.Actor{ID: id, Role: domain.Role(strings.TrimSpace(viper.GetString("role")))}, nil
}

func overrides(cfg *config.Config) {
	if v := viper.GetString("sales-manager-visibility"); v != "" {
		cfg.Visibility.SalesManager = visibility.Policy(v)
	}
	if v := viper.GetString("progress-policy"); v != "" {
		cfg.Tasks.Progress = taskstate.ProgressPolicy(v)
	}
	if v := viper.GetString("log-level"); v != "" {
		cfg.Logging.Level = v
	}
}

func withRuntime(ctx context.Context, fn func(context.Context, *app.Runtime) error) error {
	rt, err := app.Open(ctx, viper.GetString("workspace"), app.Options{LogOutput: os.Stderr, Override: overrides})
	if err != nil {
		return err
	}
	defer rt.Close(context.Background())
	return fn(ctx, rt)
}

// withActor runs fn with the runtime and the acting actor from flags.
func withActor(ctx context.Context, fn func(context.Context, *app.Runtime, domain.Actor) error) error {
	actor, err := currentActor()
	if err != nil {
		return err
	}
	return withRuntime(ctx, func(ctx context.Context, rt *app.Runtime) error {
		return fn(ctx, rt, actor)
	})
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// renderTable prints rows with go-pretty unless --json is set, in which case v is printed.
func renderTable(v any, header table.Row, rows []table.Row) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(header)
	tw.AppendRows(rows)
	tw.Render()
	return nil
}

func optionalString(cmd *cobra.Command, flag, value string) *string {
	if !cmd.Flags().Changed(flag) {
		return nil
	}
	return &value
}

func optionalInt(cmd *cobra.Command, flag string, value int) *int {
	if !cmd.Flags().Changed(flag) {
		return nil
	}
	return &value
}

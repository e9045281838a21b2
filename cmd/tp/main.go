package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"teamplan/internal/app"
	"teamplan/internal/config"
	"teamplan/internal/db"
	"teamplan/internal/domain"
	"teamplan/internal/engine"
	"teamplan/internal/repo"
	"teamplan/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "tp",
	Short: "Teamplan CLI",
	Long: `Teamplan picks which backlog projects each team should take on next.
Core concepts:
- Team: a group with a capacity, the effort it can spend this cycle.
- Project: a backlog item owned by one team, with an effort and a value. Projects missing either are never selected.
- Dependency: source must be selected before target can be. Links that would close a cycle are refused.
- Modes: naive takes the most valuable projects that fit and ignores dependencies; naive-deps takes the best value per effort among unblocked projects; optimized searches for the selection with the highest total value.
- Plan: a saved prioritization run, listed with 'tp plan list'.
- Event log: every change is recorded, view with 'tp log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TEAMPLAN")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(teamCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(depCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(prioritizeCmd())
	rootCmd.AddCommand(planCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

func teamCmd() *cobra.Command {
	team := &cobra.Command{Use: "team", Short: "Manage teams"}
	team.AddCommand(teamCreateCmd())
	team.AddCommand(teamListCmd())
	team.AddCommand(teamUpdateCmd())
	team.AddCommand(teamDeleteCmd())
	return team
}

func teamCreateCmd() *cobra.Command {
	var t domain.Team
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a team",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc *app.Service) error {
				created, err := svc.Repo.CreateTeam(ctx, t, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(created)
			})
		},
	}
	cmd.Flags().StringVar(&t.ID, "id", "", "team id (generated when empty)")
	cmd.Flags().StringVar(&t.Name, "name", "", "team name")
	cmd.Flags().Float64Var(&t.Capacity, "capacity", 0, "effort the team can spend")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func teamListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List teams",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc *app.Service) error {
				teams, err := svc.Repo.ListTeams(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(nonNil(teams))
				}
				renderTeams(os.Stdout, teams)
				return nil
			})
		},
	}
}

func teamUpdateCmd() *cobra.Command {
	var name string
	var capacity float64
	cmd := &cobra.Command{
		Use:   "update <team-id>",
		Short: "Update a team",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var u repo.TeamUpdate
			if cmd.Flags().Changed("name") {
				u.Name = &name
			}
			if cmd.Flags().Changed("capacity") {
				u.Capacity = &capacity
			}
			return withService(cmd.Context(), func(ctx context.Context, svc *app.Service) error {
				t, err := svc.Repo.UpdateTeam(ctx, args[0], u, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "team name")
	cmd.Flags().Float64Var(&capacity, "capacity", 0, "effort the team can spend")
	return cmd
}

func teamDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <team-id>",
		Short: "Delete a team with its projects",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc *app.Service) error {
				if err := svc.Repo.DeleteTeam(ctx, args[0], viper.GetString("actor-id")); err != nil {
					return err
				}
				fmt.Printf("team %s deleted\n", args[0])
				return nil
			})
		},
	}
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage backlog projects"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectUpdateCmd())
	prj.AddCommand(projectDeleteCmd())
	prj.AddCommand(projectCopyCmd())
	return prj
}

func projectCreateCmd() *cobra.Command {
	var p domain.Project
	var effort, value float64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("effort") {
				p.Effort = &effort
			}
			if cmd.Flags().Changed("value") {
				p.Value = &value
			}
			return withService(cmd.Context(), func(ctx context.Context, svc *app.Service) error {
				created, err := svc.Repo.CreateProject(ctx, p, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(created)
			})
		},
	}
	cmd.Flags().StringVar(&p.ID, "id", "", "project id (generated when empty)")
	cmd.Flags().StringVar(&p.TeamID, "team", "", "owning team id")
	cmd.Flags().StringVar(&p.Title, "title", "", "title")
	cmd.Flags().Float64Var(&effort, "effort", 0, "estimated effort")
	cmd.Flags().Float64Var(&value, "value", 0, "estimated value")
	_ = cmd.MarkFlagRequired("team")
	return cmd
}

func projectListCmd() *cobra.Command {
	var teamID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc *app.Service) error {
				items, err := svc.Repo.ListProjects(ctx, teamID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(nonNil(items))
				}
				renderProjects(os.Stdout, items)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&teamID, "team", "", "team filter")
	return cmd
}

func projectUpdateCmd() *cobra.Command {
	var teamID, title string
	var effort, value float64
	var u repo.ProjectUpdate
	cmd := &cobra.Command{
		Use:   "update <project-id>",
		Short: "Update a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("team") {
				u.TeamID = &teamID
			}
			if cmd.Flags().Changed("title") {
				u.Title = &title
			}
			if cmd.Flags().Changed("effort") {
				u.Effort = &effort
			}
			if cmd.Flags().Changed("value") {
				u.Value = &value
			}
			return withService(cmd.Context(), func(ctx context.Context, svc *app.Service) error {
				p, err := svc.Repo.UpdateProject(ctx, args[0], u, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&teamID, "team", "", "move to team")
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().Float64Var(&effort, "effort", 0, "estimated effort")
	cmd.Flags().Float64Var(&value, "value", 0, "estimated value")
	cmd.Flags().BoolVar(&u.ClearEffort, "clear-effort", false, "unset the effort")
	cmd.Flags().BoolVar(&u.ClearValue, "clear-value", false, "unset the value")
	cmd.MarkFlagsMutuallyExclusive("effort", "clear-effort")
	cmd.MarkFlagsMutuallyExclusive("value", "clear-value")
	return cmd
}

func projectDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <project-id>",
		Short: "Delete a project and its dependencies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc *app.Service) error {
				if err := svc.Repo.DeleteProject(ctx, args[0], viper.GetString("actor-id")); err != nil {
					return err
				}
				fmt.Printf("project %s deleted\n", args[0])
				return nil
			})
		},
	}
}

func projectCopyCmd() *cobra.Command {
	var teamID string
	cmd := &cobra.Command{
		Use:   "copy <project-id>",
		Short: "Copy a project to another team as a linked copy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc *app.Service) error {
				p, err := svc.Repo.CopyProject(ctx, args[0], teamID, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&teamID, "team", "", "target team id")
	_ = cmd.MarkFlagRequired("team")
	return cmd
}

func depCmd() *cobra.Command {
	dep := &cobra.Command{
		Use:   "dep",
		Short: "Manage dependencies",
		Long:  "A dependency <source> <target> means target can only be selected together with source.",
	}
	dep.AddCommand(depLinkCmd())
	dep.AddCommand(depUnlinkCmd())
	dep.AddCommand(depListCmd())
	dep.AddCommand(depCheckCmd())
	return dep
}

func depLinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "link <source-id> <target-id>",
		Short: "Make target depend on source",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc *app.Service) error {
				d, err := svc.Repo.LinkDependency(ctx, args[0], args[1], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
}

func depUnlinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unlink <source-id> <target-id>",
		Short: "Remove a dependency",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc *app.Service) error {
				if err := svc.Repo.UnlinkDependency(ctx, args[0], args[1], viper.GetString("actor-id")); err != nil {
					return err
				}
				fmt.Printf("%s -> %s unlinked\n", args[0], args[1])
				return nil
			})
		},
	}
}

func depListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List dependencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc *app.Service) error {
				deps, err := svc.Repo.ListDependencies(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(nonNil(deps))
				}
				renderDependencies(os.Stdout, deps)
				return nil
			})
		},
	}
}

func depCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <source-id> <target-id>",
		Short: "Report whether linking would create a cycle",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc *app.Service) error {
				cyc, err := svc.Repo.WouldCreateCycle(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]bool{"wouldCreateCycle": cyc})
				}
				if cyc {
					fmt.Printf("%s -> %s would create a cycle\n", args[0], args[1])
				} else {
					fmt.Printf("%s -> %s can be linked\n", args[0], args[1])
				}
				return nil
			})
		},
	}
}

func importCmd() *cobra.Command {
	var file string
	var replace bool
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import teams, projects and dependencies from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			var f domain.ImportFile
			if err := json.Unmarshal(data, &f); err != nil {
				return fmt.Errorf("parse %s: %w", file, err)
			}
			return withService(cmd.Context(), func(ctx context.Context, svc *app.Service) error {
				stats, err := svc.Repo.Import(ctx, f, replace, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(stats)
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "exchange file to import")
	cmd.Flags().BoolVar(&replace, "replace", false, "empty the workspace first")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func exportCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the workspace as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc *app.Service) error {
				f, err := svc.Repo.Export(ctx)
				if err != nil {
					return err
				}
				if file == "" {
					return printJSON(f)
				}
				data, err := json.MarshalIndent(f, "", "  ")
				if err != nil {
					return err
				}
				return os.WriteFile(file, append(data, '\n'), 0o644)
			})
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "write to file instead of stdout")
	return cmd
}

func prioritizeCmd() *cobra.Command {
	var save, csv bool
	cmd := &cobra.Command{
		Use:   "prioritize",
		Short: "Select projects for every team",
		RunE: func(cmd *cobra.Command, args []string) error {
			var mode engine.Mode
			if raw := viper.GetString("mode"); raw != "" {
				m, err := engine.ParseMode(raw)
				if err != nil {
					return err
				}
				mode = m
			}
			return withService(cmd.Context(), func(ctx context.Context, svc *app.Service) error {
				out, err := svc.Prioritize(ctx, app.PrioritizeOptions{
					Mode:    mode,
					Save:    save,
					ActorID: viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(reportJSON(out))
				}
				teams, err := svc.Repo.ListTeams(ctx)
				if err != nil {
					return err
				}
				if csv {
					renderSelectionCSV(os.Stdout, out.Report.Result)
					return nil
				}
				renderReport(os.Stdout, out, teams)
				return nil
			})
		},
	}
	cmd.Flags().String("mode", "", "naive, naive-deps or optimized (default from teamplan.yml)")
	cmd.Flags().BoolVar(&save, "save", false, "store the result as a plan")
	cmd.Flags().BoolVar(&csv, "csv", false, "print the selected projects as CSV")
	_ = viper.BindPFlag("mode", cmd.Flags().Lookup("mode"))
	return cmd
}

func planCmd() *cobra.Command {
	plan := &cobra.Command{Use: "plan", Short: "Inspect saved plans"}
	plan.AddCommand(planListCmd())
	plan.AddCommand(planShowCmd())
	return plan
}

func planListCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved plans, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc *app.Service) error {
				plans, err := svc.Repo.ListPlans(ctx, n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(nonNil(plans))
				}
				renderPlans(os.Stdout, plans)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of plans")
	return cmd
}

func planShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <plan-id>",
		Short: "Show a saved plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc *app.Service) error {
				p, err := svc.Repo.GetPlan(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				teams, err := svc.Repo.ListTeams(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Plan %s (%s) by %s at %s\n", p.ID, p.Mode, p.CreatedBy, p.CreatedAt)
				renderResult(os.Stdout, p.Result, teams)
				return nil
			})
		},
	}
}

func logCmd() *cobra.Command {
	l := &cobra.Command{Use: "log", Short: "Event log"}
	l.AddCommand(logTailCmd())
	return l
}

func logTailCmd() *cobra.Command {
	var n int
	var f repo.EventFilter
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc *app.Service) error {
				events, err := svc.Repo.LatestEvents(ctx, n, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(nonNil(events))
				}
				renderEvents(os.Stdout, events)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect teamplan.yml",
		Long:  "teamplan.yml sits in the workspace root and sets the default mode, the optimizer limits and the webhooks. Without it the built-in defaults apply.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			data, err := cfg.YAML()
			if err != nil {
				return err
			}
			fmt.Print(string(data))
			return nil
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate teamplan.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default teamplan.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(ctx context.Context, svc *app.Service) error {
				handler, err := server.New(server.Config{Service: svc, BasePath: basePath, Logger: svc.Logger})
				if err != nil {
					return err
				}
				server.StartWebhooks(ctx, svc)
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving Teamplan API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withService(ctx context.Context, fn func(context.Context, *app.Service) error) error {
	logger, err := newLogger(viper.GetString("log-level"))
	if err != nil {
		return err
	}
	svc, err := app.Open(ctx, viper.GetString("workspace"), logger)
	if err != nil {
		return err
	}
	defer svc.Close()
	return fn(ctx, svc)
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("invalid --log-level %q", level)
		}
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), nil
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

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

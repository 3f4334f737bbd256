package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/config"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/db"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/domain"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/engine"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/migrate"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/repo"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := db.Open(db.Config{Workspace: viper.GetString("workspace")})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			v, err := migrate.Current(conn)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]any{"version": v})
			}
			fmt.Printf("schema at version %d\n", v)
			return nil
		},
	}
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Workspace config",
		Long:  "Config lives in <workspace>/nomina.yml: cycle anchor and time zone, escalated roles, alert code prefix, logging and server settings. A missing file means defaults.",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default nomina.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(p); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", p)
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}
			if err := os.WriteFile(p, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", p)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	show := &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Validate nomina.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if path := viper.GetString("config"); path != "" {
				_, err = config.FromFile(path)
			} else {
				_, err = config.LoadOptional(viper.GetString("workspace"))
			}
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
	cfg.AddCommand(initCmd, show, validate)
	return cfg
}

func alertCmd() *cobra.Command {
	alert := &cobra.Command{
		Use:   "alert",
		Short: "Performance alerts",
		Long:  "Alerts move PENDING -> IN_REVIEW -> RESOLVED or IGNORED. Resolved and ignored alerts are final.",
	}

	var f repo.AlertFilters
	var week string
	list := &cobra.Command{
		Use:   "list",
		Short: "List alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if week != "" {
					w, err := e.GetWeek(ctx, week)
					if err != nil {
						return err
					}
					f.WeekID = w.ID
				}
				as, err := e.ListAlerts(ctx, f)
				if err != nil {
					return err
				}
				return printAlerts(as)
			})
		},
	}
	list.Flags().StringVar(&week, "week", "", "week id or code")
	list.Flags().StringVar(&f.State, "state", "", "alert state")
	list.Flags().StringVar(&f.Kind, "kind", "", "LOW_PERFORMANCE or TARGET_NOT_MET")
	list.Flags().StringVar(&f.Severity, "severity", "", "LOW, MEDIUM, HIGH or CRITICAL")
	list.Flags().StringVar(&f.EntityID, "entity", "", "worker or work unit id")
	list.Flags().IntVar(&f.Limit, "limit", 50, "maximum alerts")

	review := &cobra.Command{
		Use:   "review <alert>",
		Short: "Move a pending alert to review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.ReviewAlert(ctx, args[0], actorID())
				if err != nil {
					return err
				}
				return printAlerts([]domain.Alert{a})
			})
		},
	}
	alert.AddCommand(list, review,
		alertCloseCmd("resolve", "Resolve an open alert", engine.Engine.ResolveAlert),
		alertCloseCmd("ignore", "Dismiss an open alert", engine.Engine.IgnoreAlert),
	)
	return alert
}

func alertCloseCmd(use, short string, apply func(engine.Engine, context.Context, string, string, string) (domain.Alert, error)) *cobra.Command {
	var comment string
	cmd := &cobra.Command{
		Use:   use + " <alert>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := apply(e, ctx, args[0], actorID(), comment)
				if err != nil {
					return err
				}
				return printAlerts([]domain.Alert{a})
			})
		},
	}
	cmd.Flags().StringVar(&comment, "comment", "", "comment")
	return cmd
}

func printAlerts(as []domain.Alert) error {
	rows := make([]table.Row, 0, len(as))
	for _, a := range as {
		rows = append(rows, table.Row{a.Code, a.Kind, a.Severity, a.Entity.Kind, a.Entity.ID, num(a.Observed), num(a.Expected), a.State})
	}
	return printRows(as, table.Row{"Code", "Kind", "Severity", "Entity", "ID", "Observed", "Expected", "State"}, rows)
}

func territoryCmd() *cobra.Command {
	terr := &cobra.Command{
		Use:   "territory",
		Short: "Plots and supervisor scopes",
		Long:  "Plots roll up into farms, hubs and zones. A supervisor may record entries on plots inside an active assignment.",
	}

	var plot domain.Plot
	setPlot := &cobra.Command{
		Use:   "set-plot <plot>",
		Short: "Create or update a plot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEscalated(cmd.Context(), "managing territory", func(ctx context.Context, e engine.Engine, actor string) error {
				plot.ID = args[0]
				p, err := e.SetPlot(ctx, plot, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	setPlot.Flags().StringVar(&plot.Name, "name", "", "plot name")
	setPlot.Flags().StringVar(&plot.FarmID, "farm", "", "farm id")
	setPlot.Flags().StringVar(&plot.HubID, "hub", "", "hub id")
	setPlot.Flags().StringVar(&plot.ZoneID, "zone", "", "zone id")

	plots := &cobra.Command{
		Use:   "plots",
		Short: "List plots",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ps, err := e.ListPlots(ctx)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(ps))
				for _, p := range ps {
					rows = append(rows, table.Row{p.ID, p.Name, p.FarmID, p.HubID, p.ZoneID})
				}
				return printRows(ps, table.Row{"Plot", "Name", "Farm", "Hub", "Zone"}, rows)
			})
		},
	}

	var a domain.SupervisorAssignment
	var level string
	var inactive bool
	assign := &cobra.Command{
		Use:   "assign <supervisor>",
		Short: "Assign a supervisor to a plot, farm, hub or zone",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEscalated(cmd.Context(), "managing territory", func(ctx context.Context, e engine.Engine, actor string) error {
				a.SupervisorID = args[0]
				a.Level = domain.ScopeLevel(level)
				a.Active = !inactive
				out, err := e.AssignSupervisor(ctx, a, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(out)
			})
		},
	}
	assign.Flags().StringVar(&level, "level", "", "PLOT, FARM, HUB or ZONE")
	assign.Flags().StringVar(&a.ScopeID, "scope", "", "plot, farm, hub or zone id")
	assign.Flags().BoolVar(&inactive, "inactive", false, "deactivate the assignment")
	_ = assign.MarkFlagRequired("level")
	_ = assign.MarkFlagRequired("scope")

	scopes := &cobra.Command{
		Use:   "scopes <supervisor>",
		Short: "Active scopes of a supervisor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				as, err := e.Assignments(ctx, args[0])
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(as))
				for _, a := range as {
					rows = append(rows, table.Row{a.Level, a.ScopeID, a.Active, a.CreatedAt})
				}
				return printRows(as, table.Row{"Level", "Scope", "Active", "Since"}, rows)
			})
		},
	}
	terr.AddCommand(setPlot, plots, assign, scopes)
	return terr
}

func roleCmd() *cobra.Command {
	role := &cobra.Command{Use: "role", Short: "Actor roles"}

	role.AddCommand(&cobra.Command{
		Use:   "whoami",
		Short: "Show the roles of the current actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				roles, err := e.ActorRoles(ctx, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{
					"actor_id":  actorID(),
					"roles":     roles,
					"escalated": e.Config.Escalated(roles),
				})
			})
		},
	})

	var target, name string
	grant := &cobra.Command{
		Use:   "grant",
		Short: "Grant a role to an actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEscalated(cmd.Context(), "granting roles", func(ctx context.Context, e engine.Engine, actor string) error {
				return e.GrantRole(ctx, target, name, actor)
			})
		},
	}
	revoke := &cobra.Command{
		Use:   "revoke",
		Short: "Revoke a role from an actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEscalated(cmd.Context(), "revoking roles", func(ctx context.Context, e engine.Engine, actor string) error {
				return e.RevokeRole(ctx, target, name, actor)
			})
		},
	}
	for _, c := range []*cobra.Command{grant, revoke} {
		c.Flags().StringVar(&target, "actor", "", "actor id")
		c.Flags().StringVar(&name, "role", "", "role id")
		_ = c.MarkFlagRequired("actor")
		_ = c.MarkFlagRequired("role")
	}

	bootstrap := &cobra.Command{
		Use:   "bootstrap",
		Short: "Grant an escalated role to the current actor when nobody holds one",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp()
			if err != nil {
				return err
			}
			defer a.Close()
			granted, err := a.EnsureBootstrapAdmin(cmd.Context(), actorID())
			if err != nil {
				return err
			}
			if !granted {
				return fmt.Errorf("an escalated role is already held; use 'nomina role grant'")
			}
			fmt.Printf("granted %s to %s\n", a.Config.Ledger.EscalatedRoles[len(a.Config.Ledger.EscalatedRoles)-1], actorID())
			return nil
		},
	}
	role.AddCommand(grant, revoke, bootstrap)
	return role
}

func apiKeyCmd() *cobra.Command {
	keys := &cobra.Command{Use: "apikey", Short: "API keys of the current actor"}

	var name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Issue an API key; the secret is shown once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				k, plain, err := e.CreateAPIKey(ctx, actorID(), name)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"id": k.ID, "actor_id": k.ActorID, "name": k.Name, "key": plain})
				}
				fmt.Printf("id:  %s\nkey: %s\n", k.ID, plain)
				return nil
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "label")

	list := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ks, err := e.ListAPIKeys(ctx, actorID())
				if err != nil {
					return err
				}
				out := make([]map[string]string, 0, len(ks))
				rows := make([]table.Row, 0, len(ks))
				for _, k := range ks {
					out = append(out, map[string]string{"id": k.ID, "name": k.Name, "created_at": k.CreatedAt})
					rows = append(rows, table.Row{k.ID, k.Name, k.CreatedAt})
				}
				return printRows(out, table.Row{"ID", "Name", "Created"}, rows)
			})
		},
	}

	revoke := &cobra.Command{
		Use:   "revoke <key>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ks, err := e.ListAPIKeys(ctx, actorID())
				if err != nil {
					return err
				}
				owned := false
				for _, k := range ks {
					owned = owned || k.ID == args[0]
				}
				if !owned {
					if err := e.RequireEscalated(ctx, actorID(), "revoking keys of other actors"); err != nil {
						return err
					}
				}
				return e.RevokeAPIKey(ctx, args[0])
			})
		},
	}
	keys.AddCommand(create, list, revoke)
	return keys
}

func logCmd() *cobra.Command {
	l := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Every change to weeks, units, entries, prices, aggregates and roles is recorded with its actor.",
	}
	l.AddCommand(logTailCmd())
	return l
}

func logTailCmd() *cobra.Command {
	var f repo.EventFilters
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				evs, err := e.ListEvents(ctx, f)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(evs))
				for _, ev := range evs {
					rows = append(rows, table.Row{ev.ID, ev.TS, ev.Type, ev.EntityKind, ev.EntityID, ev.ActorID})
				}
				return printRows(evs, table.Row{"ID", "TS", "Type", "Kind", "Entity", "Actor"}, rows)
			})
		},
	}
	cmd.Flags().IntVar(&f.Limit, "n", 20, "number of events")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	return cmd
}

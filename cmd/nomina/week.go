package main

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/domain"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/engine"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/repo"
)

func weekCmd() *cobra.Command {
	wk := &cobra.Command{
		Use:   "week",
		Short: "Operational weeks",
		Long:  "Weeks are referenced by id or by code (e.g. 2024-W10). A week closes only when every work unit touched in it met its target.",
	}
	wk.AddCommand(weekResolveCmd())
	wk.AddCommand(weekCreateCmd())
	wk.AddCommand(weekListCmd())
	wk.AddCommand(weekCurrentCmd())
	wk.AddCommand(weekShowCmd())
	wk.AddCommand(weekCanCloseCmd())
	wk.AddCommand(weekTransitionCmd("close", "Close an open week", func(ctx context.Context, e engine.Engine, ref string) (domain.OperationalWeek, error) {
		return e.CloseWeek(ctx, ref, actorID())
	}))
	wk.AddCommand(weekTransitionCmd("reopen", "Reopen a closed week (escalated roles)", func(ctx context.Context, e engine.Engine, ref string) (domain.OperationalWeek, error) {
		return e.ReopenWeek(ctx, ref, actorID())
	}))
	wk.AddCommand(weekTransitionCmd("lock", "Lock a closed week for good (escalated roles)", func(ctx context.Context, e engine.Engine, ref string) (domain.OperationalWeek, error) {
		return e.LockWeek(ctx, ref, actorID())
	}))
	wk.AddCommand(weekProcessCmd())
	wk.AddCommand(weekConsolidateCmd())
	wk.AddCommand(weekConsolidationsCmd())
	wk.AddCommand(weekIndicatorsCmd())
	wk.AddCommand(weekAlertsCmd())
	return wk
}

func printWeeks(weeks []domain.OperationalWeek) error {
	rows := make([]table.Row, 0, len(weeks))
	for _, w := range weeks {
		rows = append(rows, table.Row{w.Code, w.ID, w.StartDate, w.EndDate, w.State, deref(w.ClosedBy)})
	}
	return printRows(weeks, table.Row{"Code", "ID", "Start", "End", "State", "Closed by"}, rows)
}

func weekResolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <date>",
		Short: "Find or create the week covering a date",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.ResolveOrCreateWeek(ctx, args[0])
				if err != nil {
					return err
				}
				return printWeeks([]domain.OperationalWeek{w})
			})
		},
	}
}

func weekCreateCmd() *cobra.Command {
	var opts engine.WeekCreateOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a week with explicit bounds",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEscalated(cmd.Context(), "creating weeks", func(ctx context.Context, e engine.Engine, actor string) error {
				opts.ActorID = actor
				w, err := e.CreateWeek(ctx, opts)
				if err != nil {
					return err
				}
				return printWeeks([]domain.OperationalWeek{w})
			})
		},
	}
	cmd.Flags().StringVar(&opts.StartDate, "start", "", "first day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.EndDate, "end", "", "last day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.ProjectID, "project", "", "project id")
	cmd.Flags().StringVar(&opts.HubID, "hub", "", "hub id")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "notes")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

func weekListCmd() *cobra.Command {
	var f repo.WeekFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List weeks, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				weeks, err := e.ListWeeks(ctx, f)
				if err != nil {
					return err
				}
				return printWeeks(weeks)
			})
		},
	}
	cmd.Flags().StringVar(&f.State, "state", "", "OPEN, CLOSED or LOCKED")
	cmd.Flags().IntVar(&f.Limit, "limit", 20, "maximum weeks")
	return cmd
}

func weekCurrentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "current",
		Short: "Show the week covering today",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.CurrentWeek(ctx)
				if err != nil {
					return err
				}
				return printWeeks([]domain.OperationalWeek{w})
			})
		},
	}
}

func weekShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <week>",
		Short: "Show a week",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.GetWeek(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(w)
			})
		},
	}
}

func weekCanCloseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "can-close <week>",
		Short: "List the work units keeping a week open",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				check, err := e.CanClose(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(check)
				}
				if check.Allowed {
					fmt.Println("week can close")
					return nil
				}
				rows := make([]table.Row, 0, len(check.Blocking))
				for _, b := range check.Blocking {
					rows = append(rows, table.Row{b.Code, b.ProjectID, b.State, num(b.Target), num(b.Executed), num(b.Shortfall)})
				}
				fmt.Println("week cannot close, blocked by:")
				return printRows(check, table.Row{"Unit", "Project", "State", "Target", "Executed", "Missing"}, rows)
			})
		},
	}
}

func weekTransitionCmd(use, short string, apply func(context.Context, engine.Engine, string) (domain.OperationalWeek, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <week>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := apply(ctx, e, args[0])
				if err != nil {
					return err
				}
				return printWeeks([]domain.OperationalWeek{w})
			})
		},
	}
}

func weekProcessCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process <week>",
		Short: "Consolidate, compute indicators and raise alerts for a week",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				report, err := e.ProcessWeek(ctx, args[0], actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(report)
				}
				ind := report.Indicators
				fmt.Printf("Week %s (%s)\n", report.Week.Code, report.Week.State)
				fmt.Printf("  consolidations: %d (%d failed)\n", report.Consolidations.Succeeded, len(report.Consolidations.Failures))
				fmt.Printf("  workers: %d  executed: %s  units met: %d/%d (%s%%)\n",
					ind.Workers, num(ind.TotalExecuted), ind.UnitsMet, ind.UnitsAssigned, num(ind.TargetCompliancePct))
				fmt.Printf("  bands: excellent %d, good %d, regular %d, low %d\n", ind.Excellent, ind.Good, ind.Regular, ind.Low)
				fmt.Printf("  alerts raised: %d\n", report.Alerts.Created)
				return nil
			})
		},
	}
}

func weekConsolidateCmd() *cobra.Command {
	var workerID, unitID, forced string
	cmd := &cobra.Command{
		Use:   "consolidate <week>",
		Short: "Consolidate a whole week, or one worker on one unit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if workerID == "" && unitID == "" {
					batch, err := e.ConsolidateWeek(ctx, args[0], actorID())
					if err != nil {
						return err
					}
					return printConsolidations(batch.Consolidations)
				}
				c, err := e.Consolidate(ctx, engine.ConsolidateOptions{
					WeekID:      args[0],
					WorkerID:    workerID,
					UnitID:      unitID,
					ActorID:     actorID(),
					ForcedState: domain.ConsolidationState(forced),
				})
				if err != nil {
					return err
				}
				return printConsolidations([]domain.WeeklyConsolidation{c})
			})
		},
	}
	cmd.Flags().StringVar(&workerID, "worker", "", "worker id")
	cmd.Flags().StringVar(&unitID, "unit", "", "work unit id")
	cmd.Flags().StringVar(&forced, "state", "", "force DRAFT, CONSOLIDATED, APPROVED or CLOSED")
	cmd.MarkFlagsRequiredTogether("worker", "unit")
	return cmd
}

func weekConsolidationsCmd() *cobra.Command {
	var workerID string
	cmd := &cobra.Command{
		Use:   "consolidations <week>",
		Short: "List the consolidations of a week",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w, err := e.GetWeek(ctx, args[0])
				if err != nil {
					return err
				}
				cs, err := e.ListConsolidations(ctx, repo.ConsolidationFilters{WeekID: w.ID, WorkerID: workerID})
				if err != nil {
					return err
				}
				return printConsolidations(cs)
			})
		},
	}
	cmd.Flags().StringVar(&workerID, "worker", "", "worker id")
	return cmd
}

func printConsolidations(cs []domain.WeeklyConsolidation) error {
	rows := make([]table.Row, 0, len(cs))
	for _, c := range cs {
		rows = append(rows, table.Row{c.WorkerID, c.UnitID, c.DaysWorked, num(c.TotalHours), num(c.TotalExecuted),
			num(c.AveragePerDay), num(c.PercentVsExpected), c.Classification(), c.NoveltyDays, c.State})
	}
	return printRows(cs, table.Row{"Worker", "Unit", "Days", "Hours", "Executed", "Avg/day", "%", "Band", "Novelty days", "State"}, rows)
}

func weekIndicatorsCmd() *cobra.Command {
	var project string
	var all, stored bool
	cmd := &cobra.Command{
		Use:   "indicators <week>",
		Short: "Compute indicator snapshots (GLOBAL by default)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var out []domain.PerformanceIndicator
				switch {
				case stored:
					ps, err := e.ListIndicators(ctx, args[0], "")
					if err != nil {
						return err
					}
					out = ps
				case all:
					batch, err := e.ProjectIndicatorsAll(ctx, args[0])
					if err != nil {
						return err
					}
					out = batch.Indicators
				case project != "":
					p, err := e.ProjectIndicators(ctx, args[0], project)
					if err != nil {
						return err
					}
					out = append(out, p)
				default:
					p, err := e.GlobalIndicators(ctx, args[0])
					if err != nil {
						return err
					}
					out = append(out, p)
				}
				rows := make([]table.Row, 0, len(out))
				for _, p := range out {
					rows = append(rows, table.Row{p.ScopeKind, p.ScopeRef, p.Workers, num(p.TotalExecuted), num(p.AveragePerDay),
						fmt.Sprintf("%d/%d", p.UnitsMet, p.UnitsAssigned), num(p.TargetCompliancePct), p.Alerts, p.CriticalAlerts})
				}
				return printRows(out, table.Row{"Scope", "Ref", "Workers", "Executed", "Avg/day", "Met", "Compliance %", "Alerts", "Critical"}, rows)
			})
		},
	}
	cmd.Flags().StringVar(&project, "project", "", "compute one PROJECT snapshot")
	cmd.Flags().BoolVar(&all, "all-projects", false, "compute every touched project")
	cmd.Flags().BoolVar(&stored, "stored", false, "list stored snapshots without recomputing")
	cmd.MarkFlagsMutuallyExclusive("project", "all-projects", "stored")
	return cmd
}

func weekAlertsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "alerts <week>",
		Short: "Evaluate the alert rules for a week",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				batch, err := e.GenerateAlerts(ctx, args[0])
				if err != nil {
					return err
				}
				if !viper.GetBool("json") {
					fmt.Printf("%d new alerts\n", batch.Created)
				}
				return printAlerts(batch.Alerts)
			})
		},
	}
}

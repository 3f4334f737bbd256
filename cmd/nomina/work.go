package main

import (
	"context"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/domain"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/engine"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/repo"
)

func activityCmd() *cobra.Command {
	act := &cobra.Command{Use: "activity", Short: "Activity catalog"}

	var opts engine.ActivityOptions
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an activity with its expected daily rate",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEscalated(cmd.Context(), "creating activities", func(ctx context.Context, e engine.Engine, actor string) error {
				opts.ActorID = actor
				a, err := e.CreateActivity(ctx, opts)
				if err != nil {
					return err
				}
				return printActivities([]domain.Activity{a})
			})
		},
	}
	create.Flags().StringVar(&opts.Code, "code", "", "activity code")
	create.Flags().StringVar(&opts.Name, "name", "", "activity name")
	create.Flags().StringVar(&opts.UnitOfMeasure, "uom", "", "unit of measure")
	create.Flags().Float64Var(&opts.DailyRate, "daily-rate", 0, "expected output per worker per day")
	_ = create.MarkFlagRequired("code")
	_ = create.MarkFlagRequired("name")

	list := &cobra.Command{
		Use:   "list",
		Short: "List activities",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				as, err := e.ListActivities(ctx)
				if err != nil {
					return err
				}
				return printActivities(as)
			})
		},
	}
	act.AddCommand(create, list)
	return act
}

func printActivities(as []domain.Activity) error {
	rows := make([]table.Row, 0, len(as))
	for _, a := range as {
		rows = append(rows, table.Row{a.Code, a.ID, a.Name, a.UnitOfMeasure, num(a.DailyRate)})
	}
	return printRows(as, table.Row{"Code", "ID", "Name", "UoM", "Daily rate"}, rows)
}

func unitCmd() *cobra.Command {
	unit := &cobra.Command{
		Use:   "unit",
		Short: "Work units and their targets",
		Long:  "A work unit is planned work on a plot with a minimum target. Executed quantity is the sum of approved entries.",
	}
	unit.AddCommand(unitCreateCmd())
	unit.AddCommand(unitListCmd())
	unit.AddCommand(unitShowCmd())
	unit.AddCommand(unitTargetCmd())
	unit.AddCommand(unitSimpleCmd("recompute", "Recompute executed quantity from approved entries", func(ctx context.Context, e engine.Engine, id string) (domain.WorkUnit, error) {
		return e.RecomputeExecuted(ctx, id)
	}))
	unit.AddCommand(unitSimpleCmd("met", "Mark a unit as having met its target", func(ctx context.Context, e engine.Engine, id string) (domain.WorkUnit, error) {
		return e.MarkMet(ctx, id, actorID())
	}))
	unit.AddCommand(unitReasonCmd("cancel", "Cancel a work unit", "cancelling work units", engine.Engine.CancelWorkUnit))
	unit.AddCommand(unitReasonCmd("reschedule", "Reschedule a work unit", "rescheduling work units", engine.Engine.RescheduleWorkUnit))
	unit.AddCommand(unitReplaceCmd())
	return unit
}

func printUnits(us []domain.WorkUnit) error {
	rows := make([]table.Row, 0, len(us))
	for _, u := range us {
		rows = append(rows, table.Row{u.Code, u.ID, u.ProjectID, u.PlotID, num(u.MinTarget), num(u.Executed), num(u.Shortfall()), u.State})
	}
	return printRows(us, table.Row{"Code", "ID", "Project", "Plot", "Target", "Executed", "Missing", "State"}, rows)
}

func unitCreateCmd() *cobra.Command {
	var opts engine.WorkUnitOptions
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a work unit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEscalated(cmd.Context(), "creating work units", func(ctx context.Context, e engine.Engine, actor string) error {
				opts.ActorID = actor
				u, err := e.CreateWorkUnit(ctx, opts)
				if err != nil {
					return err
				}
				return printUnits([]domain.WorkUnit{u})
			})
		},
	}
	cmd.Flags().StringVar(&opts.Code, "code", "", "unit code (generated when empty)")
	cmd.Flags().StringVar(&opts.ProjectID, "project", "", "project id")
	cmd.Flags().StringVar(&opts.ActivityID, "activity", "", "activity id")
	cmd.Flags().StringVar(&opts.PlotID, "plot", "", "plot id")
	cmd.Flags().StringVar(&opts.SupervisorID, "supervisor", "", "responsible supervisor")
	cmd.Flags().IntVar(&opts.Priority, "priority", 0, "priority")
	cmd.Flags().Float64Var(&opts.MinTarget, "target", 0, "minimum target")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "notes")
	for _, f := range []string{"project", "activity", "plot", "target"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func unitListCmd() *cobra.Command {
	var f repo.UnitFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List work units",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				us, err := e.ListWorkUnits(ctx, f)
				if err != nil {
					return err
				}
				return printUnits(us)
			})
		},
	}
	cmd.Flags().StringVar(&f.ProjectID, "project", "", "project id")
	cmd.Flags().StringVar(&f.State, "state", "", "unit state")
	cmd.Flags().StringVar(&f.PlotID, "plot", "", "plot id")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "maximum units")
	return cmd
}

func unitShowCmd() *cobra.Command {
	return unitSimpleCmd("show", "Show a work unit", func(ctx context.Context, e engine.Engine, id string) (domain.WorkUnit, error) {
		return e.GetWorkUnit(ctx, id)
	})
}

func unitSimpleCmd(use, short string, apply func(context.Context, engine.Engine, string) (domain.WorkUnit, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <unit>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				u, err := apply(ctx, e, args[0])
				if err != nil {
					return err
				}
				return printUnits([]domain.WorkUnit{u})
			})
		},
	}
}

func unitTargetCmd() *cobra.Command {
	var target float64
	var reason string
	cmd := &cobra.Command{
		Use:   "target <unit>",
		Short: "Raise the minimum target of a work unit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEscalated(cmd.Context(), "changing targets", func(ctx context.Context, e engine.Engine, actor string) error {
				u, err := e.IncreaseTarget(ctx, args[0], target, reason, actor)
				if err != nil {
					return err
				}
				return printUnits([]domain.WorkUnit{u})
			})
		},
	}
	cmd.Flags().Float64Var(&target, "to", 0, "new minimum target")
	cmd.Flags().StringVar(&reason, "reason", "", "why the target changes")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func unitReasonCmd(use, short, action string, apply func(engine.Engine, context.Context, string, string, string) (domain.WorkUnit, error)) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   use + " <unit>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEscalated(cmd.Context(), action, func(ctx context.Context, e engine.Engine, actor string) error {
				u, err := apply(e, ctx, args[0], reason, actor)
				if err != nil {
					return err
				}
				return printUnits([]domain.WorkUnit{u})
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reason")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func unitReplaceCmd() *cobra.Command {
	var replacement, reason string
	cmd := &cobra.Command{
		Use:   "replace <unit>",
		Short: "Replace a work unit by another one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEscalated(cmd.Context(), "replacing work units", func(ctx context.Context, e engine.Engine, actor string) error {
				u, err := e.ReplaceWorkUnit(ctx, args[0], replacement, reason, actor)
				if err != nil {
					return err
				}
				return printUnits([]domain.WorkUnit{u})
			})
		},
	}
	cmd.Flags().StringVar(&replacement, "by", "", "replacement unit id")
	cmd.Flags().StringVar(&reason, "reason", "", "reason")
	_ = cmd.MarkFlagRequired("by")
	return cmd
}

func priceCmd() *cobra.Command {
	price := &cobra.Command{Use: "price", Short: "Negotiated unit prices"}

	var amount, authorizedBy, motive string
	set := &cobra.Command{
		Use:   "set <unit>",
		Short: "Append a new negotiated price version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := decimal.NewFromString(amount)
			if err != nil {
				return err
			}
			return withEscalated(cmd.Context(), "negotiating prices", func(ctx context.Context, e engine.Engine, actor string) error {
				if authorizedBy == "" {
					authorizedBy = actor
				}
				p, err := e.NegotiatePrice(ctx, engine.PriceOptions{
					UnitID:       args[0],
					Price:        value,
					NegotiatedBy: actor,
					AuthorizedBy: authorizedBy,
					Motive:       motive,
				})
				if err != nil {
					return err
				}
				return printPrices([]domain.NegotiatedPrice{p})
			})
		},
	}
	set.Flags().StringVar(&amount, "amount", "", "price as a decimal")
	set.Flags().StringVar(&authorizedBy, "authorized-by", "", "authorizer (defaults to the actor)")
	set.Flags().StringVar(&motive, "motive", "", "motive")
	_ = set.MarkFlagRequired("amount")

	current := &cobra.Command{
		Use:   "current <unit>",
		Short: "Show the active price of a unit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CurrentPrice(ctx, args[0])
				if err != nil {
					return err
				}
				return printPrices([]domain.NegotiatedPrice{p})
			})
		},
	}

	history := &cobra.Command{
		Use:   "history <unit>",
		Short: "List every price version of a unit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ps, err := e.PriceHistory(ctx, args[0])
				if err != nil {
					return err
				}
				return printPrices(ps)
			})
		},
	}
	price.AddCommand(set, current, history)
	return price
}

func printPrices(ps []domain.NegotiatedPrice) error {
	rows := make([]table.Row, 0, len(ps))
	for _, p := range ps {
		rows = append(rows, table.Row{p.Version, p.Price.StringFixed(2), p.Active, p.ValidFrom, deref(p.ValidTo), p.AuthorizedBy, p.Motive})
	}
	return printRows(ps, table.Row{"Version", "Price", "Active", "Valid from", "Valid to", "Authorized by", "Motive"}, rows)
}

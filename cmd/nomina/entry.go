package main

import (
	"context"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/domain"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/engine"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/repo"
)

func entryCmd() *cobra.Command {
	entry := &cobra.Command{
		Use:   "entry",
		Short: "Daily entries",
		Long:  "A daily entry records one worker's output on one work unit for one day. Only approved entries count toward executed quantities.",
	}
	entry.AddCommand(entryAddCmd())
	entry.AddCommand(entryListCmd())
	entry.AddCommand(entryEditCmd())
	entry.AddCommand(&cobra.Command{
		Use:   "delete <entry>",
		Short: "Delete an entry within its edit window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteEntry(ctx, args[0], actorID())
			})
		},
	})
	entry.AddCommand(&cobra.Command{
		Use:   "approve <entry>",
		Short: "Approve a pending entry (escalated roles)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				en, err := e.ApproveEntry(ctx, args[0], actorID())
				if err != nil {
					return err
				}
				return printEntries([]domain.DailyEntry{en})
			})
		},
	})
	entry.AddCommand(entryRejectCmd())
	return entry
}

func printEntries(es []domain.DailyEntry) error {
	rows := make([]table.Row, 0, len(es))
	for _, en := range es {
		rows = append(rows, table.Row{en.ID, en.Date, en.WorkerID, en.UnitID, num(en.Quantity), num(en.Hours), en.State, en.RecordedBy})
	}
	return printRows(es, table.Row{"ID", "Date", "Worker", "Unit", "Quantity", "Hours", "State", "Recorded by"}, rows)
}

func entryAddCmd() *cobra.Command {
	var opts engine.EntryCreateOptions
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a daily entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts.RecordedBy = actorID()
				en, err := e.CreateEntry(ctx, opts)
				if err != nil {
					return err
				}
				return printEntries([]domain.DailyEntry{en})
			})
		},
	}
	cmd.Flags().StringVar(&opts.Date, "date", "", "work day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.WorkerID, "worker", "", "worker id")
	cmd.Flags().StringVar(&opts.UnitID, "unit", "", "work unit id")
	cmd.Flags().Float64Var(&opts.Quantity, "quantity", 0, "executed quantity")
	cmd.Flags().Float64Var(&opts.Hours, "hours", 0, "hours worked")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "notes")
	cmd.Flags().BoolVar(&opts.AutoApprove, "approve", false, "approve immediately (escalated roles)")
	for _, f := range []string{"date", "worker", "unit", "quantity"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func entryListCmd() *cobra.Command {
	var f repo.EntryFilters
	var states []string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List daily entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, s := range states {
				f.States = append(f.States, domain.EntryState(s))
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				es, err := e.ListEntries(ctx, f)
				if err != nil {
					return err
				}
				return printEntries(es)
			})
		},
	}
	cmd.Flags().StringVar(&f.From, "from", "", "first day")
	cmd.Flags().StringVar(&f.To, "to", "", "last day")
	cmd.Flags().StringVar(&f.WorkerID, "worker", "", "worker id")
	cmd.Flags().StringVar(&f.UnitID, "unit", "", "work unit id")
	cmd.Flags().StringSliceVar(&states, "state", nil, "entry states")
	return cmd
}

func entryEditCmd() *cobra.Command {
	var quantity, hours float64
	var notes, reason string
	cmd := &cobra.Command{
		Use:   "edit <entry>",
		Short: "Edit an entry within its edit window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				en, err := e.UpdateEntry(ctx, engine.EntryUpdateOptions{
					ID:       args[0],
					Quantity: optionalFloat(flags.Changed("quantity"), quantity),
					Hours:    optionalFloat(flags.Changed("hours"), hours),
					Notes:    optionalString(flags.Changed("notes"), notes),
					Reason:   reason,
					ActorID:  actorID(),
				})
				if err != nil {
					return err
				}
				return printEntries([]domain.DailyEntry{en})
			})
		},
	}
	cmd.Flags().Float64Var(&quantity, "quantity", 0, "new quantity")
	cmd.Flags().Float64Var(&hours, "hours", 0, "new hours")
	cmd.Flags().StringVar(&notes, "notes", "", "new notes")
	cmd.Flags().StringVar(&reason, "reason", "", "reason (required when quantity changes)")
	return cmd
}

func entryRejectCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "reject <entry>",
		Short: "Reject an entry (escalated roles)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				en, err := e.RejectEntry(ctx, args[0], reason, actorID())
				if err != nil {
					return err
				}
				return printEntries([]domain.DailyEntry{en})
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reason")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func noveltyCmd() *cobra.Command {
	nov := &cobra.Command{Use: "novelty", Short: "Worker absences"}

	var opts engine.NoveltyOptions
	add := &cobra.Command{
		Use:   "add",
		Short: "Register an absence",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				opts.ActorID = actorID()
				n, err := e.RegisterNovelty(ctx, opts)
				if err != nil {
					return err
				}
				return printNovelties([]domain.Novelty{n})
			})
		},
	}
	add.Flags().StringVar(&opts.WorkerID, "worker", "", "worker id")
	add.Flags().StringVar(&opts.Kind, "kind", "", "absence kind (leave, sickness, permit)")
	add.Flags().StringVar(&opts.StartDate, "start", "", "first day")
	add.Flags().StringVar(&opts.EndDate, "end", "", "last day")
	add.Flags().StringVar(&opts.Notes, "notes", "", "notes")
	for _, f := range []string{"worker", "kind", "start", "end"} {
		_ = add.MarkFlagRequired(f)
	}

	var state string
	setState := &cobra.Command{
		Use:   "set-state <novelty>",
		Short: "Approve or reject an absence (escalated roles)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				n, err := e.SetNoveltyState(ctx, args[0], domain.NoveltyState(state), actorID())
				if err != nil {
					return err
				}
				return printNovelties([]domain.Novelty{n})
			})
		},
	}
	setState.Flags().StringVar(&state, "state", "", "PENDING, APPROVED or REJECTED")
	_ = setState.MarkFlagRequired("state")

	var from, to string
	list := &cobra.Command{
		Use:   "list <worker>",
		Short: "Active absences of a worker overlapping a date range",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ns, err := e.ActiveNovelties(ctx, args[0], from, to)
				if err != nil {
					return err
				}
				return printNovelties(ns)
			})
		},
	}
	list.Flags().StringVar(&from, "from", "", "first day")
	list.Flags().StringVar(&to, "to", "", "last day")
	_ = list.MarkFlagRequired("from")
	_ = list.MarkFlagRequired("to")

	nov.AddCommand(add, setState, list)
	return nov
}

func printNovelties(ns []domain.Novelty) error {
	rows := make([]table.Row, 0, len(ns))
	for _, n := range ns {
		rows = append(rows, table.Row{n.ID, n.WorkerID, n.Kind, n.StartDate, n.EndDate, n.State})
	}
	return printRows(ns, table.Row{"ID", "Worker", "Kind", "Start", "End", "State"}, rows)
}

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/db"
	"github.com/DominguezJ07/Backend-Nomina-Efagram-sub000/internal/engine"
)

var rootCmd = &cobra.Command{
	Use:   "nomina",
	Short: "Weekly operational closure for field work",
	Long: `nomina consolidates daily field work into weekly figures and closes operational weeks.
Core concepts:
- Week: a 7-day operational period (code like 2024-W10) that moves OPEN -> CLOSED -> LOCKED.
- Work unit: a task on a plot with a minimum target; a week cannot close while a touched unit is below target.
- Daily entry: one worker's output on one unit for one day. Supervisor entries wait for approval.
- Consolidation: the weekly per worker and per unit summary derived from approved entries.
- Indicators and alerts: weekly performance snapshots and the low-performance or missed-target alerts they raise.
- Event log: every change is recorded; view it with 'nomina log tail'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := db.EnsureWorkspace(viper.GetString("workspace"))
		return err
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		if code := engine.Code(err); code != "internal" {
			fmt.Fprintf(os.Stderr, "error [%s]: %v\n", code, err)
		} else {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("NOMINA")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.Bool("json", false, "output JSON")
	flags.String("actor-id", "local-user", "actor identifier")
	flags.String("config", "", "config file (defaults to <workspace>/nomina.yml)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.Bool("debug", false, "debug logging with caller information")
	for _, name := range []string{"workspace", "json", "actor-id", "config", "log-level", "debug"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(weekCmd())
	rootCmd.AddCommand(activityCmd())
	rootCmd.AddCommand(unitCmd())
	rootCmd.AddCommand(priceCmd())
	rootCmd.AddCommand(entryCmd())
	rootCmd.AddCommand(noveltyCmd())
	rootCmd.AddCommand(alertCmd())
	rootCmd.AddCommand(territoryCmd())
	rootCmd.AddCommand(roleCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"edterm.com/edterm/cmd/edterm/app"
	"edterm.com/edterm/internal/config"
	"edterm.com/edterm/internal/ingest"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	if shutdownTelemetry != nil {
		shutdownTelemetry(context.WithoutCancel(ctx))
	}
	stop()
	if err != nil {
		slog.Error("command failed", "command", executed, "error", err)
		os.Exit(1)
	}
}

var (
	cfg = config.New()

	rootCmd = &cobra.Command{
		Use:               "edterm",
		Short:             "EdTerm course catalog service and batch jobs",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
	}
	serverCmd = &cobra.Command{
		Use:   "server",
		Short: "Run the catalog HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = cfg.GetAddr()
			}
			return app.RunServer(cmd.Context(), cfg, addr)
		},
	}
	migrateCmd = &cobra.Command{
		Use:   "migrate",
		Short: "Database migrations",
	}
	upCmd = &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunMigrate(cmd.Context(), cfg, app.MigrateUp)
		},
	}
	downCmd = &cobra.Command{
		Use:   "down",
		Short: "Revert all applied migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunMigrate(cmd.Context(), cfg, app.MigrateDown)
		},
	}
	ingestCmd = &cobra.Command{
		Use:   "ingest [file]",
		Short: "Ingest a course CSV into the database and publish it to search",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := cfg.GetIngestFile()
			if len(args) == 1 {
				path = args[0]
			}
			opts := ingestOpts
			opts.Strict = !lenient
			return app.RunIngest(cmd.Context(), cfg, path, opts)
		},
	}
	syncCmd = &cobra.Command{
		Use:   "sync",
		Short: "Republish the search view into the search index",
		RunE: func(cmd *cobra.Command, args []string) error {
			if schedule == "" {
				schedule = cfg.GetSyncSchedule()
			}
			return app.RunSync(cmd.Context(), cfg, schedule)
		},
	}
	searchCmd = &cobra.Command{
		Use:   "search",
		Short: "Search index administration",
	}
	searchInitCmd = &cobra.Command{
		Use:   "init",
		Short: "Create the search index and apply its settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			if settingsFile == "" {
				settingsFile = cfg.GetSearchSettingsFile()
			}
			return app.RunSearchInit(cmd.Context(), cfg, settingsFile)
		},
	}

	// Flags
	addr         string
	dsn          string
	configFile   string
	schedule     string
	settingsFile string
	lenient      bool
	ingestOpts   ingest.Options

	executed          string
	shutdownTelemetry func(context.Context)
)

func init() {
	rootCmd.PersistentFlags().StringVar(&dsn, "dsn", "", "Database source name in the format driver://dataSourceName. Falls back to DSN environment variable")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Optional config file; environment variables take precedence")
	serverCmd.Flags().StringVar(&addr, "addr", "", "Address to run the server on (host:port). If empty, uses HOST and PORT environment variables")
	ingestCmd.Flags().BoolVar(&ingestOpts.Atomic, "atomic", false, "Write the whole file in a single transaction")
	ingestCmd.Flags().BoolVar(&ingestOpts.SkipInvalid, "skip-invalid", false, "Skip rows that fail validation instead of aborting")
	ingestCmd.Flags().StringVar(&ingestOpts.AffiliateMode, "affiliate-mode", "", "Affiliate link write mode, append or upsert. Falls back to AFFILIATE_LINK_MODE")
	ingestCmd.Flags().BoolVar(&lenient, "lenient", false, "Accept rows whose field count differs from the header")
	syncCmd.Flags().StringVar(&schedule, "schedule", "", "Cron schedule for repeated syncs. Falls back to SYNC_SCHEDULE; empty runs once")
	searchInitCmd.Flags().StringVar(&settingsFile, "settings", "", "Index settings JSON file. Falls back to SEARCH_SETTINGS_FILE")

	migrateCmd.AddCommand(upCmd, downCmd)
	searchCmd.AddCommand(searchInitCmd)
	rootCmd.AddCommand(serverCmd, migrateCmd, ingestCmd, syncCmd, searchCmd)
}

func setup(cmd *cobra.Command, args []string) error {
	executed = cmd.CommandPath()
	if dsn != "" {
		cfg.Set("DSN", dsn)
	}
	if configFile != "" {
		if err := cfg.SetConfigFile(configFile); err != nil {
			return err
		}
		cfg.Watch()
	}
	config.SetupLog(cfg)

	shutdown, err := config.SetupTelemetry(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	shutdownTelemetry = shutdown
	return nil
}

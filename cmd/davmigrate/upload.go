package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"davmigrate/pkg/database"
	"davmigrate/pkg/logger"
	"davmigrate/pkg/migrator"
	"davmigrate/pkg/ratelimit"
	"davmigrate/pkg/source"
	"davmigrate/pkg/storage"
	"davmigrate/pkg/ui"
)

var (
	resumeRun        bool
	forceRestart     bool
	clearLedgerAfter bool
	persistUploaded  bool
	maxRows          int
	accountName      string
)

// uploadCmd represents the upload command
var uploadCmd = &cobra.Command{
	Use:   "upload [entity...]",
	Short: "Upload pending attachments to the remote store",
	Long: `Upload every attachment that is not yet recorded in the ledger.

Entities are processed in the given order (default: upload.entities from the
configuration). Within an entity, files are uploaded oldest first. When an
upload fails, the files uploaded before it are saved to the ledger and the
run stops.

If the ledger already has entries, pass --resume to skip the recorded files
or --force-restart to clear the ledger and start over.`,
	Example: `  # Upload all configured entities
  davmigrate upload

  # Continue after a failed run
  davmigrate upload --resume

  # Upload the 500 oldest contracts only
  davmigrate upload Contract --max-rows 500

  # Use stored credentials
  davmigrate upload --account nextcloud`,
	RunE: runUpload,
}

func init() {
	rootCmd.AddCommand(uploadCmd)

	uploadCmd.Flags().BoolVar(&resumeRun, "resume", false, "continue from the existing ledger")
	uploadCmd.Flags().BoolVar(&forceRestart, "force-restart", false, "clear the ledger before uploading")
	uploadCmd.Flags().BoolVar(&clearLedgerAfter, "clear-ledger-after", false, "clear the ledger after each fully uploaded entity")
	uploadCmd.Flags().BoolVar(&persistUploaded, "persist-uploaded", true, "record every uploaded file after each fully uploaded entity")
	uploadCmd.Flags().IntVar(&maxRows, "max-rows", 0, "upload at most this many files per entity (0 = no limit)")
	uploadCmd.Flags().StringVarP(&accountName, "account", "a", "", "use stored WebDAV credentials")
	uploadCmd.MarkFlagsMutuallyExclusive("resume", "force-restart")
}

func runUpload(cmd *cobra.Command, args []string) error {
	flags := make(map[string]interface{})
	if cmd.Flags().Changed("clear-ledger-after") {
		flags["clear-ledger-after"] = clearLedgerAfter
	}
	if cmd.Flags().Changed("persist-uploaded") {
		flags["persist-uploaded"] = persistUploaded
	}
	if cmd.Flags().Changed("max-rows") {
		flags["max-rows"] = maxRows
	}
	if accountName != "" {
		flags["account"] = accountName
	}
	if len(args) > 0 {
		flags["entities"] = args
	}

	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	log := logger.GetLogger()
	log.WithField("version", version).Info("davmigrate starting")

	if err := resolveCredentials(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, store, err := openLedger(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close(db)

	repo := source.NewRepository(db, source.DefaultRegistry(), cfg.Database.LedgerTable, cfg.Database.MaxRows, log)

	debug := strings.ToLower(cfg.Logging.Level) == "debug"
	progress := ui.NewProgressDisplay("", 0, debug)

	up, err := storage.New(&cfg.Storage, storage.Options{
		Limiter:  ratelimit.PerMinute(cfg.Storage.RequestsPerMinute),
		Progress: progress,
		Logger:   log,
	})
	if err != nil {
		return err
	}
	if c, ok := up.(storage.Connector); ok {
		if err := c.Connect(ctx); err != nil {
			return err
		}
	}

	ui.PrintInfo("Backend", cfg.Storage.Backend)
	ui.PrintInfo("Entities", strings.Join(cfg.Upload.Entities, ", "))

	m := migrator.New(migrator.Config{
		Source:   repo,
		Ledger:   store,
		Uploader: up,
		Progress: progress,
		Notifier: ui.NewNotifier(cfg.Notifications.Enabled, cfg.Notifications.OnComplete, cfg.Notifications.OnError),
		Logger:   log,
	})

	report, err := m.Run(ctx, migrator.Options{
		Entities:     cfg.Upload.Entities,
		Resume:       resumeRun,
		ForceRestart: forceRestart,
		ClearAfter:   cfg.Upload.ClearLedgerAfter,
		PersistAfter: cfg.Upload.PersistUploadedAfter,
	})
	printReport(report)
	return err
}

func printReport(report *migrator.Report) {
	if report == nil || len(report.Entities) == 0 || ui.IsQuietMode() {
		return
	}

	fmt.Printf("\n%s %s\n", ui.Magenta("Run"), ui.Dim(report.RunID))
	for _, e := range report.Entities {
		status := ui.Green("✓")
		if e.Err != nil {
			status = ui.Red("✗")
		}
		fmt.Printf("  %s %-10s %d/%d uploaded • %s • %s\n",
			status,
			e.Entity,
			e.Uploaded,
			e.Candidates,
			e.State,
			ui.FormatDuration(e.Duration),
		)
	}
	fmt.Printf("  %s %d files in %s\n", ui.Dim("•"), report.Uploaded(), ui.FormatDuration(report.Duration))
}

package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/burnoutdv/santonian-archive/internal/report"
	"github.com/burnoutdv/santonian-archive/internal/store"
	"github.com/burnoutdv/santonian-archive/internal/syncer"
	"github.com/burnoutdv/santonian-archive/internal/util"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Mirror every remote folder and log into the local archive",
	Long: `Walk the remote archive and store every text log locally.

For each remote folder this command:
1. Resolves the folder's remote id and registers it
2. Lists the folder's entries
3. Fetches every .LOG entry and stores it

Logs whose content did not change are only touched; changed logs get a
new revision. Audio entries are skipped. A failing folder or log is
retried, then skipped; the run carries on with the next item.`,
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().StringSlice("folder", nil, "only sync these folders (repeatable)")
	syncCmd.Flags().Bool("report", false, "write a Markdown summary next to the event log")
}

// signalContext is cancelled on Ctrl-C so a run stops between items
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	folders, _ := cmd.Flags().GetStringSlice("folder")
	writeReport, _ := cmd.Flags().GetBool("report")

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	logger := newEventLogger()
	defer logger.Close()

	s := syncer.New(&syncer.Config{
		Store:  db,
		Remote: appConfig.Remote,
		Logger: logger,
	})

	summary, err := s.Run(ctx, syncer.Options{Folders: folders})
	if err != nil && summary == nil {
		return err
	}

	util.InfoLog("")
	util.InfoLog("=== Sync Summary ===")
	util.InfoLog("Folders: %d seen, %d registered, %d failed",
		summary.FoldersSeen, summary.FoldersRegistered, summary.FoldersFailed)
	util.InfoLog("Logs: %d new, %d revised, %d unchanged, %d failed",
		summary.LogsInserted, summary.LogsRevised, summary.LogsUnchanged, summary.LogsFailed)
	if summary.AudioSkipped > 0 {
		util.InfoLog("Audio entries skipped: %d", summary.AudioSkipped)
	}
	util.InfoLog("Duration: %s", summary.Duration.Round(time.Millisecond))

	if writeReport && logger.Path() != "" {
		logger.Close()
		if reportErr := writeRunReport(db, logger.Path()); reportErr != nil {
			util.WarnLog("Failed to write report: %v", reportErr)
		}
	}

	return err
}

// writeRunReport renders the Markdown summary of one event log next to it
func writeRunReport(db *store.Store, eventLog string) error {
	summary, err := report.GenerateSummaryReport(db, eventLog)
	if err != nil {
		return err
	}
	summary.DatabasePath = appConfig.DBPath
	summary.Endpoint = appConfig.Remote.Endpoint

	out := strings.TrimSuffix(eventLog, filepath.Ext(eventLog)) + ".md"
	if err := report.WriteMarkdownReport(summary, out); err != nil {
		return err
	}
	util.SuccessLog("Report saved to: %s", out)
	return nil
}

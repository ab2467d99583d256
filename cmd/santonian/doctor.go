package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/burnoutdv/santonian-archive/internal/config"
	"github.com/burnoutdv/santonian-archive/internal/remote"
	"github.com/burnoutdv/santonian-archive/internal/store"
	"github.com/burnoutdv/santonian-archive/internal/util"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks on the archive and configuration",
	Long: `Run diagnostic checks to ensure santonian can operate correctly.

This command checks:
- SQLite version
- Database accessibility, integrity and referential integrity
- Event log directory permissions
- Disk space next to the database
- Remote reachability (with --remote)

Use this command to troubleshoot issues before a sync.`,
	RunE: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)

	doctorCmd.Flags().Bool("remote", false, "also check that the remote backend answers")
}

type checkResult struct {
	name    string
	message string
	error   bool
	warning bool
}

func runDoctor(cmd *cobra.Command, args []string) error {
	util.InfoLog("=== Santonian Doctor - System Diagnostics ===")
	util.InfoLog("")

	results := []checkResult{}

	results = append(results, checkSQLite())
	results = append(results, checkDatabase(appConfig.DBPath, appConfig.TablePrefix))
	results = append(results, checkEventsDirectory(appConfig.EventsDir))
	results = append(results, checkDiskSpace(filepath.Dir(appConfig.DBPath), "database"))

	if checkRemoteFlag, _ := cmd.Flags().GetBool("remote"); checkRemoteFlag {
		results = append(results, checkRemote(appConfig.Remote))
	}

	util.InfoLog("")
	util.InfoLog("=== Diagnostic Results ===")
	util.InfoLog("")

	hasErrors := false
	hasWarnings := false

	for _, r := range results {
		symbol := "✓"
		if r.error {
			symbol = "✗"
			hasErrors = true
		} else if r.warning {
			symbol = "⚠"
			hasWarnings = true
		}

		line := fmt.Sprintf("[%s] %s", symbol, r.name)
		if r.message != "" {
			line += fmt.Sprintf(": %s", r.message)
		}

		if r.error {
			util.ErrorLog("%s", line)
		} else if r.warning {
			util.WarnLog("%s", line)
		} else {
			util.SuccessLog("%s", line)
		}
	}

	util.InfoLog("")
	if hasErrors {
		util.ErrorLog("❌ Some critical checks failed. Please resolve errors before syncing.")
		return fmt.Errorf("system diagnostics failed")
	} else if hasWarnings {
		util.WarnLog("⚠️  Some checks produced warnings. Review them before proceeding.")
	} else {
		util.SuccessLog("✅ All checks passed! The archive is ready.")
	}

	return nil
}

// checkSQLite verifies the embedded SQLite answers
func checkSQLite() checkResult {
	version := store.SQLiteVersion()
	if version == "" {
		return checkResult{
			name:    "SQLite",
			error:   true,
			message: "unable to determine version",
		}
	}

	return checkResult{
		name:    "SQLite",
		message: fmt.Sprintf("version %s (built-in)", version),
	}
}

// checkDatabase verifies the archive opens and is consistent
func checkDatabase(dbPath, prefix string) checkResult {
	if dbPath == "" {
		return checkResult{
			name:    "Database",
			warning: true,
			message: "no database path specified (use --db flag or config)",
		}
	}

	info, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return checkResult{
				name:    "Database",
				message: fmt.Sprintf("%s (will be created on first run)", dbPath),
			}
		}
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("cannot access %s: %v", dbPath, err),
		}
	}

	if !info.Mode().IsRegular() {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("%s is not a regular file", dbPath),
		}
	}

	db, err := store.OpenWithOptions(dbPath, &store.OpenOptions{TablePrefix: prefix})
	if err != nil {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("cannot open %s: %v", dbPath, err),
		}
	}
	defer db.Close()

	if err := db.CheckIntegrity(); err != nil {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("integrity check failed: %v", err),
		}
	}

	violations, err := db.CheckForeignKeys()
	if err != nil {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("foreign key check failed: %v", err),
		}
	}
	if violations > 0 {
		return checkResult{
			name:    "Database",
			error:   true,
			message: fmt.Sprintf("%d rows reference missing folders, logs or tags", violations),
		}
	}

	folders, _ := db.CountFolders()
	logs, _ := db.Count()

	return checkResult{
		name:    "Database",
		message: fmt.Sprintf("%s (%s, %d folders, %d logs)", dbPath, humanize.Bytes(uint64(info.Size())), folders, logs),
	}
}

// checkEventsDirectory verifies event logs can be written
func checkEventsDirectory(path string) checkResult {
	if err := os.MkdirAll(path, 0755); err != nil {
		return checkResult{
			name:    "Event log directory",
			error:   true,
			message: fmt.Sprintf("cannot create %s: %v", path, err),
		}
	}

	testFile := filepath.Join(path, ".santonian_write_test")
	f, err := os.Create(testFile)
	if err != nil {
		return checkResult{
			name:    "Event log directory",
			error:   true,
			message: fmt.Sprintf("cannot write to %s: %v", path, err),
		}
	}
	f.Close()
	os.Remove(testFile)

	return checkResult{
		name:    "Event log directory",
		message: fmt.Sprintf("%s (writable)", path),
	}
}

// checkRemote asks the remote for its folder list once, without retries
func checkRemote(cfg config.RemoteConfig) checkResult {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	start := time.Now()
	folders, err := remote.NewClient(cfg).ListFolders(ctx)
	if err != nil {
		return checkResult{
			name:    "Remote",
			warning: true,
			message: fmt.Sprintf("%s did not answer: %v", cfg.Endpoint, err),
		}
	}

	return checkResult{
		name:    "Remote",
		message: fmt.Sprintf("%s (%d folders, %v)", cfg.Endpoint, len(folders), time.Since(start).Round(time.Millisecond)),
	}
}

// checkDiskSpace verifies available disk space
func checkDiskSpace(path string, label string) checkResult {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return checkResult{
			name:    fmt.Sprintf("Disk space (%s)", label),
			warning: true,
			message: fmt.Sprintf("cannot determine disk space: %v", err),
		}
	}

	availBytes := stat.Bavail * uint64(stat.Bsize)

	// Audio clips are at most 16 MiB; warn well before a large import could fail
	warning := availBytes < 1<<30
	warningMsg := ""
	if warning {
		warningMsg = " (low space!)"
	}

	return checkResult{
		name:    fmt.Sprintf("Disk space (%s)", label),
		warning: warning,
		message: fmt.Sprintf("%s available%s", humanize.Bytes(availBytes), warningMsg),
	}
}

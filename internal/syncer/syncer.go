// Package syncer mirrors the remote archive into the local store.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/burnoutdv/santonian-archive/internal/config"
	"github.com/burnoutdv/santonian-archive/internal/remote"
	"github.com/burnoutdv/santonian-archive/internal/report"
	"github.com/burnoutdv/santonian-archive/internal/store"
	"github.com/burnoutdv/santonian-archive/internal/util"
)

// Syncer walks every remote folder and feeds its logs to the store
type Syncer struct {
	store  *store.Store
	client *remote.Client
	retry  *util.RetryConfig
	logger *report.EventLogger
}

// Config holds syncer configuration
type Config struct {
	Store  *store.Store
	Client *remote.Client
	Remote config.RemoteConfig
	Logger *report.EventLogger
}

// Options restricts a single run
type Options struct {
	// Folders limits the run to these names (case-insensitive). Empty means all.
	Folders []string
}

// Summary counts what one run did
type Summary struct {
	FoldersSeen       int
	FoldersRegistered int
	FoldersFailed     int
	LogsInserted      int
	LogsUnchanged     int
	LogsRevised       int
	LogsFailed        int
	AudioSkipped      int
	Duration          time.Duration
	Errors            []error
}

// Counters flattens the summary for the run_end event
func (s *Summary) Counters() map[string]int {
	return map[string]int{
		"folders_seen":       s.FoldersSeen,
		"folders_registered": s.FoldersRegistered,
		"folders_failed":     s.FoldersFailed,
		"logs_inserted":      s.LogsInserted,
		"logs_unchanged":     s.LogsUnchanged,
		"logs_revised":       s.LogsRevised,
		"logs_failed":        s.LogsFailed,
		"audio_skipped":      s.AudioSkipped,
	}
}

// New creates a new Syncer
func New(cfg *Config) *Syncer {
	client := cfg.Client
	if client == nil {
		client = remote.NewClient(cfg.Remote)
	}
	return &Syncer{
		store:  cfg.Store,
		client: client,
		retry:  util.FixedRetryConfig(cfg.Remote.Retries, cfg.Remote.RetryWait),
		logger: cfg.Logger,
	}
}

// Run performs one full synchronization pass.
// Only a failure to list the remote folders aborts the run; every other
// failure is counted and the pass moves on to the next item.
func (s *Syncer) Run(ctx context.Context, opts Options) (*Summary, error) {
	start := time.Now()
	summary := &Summary{Errors: make([]error, 0)}

	s.logger.LogRunStart("sync", map[string]string{"endpoint": s.client.Endpoint()})
	util.InfoLog("Starting sync from: %s", s.client.Endpoint())

	folders, err := util.RetryWithBackoff(s.retry, func() ([]string, error) {
		return s.client.ListFolders(ctx)
	}, "list folders")
	if err != nil {
		s.logger.LogError(report.EventError, "list folders", err)
		return nil, fmt.Errorf("failed to list remote folders: %w", err)
	}

	folders = filterFolders(folders, opts.Folders)
	util.InfoLog("Remote lists %d folders", len(folders))

	isTTY := util.IsTerminal(os.Stdout.Fd())
	var bar *progressbar.ProgressBar
	if isTTY && !util.IsQuiet() {
		bar = progressbar.NewOptions(len(folders),
			progressbar.OptionSetDescription("Syncing"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionSetItsString("folders"),
			progressbar.OptionThrottle(200*time.Millisecond),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetRenderBlankState(true),
		)
	}

	for _, name := range folders {
		if err := ctx.Err(); err != nil {
			summary.Errors = append(summary.Errors, err)
			break
		}

		s.syncFolder(ctx, name, summary)

		if bar != nil {
			bar.Describe(fmt.Sprintf("Syncing %s | %d new | %d revised", name, summary.LogsInserted, summary.LogsRevised))
			bar.Add(1)
		} else {
			util.DebugLog("Progress: %d/%d folders", summary.FoldersSeen, len(folders))
		}
	}

	if bar != nil {
		bar.Finish()
	}

	summary.Duration = time.Since(start)
	s.logger.LogRunEnd(summary.Duration, summary.Counters())

	now := time.Now().UTC().Format(time.RFC3339)
	if err := s.store.SetStat(store.StatLastSync, now); err != nil {
		util.WarnLog("Failed to record last sync: %v", err)
	}
	if runID := s.logger.RunID(); runID != "" {
		if err := s.store.SetStat(store.StatLastSyncRun, runID); err != nil {
			util.WarnLog("Failed to record last sync run: %v", err)
		}
	}

	util.SuccessLog("Sync complete: %d folders, %d new logs, %d revised, %d unchanged, %d failed",
		summary.FoldersSeen, summary.LogsInserted, summary.LogsRevised, summary.LogsUnchanged,
		summary.FoldersFailed+summary.LogsFailed)

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

func (s *Syncer) syncFolder(ctx context.Context, name string, summary *Summary) {
	summary.FoldersSeen++

	id, err := util.RetryWithBackoff(s.retry, func() (int64, error) {
		return s.client.FolderID(ctx, name)
	}, "folder id "+name)
	if err != nil {
		s.failFolder(name, 0, err, summary)
		return
	}

	reg, err := s.store.RegisterFolder(name, id)
	if err != nil {
		s.failFolder(name, id, err, summary)
		return
	}
	summary.FoldersRegistered++
	s.logger.LogFolder(name, id, reg.Outcome.String(), nil)
	util.DebugLog("Folder %s (#%d): %s", name, id, reg.Outcome)

	entries, err := util.RetryWithBackoff(s.retry, func() ([]string, error) {
		return s.client.FolderContent(ctx, id)
	}, "folder content "+name)
	if err != nil {
		util.WarnLog("Skipping content of %s: %v", name, err)
		s.logger.LogError(report.EventError, name, err)
		summary.Errors = append(summary.Errors, err)
		return
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}
		if !remote.IsLogEntry(entry) {
			summary.AudioSkipped++
			s.logger.LogAudioSkip(name, entry)
			util.DebugLog("Skipping %s/%s: %v", name, entry, util.ErrUnsupported)
			continue
		}
		s.syncLog(ctx, name, reg.FolderID, entry, summary)
	}
}

// syncLog archives one entry into the folder row with surrogate key folderKey
func (s *Syncer) syncLog(ctx context.Context, folder string, folderKey int64, entry string, summary *Summary) {
	start := time.Now()
	base, _ := remote.SplitEntryName(entry)

	body, err := util.RetryWithBackoff(s.retry, func() (string, error) {
		return s.client.ReadLog(ctx, base)
	}, "read "+entry)
	if err == nil {
		var res *store.IngestResult
		res, err = s.store.IngestText(entry, body, store.ByKey(folderKey))
		if err == nil {
			s.countIngest(res.Outcome, summary)
			s.logger.LogIngest(folder, entry, res.Revision, res.Outcome.String(), res.Hash, time.Since(start), nil)
			return
		}
	}

	summary.LogsFailed++
	summary.Errors = append(summary.Errors, fmt.Errorf("%s/%s: %w", folder, entry, err))
	s.logger.LogIngest(folder, entry, 0, "", "", time.Since(start), err)
	if errors.Is(err, util.ErrNotFound) {
		util.WarnLog("Remote lists %s/%s but has no such item", folder, entry)
	} else {
		util.ErrorLog("Failed to archive %s/%s: %v", folder, entry, err)
	}
}

func (s *Syncer) failFolder(name string, id int64, err error, summary *Summary) {
	summary.FoldersFailed++
	summary.Errors = append(summary.Errors, fmt.Errorf("folder %s: %w", name, err))
	s.logger.LogFolder(name, id, "", err)
	util.ErrorLog("Failed to register folder %s: %v", name, err)
}

func (s *Syncer) countIngest(outcome store.IngestOutcome, summary *Summary) {
	switch outcome {
	case store.IngestInserted:
		summary.LogsInserted++
	case store.IngestRevised:
		summary.LogsRevised++
	default:
		summary.LogsUnchanged++
	}
}

func filterFolders(all, only []string) []string {
	if len(only) == 0 {
		return all
	}
	want := make(map[string]bool, len(only))
	for _, name := range only {
		want[strings.ToUpper(name)] = true
	}
	out := make([]string, 0, len(only))
	for _, name := range all {
		if want[strings.ToUpper(name)] {
			out = append(out, name)
		}
	}
	return out
}

package report

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/burnoutdv/santonian-archive/internal/store"
)

// SummaryReport represents a complete summary of one batch run
type SummaryReport struct {
	GeneratedAt time.Time
	RunID       string
	Kind        string
	Duration    time.Duration

	// Folder statistics
	FoldersSeen      int
	FoldersCreated   int
	FoldersConfirmed int
	FoldersKnown     int
	FoldersFailed    int

	// Log statistics
	LogsInserted  int
	LogsUnchanged int
	LogsRevised   int
	LogsFailed    int
	AudioSkipped  int

	// Tagging statistics
	DateTagsAssigned int

	// Archive totals after the run
	TotalFolders int
	TotalLogs    int
	TotalTags    int

	// Details
	TopErrors []ErrorSummary
	Revised   []string

	// Metadata
	Endpoint     string
	DatabasePath string
	EventLogPath string
}

// ErrorSummary represents an error with its count
type ErrorSummary struct {
	Error string
	Count int
}

// ReadEvents loads every event of a JSONL event log
func ReadEvents(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for line := 1; scanner.Scan(); line++ {
		if len(strings.TrimSpace(scanner.Text())) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("event log %s line %d: %w", path, line, err)
		}
		events = append(events, e)
	}
	return events, scanner.Err()
}

// GenerateSummaryReport creates a summary report from the event log of one
// run and the archive totals in the database
func GenerateSummaryReport(db *store.Store, eventLogPath string) (*SummaryReport, error) {
	report := &SummaryReport{
		GeneratedAt:  time.Now(),
		EventLogPath: eventLogPath,
		TopErrors:    make([]ErrorSummary, 0),
	}

	events, err := ReadEvents(eventLogPath)
	if err != nil {
		return nil, err
	}

	errorCounts := make(map[string]int)
	for _, e := range events {
		if report.RunID == "" {
			report.RunID = e.RunID
		}
		if e.Error != "" {
			errorCounts[e.Error]++
		}

		switch e.Event {
		case EventRunStart:
			report.Kind = e.Extra["kind"]
		case EventRunEnd:
			report.Duration = time.Duration(e.Duration) * time.Millisecond
		case EventFolder:
			report.FoldersSeen++
			switch {
			case e.Error != "":
				report.FoldersFailed++
			case e.Outcome == store.RegisterCreated.String():
				report.FoldersCreated++
			case e.Outcome == store.RegisterConfirmed.String():
				report.FoldersConfirmed++
			default:
				report.FoldersKnown++
			}
		case EventLog:
			switch {
			case e.Error != "":
				report.LogsFailed++
			case e.Outcome == store.IngestInserted.String():
				report.LogsInserted++
			case e.Outcome == store.IngestRevised.String():
				report.LogsRevised++
				report.Revised = append(report.Revised, fmt.Sprintf("%s (rev %d)", e.Log, e.Revision))
			default:
				report.LogsUnchanged++
			}
		case EventAudioSkip:
			report.AudioSkipped++
		case EventDateTag:
			report.DateTagsAssigned++
		}
	}
	report.TopErrors = topErrors(errorCounts, 10)

	if db != nil {
		report.TotalFolders, _ = db.CountFolders()
		report.TotalLogs, _ = db.Count()
		if tags, err := db.ListTags(""); err == nil {
			report.TotalTags = len(tags)
		}
	}

	return report, nil
}

func topErrors(counts map[string]int, limit int) []ErrorSummary {
	errors := make([]ErrorSummary, 0, len(counts))
	for err, count := range counts {
		errors = append(errors, ErrorSummary{Error: err, Count: count})
	}

	sort.Slice(errors, func(i, j int) bool {
		if errors[i].Count != errors[j].Count {
			return errors[i].Count > errors[j].Count
		}
		return errors[i].Error < errors[j].Error
	})

	if len(errors) > limit {
		errors = errors[:limit]
	}
	return errors
}

// WriteMarkdownReport writes the summary report as Markdown
func WriteMarkdownReport(report *SummaryReport, outputPath string) error {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	var md strings.Builder

	md.WriteString("# Santonian Archive - Run Summary\n\n")
	md.WriteString(fmt.Sprintf("**Generated:** %s\n\n", report.GeneratedAt.Format("2006-01-02 15:04:05")))
	if report.RunID != "" {
		md.WriteString(fmt.Sprintf("**Run:** `%s`", report.RunID))
		if report.Kind != "" {
			md.WriteString(fmt.Sprintf(" (%s)", report.Kind))
		}
		md.WriteString("\n\n")
	}
	if report.Endpoint != "" {
		md.WriteString(fmt.Sprintf("**Remote:** `%s`\n\n", report.Endpoint))
	}
	if report.DatabasePath != "" {
		md.WriteString(fmt.Sprintf("**Database:** `%s`\n\n", report.DatabasePath))
	}
	if report.EventLogPath != "" {
		md.WriteString(fmt.Sprintf("**Event Log:** `%s`\n\n", report.EventLogPath))
	}

	md.WriteString("---\n\n")

	if report.FoldersSeen > 0 {
		md.WriteString("## 📁 Folders\n\n")
		md.WriteString("| Metric | Value |\n")
		md.WriteString("|--------|-------|\n")
		md.WriteString(fmt.Sprintf("| Seen | %d |\n", report.FoldersSeen))
		md.WriteString(fmt.Sprintf("| Created | %d |\n", report.FoldersCreated))
		if report.FoldersConfirmed > 0 {
			md.WriteString(fmt.Sprintf("| Placeholders Confirmed | %d |\n", report.FoldersConfirmed))
		}
		md.WriteString(fmt.Sprintf("| Already Known | %d |\n", report.FoldersKnown))
		if report.FoldersFailed > 0 {
			md.WriteString(fmt.Sprintf("| Failed | %d |\n", report.FoldersFailed))
		}
		md.WriteString("\n")
	}

	logsTouched := report.LogsInserted + report.LogsUnchanged + report.LogsRevised + report.LogsFailed
	if logsTouched > 0 || report.AudioSkipped > 0 {
		md.WriteString("## 📄 Logs\n\n")
		md.WriteString("| Metric | Value |\n")
		md.WriteString("|--------|-------|\n")
		md.WriteString(fmt.Sprintf("| Inserted | %d |\n", report.LogsInserted))
		md.WriteString(fmt.Sprintf("| Unchanged | %d |\n", report.LogsUnchanged))
		md.WriteString(fmt.Sprintf("| New Revisions | %d |\n", report.LogsRevised))
		if report.LogsFailed > 0 {
			md.WriteString(fmt.Sprintf("| Failed | %d |\n", report.LogsFailed))
		}
		if report.AudioSkipped > 0 {
			md.WriteString(fmt.Sprintf("| Audio Skipped | %d |\n", report.AudioSkipped))
		}
		md.WriteString("\n")
	}

	if report.DateTagsAssigned > 0 {
		md.WriteString("## 🏷️ Tagging\n\n")
		md.WriteString(fmt.Sprintf("%s date tags assigned.\n\n", humanize.Comma(int64(report.DateTagsAssigned))))
	}

	md.WriteString("## 📊 Archive\n\n")
	md.WriteString("| Metric | Value |\n")
	md.WriteString("|--------|-------|\n")
	md.WriteString(fmt.Sprintf("| Folders | %s |\n", humanize.Comma(int64(report.TotalFolders))))
	md.WriteString(fmt.Sprintf("| Logs | %s |\n", humanize.Comma(int64(report.TotalLogs))))
	md.WriteString(fmt.Sprintf("| Tags | %s |\n", humanize.Comma(int64(report.TotalTags))))
	if report.Duration > 0 {
		md.WriteString(fmt.Sprintf("| Run Time | %s |\n", report.Duration.Round(time.Second)))
	}
	md.WriteString("\n")

	if len(report.Revised) > 0 {
		md.WriteString("## 🔁 Changed Logs\n\n")
		for _, r := range report.Revised {
			md.WriteString(fmt.Sprintf("- `%s`\n", r))
		}
		md.WriteString("\n")
	}

	if len(report.TopErrors) > 0 {
		md.WriteString("## ⚠️ Top Errors\n\n")
		md.WriteString("| Count | Error |\n")
		md.WriteString("|-------|-------|\n")
		for _, err := range report.TopErrors {
			md.WriteString(fmt.Sprintf("| %d | %s |\n", err.Count, strings.ReplaceAll(err.Error, "|", "\\|")))
		}
		md.WriteString("\n")
	}

	md.WriteString("---\n\n")
	md.WriteString("*Generated by santonian-archive*\n")

	if err := os.WriteFile(outputPath, []byte(md.String()), 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	return nil
}

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/burnoutdv/santonian-archive/internal/report"
	"github.com/burnoutdv/santonian-archive/internal/store"
	"github.com/burnoutdv/santonian-archive/internal/util"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show archive totals and bookkeeping properties",
	RunE:  runStats,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Dump folders, tags and stats as YAML",
	Long: `Dump the archive's folders, tags and stats as YAML, to stdout or --out.
Log bodies are not included.`,
	RunE: runExport,
}

var reportCmd = &cobra.Command{
	Use:   "report <event-log>",
	Short: "Write a Markdown summary of one batch run",
	Long: `Write a Markdown summary of a sync or date-tag run from its event log.
The report is saved to artifacts/reports/<timestamp>/summary.md unless
--out is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runReport,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(reportCmd)

	exportCmd.Flags().String("out", "", "write to this file instead of stdout")
	reportCmd.Flags().String("out", "", "output directory for the report")
}

func runStats(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	folders, _ := db.CountFolders()
	logs, _ := db.Count()
	tags, _ := db.ListTags("")

	util.InfoLog("=== Archive Statistics ===")
	util.InfoLog("Database: %s", appConfig.DBPath)
	if info, err := os.Stat(appConfig.DBPath); err == nil {
		util.InfoLog("Size: %s", humanize.Bytes(uint64(info.Size())))
	}
	util.InfoLog("Folders: %s", humanize.Comma(int64(folders)))
	util.InfoLog("Logs: %s", humanize.Comma(int64(logs)))
	util.InfoLog("Tags: %s", humanize.Comma(int64(len(tags))))
	util.InfoLog("")

	stats, err := db.ListStats()
	if err != nil {
		return err
	}
	for _, s := range stats {
		value := s.Value
		if t, err := time.Parse(time.RFC3339, s.Value); err == nil {
			value = fmt.Sprintf("%s (%s)", s.Value, humanize.Time(t))
		}
		util.InfoLog("  %-16s %s", s.Property, value)
	}
	return nil
}

// archiveExport is the YAML document written by export
type archiveExport struct {
	Generated time.Time         `yaml:"generated"`
	Folders   []exportFolder    `yaml:"folders"`
	Tags      []exportTag       `yaml:"tags"`
	Stats     map[string]string `yaml:"stats"`
}

type exportFolder struct {
	Name        string    `yaml:"name"`
	ExternalID  int64     `yaml:"external_id"`
	Placeholder bool      `yaml:"placeholder,omitempty"`
	FirstEntry  time.Time `yaml:"first_entry"`
	LastCheck   time.Time `yaml:"last_check"`
}

type exportTag struct {
	Name  string `yaml:"name"`
	Type  string `yaml:"type"`
	Links int    `yaml:"links"`
}

func buildExport(db *store.Store) (*archiveExport, error) {
	doc := &archiveExport{Generated: time.Now().UTC(), Stats: map[string]string{}}

	const page = 500
	for offset := 0; ; offset += page {
		folders, err := db.ListFolders(store.ListOptions{Offset: offset, Limit: page, OrderField: "uid"})
		if err != nil {
			return nil, err
		}
		for _, f := range folders {
			doc.Folders = append(doc.Folders, exportFolder{
				Name:        f.Name,
				ExternalID:  f.ExternalID,
				Placeholder: f.Placeholder,
				FirstEntry:  f.FirstEntry,
				LastCheck:   f.LastCheck,
			})
		}
		if len(folders) < page {
			break
		}
	}

	tags, err := db.ListTags("")
	if err != nil {
		return nil, err
	}
	for _, t := range tags {
		doc.Tags = append(doc.Tags, exportTag{Name: t.Name, Type: string(t.Type), Links: t.Links})
	}

	stats, err := db.ListStats()
	if err != nil {
		return nil, err
	}
	for _, s := range stats {
		doc.Stats[s.Property] = s.Value
	}
	return doc, nil
}

func runExport(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	doc, err := buildExport(db)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal export: %w", err)
	}

	out, _ := cmd.Flags().GetString("out")
	if out == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(out, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", out, err)
	}
	util.SuccessLog("Exported %d folders and %d tags to %s", len(doc.Folders), len(doc.Tags), out)
	return nil
}

func runReport(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	summary, err := report.GenerateSummaryReport(db, args[0])
	if err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}
	summary.DatabasePath = appConfig.DBPath
	summary.Endpoint = appConfig.Remote.Endpoint

	outputDir, _ := cmd.Flags().GetString("out")
	if outputDir == "" {
		outputDir = filepath.Join(appConfig.EventsDir, "reports", time.Now().Format("20060102-150405"))
	}
	outputPath := filepath.Join(outputDir, "summary.md")

	if err := report.WriteMarkdownReport(summary, outputPath); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	util.SuccessLog("Report saved to: %s", outputPath)
	util.InfoLog("  Folders seen: %d (%d failed)", summary.FoldersSeen, summary.FoldersFailed)
	util.InfoLog("  Logs: %d new, %d revised, %d unchanged", summary.LogsInserted, summary.LogsRevised, summary.LogsUnchanged)
	if summary.LogsFailed > 0 {
		util.WarnLog("  Failed logs: %d", summary.LogsFailed)
	}
	if summary.DateTagsAssigned > 0 {
		util.InfoLog("  Date tags: %d", summary.DateTagsAssigned)
	}
	return nil
}

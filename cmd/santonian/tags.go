package main

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/burnoutdv/santonian-archive/internal/report"
	"github.com/burnoutdv/santonian-archive/internal/store"
	"github.com/burnoutdv/santonian-archive/internal/util"
)

var tagCmd = &cobra.Command{
	Use:   "tag <log> <tag>",
	Short: "Link a tag to a log",
	Long: `Link an existing tag to a log. The log name must match exactly; the
stored spelling with the same case wins, otherwise case is ignored. The
link covers every revision of the log.
Use --create to declare the tag first.`,
	Args: cobra.ExactArgs(2),
	RunE: runTag,
}

var createTagCmd = &cobra.Command{
	Use:   "create-tag <name> [type]",
	Short: "Create a tag or change its type",
	Long: `Create a tag, or change the type of an existing one.
Types are name, date and entity; anything else is stored as name.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runCreateTag,
}

var tagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "List tags with their link counts",
	RunE:  runTags,
}

var procCmd = &cobra.Command{
	Use:   "proc",
	Short: "Run a batch procedure over the archive",
}

var dateTagCmd = &cobra.Command{
	Use:   "date-tag",
	Short: "Tag every undated log with the first date found in its text",
	Long: `Scan every log without a date tag for a date and tag it.

Recognized forms, in order of precedence:
  9/25/43, May 2049, March 18 2053, March 18th, 2053, Mar 18th 2053,
  531008 092419 (YYMMDD HHMMSS)

Logs without a recognizable date are left untouched and checked again
on the next run.`,
	RunE: runDateTag,
}

func init() {
	rootCmd.AddCommand(tagCmd)
	rootCmd.AddCommand(createTagCmd)
	rootCmd.AddCommand(tagsCmd)
	rootCmd.AddCommand(procCmd)
	procCmd.AddCommand(dateTagCmd)

	tagCmd.Flags().String("create", "", "create the tag with this type before linking")
	tagsCmd.Flags().String("type", "", "only list tags of this type")
}

func runTag(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	logName, tagName := args[0], args[1]

	if typ, _ := cmd.Flags().GetString("create"); cmd.Flags().Changed("create") {
		if _, err := db.CreateOrUpdateTag(tagName, typ); err != nil {
			return err
		}
	}

	linked, err := db.LinkTag(logName, tagName)
	switch {
	case errors.Is(err, store.ErrTagNotFound):
		return fmt.Errorf("no tag named %s (create it with create-tag or --create)", tagName)
	case errors.Is(err, store.ErrLogNotFound):
		return fmt.Errorf("no log named %s", logName)
	case err != nil:
		return err
	}

	if !linked {
		util.WarnLog("%s is already tagged %s", logName, tagName)
		return nil
	}
	util.SuccessLog("Tagged %s with %s", logName, tagName)
	return nil
}

func runCreateTag(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	typ := ""
	if len(args) == 2 {
		typ = args[1]
	}

	tag, err := db.CreateOrUpdateTag(args[0], typ)
	if err != nil {
		return err
	}
	if tag == nil {
		util.InfoLog("Tag %s already exists with type %s", args[0], store.ParseTagType(typ))
		return nil
	}
	util.SuccessLog("Tag %s: %s", tag.Name, tag.Type)
	return nil
}

func runTags(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	var typ store.TagType
	if s, _ := cmd.Flags().GetString("type"); s != "" {
		typ = store.ParseTagType(s)
	}

	tags, err := db.ListTags(typ)
	if err != nil {
		return err
	}
	for _, t := range tags {
		fmt.Printf("%-24s %-7s %d\n", util.Truncate(t.Name, 24), t.Type, t.Links)
	}
	fmt.Printf("\n%d tags\n", len(tags))
	return nil
}

func runDateTag(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	logger := newEventLogger()
	defer logger.Close()

	start := time.Now()
	logger.LogRunStart("date-tag", nil)

	tagged, err := db.AutoTagDates()
	if err != nil {
		logger.LogError(report.EventError, "date-tag", err)
		return fmt.Errorf("date tagging failed: %w", err)
	}

	names := make([]string, 0, len(tagged))
	for name := range tagged {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		logger.LogDateTag(name, tagged[name])
		util.DebugLog("%s -> %s", name, tagged[name])
	}

	logger.LogRunEnd(time.Since(start), map[string]int{"date_tags_assigned": len(tagged)})
	if err := db.SetStat(store.StatLastDateTag, time.Now().UTC().Format(time.RFC3339)); err != nil {
		util.WarnLog("Failed to record last date tag run: %v", err)
	}

	util.SuccessLog("Date tagging complete: %d logs tagged", len(tagged))
	return nil
}

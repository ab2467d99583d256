package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/burnoutdv/santonian-archive/internal/store"
	"github.com/burnoutdv/santonian-archive/internal/util"
)

var foldersCmd = &cobra.Command{
	Use:   "folders",
	Short: "List the archived folders",
	Long: `List the archived folders with their remote ids.

Folders created on demand for logs of an unknown folder carry a
placeholder id above 100000 until a sync confirms their real id.`,
	RunE: runFolders,
}

var listCmd = &cobra.Command{
	Use:   "list [folder]",
	Short: "List archived logs, optionally of one folder",
	Long: `List archived logs.

With a folder name (or "*" for all folders) the log names are listed page
by page. Without one, every stored revision is listed with --order,
--desc and --tags. Ordering by "tag_date" lists dated logs in date order.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runList,
}

var readCmd = &cobra.Command{
	Use:   "read <name>",
	Short: "Print a log",
	Long: `Print a log. The name is matched as a case-insensitive substring; when
several logs or revisions match, they are listed instead, newest revision
first. With --revision the name must match exactly.`,
	Args: cobra.ExactArgs(1),
	RunE: runRead,
}

func init() {
	rootCmd.AddCommand(foldersCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(readCmd)

	for _, cmd := range []*cobra.Command{foldersCmd, listCmd} {
		cmd.Flags().Int("limit", store.DefaultListLimit, "maximum rows to show")
		cmd.Flags().Int("offset", 0, "rows to skip")
		cmd.Flags().String("order", "uid", "field to order by")
		cmd.Flags().Bool("desc", false, "order descending")
	}
	listCmd.Flags().Bool("tags", false, "show the tags of each log")
	listCmd.Flags().Int("page", 0, "page to show when listing a folder (from 0)")

	readCmd.Flags().IntP("revision", "r", -1, "revision to print (default newest)")
	readCmd.Flags().String("out", "", "write an audio log's clip to this file")
}

func listOptions(cmd *cobra.Command) store.ListOptions {
	limit, _ := cmd.Flags().GetInt("limit")
	offset, _ := cmd.Flags().GetInt("offset")
	order, _ := cmd.Flags().GetString("order")
	desc, _ := cmd.Flags().GetBool("desc")
	return store.ListOptions{Offset: offset, Limit: limit, OrderField: order, Descending: desc}
}

func runFolders(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	folders, err := db.ListFolders(listOptions(cmd))
	if err != nil {
		return err
	}
	total, _ := db.CountFolders()

	fmt.Printf("%-6s %-24s %-10s %-20s\n", "UID", "NAME", "REMOTE ID", "LAST CHECK")
	for _, f := range folders {
		id := fmt.Sprintf("%d", f.ExternalID)
		if f.Placeholder {
			id += "*"
		}
		fmt.Printf("%-6d %-24s %-10s %-20s\n", f.ID, util.Truncate(f.Name, 24), id, f.LastCheck.Format("2006-01-02 15:04:05"))
	}
	fmt.Println()
	fmt.Printf("%d of %d folders (* = placeholder id)\n", len(folders), total)
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	if len(args) == 1 {
		if args[0] != "*" {
			folder, err := db.GetFolder(store.ByName(args[0]))
			if err != nil {
				return err
			}
			if folder == nil {
				return fmt.Errorf("no folder named %s", args[0])
			}
		}

		page, _ := cmd.Flags().GetInt("page")
		limit, _ := cmd.Flags().GetInt("limit")
		names, err := db.ListByFolder(args[0], page, limit)
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Println(name)
		}
		if len(names) == 0 {
			util.WarnLog("No logs on page %d of %s", page, args[0])
		}
		return nil
	}

	opts := listOptions(cmd)
	opts.IncludeTags, _ = cmd.Flags().GetBool("tags")

	logs, err := db.ListLogs(opts)
	if err != nil {
		return err
	}
	total, _ := db.Count()

	width := util.GetTerminalWidth()
	for _, l := range logs {
		line := fmt.Sprintf("%-20s r%-3d %-14s", l.Name, l.Revision, l.FolderName)
		if l.Tags != nil {
			line += " [" + strings.Join(l.Tags, ", ") + "]"
		}
		fmt.Println(util.Truncate(line, width))
	}
	fmt.Println()
	fmt.Printf("%d rows, %d distinct logs archived\n", len(logs), total)
	return nil
}

func runRead(cmd *cobra.Command, args []string) error {
	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	out, _ := cmd.Flags().GetString("out")
	if cmd.Flags().Changed("revision") || out != "" {
		rev, _ := cmd.Flags().GetInt("revision")
		rec, err := db.GetRevision(args[0], rev)
		if errors.Is(err, util.ErrNotFound) {
			revs, _ := db.Revisions(args[0])
			if len(revs) == 0 {
				return fmt.Errorf("no log named %s", args[0])
			}
			return fmt.Errorf("%s has no revision %d (stored: %s)", args[0], rev, joinInts(revs))
		}
		if err != nil {
			return err
		}
		return printLog(rec, out)
	}

	matches, err := db.Get(args[0])
	if errors.Is(err, util.ErrNotFound) {
		return fmt.Errorf("no log matches %q", args[0])
	}
	if err != nil {
		return err
	}

	if len(matches) == 1 {
		rec := matches[0]
		if rec.Audio {
			// listings carry no audio payload
			if rec, err = db.GetRevision(rec.Name, rec.Revision); err != nil {
				return err
			}
		}
		return printLog(rec, "")
	}

	util.InfoLog("%d matches for %q, newest revision first:", len(matches), args[0])
	for _, m := range matches {
		fmt.Printf("  %-20s r%-3d %s\n", m.Name, m.Revision, m.FolderName)
	}
	return nil
}

func printLog(rec *store.LogRecord, out string) error {
	fmt.Printf("%s (revision %d) in %s\n", rec.Name, rec.Revision, rec.FolderName)
	fmt.Printf("First seen %s, last checked %s\n",
		humanize.Time(rec.FirstEntry), humanize.Time(rec.LastCheck))
	if len(rec.Tags) > 0 {
		fmt.Printf("Tags: %s\n", strings.Join(rec.Tags, ", "))
	}
	fmt.Println()

	if !rec.Audio {
		fmt.Println(rec.Content)
		return nil
	}

	fmt.Printf("Audio clip, %s, hash %s\n", humanize.Bytes(uint64(len(rec.AudioData))), rec.Hash)
	if out == "" {
		return nil
	}
	if err := os.WriteFile(out, rec.AudioData, 0644); err != nil {
		return fmt.Errorf("failed to write clip: %w", err)
	}
	hash, err := util.FingerprintFile(out)
	if err != nil {
		return err
	}
	if hash != rec.Hash {
		return fmt.Errorf("clip written to %s does not match the archived fingerprint", out)
	}
	util.SuccessLog("Clip written to %s", out)
	return nil
}

func joinInts(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ", ")
}

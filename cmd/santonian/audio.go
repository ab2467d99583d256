package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/burnoutdv/santonian-archive/internal/audio"
	"github.com/burnoutdv/santonian-archive/internal/store"
	"github.com/burnoutdv/santonian-archive/internal/util"
)

var importAudioCmd = &cobra.Command{
	Use:   "import-audio <file>...",
	Short: "Archive local audio clips as audio logs",
	Long: fmt.Sprintf(`Archive local audio clips (up to %d MiB each) as audio logs.

The log name defaults to the upper-cased file name. Each clip is
fingerprinted; importing an unchanged clip only touches it, a changed
clip becomes a new revision. Give the owning folder with --folder (name)
or --folder-id (remote id).`, audio.MaxClipSize>>20),
	Args: cobra.MinimumNArgs(1),
	RunE: runImportAudio,
}

func init() {
	rootCmd.AddCommand(importAudioCmd)

	importAudioCmd.Flags().String("name", "", "log name (only with a single file)")
	importAudioCmd.Flags().String("folder", "", "owning folder name")
	importAudioCmd.Flags().Int64("folder-id", 0, "owning folder remote id")
}

func runImportAudio(cmd *cobra.Command, args []string) error {
	name, _ := cmd.Flags().GetString("name")
	folderName, _ := cmd.Flags().GetString("folder")
	folderID, _ := cmd.Flags().GetInt64("folder-id")

	if name != "" && len(args) > 1 {
		return fmt.Errorf("--name can only be used with a single file")
	}

	var folder store.FolderRef
	switch {
	case folderID != 0 && folderName != "":
		return fmt.Errorf("use either --folder or --folder-id")
	case folderID != 0:
		folder = store.ByExternalID(folderID)
	case folderName != "":
		folder = store.ByName(folderName)
	default:
		return fmt.Errorf("an owning folder is required (--folder or --folder-id)")
	}

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	failed := 0
	for _, path := range args {
		if _, _, err := audio.Import(db, path, name, folder); err != nil {
			util.ErrorLog("%v", err)
			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d clips failed to import", failed, len(args))
	}
	util.SuccessLog("Imported %d clips into %s", len(args), folder)
	return nil
}

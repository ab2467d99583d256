package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/burnoutdv/santonian-archive/internal/mirror"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the local archive under the remote backend's URLs",
	Long: `Serve the local archive over HTTP with the same endpoints and JSON
shapes as the remote backend:

  /backend/hdd                 folder names
  /backend/hdd_details/{name}  remote id of a folder
  /backend/file/{id}           log names of a folder
  /backend/readFile/{name}     newest text of a log (name without extension)`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("listen", "", "listen address (default from mirror.listen)")
	viper.BindPFlag("mirror.listen", serveCmd.Flags().Lookup("listen"))
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	db, err := openStore()
	if err != nil {
		return err
	}
	defer db.Close()

	return mirror.New(db, appConfig.Mirror).ListenAndServe(ctx)
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/burnoutdv/santonian-archive/internal/config"
	"github.com/burnoutdv/santonian-archive/internal/util"
)

var (
	// Version is set at build time
	Version = "dev"

	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "santonian",
		Short: "Santonian Archive - mirror and tag the Santonian logs locally",
		Long: `santonian keeps a local, revisioned copy of the Santonian Industries log
archive. It walks the remote folders, stores every log with its content
hash and revision history, and lets you search, read and tag the logs
offline. A built-in mirror serves the local copy under the remote's URLs.`,
		Version:           Version,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			util.CloseLogFile()
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./configs/santonian.yaml)")
	rootCmd.PersistentFlags().String("db", config.DefaultDBPath, "archive database file")
	rootCmd.PersistentFlags().String("table-prefix", "", "prefix for every table name")
	rootCmd.PersistentFlags().String("endpoint", config.DefaultEndpoint, "remote backend URL")
	rootCmd.PersistentFlags().String("log-file", "", "also write logs to this rotated file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "quiet output (errors only)")

	// Bind flags to viper
	viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))
	viper.BindPFlag("table_prefix", rootCmd.PersistentFlags().Lookup("table-prefix"))
	viper.BindPFlag("remote.endpoint", rootCmd.PersistentFlags().Lookup("endpoint"))
	viper.BindPFlag("log.file", rootCmd.PersistentFlags().Lookup("log-file"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

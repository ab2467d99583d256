package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/burnoutdv/santonian-archive/internal/config"
	"github.com/burnoutdv/santonian-archive/internal/report"
	"github.com/burnoutdv/santonian-archive/internal/store"
	"github.com/burnoutdv/santonian-archive/internal/util"
)

// appConfig is filled by setup before any command runs
var appConfig *config.Config

var envFiles = []string{".env", ".env.local"}

// initConfig wires config file, .env files and SANTONIAN_* variables into viper.
// Precedence: flag, environment, config file, default.
func initConfig() {
	for _, envFile := range envFiles {
		godotenv.Load(envFile) // missing files are fine
	}

	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		for _, envFile := range envFiles {
			godotenv.Load(filepath.Join(filepath.Dir(cfgFile), envFile))
		}
	} else {
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
		viper.SetConfigName("santonian")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("SANTONIAN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && !viper.GetBool("quiet") {
		util.InfoLog("Using config file: %s", viper.ConfigFileUsed())
	}
}

// setup applies log flags and builds appConfig
func setup(cmd *cobra.Command, args []string) error {
	util.SetVerbose(viper.GetBool("verbose"))
	util.SetQuiet(viper.GetBool("quiet"))
	util.SetColors(util.IsTerminal(os.Stderr.Fd()))

	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		return err
	}
	appConfig = cfg

	return util.OpenLogFile(util.LogFileOptions{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
}

// openStore opens the configured archive. Failing here is fatal for every command.
func openStore() (*store.Store, error) {
	util.DebugLog("Opening database: %s", appConfig.DBPath)
	db, err := store.OpenWithOptions(appConfig.DBPath, &store.OpenOptions{TablePrefix: appConfig.TablePrefix})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", appConfig.DBPath, err)
	}
	return db, nil
}

// newEventLogger creates the JSONL event log for one batch run.
// Failing to create it only disables event logging.
func newEventLogger() *report.EventLogger {
	level := report.LevelInfo
	if viper.GetBool("quiet") {
		level = report.LevelWarning
	} else if viper.GetBool("verbose") {
		level = report.LevelDebug
	}

	logger, err := report.NewEventLogger(appConfig.EventsDir, level)
	if err != nil {
		util.WarnLog("Failed to create event logger: %v", err)
		return report.NullLogger()
	}
	util.InfoLog("Event log: %s", logger.Path())
	return logger
}

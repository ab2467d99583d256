// Package config holds the explicit configuration value handed to every
// component constructor.
package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/spf13/viper"

	"github.com/burnoutdv/santonian-archive/internal/util"
)

const (
	DefaultEndpoint = "https://santonianindustries.com/backend"
	DefaultDBPath   = "santonian.db"
)

var prefixPattern = regexp.MustCompile(`^[A-Za-z0-9_]*$`)

// Config is the full application configuration
type Config struct {
	DBPath      string
	TablePrefix string
	Remote      RemoteConfig
	Log         LogConfig
	Mirror      MirrorConfig
	EventsDir   string
}

// RemoteConfig describes the remote archive API.
// Paths are appended to Endpoint as {Endpoint}/{Path}/{argument}.
type RemoteConfig struct {
	Endpoint        string
	Paths           RemotePaths
	Timeout         time.Duration
	RequestInterval time.Duration // minimum spacing between requests, 0 = unpaced
	Retries         int           // attempts per item before it is skipped
	RetryWait       time.Duration // fixed wait between attempts
}

// RemotePaths names the four endpoints the archive exposes
type RemotePaths struct {
	Folders       string
	FolderDetails string
	FolderContent string
	ReadLog       string
}

// LogConfig configures the optional rotating log file
type LogConfig struct {
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// MirrorConfig configures the local HTTP mirror of the remote API
type MirrorConfig struct {
	Listen         string
	AllowedOrigins []string
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	return &Config{
		DBPath: DefaultDBPath,
		Remote: RemoteConfig{
			Endpoint: DefaultEndpoint,
			Paths: RemotePaths{
				Folders:       "hdd",
				FolderDetails: "hdd_details",
				FolderContent: "file",
				ReadLog:       "readFile",
			},
			Timeout:   30 * time.Second,
			Retries:   5,
			RetryWait: 2500 * time.Millisecond,
		},
		Log: LogConfig{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Mirror: MirrorConfig{
			Listen:         "127.0.0.1:8080",
			AllowedOrigins: []string{"*"},
		},
		EventsDir: "artifacts",
	}
}

// SetDefaults registers every key with viper so env vars and config files
// can override it
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("db", d.DBPath)
	v.SetDefault("table_prefix", d.TablePrefix)
	v.SetDefault("remote.endpoint", d.Remote.Endpoint)
	v.SetDefault("remote.paths.folders", d.Remote.Paths.Folders)
	v.SetDefault("remote.paths.folder_details", d.Remote.Paths.FolderDetails)
	v.SetDefault("remote.paths.folder_content", d.Remote.Paths.FolderContent)
	v.SetDefault("remote.paths.read_log", d.Remote.Paths.ReadLog)
	v.SetDefault("remote.timeout", d.Remote.Timeout)
	v.SetDefault("remote.request_interval", d.Remote.RequestInterval)
	v.SetDefault("remote.retries", d.Remote.Retries)
	v.SetDefault("remote.retry_wait", d.Remote.RetryWait)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
	v.SetDefault("log.compress", d.Log.Compress)
	v.SetDefault("mirror.listen", d.Mirror.Listen)
	v.SetDefault("mirror.allowed_origins", d.Mirror.AllowedOrigins)
	v.SetDefault("events.dir", d.EventsDir)
}

// FromViper builds a Config from viper and validates it
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		DBPath:      v.GetString("db"),
		TablePrefix: v.GetString("table_prefix"),
		Remote: RemoteConfig{
			Endpoint: strings.TrimRight(v.GetString("remote.endpoint"), "/"),
			Paths: RemotePaths{
				Folders:       v.GetString("remote.paths.folders"),
				FolderDetails: v.GetString("remote.paths.folder_details"),
				FolderContent: v.GetString("remote.paths.folder_content"),
				ReadLog:       v.GetString("remote.paths.read_log"),
			},
			Timeout:         v.GetDuration("remote.timeout"),
			RequestInterval: v.GetDuration("remote.request_interval"),
			Retries:         v.GetInt("remote.retries"),
			RetryWait:       v.GetDuration("remote.retry_wait"),
		},
		Log: LogConfig{
			File:       v.GetString("log.file"),
			MaxSizeMB:  v.GetInt("log.max_size_mb"),
			MaxBackups: v.GetInt("log.max_backups"),
			MaxAgeDays: v.GetInt("log.max_age_days"),
			Compress:   v.GetBool("log.compress"),
		},
		Mirror: MirrorConfig{
			Listen:         v.GetString("mirror.listen"),
			AllowedOrigins: v.GetStringSlice("mirror.allowed_origins"),
		},
		EventsDir: v.GetString("events.dir"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the components cannot work with
func (c *Config) Validate() error {
	err := validation.ValidateStruct(c,
		validation.Field(&c.DBPath, validation.Required),
		validation.Field(&c.TablePrefix, validation.Match(prefixPattern)),
		validation.Field(&c.Remote),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", util.ErrInvalidConfig, err)
	}
	return nil
}

// Validate implements validation.Validatable for the nested remote block
func (r RemoteConfig) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Endpoint, validation.Required, is.URL),
		validation.Field(&r.Retries, validation.Required, validation.Min(1)),
		validation.Field(&r.RetryWait, validation.Min(time.Duration(0))),
		validation.Field(&r.Timeout, validation.Min(time.Duration(0))),
		validation.Field(&r.Paths),
	)
}

// Validate implements validation.Validatable for the endpoint names
func (p RemotePaths) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Folders, validation.Required),
		validation.Field(&p.FolderDetails, validation.Required),
		validation.Field(&p.FolderContent, validation.Required),
		validation.Field(&p.ReadLog, validation.Required),
	)
}

// URL joins a remote path and optional argument onto the endpoint
func (r RemoteConfig) URL(path string, arg string) string {
	if arg == "" {
		return fmt.Sprintf("%s/%s", r.Endpoint, path)
	}
	return fmt.Sprintf("%s/%s/%s", r.Endpoint, path, arg)
}

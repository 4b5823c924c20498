package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the process configuration, loaded once and threaded explicitly
// into every component that needs it.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Quota    QuotaConfig    `yaml:"quota"`
}

// DatabaseConfig selects the backing store.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"` // SQLite path or PostgreSQL DSN.
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level      string `yaml:"level"`       // logrus level name; empty means info.
	File       string `yaml:"file"`        // Rotated log file; empty logs to stderr.
	MaxSizeMB  int    `yaml:"max_size_mb"` // Rotation threshold.
	MaxBackups int    `yaml:"max_backups"` // Rotated files kept.
}

// QuotaConfig holds default limits and reservation knobs.
type QuotaConfig struct {
	Volumes            int64 `yaml:"volumes"`               // Default number of volumes per project.
	Snapshots          int64 `yaml:"snapshots"`             // Default number of snapshots per project.
	Backups            int64 `yaml:"backups"`               // Default number of backups per project.
	Gigabytes          int64 `yaml:"gigabytes"`             // Default volume+snapshot size per project.
	BackupGigabytes    int64 `yaml:"backup_gigabytes"`      // Default backup size per project.
	PerVolumeSizeLimit int64 `yaml:"per_volume_size_limit"` // Max size of a single volume; -1 is unlimited.

	ReservationExpire int  `yaml:"reservation_expire"`   // Seconds until an unfinalized reservation is void.
	UntilRefresh      int  `yaml:"until_refresh"`        // Reservations until usage is resynced; 0 disables.
	MaxAge            int  `yaml:"max_age"`              // Seconds a usage row may go without resync; 0 disables.
	NoSnapshotGBQuota bool `yaml:"no_snapshot_gb_quota"` // Exclude snapshot sizes from the gigabytes resource.
}

// Flag keys resolvable through FlagValue.
const (
	FlagVolumes            = "quota_volumes"
	FlagSnapshots          = "quota_snapshots"
	FlagBackups            = "quota_backups"
	FlagGigabytes          = "quota_gigabytes"
	FlagBackupGigabytes    = "quota_backup_gigabytes"
	FlagPerVolumeSizeLimit = "per_volume_size_limit"
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Quota: QuotaConfig{
			Volumes:            10,
			Snapshots:          10,
			Backups:            10,
			Gigabytes:          1000,
			BackupGigabytes:    1000,
			PerVolumeSizeLimit: -1,
			ReservationExpire:  86400,
			UntilRefresh:       0,
			MaxAge:             0,
		},
	}
}

// Load reads a YAML config file over the defaults. A missing path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	path = strings.TrimSpace(path)
	if path == "" {
		return cfg, nil
	}
	data, errRead := os.ReadFile(path)
	if errRead != nil {
		if os.IsNotExist(errRead) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, errRead)
	}
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, errUnmarshal)
	}
	return cfg, nil
}

// FlagValue resolves a named default-limit flag.
func (c *Config) FlagValue(name string) (int64, bool) {
	switch name {
	case FlagVolumes:
		return c.Quota.Volumes, true
	case FlagSnapshots:
		return c.Quota.Snapshots, true
	case FlagBackups:
		return c.Quota.Backups, true
	case FlagGigabytes:
		return c.Quota.Gigabytes, true
	case FlagBackupGigabytes:
		return c.Quota.BackupGigabytes, true
	case FlagPerVolumeSizeLimit:
		return c.Quota.PerVolumeSizeLimit, true
	default:
		return 0, false
	}
}

// ReservationExpire returns the default reservation lifetime.
func (c *Config) ReservationExpire() time.Duration {
	if c.Quota.ReservationExpire <= 0 {
		return 86400 * time.Second
	}
	return time.Duration(c.Quota.ReservationExpire) * time.Second
}

// MaxAge returns the usage staleness bound; zero disables age-based resync.
func (c *Config) MaxAge() time.Duration {
	if c.Quota.MaxAge <= 0 {
		return 0
	}
	return time.Duration(c.Quota.MaxAge) * time.Second
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultLimits(t *testing.T) {
	cfg := Default()
	if cfg.Quota.Volumes != 10 || cfg.Quota.Snapshots != 10 || cfg.Quota.Backups != 10 {
		t.Fatalf("count defaults = %d/%d/%d, want 10/10/10", cfg.Quota.Volumes, cfg.Quota.Snapshots, cfg.Quota.Backups)
	}
	if cfg.Quota.Gigabytes != 1000 || cfg.Quota.BackupGigabytes != 1000 {
		t.Fatalf("capacity defaults = %d/%d, want 1000/1000", cfg.Quota.Gigabytes, cfg.Quota.BackupGigabytes)
	}
	if cfg.Quota.PerVolumeSizeLimit != -1 {
		t.Fatalf("per_volume_size_limit = %d, want -1", cfg.Quota.PerVolumeSizeLimit)
	}
	if cfg.ReservationExpire() != 86400*time.Second {
		t.Fatalf("reservation expire = %s, want 24h", cfg.ReservationExpire())
	}
	if cfg.MaxAge() != 0 {
		t.Fatalf("max age = %s, want disabled", cfg.MaxAge())
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, errLoad := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if errLoad != nil {
		t.Fatalf("load: %v", errLoad)
	}
	if cfg.Quota.Volumes != 10 {
		t.Fatalf("volumes = %d, want default 10", cfg.Quota.Volumes)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	payload := `
database:
  dsn: "quota.db"
quota:
  volumes: 25
  until_refresh: 5
  max_age: 3600
  no_snapshot_gb_quota: true
`
	if errWrite := os.WriteFile(path, []byte(payload), 0o600); errWrite != nil {
		t.Fatalf("write config: %v", errWrite)
	}

	cfg, errLoad := Load(path)
	if errLoad != nil {
		t.Fatalf("load: %v", errLoad)
	}
	if cfg.Database.DSN != "quota.db" {
		t.Fatalf("dsn = %q, want quota.db", cfg.Database.DSN)
	}
	if cfg.Quota.Volumes != 25 {
		t.Fatalf("volumes = %d, want 25", cfg.Quota.Volumes)
	}
	if cfg.Quota.Gigabytes != 1000 {
		t.Fatalf("gigabytes = %d, want untouched default 1000", cfg.Quota.Gigabytes)
	}
	if cfg.Quota.UntilRefresh != 5 {
		t.Fatalf("until_refresh = %d, want 5", cfg.Quota.UntilRefresh)
	}
	if cfg.MaxAge() != time.Hour {
		t.Fatalf("max age = %s, want 1h", cfg.MaxAge())
	}
	if !cfg.Quota.NoSnapshotGBQuota {
		t.Fatal("no_snapshot_gb_quota not applied")
	}
}

func TestFlagValue(t *testing.T) {
	cfg := Default()
	if v, ok := cfg.FlagValue(FlagGigabytes); !ok || v != 1000 {
		t.Fatalf("FlagValue(%s) = %d,%v, want 1000,true", FlagGigabytes, v, ok)
	}
	if _, ok := cfg.FlagValue("nope"); ok {
		t.Fatal("unknown flag resolved")
	}
}

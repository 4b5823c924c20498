package quota

import (
	"errors"
	"fmt"
	"testing"
)

func TestExceededErrorMessages(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{
			&VolumeLimitExceededError{Allowed: 10, Name: "volumes_ssd"},
			"Maximum number of volumes allowed (10) exceeded for quota 'volumes_ssd'.",
		},
		{
			&SnapshotLimitExceededError{Allowed: 5},
			"Maximum number of snapshots allowed (5) exceeded",
		},
		{
			&BackupLimitExceededError{Allowed: 3},
			"Maximum number of backups allowed (3) exceeded",
		},
		{
			&VolumeSizeExceedsAvailableQuotaError{Requested: 1, Quota: 20, Consumed: 20},
			"Requested volume or snapshot exceeds allowed gigabytes quota. Requested 1G, quota is 20G and 20G has been consumed.",
		},
		{
			&VolumeSizeExceedsAvailableQuotaError{Requested: 2, Quota: 30, Consumed: 25, Name: "gigabytes_ssd"},
			"Requested volume or snapshot exceeds allowed gigabytes_ssd quota. Requested 2G, quota is 30G and 25G has been consumed.",
		},
		{
			&VolumeBackupSizeExceedsAvailableQuotaError{Requested: 1, Quota: 20, Consumed: 20},
			"Requested backup exceeds allowed Backup gigabytes quota. Requested 1G, quota is 20G and 20G has been consumed.",
		},
		{
			&VolumeSizeExceedsLimitError{Size: 100, Limit: 50},
			"Requested volume size 100 is larger than maximum allowed limit 50.",
		},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Fatalf("message = %q, want %q", got, tt.want)
		}
	}
}

func TestOverQuotaErrorMessage(t *testing.T) {
	err := &OverQuotaError{Overs: []string{"gigabytes", "volumes"}}
	want := "Quota exceeded for resources: [gigabytes volumes]"
	if got := err.Error(); got != want {
		t.Fatalf("message = %q, want %q", got, want)
	}
}

func TestProcessReserveOverQuotaTranslation(t *testing.T) {
	over := &OverQuotaError{
		Overs:  []string{"gigabytes"},
		Quotas: map[string]int64{"gigabytes": 20},
		Usages: map[string]Usage{"gigabytes": {InUse: 15, Reserved: 5}},
	}

	errVolume := ProcessReserveOverQuota(over, "volumes", 1)
	var sizeErr *VolumeSizeExceedsAvailableQuotaError
	if !errors.As(errVolume, &sizeErr) {
		t.Fatalf("got %T, want VolumeSizeExceedsAvailableQuotaError", errVolume)
	}
	want := "Requested volume or snapshot exceeds allowed gigabytes quota. Requested 1G, quota is 20G and 20G has been consumed."
	if errVolume.Error() != want {
		t.Fatalf("message = %q, want %q", errVolume.Error(), want)
	}

	errBackup := ProcessReserveOverQuota(over, "backups", 1)
	var backupErr *VolumeBackupSizeExceedsAvailableQuotaError
	if !errors.As(errBackup, &backupErr) {
		t.Fatalf("got %T, want VolumeBackupSizeExceedsAvailableQuotaError", errBackup)
	}
	wantBackup := "Requested backup exceeds allowed Backup gigabytes quota. Requested 1G, quota is 20G and 20G has been consumed."
	if errBackup.Error() != wantBackup {
		t.Fatalf("message = %q, want %q", errBackup.Error(), wantBackup)
	}
}

func TestProcessReserveOverQuotaCountResources(t *testing.T) {
	tests := []struct {
		resource string
		wantType any
	}{
		{"volumes", &VolumeLimitExceededError{}},
		{"snapshots", &SnapshotLimitExceededError{}},
		{"backups", &BackupLimitExceededError{}},
	}
	for _, tt := range tests {
		over := &OverQuotaError{
			Overs:  []string{tt.resource},
			Quotas: map[string]int64{tt.resource: 10},
			Usages: map[string]Usage{tt.resource: {InUse: 10}},
		}
		got := ProcessReserveOverQuota(over, tt.resource, 1)
		if fmt.Sprintf("%T", got) != fmt.Sprintf("%T", tt.wantType) {
			t.Fatalf("resource %s: got %T, want %T", tt.resource, got, tt.wantType)
		}
	}
}

func TestProcessReserveOverQuotaPerTypeVolumeName(t *testing.T) {
	over := &OverQuotaError{
		Overs:  []string{"volumes_ssd"},
		Quotas: map[string]int64{"volumes_ssd": 10},
		Usages: map[string]Usage{"volumes_ssd": {InUse: 10}},
	}
	got := ProcessReserveOverQuota(over, "volumes", 1)
	var volErr *VolumeLimitExceededError
	if !errors.As(got, &volErr) {
		t.Fatalf("got %T, want VolumeLimitExceededError", got)
	}
	if volErr.Name != "volumes_ssd" {
		t.Fatalf("name = %q, want volumes_ssd", volErr.Name)
	}
}

func TestProcessReserveOverQuotaPassThrough(t *testing.T) {
	sentinel := errors.New("boom")
	if got := ProcessReserveOverQuota(sentinel, "volumes", 1); got != sentinel {
		t.Fatalf("unrelated error was rewritten: %v", got)
	}
}

package quota

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Usage is the consumption snapshot attached to quota answers and
// over-quota failures.
type Usage struct {
	InUse    int64
	Reserved int64
}

// Consumed returns committed plus pending consumption.
func (u Usage) Consumed() int64 {
	return u.InUse + u.Reserved
}

// OverQuotaError reports a denied reservation or limit check. Overs
// holds the sorted names of every resource that failed; Quotas and
// Usages carry the limits and consumption the decision was made
// against.
type OverQuotaError struct {
	Overs  []string
	Quotas map[string]int64
	Usages map[string]Usage
}

func (e *OverQuotaError) Error() string {
	return fmt.Sprintf("Quota exceeded for resources: %v", e.Overs)
}

// ProjectQuotaNotFoundError signals the absence of a per-project
// override. Limit resolution treats it as recoverable and falls through
// to the quota class.
type ProjectQuotaNotFoundError struct {
	ProjectID string
	Resource  string
}

func (e *ProjectQuotaNotFoundError) Error() string {
	return fmt.Sprintf("Quota for project %s could not be found.", e.ProjectID)
}

// QuotaClassNotFoundError signals the absence of a class override.
// Limit resolution treats it as recoverable and falls through to the
// configured default.
type QuotaClassNotFoundError struct {
	ClassName string
	Resource  string
}

func (e *QuotaClassNotFoundError) Error() string {
	return fmt.Sprintf("Quota class %s could not be found.", e.ClassName)
}

// QuotaResourceUnknownError reports resource names that are not
// registered, duplicated within one request, or that sit in the wrong
// tier for the attempted operation (for example reserving a
// non-reservable resource).
type QuotaResourceUnknownError struct {
	Resources []string
}

func (e *QuotaResourceUnknownError) Error() string {
	return fmt.Sprintf("Unknown quota resources %s.", strings.Join(e.Resources, ", "))
}

// InvalidReservationExpirationError reports an expiration that is not
// strictly in the future, or a negative lifetime.
type InvalidReservationExpirationError struct {
	Expire time.Time
}

func (e *InvalidReservationExpirationError) Error() string {
	if e.Expire.IsZero() {
		return "Invalid reservation expiration."
	}
	return fmt.Sprintf("Invalid reservation expiration %s.", e.Expire.UTC().Format(time.RFC3339))
}

// InvalidQuotaValueError reports a negative value handed to a limit
// check.
type InvalidQuotaValueError struct {
	Resource string
	Value    int64
}

func (e *InvalidQuotaValueError) Error() string {
	return fmt.Sprintf("Invalid value %d for resource %s in quota check, value must not be negative.", e.Value, e.Resource)
}

// VolumeLimitExceededError is the caller-facing translation of an
// over-quota failure on a volume-count resource.
type VolumeLimitExceededError struct {
	Allowed int64
	Name    string
}

func (e *VolumeLimitExceededError) Error() string {
	return fmt.Sprintf("Maximum number of volumes allowed (%d) exceeded for quota '%s'.", e.Allowed, e.Name)
}

// SnapshotLimitExceededError is the caller-facing translation of an
// over-quota failure on a snapshot-count resource.
type SnapshotLimitExceededError struct {
	Allowed int64
}

func (e *SnapshotLimitExceededError) Error() string {
	return fmt.Sprintf("Maximum number of snapshots allowed (%d) exceeded", e.Allowed)
}

// BackupLimitExceededError is the caller-facing translation of an
// over-quota failure on a backup-count resource.
type BackupLimitExceededError struct {
	Allowed int64
}

func (e *BackupLimitExceededError) Error() string {
	return fmt.Sprintf("Maximum number of backups allowed (%d) exceeded", e.Allowed)
}

// VolumeSizeExceedsAvailableQuotaError is the caller-facing translation
// of an over-quota failure on a capacity resource for volumes and
// snapshots.
type VolumeSizeExceedsAvailableQuotaError struct {
	Requested int64
	Quota     int64
	Consumed  int64
	Name      string
}

func (e *VolumeSizeExceedsAvailableQuotaError) Error() string {
	name := e.Name
	if name == "" {
		name = "gigabytes"
	}
	return fmt.Sprintf("Requested volume or snapshot exceeds allowed %s quota. Requested %dG, quota is %dG and %dG has been consumed.", name, e.Requested, e.Quota, e.Consumed)
}

// VolumeBackupSizeExceedsAvailableQuotaError is the caller-facing
// translation of an over-quota failure on backup capacity.
type VolumeBackupSizeExceedsAvailableQuotaError struct {
	Requested int64
	Quota     int64
	Consumed  int64
}

func (e *VolumeBackupSizeExceedsAvailableQuotaError) Error() string {
	return fmt.Sprintf("Requested backup exceeds allowed Backup gigabytes quota. Requested %dG, quota is %dG and %dG has been consumed.", e.Requested, e.Quota, e.Consumed)
}

// VolumeSizeExceedsLimitError reports a single volume larger than the
// per-volume size cap.
type VolumeSizeExceedsLimitError struct {
	Size  int64
	Limit int64
}

func (e *VolumeSizeExceedsLimitError) Error() string {
	return fmt.Sprintf("Requested volume size %d is larger than maximum allowed limit %d.", e.Size, e.Limit)
}

// ProcessReserveOverQuota rewrites an over-quota reservation failure
// into the specific exceeded error for the resource kind being
// provisioned. resource names the kind ("volumes", "snapshots" or
// "backups") and size is the requested capacity in gigabytes. Errors of
// any other type pass through unchanged.
func ProcessReserveOverQuota(err error, resource string, size int64) error {
	var over *OverQuotaError
	if !errors.As(err, &over) {
		return err
	}
	for _, name := range over.Overs {
		quota := over.Quotas[name]
		consumed := over.Usages[name].Consumed()
		if strings.Contains(name, "gigabytes") {
			if resource == "backups" {
				return &VolumeBackupSizeExceedsAvailableQuotaError{Requested: size, Quota: quota, Consumed: consumed}
			}
			return &VolumeSizeExceedsAvailableQuotaError{Requested: size, Quota: quota, Consumed: consumed, Name: name}
		}
		switch {
		case strings.HasPrefix(name, "volumes"):
			return &VolumeLimitExceededError{Allowed: quota, Name: name}
		case strings.HasPrefix(name, "snapshots"):
			return &SnapshotLimitExceededError{Allowed: quota}
		case strings.HasPrefix(name, "backups"):
			return &BackupLimitExceededError{Allowed: quota}
		}
	}
	return err
}

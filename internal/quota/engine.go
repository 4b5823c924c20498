package quota

import (
	"context"
	"fmt"

	"github.com/lijhnihaoa/blockquota/internal/config"
)

// perTypeBases are the base resources that gain a per-volume-type
// variant for every type in the catalog.
var perTypeBases = []string{"volumes", "gigabytes", "snapshots"}

// ResourceRenamer renames a resource across every table that keys rows
// by resource name.
type ResourceRenamer interface {
	RenameResource(ctx context.Context, oldName, newName string) error
}

// Engine is the front door of the quota system. It snapshots the
// resource registry per call, so volume types created mid-flight are
// visible to the next operation without restarts.
type Engine struct {
	cfg     *config.Config
	driver  Driver
	catalog VolumeTypeCatalog
	renamer ResourceRenamer
}

// NewEngine builds an engine over a driver. catalog and renamer may be
// nil; without a catalog only the base resources exist, and without a
// renamer UpdateQuotaResource fails.
func NewEngine(cfg *config.Config, driver Driver, catalog VolumeTypeCatalog, renamer ResourceRenamer) *Engine {
	return &Engine{cfg: cfg, driver: driver, catalog: catalog, renamer: renamer}
}

// Resources returns the current registry: the base resources plus the
// per-type variants for every volume type in the catalog.
func (e *Engine) Resources(ctx context.Context) (*Registry, error) {
	reg := NewRegistry()
	reg.RegisterAll(DefaultResources())
	if e.catalog == nil {
		return reg, nil
	}
	types, errTypes := e.catalog.VolumeTypes(ctx)
	if errTypes != nil {
		return nil, errTypes
	}
	for _, vt := range types {
		for _, base := range perTypeBases {
			reg.Register(VolumeTypeResource(base, vt))
		}
	}
	return reg, nil
}

// ResourceNames returns the sorted names of every known resource.
func (e *Engine) ResourceNames(ctx context.Context) ([]string, error) {
	reg, errReg := e.Resources(ctx)
	if errReg != nil {
		return nil, errReg
	}
	return reg.Names(), nil
}

// GetByProject returns the per-project override for one resource.
func (e *Engine) GetByProject(ctx context.Context, projectID, resource string) (int64, error) {
	return e.driver.GetByProject(ctx, projectID, resource)
}

// GetByClass returns the class override for one resource.
func (e *Engine) GetByClass(ctx context.Context, quotaClass, resource string) (int64, error) {
	return e.driver.GetByClass(ctx, quotaClass, resource)
}

// GetDefaults returns the effective default limit for every resource.
func (e *Engine) GetDefaults(ctx context.Context, parentProjectID string) (map[string]int64, error) {
	reg, errReg := e.Resources(ctx)
	if errReg != nil {
		return nil, errReg
	}
	return e.driver.GetDefaults(ctx, reg, parentProjectID)
}

// GetClassQuotas returns the limits recorded for a quota class.
func (e *Engine) GetClassQuotas(ctx context.Context, quotaClass string, defaults bool) (map[string]int64, error) {
	reg, errReg := e.Resources(ctx)
	if errReg != nil {
		return nil, errReg
	}
	return e.driver.GetClassQuotas(ctx, reg, quotaClass, defaults)
}

// GetProjectQuotas returns the effective limits for one project.
func (e *Engine) GetProjectQuotas(ctx context.Context, scope Scope, projectID string, opts ProjectQuotaOptions) (map[string]ProjectQuotaDetail, error) {
	reg, errReg := e.Resources(ctx)
	if errReg != nil {
		return nil, errReg
	}
	return e.driver.GetProjectQuotas(ctx, scope, reg, projectID, opts)
}

// LimitCheck verifies proposed absolute values against effective limits
// without reserving anything.
func (e *Engine) LimitCheck(ctx context.Context, scope Scope, values map[string]int64, projectID string) error {
	reg, errReg := e.Resources(ctx)
	if errReg != nil {
		return errReg
	}
	return e.driver.LimitCheck(ctx, scope, reg, values, projectID)
}

// Reserve atomically claims the given deltas and returns one
// reservation id per delta, in delta order.
func (e *Engine) Reserve(ctx context.Context, scope Scope, deltas []Delta, opts ReserveOptions) ([]string, error) {
	reg, errReg := e.Resources(ctx)
	if errReg != nil {
		return nil, errReg
	}
	return e.driver.Reserve(ctx, scope, reg, deltas, opts)
}

// Commit finalizes reservations, folding them into committed usage.
func (e *Engine) Commit(ctx context.Context, scope Scope, ids []string, projectID string) error {
	return e.driver.Commit(ctx, scope, ids, projectID)
}

// Rollback releases reservations without touching committed usage.
func (e *Engine) Rollback(ctx context.Context, scope Scope, ids []string, projectID string) error {
	return e.driver.Rollback(ctx, scope, ids, projectID)
}

// DestroyByProject drops all quota state recorded for a project.
func (e *Engine) DestroyByProject(ctx context.Context, projectID string) error {
	return e.driver.DestroyByProject(ctx, projectID)
}

// ExpireReservations releases every reservation past its expiration.
func (e *Engine) ExpireReservations(ctx context.Context) (int, error) {
	return e.driver.ExpireReservations(ctx)
}

// CheckPerVolumeSize rejects a single volume larger than the effective
// per_volume_gigabytes limit for the caller. A limit below zero means
// unlimited.
func (e *Engine) CheckPerVolumeSize(ctx context.Context, scope Scope, size int64) error {
	reg, errReg := e.Resources(ctx)
	if errReg != nil {
		return errReg
	}
	res, ok := reg.Get("per_volume_gigabytes")
	if !ok {
		return nil
	}
	limit, errResolve := res.ResolveLimit(ctx, e.driver, scope, LimitLookup{})
	if errResolve != nil {
		return errResolve
	}
	if limit >= 0 && size > limit {
		return &VolumeSizeExceedsLimitError{Size: size, Limit: limit}
	}
	return nil
}

// AddVolumeTypeOpts extends base-resource deltas with their per-type
// counterparts for the given volume type, so a reservation debits both
// the global pool and the type's pool.
func (e *Engine) AddVolumeTypeOpts(ctx context.Context, deltas []Delta, volumeTypeID string) ([]Delta, error) {
	vt, errType := e.volumeTypeByID(ctx, volumeTypeID)
	if errType != nil {
		return nil, errType
	}
	out := make([]Delta, 0, len(deltas)*2)
	out = append(out, deltas...)
	for _, delta := range deltas {
		for _, base := range perTypeBases {
			if delta.Resource == base {
				out = append(out, Delta{Resource: base + "_" + vt.Name, Amount: delta.Amount})
			}
		}
	}
	return out, nil
}

// VolumeSpec carries the sizing facts a volume-type reservation is
// derived from.
type VolumeSpec struct {
	Size          int64
	SnapshotSizes []int64
}

// VolumeTypeReservation builds the deltas for moving a volume (and its
// snapshots) into a volume type: one volume, its snapshots, and their
// combined capacity. With typeOnly set only the per-type resources are
// debited; with negative set the deltas release instead of claim, as
// used by retype away from a type.
func (e *Engine) VolumeTypeReservation(ctx context.Context, vol VolumeSpec, volumeTypeID string, typeOnly, negative bool) ([]Delta, error) {
	vt, errType := e.volumeTypeByID(ctx, volumeTypeID)
	if errType != nil {
		return nil, errType
	}

	gigabytes := vol.Size
	if !e.cfg.Quota.NoSnapshotGBQuota {
		for _, size := range vol.SnapshotSizes {
			gigabytes += size
		}
	}
	factor := int64(1)
	if negative {
		factor = -1
	}

	deltas := []Delta{
		{Resource: "volumes_" + vt.Name, Amount: factor},
		{Resource: "gigabytes_" + vt.Name, Amount: factor * gigabytes},
	}
	if len(vol.SnapshotSizes) > 0 {
		deltas = append(deltas, Delta{Resource: "snapshots_" + vt.Name, Amount: factor * int64(len(vol.SnapshotSizes))})
	}
	if typeOnly {
		return deltas, nil
	}

	deltas = append(deltas,
		Delta{Resource: "volumes", Amount: factor},
		Delta{Resource: "gigabytes", Amount: factor * gigabytes},
	)
	if len(vol.SnapshotSizes) > 0 {
		deltas = append(deltas, Delta{Resource: "snapshots", Amount: factor * int64(len(vol.SnapshotSizes))})
	}
	return deltas, nil
}

// UpdateQuotaResource renames the per-type resources of a volume type
// across overrides, usage rows and open reservations, keeping quota
// state attached through a type rename.
func (e *Engine) UpdateQuotaResource(ctx context.Context, oldTypeName, newTypeName string) error {
	if e.renamer == nil {
		return fmt.Errorf("rename resource %q: no renamer configured", oldTypeName)
	}
	for _, base := range perTypeBases {
		oldName := base + "_" + oldTypeName
		newName := base + "_" + newTypeName
		if errRename := e.renamer.RenameResource(ctx, oldName, newName); errRename != nil {
			return fmt.Errorf("rename resource %q: %w", oldName, errRename)
		}
	}
	return nil
}

func (e *Engine) volumeTypeByID(ctx context.Context, volumeTypeID string) (VolumeType, error) {
	if e.catalog == nil {
		return VolumeType{}, fmt.Errorf("volume type %q: no catalog configured", volumeTypeID)
	}
	types, errTypes := e.catalog.VolumeTypes(ctx)
	if errTypes != nil {
		return VolumeType{}, errTypes
	}
	for _, vt := range types {
		if vt.ID == volumeTypeID {
			return vt, nil
		}
	}
	return VolumeType{}, fmt.Errorf("volume type %q not found", volumeTypeID)
}

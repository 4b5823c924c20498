// Package quota implements the admission-control core of the control
// plane: the resource registry, limit resolution, and the reservation
// driver that brokers atomic reserve/commit/rollback cycles against the
// usage store.
package quota

import (
	"context"
	"errors"
	"sort"

	"github.com/lijhnihaoa/blockquota/internal/config"
)

// Sync identifiers understood by the reservation store. Per-volume-type
// resources reuse the identifier of their base resource; the sync
// provider reads the type from the resource it receives.
const (
	SyncVolumes         = "volumes"
	SyncSnapshots       = "snapshots"
	SyncBackups         = "backups"
	SyncGigabytes       = "gigabytes"
	SyncBackupGigabytes = "backup_gigabytes"
)

// Resource describes one countable capability tracked by the quota
// system. A resource with a non-empty SyncName is reservable and can be
// the subject of a reservation; all others only answer limit lookups.
type Resource struct {
	// Name is the key used in quota tables, usage rows and API payloads.
	Name string

	// Flag names the configuration knob holding the default limit. An
	// empty flag means the built-in default applies.
	Flag string

	// Default is the fallback limit when no flag is bound. -1 means
	// unlimited.
	Default int64

	// SyncName selects the usage-recalculation provider. Empty for
	// resources that cannot be reserved.
	SyncName string

	// ParentProjectID marks the resource as scoped to a subproject of
	// the named parent. Subproject resources default to zero instead of
	// the configured default.
	ParentProjectID string

	// VolumeTypeID and VolumeTypeName are set on per-type resources so
	// sync providers can restrict their recount to one volume type.
	VolumeTypeID   string
	VolumeTypeName string
}

// VolumeType is the catalog view the registry needs to mint per-type
// resources.
type VolumeType struct {
	ID   string
	Name string
}

// VolumeTypeCatalog lists the volume types for which per-type resources
// exist.
type VolumeTypeCatalog interface {
	VolumeTypes(ctx context.Context) ([]VolumeType, error)
}

// BaseResource returns a non-reservable resource whose default limit
// comes from the given configuration flag.
func BaseResource(name, flag string) Resource {
	return Resource{Name: name, Flag: flag, Default: -1}
}

// SubProjectResource returns a non-reservable resource scoped under a
// parent project. Such resources resolve to zero when neither a project
// nor a class override exists.
func SubProjectResource(name, flag, parentProjectID string) Resource {
	return Resource{Name: name, Flag: flag, Default: -1, ParentProjectID: parentProjectID}
}

// ReservableResource returns a resource that participates in
// reservations, with usage recalculated by the named sync provider.
func ReservableResource(name, syncName, flag string) Resource {
	return Resource{Name: name, Flag: flag, Default: -1, SyncName: syncName}
}

// VolumeTypeResource returns the per-type variant of a base reservable
// resource, named "<base>_<type name>".
func VolumeTypeResource(base string, vt VolumeType) Resource {
	return Resource{
		Name:           base + "_" + vt.Name,
		Default:        -1,
		SyncName:       base,
		VolumeTypeID:   vt.ID,
		VolumeTypeName: vt.Name,
	}
}

// Reservable reports whether the resource can be the subject of a
// reservation.
func (r Resource) Reservable() bool {
	return r.SyncName != ""
}

// DefaultLimit resolves the configured default for the resource, falling
// back to the built-in default when no flag is bound.
func (r Resource) DefaultLimit(cfg *config.Config) int64 {
	if r.Flag != "" {
		if v, ok := cfg.FlagValue(r.Flag); ok {
			return v
		}
	}
	return r.Default
}

// LimitLookup overrides the scope used by ResolveLimit. Zero values fall
// back to the caller's scope.
type LimitLookup struct {
	ProjectID  string
	QuotaClass string
}

// ResolveLimit returns the effective limit for the resource: the
// per-project override when one exists, else the quota-class override,
// else zero for subproject resources, else the configured default.
func (r Resource) ResolveLimit(ctx context.Context, d LimitSource, scope Scope, lookup LimitLookup) (int64, error) {
	projectID := lookup.ProjectID
	if projectID == "" {
		projectID = scope.ProjectID
	}
	if projectID != "" {
		limit, errProject := d.GetByProject(ctx, projectID, r.Name)
		if errProject == nil {
			return limit, nil
		}
		var notFound *ProjectQuotaNotFoundError
		if !errors.As(errProject, &notFound) {
			return 0, errProject
		}
	}

	class := lookup.QuotaClass
	if class == "" {
		class = scope.QuotaClass
	}
	if class != "" {
		limit, errClass := d.GetByClass(ctx, class, r.Name)
		if errClass == nil {
			return limit, nil
		}
		var notFound *QuotaClassNotFoundError
		if !errors.As(errClass, &notFound) {
			return 0, errClass
		}
	}

	if r.ParentProjectID != "" {
		return 0, nil
	}
	return d.GetDefault(ctx, r)
}

// Registry holds the set of resources visible to one quota operation.
// Registries are built per call and never mutated afterwards.
type Registry struct {
	resources map[string]Resource
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{resources: make(map[string]Resource)}
}

// Register adds a resource, replacing any previous entry of the same
// name.
func (g *Registry) Register(r Resource) {
	g.resources[r.Name] = r
}

// RegisterAll registers every resource in the slice.
func (g *Registry) RegisterAll(rs []Resource) {
	for _, r := range rs {
		g.Register(r)
	}
}

// Get looks up a resource by name.
func (g *Registry) Get(name string) (Resource, bool) {
	r, ok := g.resources[name]
	return r, ok
}

// All returns the registered resources keyed by name. Callers must not
// mutate the returned map.
func (g *Registry) All() map[string]Resource {
	return g.resources
}

// Names returns the registered resource names in sorted order.
func (g *Registry) Names() []string {
	names := make([]string, 0, len(g.resources))
	for name := range g.resources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len reports the number of registered resources.
func (g *Registry) Len() int {
	return len(g.resources)
}

// Subset returns a registry restricted to the named resources, keeping
// only those that exist and whose reservability matches wantSync.
func (g *Registry) Subset(names []string, wantSync bool) *Registry {
	sub := NewRegistry()
	for _, name := range names {
		r, ok := g.resources[name]
		if ok && r.Reservable() == wantSync {
			sub.Register(r)
		}
	}
	return sub
}

// DefaultResources returns the base resource set tracked for every
// project.
func DefaultResources() []Resource {
	return []Resource{
		ReservableResource("volumes", SyncVolumes, config.FlagVolumes),
		ReservableResource("snapshots", SyncSnapshots, config.FlagSnapshots),
		ReservableResource("backups", SyncBackups, config.FlagBackups),
		ReservableResource("gigabytes", SyncGigabytes, config.FlagGigabytes),
		ReservableResource("backup_gigabytes", SyncBackupGigabytes, config.FlagBackupGigabytes),
		BaseResource("per_volume_gigabytes", config.FlagPerVolumeSizeLimit),
	}
}

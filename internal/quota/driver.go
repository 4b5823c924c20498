package quota

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/lijhnihaoa/blockquota/internal/config"
	"github.com/lijhnihaoa/blockquota/internal/metrics"
)

// Scope identifies the caller for limit resolution: the project it acts
// in and the quota class attached to it, either of which may be empty.
type Scope struct {
	ProjectID  string
	QuotaClass string
}

// Delta is one resource adjustment inside a reservation request.
// Positive amounts claim capacity, negative amounts return it.
type Delta struct {
	Resource string
	Amount   int64
}

// ProjectQuotaDetail is one resource's answer in a per-project quota
// listing. Usage is nil unless usages were requested.
type ProjectQuotaDetail struct {
	Limit int64
	Usage *Usage
}

// ProjectQuotaOptions tunes GetProjectQuotas. QuotaClass forces a class
// lookup regardless of the caller's scope; Defaults controls whether
// resources without explicit overrides appear at their configured
// defaults or are omitted; Usages attaches consumption counters;
// ParentProjectID applies the subproject default of zero.
type ProjectQuotaOptions struct {
	QuotaClass      string
	Defaults        bool
	Usages          bool
	ParentProjectID string
}

// ReserveOptions tunes Reserve. ProjectID overrides the scope's
// project. Exactly one of TTL and ExpireAt may be set; both zero means
// the configured default lifetime.
type ReserveOptions struct {
	ProjectID string
	TTL       time.Duration
	ExpireAt  time.Time
}

// LimitSource is the subset of Driver that single-resource limit
// resolution needs.
type LimitSource interface {
	GetByProject(ctx context.Context, projectID, resource string) (int64, error)
	GetByClass(ctx context.Context, quotaClass, resource string) (int64, error)
	GetDefault(ctx context.Context, r Resource) (int64, error)
}

// Driver answers limit lookups and brokers reservations against the
// backing store.
type Driver interface {
	LimitSource
	GetDefaults(ctx context.Context, resources *Registry, parentProjectID string) (map[string]int64, error)
	GetClassQuotas(ctx context.Context, resources *Registry, quotaClass string, defaults bool) (map[string]int64, error)
	GetProjectQuotas(ctx context.Context, scope Scope, resources *Registry, projectID string, opts ProjectQuotaOptions) (map[string]ProjectQuotaDetail, error)
	LimitCheck(ctx context.Context, scope Scope, resources *Registry, values map[string]int64, projectID string) error
	Reserve(ctx context.Context, scope Scope, resources *Registry, deltas []Delta, opts ReserveOptions) ([]string, error)
	Commit(ctx context.Context, scope Scope, ids []string, projectID string) error
	Rollback(ctx context.Context, scope Scope, ids []string, projectID string) error
	DestroyByProject(ctx context.Context, projectID string) error
	ExpireReservations(ctx context.Context) (int, error)
}

// OverrideStore reads persisted per-project and per-class limit
// overrides. Single-row lookups return ProjectQuotaNotFoundError or
// QuotaClassNotFoundError when no override exists; bulk lookups return
// empty maps instead.
type OverrideStore interface {
	ProjectQuota(ctx context.Context, projectID, resource string) (int64, error)
	ProjectQuotas(ctx context.Context, projectID string) (map[string]int64, error)
	ClassQuota(ctx context.Context, className, resource string) (int64, error)
	ClassQuotas(ctx context.Context, className string) (map[string]int64, error)
	ClassDefaults(ctx context.Context) (map[string]int64, error)
}

// ReserveRequest is the fully resolved input handed to the reservation
// store: effective limits, the deltas to apply, and the refresh policy.
type ReserveRequest struct {
	ProjectID    string
	Resources    map[string]Resource
	Quotas       map[string]int64
	Deltas       []Delta
	Expire       time.Time
	UntilRefresh int
	MaxAge       time.Duration
}

// ReservationStore applies reservation lifecycles atomically against
// usage rows.
type ReservationStore interface {
	Usages(ctx context.Context, projectID string, resources []string) (map[string]Usage, error)
	Reserve(ctx context.Context, req ReserveRequest) ([]string, error)
	Commit(ctx context.Context, projectID string, ids []string) error
	Rollback(ctx context.Context, projectID string, ids []string) error
	ExpireReservations(ctx context.Context, now time.Time) (int, error)
	DestroyByProject(ctx context.Context, projectID string) error
}

// DBQuotaDriver is the database-backed Driver. It resolves limits
// through an OverrideStore and delegates reservation bookkeeping to a
// ReservationStore.
type DBQuotaDriver struct {
	cfg       *config.Config
	overrides OverrideStore
	usages    ReservationStore
}

// NewDBQuotaDriver wires a driver over the given stores.
func NewDBQuotaDriver(cfg *config.Config, overrides OverrideStore, usages ReservationStore) *DBQuotaDriver {
	return &DBQuotaDriver{cfg: cfg, overrides: overrides, usages: usages}
}

// GetByProject returns the per-project override for one resource.
func (d *DBQuotaDriver) GetByProject(ctx context.Context, projectID, resource string) (int64, error) {
	return d.overrides.ProjectQuota(ctx, projectID, resource)
}

// GetByClass returns the class override for one resource.
func (d *DBQuotaDriver) GetByClass(ctx context.Context, quotaClass, resource string) (int64, error) {
	return d.overrides.ClassQuota(ctx, quotaClass, resource)
}

// GetDefault returns the effective default for one resource: the
// "default" class override when present, else the configured default.
func (d *DBQuotaDriver) GetDefault(ctx context.Context, r Resource) (int64, error) {
	classDefaults, errDefaults := d.overrides.ClassDefaults(ctx)
	if errDefaults != nil {
		return 0, errDefaults
	}
	if v, ok := classDefaults[r.Name]; ok {
		return v, nil
	}
	return r.DefaultLimit(d.cfg), nil
}

// GetDefaults returns the effective default for every registered
// resource. Subprojects default to zero across the board.
func (d *DBQuotaDriver) GetDefaults(ctx context.Context, resources *Registry, parentProjectID string) (map[string]int64, error) {
	classDefaults, errDefaults := d.overrides.ClassDefaults(ctx)
	if errDefaults != nil {
		return nil, errDefaults
	}
	out := make(map[string]int64, resources.Len())
	for name, r := range resources.All() {
		if parentProjectID != "" {
			out[name] = 0
			continue
		}
		if v, ok := classDefaults[name]; ok {
			out[name] = v
		} else {
			out[name] = r.DefaultLimit(d.cfg)
		}
	}
	return out, nil
}

// GetClassQuotas returns the overrides recorded for a quota class. With
// defaults set, resources without an override appear at their
// configured default.
func (d *DBQuotaDriver) GetClassQuotas(ctx context.Context, resources *Registry, quotaClass string, defaults bool) (map[string]int64, error) {
	overrides, errClass := d.overrides.ClassQuotas(ctx, quotaClass)
	if errClass != nil {
		return nil, errClass
	}
	out := make(map[string]int64, resources.Len())
	for name, r := range resources.All() {
		if v, ok := overrides[name]; ok {
			out[name] = v
		} else if defaults {
			out[name] = r.DefaultLimit(d.cfg)
		}
	}
	return out, nil
}

// GetProjectQuotas returns the effective limits for one project,
// optionally with usage counters. Class overrides apply when a class is
// named explicitly or when the caller queries its own project and
// carries a class. Configured defaults are consulted only when at least
// one resource lacks an explicit override.
func (d *DBQuotaDriver) GetProjectQuotas(ctx context.Context, scope Scope, resources *Registry, projectID string, opts ProjectQuotaOptions) (map[string]ProjectQuotaDetail, error) {
	projectOverrides, errProject := d.overrides.ProjectQuotas(ctx, projectID)
	if errProject != nil {
		return nil, errProject
	}

	var usages map[string]Usage
	if opts.Usages {
		var errUsages error
		usages, errUsages = d.usages.Usages(ctx, projectID, nil)
		if errUsages != nil {
			return nil, errUsages
		}
	}

	class := opts.QuotaClass
	if class == "" && scope.ProjectID == projectID {
		class = scope.QuotaClass
	}
	classOverrides := map[string]int64{}
	if class != "" {
		var errClass error
		classOverrides, errClass = d.overrides.ClassQuotas(ctx, class)
		if errClass != nil {
			return nil, errClass
		}
	}

	var defaults map[string]int64
	if opts.Defaults && d.needDefaults(resources, projectOverrides, classOverrides) {
		var errDefaults error
		defaults, errDefaults = d.GetDefaults(ctx, resources, opts.ParentProjectID)
		if errDefaults != nil {
			return nil, errDefaults
		}
	}

	out := make(map[string]ProjectQuotaDetail, resources.Len())
	for name := range resources.All() {
		limit, ok := projectOverrides[name]
		if !ok {
			limit, ok = classOverrides[name]
		}
		if !ok {
			if !opts.Defaults {
				continue
			}
			limit = defaults[name]
		}
		detail := ProjectQuotaDetail{Limit: limit}
		if opts.Usages {
			u := usages[name]
			detail.Usage = &u
		}
		out[name] = detail
	}
	return out, nil
}

func (d *DBQuotaDriver) needDefaults(resources *Registry, projectOverrides, classOverrides map[string]int64) bool {
	for name := range resources.All() {
		if _, ok := projectOverrides[name]; ok {
			continue
		}
		if _, ok := classOverrides[name]; ok {
			continue
		}
		return true
	}
	return false
}

// getQuotas resolves effective limits for the named resources,
// rejecting duplicated names and names that are unregistered or in the
// wrong reservability tier before any store access happens.
func (d *DBQuotaDriver) getQuotas(ctx context.Context, scope Scope, resources *Registry, names []string, wantSync bool, projectID string) (map[string]int64, error) {
	sub := resources.Subset(names, wantSync)
	seen := make(map[string]struct{}, len(names))
	var bad []string
	for _, name := range names {
		if _, dup := seen[name]; dup {
			bad = append(bad, name)
			continue
		}
		seen[name] = struct{}{}
		if _, ok := sub.Get(name); !ok {
			bad = append(bad, name)
		}
	}
	if len(bad) > 0 {
		sort.Strings(bad)
		return nil, &QuotaResourceUnknownError{Resources: bad}
	}

	details, errQuotas := d.GetProjectQuotas(ctx, scope, sub, projectID, ProjectQuotaOptions{
		QuotaClass: scope.QuotaClass,
		Defaults:   true,
	})
	if errQuotas != nil {
		return nil, errQuotas
	}
	out := make(map[string]int64, len(details))
	for name, detail := range details {
		out[name] = detail.Limit
	}
	return out, nil
}

// LimitCheck verifies that the proposed absolute values fit under the
// effective limits, counting current usage and pending reservations
// against them. It performs no writes.
func (d *DBQuotaDriver) LimitCheck(ctx context.Context, scope Scope, resources *Registry, values map[string]int64, projectID string) error {
	if projectID == "" {
		projectID = scope.ProjectID
	}
	names := make([]string, 0, len(values))
	for name, v := range values {
		if v < 0 {
			return &InvalidQuotaValueError{Resource: name, Value: v}
		}
		names = append(names, name)
	}
	sort.Strings(names)

	quotas, errQuotas := d.getQuotas(ctx, scope, resources, names, false, projectID)
	if errQuotas != nil {
		return errQuotas
	}
	usages, errUsages := d.usages.Usages(ctx, projectID, names)
	if errUsages != nil {
		return errUsages
	}

	var overs []string
	for _, name := range names {
		limit := quotas[name]
		if limit < 0 {
			continue
		}
		if values[name]+usages[name].Consumed() > limit {
			overs = append(overs, name)
		}
	}
	if len(overs) > 0 {
		return &OverQuotaError{Overs: overs, Quotas: quotas, Usages: usages}
	}
	return nil
}

// Reserve claims the given deltas inside one transaction, resyncing
// stale usage rows first. It returns one reservation id per delta, in
// delta order. A denial rolls back every effect of the attempt.
func (d *DBQuotaDriver) Reserve(ctx context.Context, scope Scope, resources *Registry, deltas []Delta, opts ReserveOptions) ([]string, error) {
	expire, errExpire := resolveExpire(opts, d.cfg, time.Now().UTC())
	if errExpire != nil {
		return nil, errExpire
	}
	projectID := opts.ProjectID
	if projectID == "" {
		projectID = scope.ProjectID
	}

	names := make([]string, len(deltas))
	for i, delta := range deltas {
		names[i] = delta.Resource
	}
	quotas, errQuotas := d.getQuotas(ctx, scope, resources, names, true, projectID)
	if errQuotas != nil {
		return nil, errQuotas
	}

	ids, errReserve := d.usages.Reserve(ctx, ReserveRequest{
		ProjectID:    projectID,
		Resources:    resources.All(),
		Quotas:       quotas,
		Deltas:       deltas,
		Expire:       expire,
		UntilRefresh: d.cfg.Quota.UntilRefresh,
		MaxAge:       d.cfg.MaxAge(),
	})
	if errReserve != nil {
		var over *OverQuotaError
		if errors.As(errReserve, &over) {
			for _, name := range over.Overs {
				metrics.ReservationsDenied.WithLabelValues(name).Inc()
			}
		}
		return nil, errReserve
	}
	metrics.ReservationsGranted.Inc()
	return ids, nil
}

// Commit applies the named reservations to committed usage and removes
// them. Unknown ids are skipped.
func (d *DBQuotaDriver) Commit(ctx context.Context, scope Scope, ids []string, projectID string) error {
	if projectID == "" {
		projectID = scope.ProjectID
	}
	if errCommit := d.usages.Commit(ctx, projectID, ids); errCommit != nil {
		return errCommit
	}
	metrics.ReservationsCommitted.Add(float64(len(ids)))
	return nil
}

// Rollback releases the named reservations without touching committed
// usage. Unknown ids are skipped.
func (d *DBQuotaDriver) Rollback(ctx context.Context, scope Scope, ids []string, projectID string) error {
	if projectID == "" {
		projectID = scope.ProjectID
	}
	if errRollback := d.usages.Rollback(ctx, projectID, ids); errRollback != nil {
		return errRollback
	}
	metrics.ReservationsRolledBack.Add(float64(len(ids)))
	return nil
}

// DestroyByProject drops all quota state recorded for a project.
func (d *DBQuotaDriver) DestroyByProject(ctx context.Context, projectID string) error {
	return d.usages.DestroyByProject(ctx, projectID)
}

// ExpireReservations rolls back every reservation whose expiration has
// passed and reports how many were released.
func (d *DBQuotaDriver) ExpireReservations(ctx context.Context) (int, error) {
	n, errExpire := d.usages.ExpireReservations(ctx, time.Now().UTC())
	if n > 0 {
		metrics.ReservationsExpired.Add(float64(n))
	}
	return n, errExpire
}

// resolveExpire normalizes the expiration options into an absolute
// point in time, defaulting to the configured reservation lifetime.
func resolveExpire(opts ReserveOptions, cfg *config.Config, now time.Time) (time.Time, error) {
	if opts.TTL != 0 && !opts.ExpireAt.IsZero() {
		return time.Time{}, &InvalidReservationExpirationError{Expire: opts.ExpireAt}
	}
	if !opts.ExpireAt.IsZero() {
		if !opts.ExpireAt.After(now) {
			return time.Time{}, &InvalidReservationExpirationError{Expire: opts.ExpireAt}
		}
		return opts.ExpireAt, nil
	}
	ttl := opts.TTL
	if ttl == 0 {
		ttl = cfg.ReservationExpire()
	}
	if ttl < 0 {
		return time.Time{}, &InvalidReservationExpirationError{}
	}
	return now.Add(ttl), nil
}

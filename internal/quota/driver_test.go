package quota_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/lijhnihaoa/blockquota/internal/config"
	"github.com/lijhnihaoa/blockquota/internal/db"
	"github.com/lijhnihaoa/blockquota/internal/models"
	"github.com/lijhnihaoa/blockquota/internal/quota"
	"github.com/lijhnihaoa/blockquota/internal/sources"
	"github.com/lijhnihaoa/blockquota/internal/store"
)

type driverEnv struct {
	cfg    *config.Config
	conn   *gorm.DB
	store  *store.Store
	driver *quota.DBQuotaDriver
	reg    *quota.Registry
}

func setupDriver(t *testing.T) *driverEnv {
	t.Helper()
	conn, errOpen := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open sqlite: %v", errOpen)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	cfg := config.Default()
	st := store.New(conn)
	sources.RegisterSyncs(st, &cfg)
	reg := quota.NewRegistry()
	reg.RegisterAll(quota.DefaultResources())
	return &driverEnv{
		cfg:    &cfg,
		conn:   conn,
		store:  st,
		driver: quota.NewDBQuotaDriver(&cfg, st, st),
		reg:    reg,
	}
}

func TestGetDefaultsMergesDefaultClass(t *testing.T) {
	env := setupDriver(t)
	ctx := context.Background()

	if errSet := env.store.SetClassQuota(ctx, store.DefaultQuotaClass, "volumes", 5); errSet != nil {
		t.Fatalf("set default class quota: %v", errSet)
	}

	defaults, errDefaults := env.driver.GetDefaults(ctx, env.reg, "")
	if errDefaults != nil {
		t.Fatalf("get defaults: %v", errDefaults)
	}
	if defaults["volumes"] != 5 {
		t.Fatalf("volumes default = %d, want 5 from default class", defaults["volumes"])
	}
	if defaults["gigabytes"] != 1000 {
		t.Fatalf("gigabytes default = %d, want configured 1000", defaults["gigabytes"])
	}
	if defaults["per_volume_gigabytes"] != -1 {
		t.Fatalf("per_volume_gigabytes default = %d, want -1", defaults["per_volume_gigabytes"])
	}
}

func TestGetDefaultsSubprojectZero(t *testing.T) {
	env := setupDriver(t)

	defaults, errDefaults := env.driver.GetDefaults(context.Background(), env.reg, "parent")
	if errDefaults != nil {
		t.Fatalf("get defaults: %v", errDefaults)
	}
	for name, limit := range defaults {
		if limit != 0 {
			t.Fatalf("subproject default for %s = %d, want 0", name, limit)
		}
	}
}

func TestGetClassQuotas(t *testing.T) {
	env := setupDriver(t)
	ctx := context.Background()

	if errSet := env.store.SetClassQuota(ctx, "gold", "volumes", 50); errSet != nil {
		t.Fatalf("set class quota: %v", errSet)
	}

	withDefaults, errWith := env.driver.GetClassQuotas(ctx, env.reg, "gold", true)
	if errWith != nil {
		t.Fatalf("get class quotas: %v", errWith)
	}
	if withDefaults["volumes"] != 50 {
		t.Fatalf("volumes = %d, want 50", withDefaults["volumes"])
	}
	if withDefaults["snapshots"] != 10 {
		t.Fatalf("snapshots = %d, want configured 10", withDefaults["snapshots"])
	}

	bare, errBare := env.driver.GetClassQuotas(ctx, env.reg, "gold", false)
	if errBare != nil {
		t.Fatalf("get class quotas without defaults: %v", errBare)
	}
	if len(bare) != 1 {
		t.Fatalf("override-only result has %d entries, want 1: %v", len(bare), bare)
	}
}

func TestGetProjectQuotasPrecedence(t *testing.T) {
	env := setupDriver(t)
	ctx := context.Background()
	scope := quota.Scope{ProjectID: "p1", QuotaClass: "gold"}

	if errSet := env.store.SetProjectQuota(ctx, "p1", "volumes", 15); errSet != nil {
		t.Fatalf("set project quota: %v", errSet)
	}
	if errSet := env.store.SetClassQuota(ctx, "gold", "volumes", 25); errSet != nil {
		t.Fatalf("set class quota: %v", errSet)
	}
	if errSet := env.store.SetClassQuota(ctx, "gold", "gigabytes", 2000); errSet != nil {
		t.Fatalf("set class quota: %v", errSet)
	}

	quotas, errQuotas := env.driver.GetProjectQuotas(ctx, scope, env.reg, "p1", quota.ProjectQuotaOptions{Defaults: true})
	if errQuotas != nil {
		t.Fatalf("get project quotas: %v", errQuotas)
	}
	if quotas["volumes"].Limit != 15 {
		t.Fatalf("volumes = %d, want project override 15", quotas["volumes"].Limit)
	}
	if quotas["gigabytes"].Limit != 2000 {
		t.Fatalf("gigabytes = %d, want class override 2000", quotas["gigabytes"].Limit)
	}
	if quotas["snapshots"].Limit != 10 {
		t.Fatalf("snapshots = %d, want configured default 10", quotas["snapshots"].Limit)
	}
}

func TestGetProjectQuotasScopeClassOnlyForOwnProject(t *testing.T) {
	env := setupDriver(t)
	ctx := context.Background()

	if errSet := env.store.SetClassQuota(ctx, "gold", "volumes", 25); errSet != nil {
		t.Fatalf("set class quota: %v", errSet)
	}

	// Asking about someone else's project ignores the caller's class.
	other := quota.Scope{ProjectID: "p1", QuotaClass: "gold"}
	quotas, errQuotas := env.driver.GetProjectQuotas(ctx, other, env.reg, "p2", quota.ProjectQuotaOptions{Defaults: true})
	if errQuotas != nil {
		t.Fatalf("get project quotas: %v", errQuotas)
	}
	if quotas["volumes"].Limit != 10 {
		t.Fatalf("volumes = %d, want configured default 10", quotas["volumes"].Limit)
	}

	// An explicit class argument applies no matter the target project.
	quotas, errQuotas = env.driver.GetProjectQuotas(ctx, other, env.reg, "p2", quota.ProjectQuotaOptions{Defaults: true, QuotaClass: "gold"})
	if errQuotas != nil {
		t.Fatalf("get project quotas with class: %v", errQuotas)
	}
	if quotas["volumes"].Limit != 25 {
		t.Fatalf("volumes = %d, want class override 25", quotas["volumes"].Limit)
	}
}

func TestGetProjectQuotasWithoutDefaultsOmits(t *testing.T) {
	env := setupDriver(t)
	ctx := context.Background()
	scope := quota.Scope{ProjectID: "p1"}

	if errSet := env.store.SetProjectQuota(ctx, "p1", "gigabytes", 500); errSet != nil {
		t.Fatalf("set project quota: %v", errSet)
	}

	quotas, errQuotas := env.driver.GetProjectQuotas(ctx, scope, env.reg, "p1", quota.ProjectQuotaOptions{})
	if errQuotas != nil {
		t.Fatalf("get project quotas: %v", errQuotas)
	}
	if len(quotas) != 1 {
		t.Fatalf("result has %d entries, want only the explicit override: %v", len(quotas), quotas)
	}
	if quotas["gigabytes"].Limit != 500 {
		t.Fatalf("gigabytes = %d, want 500", quotas["gigabytes"].Limit)
	}
}

// countingOverrides wraps an OverrideStore and counts defaults lookups.
type countingOverrides struct {
	quota.OverrideStore
	classDefaultsCalls int
}

func (c *countingOverrides) ClassDefaults(ctx context.Context) (map[string]int64, error) {
	c.classDefaultsCalls++
	return c.OverrideStore.ClassDefaults(ctx)
}

func TestGetProjectQuotasLazyDefaultsLookup(t *testing.T) {
	env := setupDriver(t)
	ctx := context.Background()
	scope := quota.Scope{ProjectID: "p1"}

	counting := &countingOverrides{OverrideStore: env.store}
	driver := quota.NewDBQuotaDriver(env.cfg, counting, env.store)

	for _, name := range env.reg.Names() {
		if errSet := env.store.SetProjectQuota(ctx, "p1", name, 42); errSet != nil {
			t.Fatalf("set project quota for %s: %v", name, errSet)
		}
	}

	if _, errQuotas := driver.GetProjectQuotas(ctx, scope, env.reg, "p1", quota.ProjectQuotaOptions{Defaults: true}); errQuotas != nil {
		t.Fatalf("get project quotas: %v", errQuotas)
	}
	if counting.classDefaultsCalls != 0 {
		t.Fatalf("defaults lookup ran %d times with every resource overridden, want 0", counting.classDefaultsCalls)
	}

	// Removing one override leaves a gap that only the defaults can fill.
	if errDestroy := env.store.DestroyProjectQuota(ctx, "p1", "snapshots"); errDestroy != nil {
		t.Fatalf("destroy project quota: %v", errDestroy)
	}
	quotas, errQuotas := driver.GetProjectQuotas(ctx, scope, env.reg, "p1", quota.ProjectQuotaOptions{Defaults: true})
	if errQuotas != nil {
		t.Fatalf("get project quotas after removing one override: %v", errQuotas)
	}
	if counting.classDefaultsCalls != 1 {
		t.Fatalf("defaults lookup ran %d times with one resource uncovered, want 1", counting.classDefaultsCalls)
	}
	if quotas["snapshots"].Limit != 10 {
		t.Fatalf("snapshots = %d, want configured default 10", quotas["snapshots"].Limit)
	}
	if quotas["volumes"].Limit != 42 {
		t.Fatalf("volumes = %d, want project override 42", quotas["volumes"].Limit)
	}
}

func TestGetProjectQuotasWithUsages(t *testing.T) {
	env := setupDriver(t)
	ctx := context.Background()
	scope := quota.Scope{ProjectID: "p1"}

	ids, errReserve := env.driver.Reserve(ctx, scope, env.reg, []quota.Delta{{Resource: "volumes", Amount: 2}}, quota.ReserveOptions{})
	if errReserve != nil {
		t.Fatalf("reserve: %v", errReserve)
	}
	if len(ids) != 1 {
		t.Fatalf("got %d reservation ids, want 1", len(ids))
	}

	quotas, errQuotas := env.driver.GetProjectQuotas(ctx, scope, env.reg, "p1", quota.ProjectQuotaOptions{Defaults: true, Usages: true})
	if errQuotas != nil {
		t.Fatalf("get project quotas: %v", errQuotas)
	}
	vol := quotas["volumes"]
	if vol.Usage == nil {
		t.Fatal("volumes usage missing")
	}
	if vol.Usage.InUse != 0 || vol.Usage.Reserved != 2 {
		t.Fatalf("volumes usage = %+v, want in_use 0 reserved 2", vol.Usage)
	}
	if quotas["snapshots"].Usage == nil || quotas["snapshots"].Usage.Reserved != 0 {
		t.Fatalf("snapshots usage = %+v, want zeros", quotas["snapshots"].Usage)
	}
}

func TestReserveSyncsFromSourceTables(t *testing.T) {
	env := setupDriver(t)
	ctx := context.Background()
	scope := quota.Scope{ProjectID: "p1"}

	for _, size := range []int64{10, 15} {
		if errCreate := env.conn.Create(&models.Volume{ProjectID: "p1", Size: size, Status: "available"}).Error; errCreate != nil {
			t.Fatalf("seed volume: %v", errCreate)
		}
	}

	_, errReserve := env.driver.Reserve(ctx, scope, env.reg, []quota.Delta{
		{Resource: "volumes", Amount: 1},
		{Resource: "gigabytes", Amount: 5},
	}, quota.ReserveOptions{})
	if errReserve != nil {
		t.Fatalf("reserve: %v", errReserve)
	}

	usages, errUsages := env.store.Usages(ctx, "p1", nil)
	if errUsages != nil {
		t.Fatalf("usages: %v", errUsages)
	}
	if usages["volumes"].InUse != 2 {
		t.Fatalf("volumes in_use = %d, want 2 from source tables", usages["volumes"].InUse)
	}
	if usages["gigabytes"].InUse != 25 {
		t.Fatalf("gigabytes in_use = %d, want 25 from source tables", usages["gigabytes"].InUse)
	}
}

func TestReserveUnknownResource(t *testing.T) {
	env := setupDriver(t)
	scope := quota.Scope{ProjectID: "p1"}

	_, errReserve := env.driver.Reserve(context.Background(), scope, env.reg, []quota.Delta{
		{Resource: "volumes", Amount: 1},
		{Resource: "floppies", Amount: 1},
		{Resource: "per_volume_gigabytes", Amount: 1},
	}, quota.ReserveOptions{})

	var unknown *quota.QuotaResourceUnknownError
	if !errors.As(errReserve, &unknown) {
		t.Fatalf("got %v, want QuotaResourceUnknownError", errReserve)
	}
	want := []string{"floppies", "per_volume_gigabytes"}
	if len(unknown.Resources) != len(want) || unknown.Resources[0] != want[0] || unknown.Resources[1] != want[1] {
		t.Fatalf("unknown = %v, want %v", unknown.Resources, want)
	}

	var rows int64
	if errCount := env.conn.Model(&models.QuotaUsage{}).Count(&rows).Error; errCount != nil {
		t.Fatalf("count usages: %v", errCount)
	}
	if rows != 0 {
		t.Fatalf("usage rows created before validation: %d", rows)
	}
}

func TestReserveDuplicateResourceRejected(t *testing.T) {
	env := setupDriver(t)
	scope := quota.Scope{ProjectID: "p1"}

	_, errReserve := env.driver.Reserve(context.Background(), scope, env.reg, []quota.Delta{
		{Resource: "volumes", Amount: 1},
		{Resource: "volumes", Amount: 1},
	}, quota.ReserveOptions{})

	var unknown *quota.QuotaResourceUnknownError
	if !errors.As(errReserve, &unknown) {
		t.Fatalf("got %v, want QuotaResourceUnknownError", errReserve)
	}
	if len(unknown.Resources) != 1 || unknown.Resources[0] != "volumes" {
		t.Fatalf("resources = %v, want the duplicated name [volumes]", unknown.Resources)
	}
}

func TestReserveExpireValidation(t *testing.T) {
	env := setupDriver(t)
	scope := quota.Scope{ProjectID: "p1"}
	deltas := []quota.Delta{{Resource: "volumes", Amount: 1}}

	_, errPast := env.driver.Reserve(context.Background(), scope, env.reg, deltas, quota.ReserveOptions{
		ExpireAt: time.Now().UTC().Add(-time.Second),
	})
	var invalid *quota.InvalidReservationExpirationError
	if !errors.As(errPast, &invalid) {
		t.Fatalf("got %v, want InvalidReservationExpirationError", errPast)
	}

	_, errNegative := env.driver.Reserve(context.Background(), scope, env.reg, deltas, quota.ReserveOptions{
		TTL: -time.Minute,
	})
	if !errors.As(errNegative, &invalid) {
		t.Fatalf("got %v, want InvalidReservationExpirationError", errNegative)
	}

	_, errBoth := env.driver.Reserve(context.Background(), scope, env.reg, deltas, quota.ReserveOptions{
		TTL:      time.Minute,
		ExpireAt: time.Now().UTC().Add(time.Hour),
	})
	if !errors.As(errBoth, &invalid) {
		t.Fatalf("got %v, want InvalidReservationExpirationError when both are set", errBoth)
	}

	ids, errFuture := env.driver.Reserve(context.Background(), scope, env.reg, deltas, quota.ReserveOptions{
		ExpireAt: time.Now().UTC().Add(time.Hour),
	})
	if errFuture != nil {
		t.Fatalf("reserve with future expire: %v", errFuture)
	}
	if len(ids) != 1 {
		t.Fatalf("got %d ids, want 1", len(ids))
	}
}

func TestLimitCheck(t *testing.T) {
	env := setupDriver(t)
	ctx := context.Background()
	scope := quota.Scope{ProjectID: "p1"}

	if errCheck := env.driver.LimitCheck(ctx, scope, env.reg, map[string]int64{"volumes": 10}, ""); errCheck != nil {
		t.Fatalf("limit check at the limit: %v", errCheck)
	}

	errOver := env.driver.LimitCheck(ctx, scope, env.reg, map[string]int64{"volumes": 11}, "")
	var over *quota.OverQuotaError
	if !errors.As(errOver, &over) {
		t.Fatalf("got %v, want OverQuotaError", errOver)
	}
	if len(over.Overs) != 1 || over.Overs[0] != "volumes" {
		t.Fatalf("overs = %v, want [volumes]", over.Overs)
	}

	errNegative := env.driver.LimitCheck(ctx, scope, env.reg, map[string]int64{"volumes": -1}, "")
	var invalid *quota.InvalidQuotaValueError
	if !errors.As(errNegative, &invalid) {
		t.Fatalf("got %v, want InvalidQuotaValueError", errNegative)
	}

	// per_volume_gigabytes is not reservable but is checkable.
	if errCheck := env.driver.LimitCheck(ctx, scope, env.reg, map[string]int64{"per_volume_gigabytes": 100}, ""); errCheck != nil {
		t.Fatalf("limit check on non-reservable resource: %v", errCheck)
	}
}

func TestLimitCheckCountsExistingConsumption(t *testing.T) {
	env := setupDriver(t)
	ctx := context.Background()
	scope := quota.Scope{ProjectID: "p1"}

	_, errReserve := env.driver.Reserve(ctx, scope, env.reg, []quota.Delta{{Resource: "volumes", Amount: 6}}, quota.ReserveOptions{})
	if errReserve != nil {
		t.Fatalf("reserve: %v", errReserve)
	}

	errCheck := env.driver.LimitCheck(ctx, scope, env.reg, map[string]int64{"volumes": 5}, "")
	var over *quota.OverQuotaError
	if !errors.As(errCheck, &over) {
		t.Fatalf("got %v, want OverQuotaError with 6 reserved", errCheck)
	}
}

func TestCommitAndRollbackThroughDriver(t *testing.T) {
	env := setupDriver(t)
	ctx := context.Background()
	scope := quota.Scope{ProjectID: "p1"}

	ids, errReserve := env.driver.Reserve(ctx, scope, env.reg, []quota.Delta{{Resource: "volumes", Amount: 2}}, quota.ReserveOptions{})
	if errReserve != nil {
		t.Fatalf("reserve: %v", errReserve)
	}
	if errCommit := env.driver.Commit(ctx, scope, ids, ""); errCommit != nil {
		t.Fatalf("commit: %v", errCommit)
	}

	ids, errReserve = env.driver.Reserve(ctx, scope, env.reg, []quota.Delta{{Resource: "volumes", Amount: 3}}, quota.ReserveOptions{})
	if errReserve != nil {
		t.Fatalf("second reserve: %v", errReserve)
	}
	if errRollback := env.driver.Rollback(ctx, scope, ids, ""); errRollback != nil {
		t.Fatalf("rollback: %v", errRollback)
	}

	usages, errUsages := env.store.Usages(ctx, "p1", []string{"volumes"})
	if errUsages != nil {
		t.Fatalf("usages: %v", errUsages)
	}
	if usages["volumes"].InUse != 2 || usages["volumes"].Reserved != 0 {
		t.Fatalf("usage = %+v, want in_use 2 reserved 0", usages["volumes"])
	}
}

func TestReserveDeniedVolumeCountMessage(t *testing.T) {
	env := setupDriver(t)
	ctx := context.Background()
	scope := quota.Scope{ProjectID: "p1"}

	if errSet := env.store.SetProjectQuota(ctx, "p1", "volumes", 2); errSet != nil {
		t.Fatalf("set project quota: %v", errSet)
	}
	for i := 0; i < 2; i++ {
		if errCreate := env.conn.Create(&models.Volume{ProjectID: "p1", Size: 10, Status: "available"}).Error; errCreate != nil {
			t.Fatalf("seed volume: %v", errCreate)
		}
	}

	_, errReserve := env.driver.Reserve(ctx, scope, env.reg, []quota.Delta{{Resource: "volumes", Amount: 1}}, quota.ReserveOptions{})
	translated := quota.ProcessReserveOverQuota(errReserve, "volumes", 10)

	want := "Maximum number of volumes allowed (2) exceeded for quota 'volumes'."
	if translated == nil || translated.Error() != want {
		t.Fatalf("error = %v, want %q", translated, want)
	}
}

func TestReserveDeniedGigabytesDetail(t *testing.T) {
	env := setupDriver(t)
	ctx := context.Background()
	scope := quota.Scope{ProjectID: "p1"}

	if errSet := env.store.SetProjectQuota(ctx, "p1", "gigabytes", 20); errSet != nil {
		t.Fatalf("set project quota: %v", errSet)
	}
	if errCreate := env.conn.Create(&models.Volume{ProjectID: "p1", Size: 20, Status: "available"}).Error; errCreate != nil {
		t.Fatalf("seed volume: %v", errCreate)
	}

	_, errReserve := env.driver.Reserve(ctx, scope, env.reg, []quota.Delta{{Resource: "gigabytes", Amount: 1}}, quota.ReserveOptions{})
	translated := quota.ProcessReserveOverQuota(errReserve, "volumes", 1)

	var detail *quota.VolumeSizeExceedsAvailableQuotaError
	if !errors.As(translated, &detail) {
		t.Fatalf("got %v, want VolumeSizeExceedsAvailableQuotaError", translated)
	}
	if detail.Requested != 1 || detail.Quota != 20 || detail.Consumed != 20 {
		t.Fatalf("detail = %+v, want requested 1 quota 20 consumed 20", detail)
	}
}

func TestDestroyByProjectResetsUsage(t *testing.T) {
	env := setupDriver(t)
	ctx := context.Background()
	scope := quota.Scope{ProjectID: "p1"}

	_, errReserve := env.driver.Reserve(ctx, scope, env.reg, []quota.Delta{{Resource: "volumes", Amount: 3}}, quota.ReserveOptions{})
	if errReserve != nil {
		t.Fatalf("reserve: %v", errReserve)
	}

	if errDestroy := env.driver.DestroyByProject(ctx, "p1"); errDestroy != nil {
		t.Fatalf("destroy by project: %v", errDestroy)
	}

	quotas, errQuotas := env.driver.GetProjectQuotas(ctx, scope, env.reg, "p1", quota.ProjectQuotaOptions{Defaults: true, Usages: true})
	if errQuotas != nil {
		t.Fatalf("get project quotas: %v", errQuotas)
	}
	for name, detail := range quotas {
		if detail.Usage == nil || detail.Usage.InUse != 0 || detail.Usage.Reserved != 0 {
			t.Fatalf("usage for %s = %+v after destroy, want zeros", name, detail.Usage)
		}
	}
}

func TestCheckPerVolumeSize(t *testing.T) {
	env := setupDriver(t)
	ctx := context.Background()
	scope := quota.Scope{ProjectID: "p1"}
	engine := quota.NewEngine(env.cfg, env.driver, nil, env.store)

	// The built-in default is unlimited.
	if errCheck := engine.CheckPerVolumeSize(ctx, scope, 10000); errCheck != nil {
		t.Fatalf("check under unlimited default: %v", errCheck)
	}

	if errSet := env.store.SetProjectQuota(ctx, "p1", "per_volume_gigabytes", 50); errSet != nil {
		t.Fatalf("set per-volume limit: %v", errSet)
	}
	if errCheck := engine.CheckPerVolumeSize(ctx, scope, 50); errCheck != nil {
		t.Fatalf("check at the limit: %v", errCheck)
	}

	errOver := engine.CheckPerVolumeSize(ctx, scope, 100)
	var exceeds *quota.VolumeSizeExceedsLimitError
	if !errors.As(errOver, &exceeds) {
		t.Fatalf("got %v, want VolumeSizeExceedsLimitError", errOver)
	}
	want := "Requested volume size 100 is larger than maximum allowed limit 50."
	if errOver.Error() != want {
		t.Fatalf("message = %q, want %q", errOver.Error(), want)
	}
}

func TestExpireReservationsThroughDriver(t *testing.T) {
	env := setupDriver(t)
	ctx := context.Background()
	scope := quota.Scope{ProjectID: "p1"}

	_, errReserve := env.driver.Reserve(ctx, scope, env.reg, []quota.Delta{{Resource: "volumes", Amount: 2}}, quota.ReserveOptions{
		ExpireAt: time.Now().UTC().Add(50 * time.Millisecond),
	})
	if errReserve != nil {
		t.Fatalf("reserve: %v", errReserve)
	}
	time.Sleep(100 * time.Millisecond)

	released, errExpire := env.driver.ExpireReservations(ctx)
	if errExpire != nil {
		t.Fatalf("expire: %v", errExpire)
	}
	if released != 1 {
		t.Fatalf("released = %d, want 1", released)
	}

	usages, errUsages := env.store.Usages(ctx, "p1", []string{"volumes"})
	if errUsages != nil {
		t.Fatalf("usages: %v", errUsages)
	}
	if usages["volumes"].Reserved != 0 {
		t.Fatalf("reserved = %d after expiry, want 0", usages["volumes"].Reserved)
	}
}

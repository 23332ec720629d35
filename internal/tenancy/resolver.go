package tenancy

import (
	"context"
	"slices"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/mosaicms/mosaic/internal/config"
	"github.com/mosaicms/mosaic/internal/metrics"
)

// Catalog lists the database names currently known to the storage engine.
// Satisfied by *Registry.
type Catalog interface {
	ListDatabaseNames(ctx context.Context) ([]string, error)
}

// Resolver derives the backing database name for a tenant id. Static
// overrides and the local tenant short-circuit; everything else goes
// through the naming convention, checked against the catalog via the
// TTL existence cache.
type Resolver struct {
	cfg     config.TenancyConfig
	catalog Catalog
	cache   *ExistenceCache
	group   singleflight.Group
	logger  *zap.Logger
	metrics *metrics.Collector
}

func NewResolver(cfg config.TenancyConfig, catalog Catalog, logger *zap.Logger, collector *metrics.Collector) *Resolver {
	return &Resolver{
		cfg:     cfg,
		catalog: catalog,
		cache:   NewExistenceCache(cfg.CacheTTL),
		logger:  logger,
		metrics: collector,
	}
}

// Resolve maps a tenant id to its database name. The primary candidate is
// prefix_tenant; if the catalog has no such database, prefix-tenant is
// tried before giving up. A NotFoundError carries the catalog snapshot; a
// VerificationError means the catalog itself could not be read and the
// request must not proceed, since connecting to an unknown database would
// implicitly create it.
func (r *Resolver) Resolve(ctx context.Context, tenantID string) (string, error) {
	if db, ok := r.cfg.StaticMapping[tenantID]; ok {
		return db, nil
	}
	if tenantID == LocalTenant {
		return r.cfg.LocalDB, nil
	}

	primary := r.cfg.DBPrefix + "_" + tenantID
	if e, ok := r.cache.Get(primary); ok {
		r.metrics.CacheHit()
		return resolved(tenantID, e)
	}
	r.metrics.CacheMiss()

	v, err, _ := r.group.Do(primary, func() (any, error) {
		return r.check(ctx, tenantID, primary)
	})
	if err != nil {
		return "", err
	}
	return resolved(tenantID, v.(ExistenceEntry))
}

// check queries the catalog once, tries the fallback naming variant, and
// records the outcome in the cache. Catalog failures are not cached: the
// next request must be able to query again.
func (r *Resolver) check(ctx context.Context, tenantID, primary string) (ExistenceEntry, error) {
	names, err := r.catalog.ListDatabaseNames(ctx)
	if err != nil {
		r.logger.Error("catalog query failed",
			zap.String("tenant", tenantID), zap.Error(err))
		return ExistenceEntry{}, &VerificationError{Subdomain: tenantID, DBName: primary, Err: err}
	}
	r.metrics.CatalogQuery()

	known := make([]string, 0, len(names))
	for _, name := range names {
		if strings.HasPrefix(name, r.cfg.DBPrefix) {
			known = append(known, name)
		}
	}

	dbName := primary
	exists := slices.Contains(names, primary)
	if !exists {
		fallback := r.cfg.DBPrefix + "-" + tenantID
		if slices.Contains(names, fallback) {
			dbName = fallback
			exists = true
			r.logger.Info("resolved database via fallback naming",
				zap.String("tenant", tenantID), zap.String("database", fallback))
		}
	}

	r.cache.Put(primary, exists, dbName, known)
	return ExistenceEntry{Exists: exists, DBName: dbName, KnownDBs: known}, nil
}

func resolved(tenantID string, e ExistenceEntry) (string, error) {
	if !e.Exists {
		return "", &NotFoundError{Subdomain: tenantID, DBName: e.DBName, KnownDBs: e.KnownDBs}
	}
	return e.DBName, nil
}

package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mosaicms/mosaic/internal/core"
	"github.com/mosaicms/mosaic/internal/tenancy"
)

const tenantContextKey = "tenant_context"

// Resolver maps a tenant id to its backing database name.
type Resolver interface {
	Resolve(ctx context.Context, tenantID string) (string, error)
}

// Pools hands out shared connection pools.
type Pools interface {
	GetOrCreate(ctx context.Context, dbName string) (*tenancy.PooledConnection, error)
	Central(ctx context.Context) (*tenancy.PooledConnection, error)
}

// Gate decides license admission.
type Gate interface {
	Check(ctx context.Context, sub tenancy.SubdomainResult) tenancy.Decision
}

// Tenant resolves the request's tenant, attaches its database handles, and
// enforces the license. exposeCatalog controls whether 404 bodies include
// the list of known tenant databases.
func Tenant(resolver Resolver, pools Pools, gate Gate, exposeCatalog bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		sub := tenancy.ResolveSubdomain(c.Request.Header, c.Request.Host)

		dbName, err := resolver.Resolve(ctx, sub.TenantID)
		if err != nil {
			var verr *tenancy.VerificationError
			if errors.As(err, &verr) {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"success":   false,
					"message":   "Cannot verify database existence",
					"error":     verr.Err.Error(),
					"subdomain": sub.TenantID,
					"database":  verr.DBName,
				})
				return
			}
			var nferr *tenancy.NotFoundError
			if errors.As(err, &nferr) {
				body := gin.H{
					"success":           false,
					"message":           "Database does NOT exist",
					"error":             nferr.Error(),
					"subdomain":         sub.TenantID,
					"requestedDatabase": nferr.DBName,
					"hint":              "Provision the tenant database or add a static mapping for this subdomain",
				}
				if exposeCatalog {
					body["availableDatabases"] = nferr.KnownDBs
				}
				c.AbortWithStatusJSON(http.StatusNotFound, body)
				return
			}
			connectionFailed(c, err)
			return
		}

		conn, err := pools.GetOrCreate(ctx, dbName)
		if err != nil {
			connectionFailed(c, err)
			return
		}
		central, err := pools.Central(ctx)
		if err != nil {
			connectionFailed(c, err)
			return
		}

		if decision := gate.Check(ctx, sub); !decision.Admit {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success":      false,
				"message":      "Organization license is expired or inactive",
				"code":         decision.Code,
				"organization": decision.Organization,
			})
			return
		}

		c.Set(tenantContextKey, &core.TenantContext{
			TenantID:  sub.TenantID,
			DBName:    dbName,
			DB:        conn.DB(),
			CentralDB: central.DB(),
		})
		c.Set("tenant_id", sub.TenantID)
		c.Next()
	}
}

func connectionFailed(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
		"success": false,
		"message": "Database connection failed",
		"error":   err.Error(),
	})
}

// TenantFromContext returns the per-request tenant context set by Tenant.
func TenantFromContext(c *gin.Context) (*core.TenantContext, bool) {
	v, ok := c.Get(tenantContextKey)
	if !ok {
		return nil, false
	}
	tc, ok := v.(*core.TenantContext)
	return tc, ok
}

package tenancy

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.uber.org/zap"

	"github.com/mosaicms/mosaic/internal/core"
	"github.com/mosaicms/mosaic/internal/metrics"
)

// CodeLicenseExpired is the machine-readable reason attached to license
// denials.
const CodeLicenseExpired = "LICENSE_EXPIRED"

const organizationsCollection = "organizations"

// OrgLookup fetches the organization record for a tenant id from the
// central store. Must return mongo.ErrNoDocuments for unknown tenants.
type OrgLookup func(ctx context.Context, tenantID string) (*core.Organization, error)

// Decision is the outcome of a license check. Organization is set only on
// denial, for the caller to render a user-facing message.
type Decision struct {
	Admit        bool
	Code         string
	Organization *core.OrganizationSummary
}

// LicenseGate admits or denies requests based on the tenant's subscription
// in the central store. Unknown tenants are admitted (unregistered
// subdomains already fail on store existence upstream), and lookup
// infrastructure failures fail open: a skipped billing check is cheaper
// than an outage, unlike the fail-closed existence check.
type LicenseGate struct {
	lookup  OrgLookup
	logger  *zap.Logger
	metrics *metrics.Collector
	now     func() time.Time
}

func NewLicenseGate(lookup OrgLookup, logger *zap.Logger, collector *metrics.Collector) *LicenseGate {
	return &LicenseGate{
		lookup:  lookup,
		logger:  logger,
		metrics: collector,
		now:     time.Now,
	}
}

// CentralOrgLookup builds the production OrgLookup against the central
// database owned by the registry.
func CentralOrgLookup(registry *Registry) OrgLookup {
	return func(ctx context.Context, tenantID string) (*core.Organization, error) {
		conn, err := registry.Central(ctx)
		if err != nil {
			return nil, err
		}
		var org core.Organization
		err = conn.DB().Collection(organizationsCollection).
			FindOne(ctx, bson.D{{Key: "subdomain", Value: tenantID}}).
			Decode(&org)
		if err != nil {
			return nil, err
		}
		return &org, nil
	}
}

// Check evaluates the tenant's license. Bare localhost access with no
// override headers skips the check entirely.
func (g *LicenseGate) Check(ctx context.Context, sub SubdomainResult) Decision {
	if sub.TenantID == LocalTenant && !sub.FromHeader {
		return Decision{Admit: true}
	}

	org, err := g.lookup(ctx, sub.TenantID)
	if errors.Is(err, mongo.ErrNoDocuments) {
		// License gating only applies to registered organizations.
		return Decision{Admit: true}
	}
	if err != nil {
		g.metrics.LicenseCheckFailed()
		g.logger.Warn("license check failed, admitting request",
			zap.String("tenant", sub.TenantID), zap.Error(err))
		return Decision{Admit: true}
	}

	if org.LicenseValid(g.now()) {
		return Decision{Admit: true}
	}

	g.metrics.LicenseDenied(sub.TenantID)
	summary := org.Summary()
	return Decision{Admit: false, Code: CodeLicenseExpired, Organization: &summary}
}

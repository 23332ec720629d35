package tenancy

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.uber.org/zap"

	"github.com/mosaicms/mosaic/internal/core"
)

func orgWithEndDate(status string, end *time.Time) *core.Organization {
	return &core.Organization{
		Subdomain:    "acme",
		Name:         "acme",
		DisplayName:  "Acme Publishing",
		ContactEmail: "ops@acme.example",
		Subscription: core.Subscription{Status: status, EndDate: end},
	}
}

func newTestGate(lookup OrgLookup) *LicenseGate {
	return NewLicenseGate(lookup, zap.NewNop(), nil)
}

func TestLicenseActiveFutureEndDateAdmitted(t *testing.T) {
	end := time.Now().Add(24 * time.Hour)
	gate := newTestGate(func(ctx context.Context, tenantID string) (*core.Organization, error) {
		return orgWithEndDate(core.SubscriptionActive, &end), nil
	})

	d := gate.Check(context.Background(), SubdomainResult{TenantID: "acme"})
	assert.True(t, d.Admit)
	assert.Nil(t, d.Organization)
}

func TestLicenseActiveNoEndDateAdmitted(t *testing.T) {
	gate := newTestGate(func(ctx context.Context, tenantID string) (*core.Organization, error) {
		return orgWithEndDate(core.SubscriptionActive, nil), nil
	})

	d := gate.Check(context.Background(), SubdomainResult{TenantID: "acme"})
	assert.True(t, d.Admit)
}

func TestLicenseExpiredDenied(t *testing.T) {
	end := time.Now().Add(-24 * time.Hour)
	gate := newTestGate(func(ctx context.Context, tenantID string) (*core.Organization, error) {
		return orgWithEndDate(core.SubscriptionActive, &end), nil
	})

	d := gate.Check(context.Background(), SubdomainResult{TenantID: "acme"})
	require.False(t, d.Admit)
	assert.Equal(t, CodeLicenseExpired, d.Code)
	require.NotNil(t, d.Organization)
	assert.Equal(t, "Acme Publishing", d.Organization.DisplayName)
	assert.Equal(t, "ops@acme.example", d.Organization.ContactEmail)
}

func TestLicenseInactiveStatusDenied(t *testing.T) {
	for _, status := range []string{
		core.SubscriptionInactive,
		core.SubscriptionSuspended,
		core.SubscriptionPending,
	} {
		gate := newTestGate(func(ctx context.Context, tenantID string) (*core.Organization, error) {
			return orgWithEndDate(status, nil), nil
		})
		d := gate.Check(context.Background(), SubdomainResult{TenantID: "acme"})
		assert.False(t, d.Admit, "status %q must deny", status)
		assert.Equal(t, CodeLicenseExpired, d.Code)
	}
}

func TestLicenseUnknownTenantAdmitted(t *testing.T) {
	gate := newTestGate(func(ctx context.Context, tenantID string) (*core.Organization, error) {
		return nil, mongo.ErrNoDocuments
	})

	d := gate.Check(context.Background(), SubdomainResult{TenantID: "acme"})
	assert.True(t, d.Admit)
}

func TestLicenseLookupFailureFailsOpen(t *testing.T) {
	gate := newTestGate(func(ctx context.Context, tenantID string) (*core.Organization, error) {
		return nil, errors.New("central store unreachable")
	})

	d := gate.Check(context.Background(), SubdomainResult{TenantID: "acme"})
	assert.True(t, d.Admit, "gate infrastructure failure must not deny the request")
}

func TestLicenseSkipsBareLocalTenant(t *testing.T) {
	var calls atomic.Int64
	gate := newTestGate(func(ctx context.Context, tenantID string) (*core.Organization, error) {
		calls.Add(1)
		return nil, mongo.ErrNoDocuments
	})

	d := gate.Check(context.Background(), SubdomainResult{TenantID: LocalTenant})
	assert.True(t, d.Admit)
	assert.EqualValues(t, 0, calls.Load(), "bare localhost is a trusted development path")

	// Local tenant via override header is still checked.
	gate.Check(context.Background(), SubdomainResult{TenantID: LocalTenant, FromHeader: true})
	assert.EqualValues(t, 1, calls.Load())
}

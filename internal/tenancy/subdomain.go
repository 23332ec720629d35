package tenancy

import (
	"net"
	"net/http"
	"strings"
)

// LocalTenant is the distinguished tenant id for bare localhost access.
const LocalTenant = "local"

// Header overrides consulted before the Host header, in precedence order.
const (
	HeaderTenantSubdomain = "X-Tenant-Subdomain"
	HeaderOriginalHost    = "X-Original-Host"
)

// SubdomainResult carries the resolved tenant id plus whether it came from
// an override header. The license gate trusts bare localhost access only
// when no override was involved.
type SubdomainResult struct {
	TenantID   string
	FromHeader bool
}

// ResolveSubdomain derives the tenant id for a request. Precedence:
// X-Tenant-Subdomain, then the leading label of X-Original-Host, then the
// leading label of the Host header. Ports are stripped; localhost, 127.0.0.1
// and ::1 map to the local tenant. Pure; always returns a tenant id.
func ResolveSubdomain(header http.Header, host string) SubdomainResult {
	if sub := strings.TrimSpace(header.Get(HeaderTenantSubdomain)); sub != "" {
		return SubdomainResult{TenantID: normalizeLabel(sub), FromHeader: true}
	}
	if orig := strings.TrimSpace(header.Get(HeaderOriginalHost)); orig != "" {
		return SubdomainResult{TenantID: leadingLabel(orig), FromHeader: true}
	}
	if host == "" {
		return SubdomainResult{TenantID: LocalTenant}
	}
	return SubdomainResult{TenantID: leadingLabel(host)}
}

func leadingLabel(host string) string {
	host = stripPort(host)
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return LocalTenant
	}
	label, _, _ := strings.Cut(host, ".")
	return normalizeLabel(label)
}

func normalizeLabel(label string) string {
	label = strings.ToLower(stripPort(label))
	if label == "" || label == "localhost" || label == "127" || label == "127.0.0.1" || label == "::1" {
		return LocalTenant
	}
	return label
}

// stripPort removes an optional :port, including from bracketed IPv6 hosts.
func stripPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
}

package middleware

import "net/http"

const (
	// TenantContextKey is the context key for the current tenant.
	TenantContextKey contextKey = "tenant"

	// DefaultTenantID is the tenant every request is scoped to in this
	// single-tenant deployment. The teacher's multi-tenant resolution
	// (header/subdomain/path strategies, tenant service lookups) isn't a
	// spec collaborator here — every credential/connection/execution
	// belongs to the one deployment-wide tenant.
	DefaultTenantID = "default"
)

// TenantInfo is the minimal tenant identity carried in request context —
// just enough for Sentry breadcrumbs and handler logging, not a row from a
// tenant management subsystem.
type TenantInfo struct {
	ID   string
	Name string
}

// GetTenant extracts the tenant from the request context, falling back to
// DefaultTenantID when no middleware has populated one.
func GetTenant(r *http.Request) *TenantInfo {
	if t, ok := r.Context().Value(TenantContextKey).(*TenantInfo); ok {
		return t
	}
	return &TenantInfo{ID: DefaultTenantID, Name: DefaultTenantID}
}

// GetTenantID extracts just the tenant ID from the request context.
func GetTenantID(r *http.Request) string {
	return GetTenant(r).ID
}

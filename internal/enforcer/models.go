// Package enforcer serves the authorization check endpoints. It builds
// canonical engine queries, consults the decision cache, calls the policy
// engine and, when the engine fails, answers with a deny-biased fallback so
// callers never see a hard error on a check.
package enforcer

// User identifies the acting principal.
type User struct {
	Key        string         `json:"key"`
	FirstName  string         `json:"firstName,omitempty"`
	LastName   string         `json:"lastName,omitempty"`
	Email      string         `json:"email,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Resource is the target of a check.
type Resource struct {
	Type       string         `json:"type"`
	Key        string         `json:"key,omitempty"`
	Tenant     string         `json:"tenant,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
}

// AuthorizationQuery is the canonical single-check input.
type AuthorizationQuery struct {
	User     User           `json:"user"`
	Action   string         `json:"action"`
	Resource Resource       `json:"resource"`
	Context  map[string]any `json:"context,omitempty"`
	SDK      string         `json:"sdk,omitempty"`
}

// UrlAuthorizationQuery checks a raw HTTP method and URL; the mapping rule
// catalog resolves it to a resource and action first.
type UrlAuthorizationQuery struct {
	User       User           `json:"user"`
	HTTPMethod string         `json:"http_method"`
	URL        string         `json:"url"`
	Tenant     string         `json:"tenant"`
	Context    map[string]any `json:"context,omitempty"`
	SDK        string         `json:"sdk,omitempty"`
}

// UserPermissionsQuery lists everything a user may do, optionally filtered.
type UserPermissionsQuery struct {
	User          User           `json:"user"`
	Tenants       []string       `json:"tenants,omitempty"`
	Resources     []string       `json:"resources,omitempty"`
	ResourceTypes []string       `json:"resource_types,omitempty"`
	Context       map[string]any `json:"context,omitempty"`
}

// UserTenantsQuery lists the tenants a user holds any permission in.
type UserTenantsQuery struct {
	User    User           `json:"user"`
	Context map[string]any `json:"context,omitempty"`
}

// AuthorizationResult is the single-check output. Result mirrors Allow for
// older SDKs.
type AuthorizationResult struct {
	Allow  bool           `json:"allow"`
	Result bool           `json:"result"`
	Query  map[string]any `json:"query,omitempty"`
	Debug  map[string]any `json:"debug,omitempty"`
}

// BulkAuthorizationResult carries one result per submitted check, in order.
type BulkAuthorizationResult struct {
	Allow []AuthorizationResult `json:"allow"`
}

// TenantDetails identifies a tenant in all-tenants and user-tenants results.
type TenantDetails struct {
	Key        string         `json:"key"`
	Attributes map[string]any `json:"attributes"`
}

// ResourceDetails identifies a resource instance in user-permissions
// results.
type ResourceDetails struct {
	Key        string         `json:"key"`
	Type       string         `json:"type"`
	Attributes map[string]any `json:"attributes"`
}

// TenantAuthorizationResult is one tenant's verdict in an all-tenants check.
type TenantAuthorizationResult struct {
	Tenant TenantDetails  `json:"tenant"`
	Allow  bool           `json:"allow"`
	Result bool           `json:"result"`
	Debug  map[string]any `json:"debug,omitempty"`
}

// AllTenantsAuthorizationResult lists every tenant in which the check
// passes.
type AllTenantsAuthorizationResult struct {
	AllowedTenants []TenantAuthorizationResult `json:"allowed_tenants"`
}

// UserPermissions is one entry of a user-permissions result, keyed by the
// object it grants access to.
type UserPermissions struct {
	Tenant      *TenantDetails   `json:"tenant,omitempty"`
	Resource    *ResourceDetails `json:"resource,omitempty"`
	Permissions []string         `json:"permissions"`
	Roles       []string         `json:"roles,omitempty"`
}

// UserPermissionsResult maps permission keys to grants.
type UserPermissionsResult map[string]UserPermissions

// UserTenantsResult lists the tenants a user belongs to.
type UserTenantsResult []TenantDetails

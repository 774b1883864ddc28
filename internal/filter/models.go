// Package filter exposes the data-filtering surface: it partially evaluates
// the policy for a user and resource type, then translates the residual
// queries into a boolean-expression policy clients can lower to their own
// query language.
package filter

import (
	"pdp/internal/enforcer"
	"pdp/internal/filter/boolexpr"
	"pdp/internal/filter/sqlgen"
)

// ResourcesQuery asks which instances of a resource type the user may act
// on. When SQL options are present the residual policy is additionally
// lowered to a relational predicate against the given table.
type ResourcesQuery struct {
	User         enforcer.User  `json:"user"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	Context      map[string]any `json:"context,omitempty"`
	SQL          *SQLOptions    `json:"sql,omitempty"`
}

// SQLOptions maps residual-policy variables to columns of the caller's
// schema.
type SQLOptions struct {
	Table   string                   `json:"table"`
	Columns map[string]sqlgen.Column `json:"column_mapping"`
	Joins   []sqlgen.Join            `json:"joins,omitempty"`
}

// ResourcesResult carries the residual policy for the query, plus the
// lowered predicate when SQL options were supplied.
type ResourcesResult struct {
	Policy boolexpr.ResidualPolicy `json:"policy"`
	SQL    *sqlgen.Query           `json:"sql,omitempty"`
}

package gateway

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"pdp/pkg/pdperrors"
)

// Route binds a path pattern to a resource type.
type Route struct {
	PathRegex string `yaml:"path_regex"`
	Resource  string `yaml:"resource"`
}

// RouteTable resolves request paths to resource types. Patterns are
// compiled once at load; first match wins.
type RouteTable struct {
	routes   []Route
	patterns []*regexp.Regexp
}

// NewRouteTable compiles the routes, rejecting invalid patterns outright
// since the table is static configuration.
func NewRouteTable(routes []Route) (*RouteTable, error) {
	patterns := make([]*regexp.Regexp, len(routes))
	for i, route := range routes {
		re, err := regexp.Compile(route.PathRegex)
		if err != nil {
			return nil, pdperrors.Wrap(pdperrors.CodeInternal,
				fmt.Sprintf("invalid route pattern %q", route.PathRegex), err)
		}
		patterns[i] = re
	}
	return &RouteTable{routes: routes, patterns: patterns}, nil
}

// Resolve returns the resource type for the first route whose pattern
// matches the path.
func (t *RouteTable) Resolve(path string) (string, bool) {
	for i, re := range t.patterns {
		if re.MatchString(path) {
			return t.routes[i].Resource, true
		}
	}
	return "", false
}

// LoadRoutes reads a YAML route table of the form:
//
//	routes:
//	  - path_regex: ^/files(/.*)?$
//	    resource: file
func LoadRoutes(path string) ([]Route, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pdperrors.Wrap(pdperrors.CodeInternal, "read kong routes", err)
	}
	var doc struct {
		Routes []Route `yaml:"routes"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, pdperrors.Wrap(pdperrors.CodeInternal, "parse kong routes", err)
	}
	for i, route := range doc.Routes {
		if route.PathRegex == "" || route.Resource == "" {
			return nil, pdperrors.New(pdperrors.CodeInternal,
				fmt.Sprintf("kong route %d missing path_regex or resource", i))
		}
	}
	return doc.Routes, nil
}

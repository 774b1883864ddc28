// Package mapping translates HTTP method+URL pairs into policy resource and
// action pairs via a static rule catalog loaded at startup.
package mapping

// URLType selects how a rule's URL field is interpreted.
type URLType string

const (
	// URLTypeTemplate matches path segments literally, with {name}
	// placeholders binding attributes.
	URLTypeTemplate URLType = "template"
	// URLTypeRegex compiles the URL field as a regular expression.
	URLTypeRegex URLType = "regex"
)

// Rule binds an HTTP method and URL shape to a policy resource and action.
// Rules are read-only after load; among rules matching the same request the
// highest priority wins, ties broken by catalog order.
type Rule struct {
	URL        string  `json:"url" yaml:"url"`
	URLType    URLType `json:"url_type,omitempty" yaml:"url_type"`
	HTTPMethod string  `json:"http_method" yaml:"http_method"`
	Resource   string  `json:"resource" yaml:"resource"`
	Action     string  `json:"action" yaml:"action"`
	Priority   int     `json:"priority,omitempty" yaml:"priority"`
}

// ResourceAction returns the rule's action, falling back to the HTTP method
// for catalogs that omit it.
func (r Rule) ResourceAction() string {
	if r.Action != "" {
		return r.Action
	}
	return r.HTTPMethod
}

package mapping

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"pdp/pkg/pdperrors"
)

// Matcher resolves HTTP requests against a mapping-rule catalog. Regex rules
// are compiled once at construction; rules whose pattern fails to compile are
// logged and never match.
type Matcher struct {
	rules    []Rule
	patterns []*regexp.Regexp
	logger   *slog.Logger
}

// NewMatcher sorts the catalog by descending priority (stable, so catalog
// order breaks ties) and precompiles regex rules.
func NewMatcher(rules []Rule, logger *slog.Logger) *Matcher {
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})

	patterns := make([]*regexp.Regexp, len(sorted))
	for i, rule := range sorted {
		if rule.URLType != URLTypeRegex {
			continue
		}
		re, err := regexp.Compile(rule.URL)
		if err != nil {
			logger.Warn("skipping mapping rule with invalid pattern",
				"url", rule.URL,
				"error", err)
			continue
		}
		patterns[i] = re
	}

	return &Matcher{rules: sorted, patterns: patterns, logger: logger}
}

// Rules returns the catalog in match order.
func (m *Matcher) Rules() []Rule {
	return m.rules
}

// Match returns the highest-priority rule matching the request, or false when
// no rule matches.
func (m *Matcher) Match(method, requestURL string) (Rule, bool) {
	for i, rule := range m.rules {
		if !strings.EqualFold(rule.HTTPMethod, method) {
			continue
		}
		switch rule.URLType {
		case URLTypeRegex:
			re := m.patterns[i]
			if re == nil {
				continue
			}
			path, _, _ := strings.Cut(requestURL, "?")
			if loc := re.FindStringIndex(path); loc != nil && loc[0] == 0 {
				return rule, true
			}
		default:
			if matchTemplate(rule.URL, requestURL) {
				return rule, true
			}
		}
	}
	return Rule{}, false
}

// matchTemplate compares a template rule URL against a request URL. Path
// segments must agree in count, with {name} placeholders matching any single
// segment. A rule without a query string matches any request query string; a
// rule with one requires every rule parameter to be present, placeholder
// values matching anything and literal values matching exactly.
func matchTemplate(ruleURL, requestURL string) bool {
	rulePath, ruleQuery, ruleHasQuery := strings.Cut(ruleURL, "?")
	reqPath, reqQuery, reqHasQuery := strings.Cut(requestURL, "?")

	ruleSegs := splitPath(rulePath)
	reqSegs := splitPath(reqPath)
	if len(ruleSegs) != len(reqSegs) {
		return false
	}
	for i, seg := range ruleSegs {
		if isPlaceholder(seg) {
			continue
		}
		if seg != reqSegs[i] {
			return false
		}
	}

	if !ruleHasQuery {
		return true
	}
	if !reqHasQuery {
		return false
	}
	return matchQuery(ruleQuery, reqQuery)
}

func matchQuery(ruleQuery, reqQuery string) bool {
	ruleParams, err := url.ParseQuery(ruleQuery)
	if err != nil {
		return false
	}
	reqParams, err := url.ParseQuery(reqQuery)
	if err != nil {
		return false
	}
	for key, want := range ruleParams {
		got, ok := reqParams[key]
		if !ok {
			return false
		}
		for _, w := range want {
			if isPlaceholder(w) {
				continue
			}
			if !contains(got, w) {
				return false
			}
		}
	}
	return true
}

// ExtractPathAttributes binds {name} placeholders in a template rule to the
// corresponding request path segments. Regex rules bind nothing.
func ExtractPathAttributes(rule Rule, requestURL string) map[string]any {
	attrs := map[string]any{}
	if rule.URLType == URLTypeRegex {
		return attrs
	}
	rulePath, _, _ := strings.Cut(rule.URL, "?")
	reqPath, _, _ := strings.Cut(requestURL, "?")
	ruleSegs := splitPath(rulePath)
	reqSegs := splitPath(reqPath)
	if len(ruleSegs) != len(reqSegs) {
		return attrs
	}
	for i, seg := range ruleSegs {
		if isPlaceholder(seg) {
			attrs[seg[1:len(seg)-1]] = reqSegs[i]
		}
	}
	return attrs
}

// ExtractQueryAttributes binds {name} placeholder values in the rule's query
// string to the matching request parameter values, keyed by placeholder name.
// Literal rule parameters bind nothing.
func ExtractQueryAttributes(rule Rule, requestURL string) map[string]any {
	attrs := map[string]any{}
	_, ruleQuery, ruleHasQuery := strings.Cut(rule.URL, "?")
	_, reqQuery, reqHasQuery := strings.Cut(requestURL, "?")
	if !ruleHasQuery || !reqHasQuery {
		return attrs
	}
	ruleParams, err := url.ParseQuery(ruleQuery)
	if err != nil {
		return attrs
	}
	reqParams, err := url.ParseQuery(reqQuery)
	if err != nil {
		return attrs
	}
	for key, values := range ruleParams {
		for _, v := range values {
			if !isPlaceholder(v) {
				continue
			}
			if got, ok := reqParams[key]; ok && len(got) > 0 {
				attrs[v[1:len(v)-1]] = got[0]
			}
		}
	}
	return attrs
}

// LoadRules reads a YAML rule catalog of the form:
//
//	mapping_rules:
//	  - url: /files/{id}
//	    http_method: DELETE
//	    resource: file
//	    action: delete
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pdperrors.Wrap(pdperrors.CodeInternal, "read mapping rules", err)
	}
	var doc struct {
		MappingRules []Rule `yaml:"mapping_rules"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, pdperrors.Wrap(pdperrors.CodeInternal, "parse mapping rules", err)
	}
	for i, rule := range doc.MappingRules {
		if rule.URL == "" || rule.HTTPMethod == "" || rule.Resource == "" {
			return nil, pdperrors.New(pdperrors.CodeInternal,
				fmt.Sprintf("mapping rule %d missing url, http_method or resource", i))
		}
	}
	return doc.MappingRules, nil
}

func splitPath(p string) []string {
	return strings.Split(strings.Trim(p, "/"), "/")
}

func isPlaceholder(s string) bool {
	return len(s) > 2 && strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}")
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

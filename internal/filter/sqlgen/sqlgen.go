// Package sqlgen lowers a conditional residual policy into a relational
// predicate, given a caller-supplied variable-to-column mapping and join
// declarations.
package sqlgen

import (
	"fmt"
	"sort"
	"strings"

	"pdp/internal/filter/boolexpr"
	"pdp/pkg/pdperrors"
)

// Column identifies a relational column.
type Column struct {
	Table string `json:"table"`
	Name  string `json:"name"`
}

func (c Column) String() string {
	return c.Table + "." + c.Name
}

// Join declares how a non-target table is reached.
type Join struct {
	Table string `json:"table"`
	On    string `json:"on"`
}

// Query is the lowered predicate: a parameterized WHERE clause plus the
// joins it depends on.
type Query struct {
	Where string `json:"where"`
	Args  []any  `json:"args,omitempty"`
	Joins []Join `json:"joins,omitempty"`
}

var comparisons = map[string]string{
	"eq": "=",
	"ne": "<>",
	"lt": "<",
	"gt": ">",
	"le": "<=",
	"ge": ">=",
}

// mirrored maps each comparison to its reflection, used when the literal
// appears on the left of the condition.
var mirrored = map[string]string{
	"eq": "eq",
	"ne": "ne",
	"lt": "gt",
	"gt": "lt",
	"le": "ge",
	"ge": "le",
}

// Compile lowers a residual policy for the given target table. Allow and
// deny policies produce unconditional predicates; conditional policies are
// verified against the join list and then lowered recursively.
func Compile(policy boolexpr.ResidualPolicy, table string, refs map[string]Column, joins []Join) (Query, error) {
	if err := policy.Validate(); err != nil {
		return Query{}, err
	}
	switch policy.Type {
	case boolexpr.AlwaysAllow:
		return Query{Where: "TRUE"}, nil
	case boolexpr.AlwaysDeny:
		return Query{Where: "FALSE"}, nil
	}

	used, err := verifyJoins(*policy.Condition, table, refs, joins)
	if err != nil {
		return Query{}, err
	}

	c := &compiler{refs: refs}
	where, err := c.lower(*policy.Condition)
	if err != nil {
		return Query{}, err
	}
	return Query{Where: where, Args: c.args, Joins: used}, nil
}

// verifyJoins collects every table referenced through refs other than the
// target and checks each against the declared joins. All missing tables are
// reported in a single error.
func verifyJoins(condition boolexpr.Expression, table string, refs map[string]Column, joins []Join) ([]Join, error) {
	referenced := map[string]bool{}
	collectTables(condition, refs, referenced)
	delete(referenced, table)

	declared := map[string]Join{}
	for _, j := range joins {
		declared[j.Table] = j
	}

	var missing []string
	var used []Join
	for _, t := range sortedKeys(referenced) {
		j, ok := declared[t]
		if !ok {
			missing = append(missing, t)
			continue
		}
		used = append(used, j)
	}
	if len(missing) > 0 {
		return nil, pdperrors.New(pdperrors.CodeMissingJoin,
			fmt.Sprintf("no join declared for tables: %s", strings.Join(missing, ", ")))
	}
	return used, nil
}

func collectTables(operand boolexpr.Operand, refs map[string]Column, out map[string]bool) {
	switch op := operand.(type) {
	case boolexpr.Variable:
		if col, ok := refs[op.Path]; ok {
			out[col.Table] = true
		}
	case boolexpr.Expression:
		for _, sub := range op.Operands {
			collectTables(sub, refs, out)
		}
	}
}

type compiler struct {
	refs map[string]Column
	args []any
}

func (c *compiler) lower(expr boolexpr.Expression) (string, error) {
	switch expr.Operator {
	case boolexpr.LogicalAnd:
		return c.lowerConnective(expr.Operands, "AND")
	case boolexpr.LogicalOr:
		return c.lowerConnective(expr.Operands, "OR")
	case boolexpr.LogicalNot:
		if len(expr.Operands) != 1 {
			return "", pdperrors.New(pdperrors.CodeNotImplemented,
				fmt.Sprintf("not takes one operand, got %d", len(expr.Operands)))
		}
		inner, ok := expr.Operands[0].(boolexpr.Expression)
		if !ok {
			return "", pdperrors.New(pdperrors.CodeNotImplemented,
				"not requires an expression operand")
		}
		sub, err := c.lower(inner)
		if err != nil {
			return "", err
		}
		return "NOT (" + sub + ")", nil
	case boolexpr.CallOperator:
		return "", pdperrors.New(pdperrors.CodeNotImplemented,
			"function calls cannot be lowered to a relational predicate")
	default:
		return c.lowerComparison(expr)
	}
}

func (c *compiler) lowerConnective(operands []boolexpr.Operand, connective string) (string, error) {
	parts := make([]string, 0, len(operands))
	for _, operand := range operands {
		expr, ok := operand.(boolexpr.Expression)
		if !ok {
			return "", pdperrors.New(pdperrors.CodeNotImplemented,
				fmt.Sprintf("%s requires expression operands", strings.ToLower(connective)))
		}
		sub, err := c.lower(expr)
		if err != nil {
			return "", err
		}
		parts = append(parts, "("+sub+")")
	}
	return strings.Join(parts, " "+connective+" "), nil
}

// lowerComparison handles every remaining operator as a binary comparison
// between exactly one variable and one value, in either order.
func (c *compiler) lowerComparison(expr boolexpr.Expression) (string, error) {
	if len(expr.Operands) != 2 {
		return "", pdperrors.New(pdperrors.CodeNotImplemented,
			fmt.Sprintf("comparison %q takes two operands, got %d", expr.Operator, len(expr.Operands)))
	}

	operator := expr.Operator
	variable, isVar := expr.Operands[0].(boolexpr.Variable)
	value, isVal := expr.Operands[1].(boolexpr.Value)
	if !isVar || !isVal {
		variable, isVar = expr.Operands[1].(boolexpr.Variable)
		value, isVal = expr.Operands[0].(boolexpr.Value)
		if !isVar || !isVal {
			return "", pdperrors.New(pdperrors.CodeNotImplemented,
				fmt.Sprintf("comparison %q requires one variable and one value", expr.Operator))
		}
		operator = mirrored[operator]
		if operator == "" {
			operator = expr.Operator
		}
	}

	native, ok := comparisons[operator]
	if !ok {
		return "", pdperrors.New(pdperrors.CodeUnsupportedOperator,
			fmt.Sprintf("operator %q has no relational counterpart", expr.Operator))
	}
	col, ok := c.refs[variable.Path]
	if !ok {
		return "", pdperrors.New(pdperrors.CodeMissingMapping,
			fmt.Sprintf("no column mapped for %q", variable.Path))
	}

	c.args = append(c.args, value.Value)
	return fmt.Sprintf("%s %s ?", col, native), nil
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Package boolexpr lowers a parsed partial-evaluation query set into a
// normalized residual policy: always allow, always deny, or a conditional
// boolean expression tree over variables and literal values.
package boolexpr

import (
	"encoding/json"
	"fmt"

	"pdp/internal/filter/rego"
	"pdp/pkg/pdperrors"
)

const (
	LogicalAnd   = "and"
	LogicalOr    = "or"
	LogicalNot   = "not"
	CallOperator = "call"
)

// Operand is a closed union: Value, Variable or Expression.
type Operand interface {
	isOperand()
}

// Value is a literal.
type Value struct {
	Value any
}

// Variable references an unknown input by dotted path.
type Variable struct {
	Path string
}

// Expression applies an operator to operands.
type Expression struct {
	Operator string
	Operands []Operand
}

func (Value) isOperand()      {}
func (Variable) isOperand()   {}
func (Expression) isOperand() {}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"value": v.Value})
}

func (v Variable) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{"variable": v.Path})
}

func (e Expression) MarshalJSON() ([]byte, error) {
	operands := e.Operands
	if operands == nil {
		operands = []Operand{}
	}
	return json.Marshal(map[string]any{
		"expression": map[string]any{
			"operator": e.Operator,
			"operands": operands,
		},
	})
}

// PolicyType classifies a residual policy.
type PolicyType string

const (
	AlwaysAllow PolicyType = "always_allow"
	AlwaysDeny  PolicyType = "always_deny"
	Conditional PolicyType = "conditional"
)

// ResidualPolicy is the translation output. A condition is present exactly
// when the type is Conditional; the constructors enforce this.
type ResidualPolicy struct {
	Type      PolicyType  `json:"type"`
	Condition *Expression `json:"condition,omitempty"`
}

func NewAllowPolicy() ResidualPolicy {
	return ResidualPolicy{Type: AlwaysAllow}
}

func NewDenyPolicy() ResidualPolicy {
	return ResidualPolicy{Type: AlwaysDeny}
}

func NewConditionalPolicy(condition Expression) ResidualPolicy {
	return ResidualPolicy{Type: Conditional, Condition: &condition}
}

// Validate rejects policies built outside the constructors.
func (p ResidualPolicy) Validate() error {
	switch p.Type {
	case AlwaysAllow, AlwaysDeny:
		if p.Condition != nil {
			return pdperrors.New(pdperrors.CodeTranslation,
				fmt.Sprintf("%s policy must not carry a condition", p.Type))
		}
	case Conditional:
		if p.Condition == nil {
			return pdperrors.New(pdperrors.CodeTranslation,
				"conditional policy requires a condition")
		}
	default:
		return pdperrors.New(pdperrors.CodeTranslation,
			fmt.Sprintf("unknown policy type %q", p.Type))
	}
	return nil
}

// Translate lowers a query set. Zero queries deny outright; any trivially
// true query allows outright; otherwise each query becomes a conjunction and
// multiple queries are joined with or.
func Translate(qs rego.QuerySet) (ResidualPolicy, error) {
	if qs.AlwaysFalse() {
		return NewDenyPolicy(), nil
	}
	if qs.AlwaysTrue() {
		return NewAllowPolicy(), nil
	}

	conjunctions := make([]Operand, 0, len(qs.Queries))
	for _, query := range qs.Queries {
		conj, err := translateQuery(query)
		if err != nil {
			return ResidualPolicy{}, err
		}
		conjunctions = append(conjunctions, conj)
	}

	if len(conjunctions) == 1 {
		return NewConditionalPolicy(conjunctions[0].(Expression)), nil
	}
	return NewConditionalPolicy(Expression{
		Operator: LogicalOr,
		Operands: conjunctions,
	}), nil
}

// translateQuery joins a query's expressions with and, passing a single
// expression through unwrapped.
func translateQuery(query rego.Query) (Expression, error) {
	exprs := make([]Operand, 0, len(query.Expressions))
	for _, expr := range query.Expressions {
		translated, err := translateExpression(expr)
		if err != nil {
			return Expression{}, err
		}
		exprs = append(exprs, translated)
	}
	if len(exprs) == 1 {
		return exprs[0].(Expression), nil
	}
	return Expression{Operator: LogicalAnd, Operands: exprs}, nil
}

func translateExpression(expr rego.Expression) (Expression, error) {
	if expr.IsCall() {
		call := expr.Terms[0].(rego.CallTerm).Call
		inner, err := translateCall(call)
		if err != nil {
			return Expression{}, err
		}
		return Expression{
			Operator: CallOperator,
			Operands: []Operand{inner},
		}, nil
	}

	operator, err := operatorName(expr.Operator())
	if err != nil {
		return Expression{}, err
	}
	operands := make([]Operand, 0, len(expr.Operands()))
	for _, term := range expr.Operands() {
		operand, err := translateTerm(term)
		if err != nil {
			return Expression{}, err
		}
		operands = append(operands, operand)
	}
	return Expression{Operator: operator, Operands: operands}, nil
}

func translateCall(call rego.Call) (Expression, error) {
	args := make([]Operand, 0, len(call.Args))
	for _, arg := range call.Args {
		operand, err := translateTerm(arg)
		if err != nil {
			return Expression{}, err
		}
		args = append(args, operand)
	}
	return Expression{Operator: call.Func.String(), Operands: args}, nil
}

func translateTerm(term rego.Term) (Operand, error) {
	switch t := term.(type) {
	case rego.NullTerm:
		return Value{Value: nil}, nil
	case rego.BooleanTerm:
		return Value{Value: t.Value}, nil
	case rego.NumberTerm:
		return Value{Value: t.Value}, nil
	case rego.StringTerm:
		return Value{Value: t.Value}, nil
	case rego.VarTerm:
		return Variable{Path: t.Name}, nil
	case rego.RefTerm:
		return Variable{Path: t.Ref.String()}, nil
	case rego.CallTerm:
		inner, err := translateCall(t.Call)
		if err != nil {
			return nil, err
		}
		return Expression{
			Operator: CallOperator,
			Operands: []Operand{inner},
		}, nil
	default:
		return nil, pdperrors.New(pdperrors.CodeTranslation,
			fmt.Sprintf("cannot translate term %T", term))
	}
}

func operatorName(term rego.Term) (string, error) {
	switch t := term.(type) {
	case rego.VarTerm:
		return t.Name, nil
	case rego.RefTerm:
		return t.Ref.String(), nil
	default:
		return "", pdperrors.New(pdperrors.CodeTranslation,
			fmt.Sprintf("operator term must be a var or ref, got %T", term))
	}
}

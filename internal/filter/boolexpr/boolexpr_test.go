package boolexpr

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdp/internal/filter/rego"
)

func comparison(op, path string, value any) rego.Expression {
	var term rego.Term
	switch v := value.(type) {
	case string:
		term = rego.StringTerm{Value: v}
	case bool:
		term = rego.BooleanTerm{Value: v}
	case json.Number:
		term = rego.NumberTerm{Value: v}
	default:
		term = rego.NullTerm{}
	}
	return rego.Expression{Terms: []rego.Term{
		rego.RefTerm{Ref: rego.Ref{Parts: []string{op}}},
		rego.RefTerm{Ref: rego.Ref{Parts: []string{"input", path}}},
		term,
	}}
}

func TestTranslateTrivialForms(t *testing.T) {
	policy, err := Translate(rego.QuerySet{})
	require.NoError(t, err)
	assert.Equal(t, AlwaysDeny, policy.Type)
	assert.Nil(t, policy.Condition)

	policy, err = Translate(rego.QuerySet{Queries: []rego.Query{{}}})
	require.NoError(t, err)
	assert.Equal(t, AlwaysAllow, policy.Type)
	assert.Nil(t, policy.Condition)

	policy, err = Translate(rego.QuerySet{Queries: []rego.Query{
		{Expressions: []rego.Expression{comparison("eq", "x", "1")}},
		{},
	}})
	require.NoError(t, err)
	assert.Equal(t, AlwaysAllow, policy.Type, "a tautological clause allows outright")
}

func TestTranslateSingleQuery(t *testing.T) {
	policy, err := Translate(rego.QuerySet{Queries: []rego.Query{
		{Expressions: []rego.Expression{comparison("eq", "tenant", "acme")}},
	}})
	require.NoError(t, err)
	require.Equal(t, Conditional, policy.Type)
	require.NotNil(t, policy.Condition)

	cond := *policy.Condition
	assert.Equal(t, "eq", cond.Operator, "single expression passes through unwrapped")
	require.Len(t, cond.Operands, 2)
	assert.Equal(t, Variable{Path: "input.tenant"}, cond.Operands[0])
	assert.Equal(t, Value{Value: "acme"}, cond.Operands[1])
}

func TestTranslateConjunction(t *testing.T) {
	policy, err := Translate(rego.QuerySet{Queries: []rego.Query{
		{Expressions: []rego.Expression{
			comparison("eq", "tenant", "acme"),
			comparison("gt", "level", json.Number("3")),
		}},
	}})
	require.NoError(t, err)
	require.Equal(t, Conditional, policy.Type)

	cond := *policy.Condition
	assert.Equal(t, LogicalAnd, cond.Operator)
	require.Len(t, cond.Operands, 2)
}

func TestTranslateDisjunction(t *testing.T) {
	policy, err := Translate(rego.QuerySet{Queries: []rego.Query{
		{Expressions: []rego.Expression{comparison("eq", "tenant", "acme")}},
		{Expressions: []rego.Expression{comparison("eq", "owner", "alice")}},
		{Expressions: []rego.Expression{
			comparison("eq", "public", true),
			comparison("ne", "archived", true),
		}},
	}})
	require.NoError(t, err)
	require.Equal(t, Conditional, policy.Type)

	cond := *policy.Condition
	assert.Equal(t, LogicalOr, cond.Operator)
	require.Len(t, cond.Operands, 3, "one operand per non-trivial query")

	third, ok := cond.Operands[2].(Expression)
	require.True(t, ok)
	assert.Equal(t, LogicalAnd, third.Operator)
}

func TestTranslateCallExpression(t *testing.T) {
	call := rego.Expression{Terms: []rego.Term{
		rego.CallTerm{Call: rego.Call{
			Func: rego.Ref{Parts: []string{"object", "get"}},
			Args: []rego.Term{
				rego.RefTerm{Ref: rego.Ref{Parts: []string{"input", "user"}}},
				rego.StringTerm{Value: "key"},
				rego.NullTerm{},
			},
		}},
	}}

	policy, err := Translate(rego.QuerySet{Queries: []rego.Query{
		{Expressions: []rego.Expression{call}},
	}})
	require.NoError(t, err)

	cond := *policy.Condition
	assert.Equal(t, CallOperator, cond.Operator)
	require.Len(t, cond.Operands, 1)

	inner, ok := cond.Operands[0].(Expression)
	require.True(t, ok)
	assert.Equal(t, "object.get", inner.Operator)
	require.Len(t, inner.Operands, 3)
	assert.Equal(t, Variable{Path: "input.user"}, inner.Operands[0])
	assert.Equal(t, Value{Value: "key"}, inner.Operands[1])
	assert.Equal(t, Value{Value: nil}, inner.Operands[2])
}

func TestTranslateRejectsBadOperator(t *testing.T) {
	bad := rego.Expression{Terms: []rego.Term{
		rego.StringTerm{Value: "eq"},
		rego.StringTerm{Value: "x"},
	}}
	_, err := Translate(rego.QuerySet{Queries: []rego.Query{
		{Expressions: []rego.Expression{bad}},
	}})
	assert.Error(t, err)
}

func TestResidualPolicyValidate(t *testing.T) {
	assert.NoError(t, NewAllowPolicy().Validate())
	assert.NoError(t, NewDenyPolicy().Validate())
	assert.NoError(t, NewConditionalPolicy(Expression{Operator: "eq"}).Validate())

	assert.Error(t, ResidualPolicy{Type: Conditional}.Validate())
	assert.Error(t, ResidualPolicy{Type: AlwaysAllow, Condition: &Expression{}}.Validate())
	assert.Error(t, ResidualPolicy{Type: "sometimes"}.Validate())
}

func TestOperandJSON(t *testing.T) {
	cond := Expression{
		Operator: LogicalAnd,
		Operands: []Operand{
			Expression{Operator: "eq", Operands: []Operand{
				Variable{Path: "input.resource.tenant"},
				Value{Value: "acme"},
			}},
		},
	}
	data, err := json.Marshal(cond)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"expression": {
			"operator": "and",
			"operands": [
				{"expression": {
					"operator": "eq",
					"operands": [
						{"variable": "input.resource.tenant"},
						{"value": "acme"}
					]
				}}
			]
		}
	}`, string(data))
}

// Package rego parses partial-evaluation compile results from the policy
// engine into a typed syntax tree. The engine returns a disjunction of
// queries, each a conjunction of expressions over typed terms.
package rego

import (
	"encoding/json"
	"fmt"
	"strings"

	"pdp/pkg/pdperrors"
)

// Term is a closed union over the term kinds the engine emits: null,
// boolean, number, string, var, ref and call.
type Term interface {
	isTerm()
}

type NullTerm struct{}

type BooleanTerm struct {
	Value bool
}

type NumberTerm struct {
	Value json.Number
}

type StringTerm struct {
	Value string
}

type VarTerm struct {
	Name string
}

// Ref is a dotted path such as input.resource.tenant.
type Ref struct {
	Parts []string
}

func (r Ref) String() string {
	return strings.Join(r.Parts, ".")
}

type RefTerm struct {
	Ref Ref
}

// Call is a function application: a ref naming the function plus its
// argument terms.
type Call struct {
	Func Ref
	Args []Term
}

type CallTerm struct {
	Call Call
}

func (NullTerm) isTerm()    {}
func (BooleanTerm) isTerm() {}
func (NumberTerm) isTerm()  {}
func (StringTerm) isTerm()  {}
func (VarTerm) isTerm()     {}
func (RefTerm) isTerm()     {}
func (CallTerm) isTerm()    {}

// Expression is an ordered list of terms. Unless the expression is a lone
// call, the first term is the operator and the rest are operands.
type Expression struct {
	Terms []Term
}

// IsCall reports whether the expression is a bare function call with no
// boolean operator.
func (e Expression) IsCall() bool {
	if len(e.Terms) != 1 {
		return false
	}
	_, ok := e.Terms[0].(CallTerm)
	return ok
}

// Operator returns the first term. Callers must not use it on call
// expressions.
func (e Expression) Operator() Term {
	return e.Terms[0]
}

// Operands returns every term after the operator.
func (e Expression) Operands() []Term {
	return e.Terms[1:]
}

// Query is a conjunction of expressions. An empty query is trivially true.
type Query struct {
	Expressions []Expression
}

func (q Query) AlwaysTrue() bool {
	return len(q.Expressions) == 0
}

// QuerySet is a disjunction of queries.
type QuerySet struct {
	Queries []Query
}

// AlwaysFalse reports whether the disjunction is empty, meaning the engine
// proved the rule can never hold.
func (qs QuerySet) AlwaysFalse() bool {
	return len(qs.Queries) == 0
}

// AlwaysTrue reports whether any query is trivially true; a disjunction
// containing a tautological clause is itself a tautology.
func (qs QuerySet) AlwaysTrue() bool {
	for _, q := range qs.Queries {
		if q.AlwaysTrue() {
			return true
		}
	}
	return false
}

type rawTerm struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

type rawExpression struct {
	Terms json.RawMessage `json:"terms"`
}

type compileResult struct {
	Queries [][]rawExpression `json:"queries"`
}

// ParseCompileResult decodes the result field of a compile response into a
// QuerySet.
func ParseCompileResult(raw json.RawMessage) (QuerySet, error) {
	var result compileResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return QuerySet{}, pdperrors.Wrap(pdperrors.CodeParse, "decode compile result", err)
	}
	qs := QuerySet{Queries: make([]Query, 0, len(result.Queries))}
	for _, rawQuery := range result.Queries {
		query := Query{Expressions: make([]Expression, 0, len(rawQuery))}
		for _, rawExpr := range rawQuery {
			expr, err := parseExpression(rawExpr)
			if err != nil {
				return QuerySet{}, err
			}
			query.Expressions = append(query.Expressions, expr)
		}
		qs.Queries = append(qs.Queries, query)
	}
	return qs, nil
}

// parseExpression accepts terms as either a single term object or an array
// of term objects; the engine emits both shapes.
func parseExpression(raw rawExpression) (Expression, error) {
	var list []rawTerm
	if err := json.Unmarshal(raw.Terms, &list); err != nil {
		var single rawTerm
		if err := json.Unmarshal(raw.Terms, &single); err != nil {
			return Expression{}, pdperrors.Wrap(pdperrors.CodeParse, "decode expression terms", err)
		}
		list = []rawTerm{single}
	}
	terms := make([]Term, 0, len(list))
	for _, rt := range list {
		term, err := parseTerm(rt)
		if err != nil {
			return Expression{}, err
		}
		terms = append(terms, term)
	}
	return Expression{Terms: terms}, nil
}

func parseTerm(raw rawTerm) (Term, error) {
	switch raw.Type {
	case "null":
		return NullTerm{}, nil
	case "boolean":
		var v bool
		if err := json.Unmarshal(raw.Value, &v); err != nil {
			return nil, pdperrors.Wrap(pdperrors.CodeParse, "decode boolean term", err)
		}
		return BooleanTerm{Value: v}, nil
	case "number":
		var v json.Number
		if err := json.Unmarshal(raw.Value, &v); err != nil {
			return nil, pdperrors.Wrap(pdperrors.CodeParse, "decode number term", err)
		}
		return NumberTerm{Value: v}, nil
	case "string":
		var v string
		if err := json.Unmarshal(raw.Value, &v); err != nil {
			return nil, pdperrors.Wrap(pdperrors.CodeParse, "decode string term", err)
		}
		return StringTerm{Value: v}, nil
	case "var":
		var v string
		if err := json.Unmarshal(raw.Value, &v); err != nil {
			return nil, pdperrors.Wrap(pdperrors.CodeParse, "decode var term", err)
		}
		return VarTerm{Name: v}, nil
	case "ref":
		ref, err := parseRef(raw.Value)
		if err != nil {
			return nil, err
		}
		return RefTerm{Ref: ref}, nil
	case "call":
		call, err := parseCall(raw.Value)
		if err != nil {
			return nil, err
		}
		return CallTerm{Call: call}, nil
	default:
		return nil, pdperrors.New(pdperrors.CodeParse,
			fmt.Sprintf("unknown term type %q", raw.Type))
	}
}

// parseRef decodes a reference: a list of sub-terms whose head must be a var
// and whose tail must be strings, collapsed to a dotted path.
func parseRef(raw json.RawMessage) (Ref, error) {
	var subs []rawTerm
	if err := json.Unmarshal(raw, &subs); err != nil {
		return Ref{}, pdperrors.Wrap(pdperrors.CodeParse, "decode ref term", err)
	}
	if len(subs) == 0 {
		return Ref{}, pdperrors.New(pdperrors.CodeParse, "empty ref term")
	}
	parts := make([]string, 0, len(subs))
	head, err := parseTerm(subs[0])
	if err != nil {
		return Ref{}, err
	}
	v, ok := head.(VarTerm)
	if !ok {
		return Ref{}, pdperrors.New(pdperrors.CodeParse,
			"ref head must be a var term")
	}
	parts = append(parts, v.Name)
	for _, sub := range subs[1:] {
		term, err := parseTerm(sub)
		if err != nil {
			return Ref{}, err
		}
		s, ok := term.(StringTerm)
		if !ok {
			return Ref{}, pdperrors.New(pdperrors.CodeParse,
				"ref tail must be string terms")
		}
		parts = append(parts, s.Value)
	}
	return Ref{Parts: parts}, nil
}

// parseCall decodes a call: the head must be a ref naming the function, the
// tail are argument terms.
func parseCall(raw json.RawMessage) (Call, error) {
	var subs []rawTerm
	if err := json.Unmarshal(raw, &subs); err != nil {
		return Call{}, pdperrors.Wrap(pdperrors.CodeParse, "decode call term", err)
	}
	if len(subs) == 0 {
		return Call{}, pdperrors.New(pdperrors.CodeParse, "empty call term")
	}
	head, err := parseTerm(subs[0])
	if err != nil {
		return Call{}, err
	}
	ref, ok := head.(RefTerm)
	if !ok {
		return Call{}, pdperrors.New(pdperrors.CodeParse,
			"call head must be a ref term")
	}
	args := make([]Term, 0, len(subs)-1)
	for _, sub := range subs[1:] {
		term, err := parseTerm(sub)
		if err != nil {
			return Call{}, err
		}
		args = append(args, term)
	}
	return Call{Func: ref.Ref, Args: args}, nil
}

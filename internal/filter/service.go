package filter

import (
	"context"
	"encoding/json"
	"log/slog"

	"pdp/internal/engine"
	"pdp/internal/filter/boolexpr"
	"pdp/internal/filter/rego"
	"pdp/internal/filter/sqlgen"
	"pdp/internal/platform/config"
	"pdp/pkg/pdperrors"
)

// CompileClient is the slice of the engine client the filter pipeline needs.
type CompileClient interface {
	Compile(ctx context.Context, req engine.CompileRequest) (json.RawMessage, error)
}

// Service runs the compile pipeline. Unlike the check endpoints there is no
// safe fallback: every stage's error surfaces to the caller.
type Service struct {
	engine   CompileClient
	query    string
	unknowns []string
	logger   *slog.Logger
	metrics  *Metrics
}

func NewService(engine CompileClient, cfg config.Filter, logger *slog.Logger, metrics *Metrics) *Service {
	return &Service{
		engine:   engine,
		query:    cfg.Query,
		unknowns: cfg.Unknowns,
		logger:   logger,
		metrics:  metrics,
	}
}

// FilterResources partially evaluates the policy for the query's user and
// resource type and translates the residual queries into a boolean
// expression policy.
func (s *Service) FilterResources(ctx context.Context, query ResourcesQuery) (ResourcesResult, error) {
	input := map[string]any{
		"user":         query.User,
		"action":       query.Action,
		"resource":     map[string]any{"type": query.ResourceType},
		"use_debugger": false,
	}
	if query.Context != nil {
		input["context"] = query.Context
	}

	raw, err := s.engine.Compile(ctx, engine.CompileRequest{
		Query:    s.query,
		Input:    input,
		Unknowns: s.unknowns,
	})
	if err != nil {
		s.metrics.ObserveCompile("engine_error")
		return ResourcesResult{}, err
	}

	qs, err := rego.ParseCompileResult(raw)
	if err != nil {
		s.metrics.ObserveCompile("parse_error")
		s.logger.WarnContext(ctx, "unparseable compile result",
			"resource_type", query.ResourceType,
			"error", err)
		return ResourcesResult{}, err
	}

	policy, err := boolexpr.Translate(qs)
	if err != nil {
		s.metrics.ObserveCompile("translation_error")
		return ResourcesResult{}, err
	}

	result := ResourcesResult{Policy: policy}
	if query.SQL != nil {
		if query.SQL.Table == "" {
			s.metrics.ObserveCompile("lowering_error")
			return ResourcesResult{}, pdperrors.New(pdperrors.CodeBadRequest,
				"sql lowering requires a target table")
		}
		lowered, err := sqlgen.Compile(policy, query.SQL.Table, query.SQL.Columns, query.SQL.Joins)
		if err != nil {
			s.metrics.ObserveCompile("lowering_error")
			return ResourcesResult{}, err
		}
		result.SQL = &lowered
	}

	s.metrics.ObserveCompile(string(policy.Type))
	s.logger.DebugContext(ctx, "compiled residual policy",
		"resource_type", query.ResourceType,
		"policy_type", policy.Type)
	return result, nil
}

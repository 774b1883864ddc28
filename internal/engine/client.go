// Package engine implements the HTTP boundary to the policy engine (OPA).
//
// Every call carries an explicit timeout. Failures are classified into
// distinct error kinds (timeout, connection, bad status, malformed body) so
// the enforcer can pick fallbacks while observability keeps the real cause.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"pdp/internal/platform/config"
	"pdp/pkg/pdperrors"
)

// Client is the policy engine HTTP client.
type Client struct {
	baseURL string
	token   string
	timeout time.Duration
	http    *http.Client
	logger  *slog.Logger
	tracer  trace.Tracer
}

// New constructs an engine client from configuration.
func New(cfg config.Engine, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		token:   cfg.Token,
		timeout: cfg.QueryTimeout,
		http:    &http.Client{},
		logger:  logger,
		tracer:  otel.Tracer("pdp/engine"),
	}
}

// queryEnvelope wraps the input document for the data API.
type queryEnvelope struct {
	Input any `json:"input"`
}

// resultEnvelope is the engine's uniform response wrapper.
type resultEnvelope struct {
	Result json.RawMessage `json:"result"`
}

// CompileRequest is the body of a partial-evaluation request.
type CompileRequest struct {
	Query    string   `json:"query"`
	Input    any      `json:"input"`
	Unknowns []string `json:"unknowns"`
}

// Query POSTs input to /v1/data/<path> and decodes the "result" document
// into out. A missing result document is a malformed-body error.
func (c *Client) Query(ctx context.Context, path string, input any, out any) error {
	path = strings.TrimLeft(path, "/")
	raw, err := c.post(ctx, "/v1/data/"+path, queryEnvelope{Input: input}, "opa.query", path)
	if err != nil {
		return err
	}

	var envelope resultEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return pdperrors.Wrap(pdperrors.CodeEngineResponse, "decode engine response", err)
	}
	if envelope.Result == nil {
		return pdperrors.New(pdperrors.CodeEngineResponse, "engine response has no result document")
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return pdperrors.Wrap(pdperrors.CodeEngineResponse, "decode engine result", err)
	}
	return nil
}

// Compile POSTs a partial-evaluation request to /v1/compile and returns the
// raw result document (the query set) for the AST parser.
func (c *Client) Compile(ctx context.Context, req CompileRequest) (json.RawMessage, error) {
	raw, err := c.post(ctx, "/v1/compile", req, "opa.compile", req.Query)
	if err != nil {
		return nil, err
	}

	var envelope resultEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, pdperrors.Wrap(pdperrors.CodeEngineResponse, "decode compile response", err)
	}
	if envelope.Result == nil {
		return nil, pdperrors.New(pdperrors.CodeEngineResponse, "compile response has no result document")
	}
	return envelope.Result, nil
}

// Health checks engine liveness via GET /health.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return pdperrors.Wrap(pdperrors.CodeInternal, "build health request", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return pdperrors.Newf(pdperrors.CodeEngineStatus, "engine health returned status %d", resp.StatusCode)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body any, spanName, target string) ([]byte, error) {
	ctx, span := c.tracer.Start(ctx, spanName, trace.WithAttributes(
		attribute.String("engine.target", target),
	))
	defer span.End()

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, pdperrors.Wrap(pdperrors.CodeInternal, "encode engine request", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, pdperrors.Wrap(pdperrors.CodeInternal, "build engine request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		kindErr := classifyTransportError(err)
		span.RecordError(kindErr)
		span.SetStatus(otelcodes.Error, "engine call failed")
		c.logger.WarnContext(ctx, "engine call failed",
			"path", path,
			"error", kindErr,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil, kindErr
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, pdperrors.Wrap(pdperrors.CodeEngineResponse, "read engine response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := pdperrors.Newf(pdperrors.CodeEngineStatus,
			"engine request failed (url: %s, status: %d)", c.baseURL+path, resp.StatusCode)
		span.RecordError(statusErr)
		span.SetStatus(otelcodes.Error, "engine bad status")
		c.logger.WarnContext(ctx, "engine returned bad status",
			"path", path,
			"status", resp.StatusCode,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil, statusErr
	}

	c.logger.DebugContext(ctx, "engine call completed",
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return raw, nil
}

// classifyTransportError distinguishes deadline exceedance from plain
// connection failures; both resolve to fallbacks but are logged differently.
func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return pdperrors.Wrap(pdperrors.CodeEngineTimeout, "engine request timed out", err)
	}
	return pdperrors.Wrap(pdperrors.CodeEngineConnection, "engine request failed", err)
}

// Package decisionlog records every authorization decision the service
// makes. Decisions always go to the structured log; when Kafka brokers are
// configured they are also published to a topic for downstream audit.
package decisionlog

import (
	"context"
	"log/slog"
	"time"
)

// Entry is one recorded decision.
type Entry struct {
	Timestamp    time.Time      `json:"timestamp"`
	RequestID    string         `json:"request_id,omitempty"`
	ClientIP     string         `json:"client_ip,omitempty"`
	Endpoint     string         `json:"endpoint"`
	UserKey      string         `json:"user_key"`
	Action       string         `json:"action,omitempty"`
	ResourceType string         `json:"resource_type,omitempty"`
	Tenant       string         `json:"tenant,omitempty"`
	Allow        bool           `json:"allow"`
	Source       string         `json:"source"` // engine, cache or fallback
	Debug        map[string]any `json:"debug,omitempty"`
}

// Sink consumes decision entries. Emit must not block the request path for
// long; Close flushes anything buffered.
type Sink interface {
	Emit(ctx context.Context, entry Entry)
	Close(ctx context.Context) error
}

// SlogSink writes decisions to the structured log. When debug is disabled
// the raw engine debug payload is omitted.
type SlogSink struct {
	logger *slog.Logger
	debug  bool
}

func NewSlogSink(logger *slog.Logger, debug bool) *SlogSink {
	return &SlogSink{logger: logger, debug: debug}
}

func (s *SlogSink) Emit(ctx context.Context, entry Entry) {
	attrs := []any{
		"endpoint", entry.Endpoint,
		"user", entry.UserKey,
		"action", entry.Action,
		"resource_type", entry.ResourceType,
		"tenant", entry.Tenant,
		"allow", entry.Allow,
		"source", entry.Source,
	}
	if s.debug && entry.Debug != nil {
		attrs = append(attrs, "debug", entry.Debug)
	}
	s.logger.InfoContext(ctx, "decision", attrs...)
}

func (s *SlogSink) Close(ctx context.Context) error {
	return nil
}

// MultiSink fans an entry out to every sink.
type MultiSink []Sink

func (m MultiSink) Emit(ctx context.Context, entry Entry) {
	for _, sink := range m {
		sink.Emit(ctx, entry)
	}
}

func (m MultiSink) Close(ctx context.Context) error {
	var first error
	for _, sink := range m {
		if err := sink.Close(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

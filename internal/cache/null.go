package cache

import (
	"context"
	"time"
)

// Null is the no-op backend used when caching is disabled. Every lookup
// misses so the enforcer always consults the engine.
type Null struct{}

// NewNull constructs the no-op backend.
func NewNull() *Null {
	return &Null{}
}

func (*Null) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, nil
}

func (*Null) Set(context.Context, string, []byte, time.Duration) error {
	return nil
}

func (*Null) Delete(context.Context, string) error {
	return nil
}

func (*Null) Health(context.Context) error {
	return nil
}

package seo

import (
	"context"
	"time"
)

// KV is the remote key-value store contract. Values are opaque JSON; Get
// reports absence via ok=false rather than an error.
type KV interface {
	Get(ctx context.Context, key string, dest any) (ok bool, err error)
	Set(ctx context.Context, key string, value any) error
	Del(ctx context.Context, key string) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces project IDs (time-ordered UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}

// Sleeper pauses between poll attempts; injected so poll loops are testable
// without real timers.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

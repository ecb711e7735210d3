// Package ports defines the collaborators of the rate limiting services.
package ports

import (
	"context"
	"time"

	"eventpass/pkg/platform/audit"
)

// AuditPublisher emits audit events for security-relevant operations.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Counter is a fixed-window request counter shared by all replicas.
type Counter interface {
	// Increment adds one to key and returns the new count. The key expires
	// window after its first increment.
	Increment(ctx context.Context, key string, window time.Duration) (int, error)
}

// Package appcore declares the ports the event-sourcing core depends on:
// event, snapshot and saga stores, the dispatcher and health checks.
package appcore

import (
	"context"
	"time"
)

// HealthChecker checks one backing component (database, broker, queue).
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) HealthStatus
}

// HealthStatus is the outcome of a single check.
type HealthStatus struct {
	Healthy   bool           `json:"healthy"`
	Message   string         `json:"message,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CheckedAt time.Time      `json:"checked_at"`
}

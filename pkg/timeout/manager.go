package timeout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Operation names used across the pipeline.
const (
	OpStorage      = "storage"
	OpVideoUpload  = "video-upload"
	OpVideoAnalyze = "video-analyze"
	OpLLM          = "llm"
	OpPlatform     = "platform"
	OpDrive        = "drive"
	OpSheets       = "sheets"
)

// OperationTimeouts defines default timeouts for operations
var OperationTimeouts = map[string]time.Duration{
	OpStorage:      2 * time.Minute,
	OpVideoUpload:  5 * time.Minute,
	OpVideoAnalyze: 3 * time.Minute,
	OpLLM:          90 * time.Second,
	OpPlatform:     60 * time.Second,
	OpDrive:        2 * time.Minute,
	OpSheets:       30 * time.Second,
}

// Manager manages timeout configuration
type Manager struct {
	global    time.Duration
	operation map[string]time.Duration
	mu        sync.RWMutex
}

// NewManager creates a new timeout manager seeded with OperationTimeouts.
func NewManager(globalTimeout time.Duration) *Manager {
	ops := make(map[string]time.Duration, len(OperationTimeouts))
	for k, v := range OperationTimeouts {
		ops[k] = v
	}
	return &Manager{
		global:    globalTimeout,
		operation: ops,
	}
}

// SetOperationTimeout sets timeout for specific operation
func (m *Manager) SetOperationTimeout(operation string, timeout time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.operation[operation] = timeout
}

// GetTimeout returns the configured timeout for operation, or the global one.
func (m *Manager) GetTimeout(operation string) time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if opTimeout, exists := m.operation[operation]; exists {
		return opTimeout
	}
	return m.global
}

// WithTimeout creates context with timeout
func (m *Manager) WithTimeout(ctx context.Context, operation string) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, m.GetTimeout(operation))
}

// Run executes fn under the operation's timeout. A deadline hit by the
// operation's own budget comes back as *TimeoutError.
func (m *Manager) Run(ctx context.Context, operation string, fn func(context.Context) error) error {
	timeoutCtx, cancel := m.WithTimeout(ctx, operation)
	defer cancel()

	err := fn(timeoutCtx)
	if err != nil && errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return &TimeoutError{
			Operation: operation,
			Timeout:   m.GetTimeout(operation),
			Cause:     err,
		}
	}
	return err
}

// Call is Run for operations that produce a value.
func Call[T any](ctx context.Context, m *Manager, operation string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := m.Run(ctx, operation, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}

// TimeoutError represents a timeout error
type TimeoutError struct {
	Operation string
	Timeout   time.Duration
	Cause     error
}

// Error implements error interface
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("operation %s timed out after %v", e.Operation, e.Timeout)
}

// Unwrap reports the deadline so generic classifiers treat it as transient.
func (e *TimeoutError) Unwrap() error {
	return context.DeadlineExceeded
}

// IsTimeout checks if error is a timeout
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	var te *TimeoutError
	if errors.As(err, &te) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

package queue

import "context"

// Task is a background job message: a stable type identifier plus opaque
// payload bytes. Payload encoding belongs to the task's owner.
type Task struct {
	Type     string
	Payload  []byte
	Queue    string
	MaxRetry int
}

// Handler processes one task. The server's retry policy applies to non-nil
// returns, so handlers that must never retry swallow their own errors.
type Handler func(ctx context.Context, task Task) error

// Client enqueues tasks for background processing.
type Client interface {
	Enqueue(ctx context.Context, task Task) (string, error)
	Close() error
}

// Server runs background workers that handle tasks. Run blocks until the
// context is canceled.
type Server interface {
	Register(taskType string, h Handler)
	Run(ctx context.Context) error
}

package queue

import "context"

// Task is a unit of background work run by a Pool.
type Task interface {
	// Name identifies the task in logs.
	Name() string

	// Run executes the task. The returned error is logged; the pool never retries.
	Run(ctx context.Context) error
}

// TaskFunc adapts a function to Task.
type TaskFunc struct {
	ID string
	Fn func(ctx context.Context) error
}

func (t TaskFunc) Name() string { return t.ID }

func (t TaskFunc) Run(ctx context.Context) error { return t.Fn(ctx) }

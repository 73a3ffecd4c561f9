package common

import (
	"context"
	"time"
)

// Context keys for storing values in context
type contextKey string

const (
	ContextKeyTaskName    contextKey = "task_name"
	ContextKeyExecutionID contextKey = "execution_id"
	ContextKeyItemID      contextKey = "item_id"
)

// WithTaskName adds the scheduled-task name to the context
func WithTaskName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, ContextKeyTaskName, name)
}

// TaskNameFromContext extracts the task name from context
func TaskNameFromContext(ctx context.Context) string {
	if name, ok := ctx.Value(ContextKeyTaskName).(string); ok {
		return name
	}
	return ""
}

// WithExecutionID adds a job execution id to the context
func WithExecutionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ContextKeyExecutionID, id)
}

// ExecutionIDFromContext extracts the job execution id from context
func ExecutionIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ContextKeyExecutionID).(string); ok {
		return id
	}
	return ""
}

// WithItemID adds the queue item id being processed to the context
func WithItemID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ContextKeyItemID, id)
}

// ItemIDFromContext extracts the queue item id from context
func ItemIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ContextKeyItemID).(string); ok {
		return id
	}
	return ""
}

// WithTimeout creates a context with the specified timeout
func WithTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, timeout)
}

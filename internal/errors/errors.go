// Package errors provides the node's error-context plumbing: every error
// that crosses a component boundary is wrapped with a component, a
// category, and structured context so the log sink and the optional Sentry
// forwarder (see internal/logsink) can report it without parsing strings.
//
// Classification of *recoverable* failures (capture Transient/Permanent/
// Fatal, transport connect/write outcomes) is a separate, closed enum per
// component — this package never replaces that with string matching, it
// only carries the wrapped error alongside it.
package errors

import (
	"fmt"
	"time"
)

// Category groups errors for logging and telemetry.
type Category string

const (
	CategoryCapture   Category = "capture"
	CategoryWireless  Category = "wireless"
	CategoryTransport Category = "transport"
	CategoryConfig    Category = "configuration"
	CategoryMemory    Category = "memory"
	CategoryState     Category = "state"
	CategoryConsole   Category = "console"
)

// Enhanced wraps an underlying error with component/category/context.
type Enhanced struct {
	err       error
	Component string
	Category  Category
	Context   map[string]any
	Timestamp time.Time
}

func (e *Enhanced) Error() string {
	if e.err == nil {
		return fmt.Sprintf("%s/%s: %v", e.Component, e.Category, e.Context)
	}
	return fmt.Sprintf("%s/%s: %v", e.Component, e.Category, e.err)
}

func (e *Enhanced) Unwrap() error { return e.err }

// Builder accumulates fields before producing an *Enhanced.
type Builder struct {
	e *Enhanced
}

// New starts a Builder wrapping err (which may be nil for a synthesized error).
func New(err error) *Builder {
	return &Builder{e: &Enhanced{err: err, Timestamp: time.Now(), Context: map[string]any{}}}
}

func (b *Builder) Component(name string) *Builder {
	b.e.Component = name
	return b
}

func (b *Builder) Category(c Category) *Builder {
	b.e.Category = c
	return b
}

func (b *Builder) Context(key string, value any) *Builder {
	b.e.Context[key] = value
	return b
}

// Build returns the finished *Enhanced error.
func (b *Builder) Build() *Enhanced {
	return b.e
}

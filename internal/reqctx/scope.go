// Package reqctx provides the request scope used by the table layer: a
// key-value scratch store and a leveled log sink that live for exactly one
// logical request.
//
// A scope is not safe for concurrent use. Create one per request, enter it
// with Use and let it be discarded when Use returns.
package reqctx

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNoScope is returned when an operation needs a request scope and the
// context does not carry one.
var ErrNoScope = errors.New("no active request scope")

type scopeKey struct{}

// Scope holds the per request state
type Scope struct {
	ID string

	values   map[string]interface{}
	sink     Sink
	prev     *Scope
	finished bool
}

// New creates a scope that logs to sink. A nil sink discards log entries.
func New(sink Sink) *Scope {
	if sink == nil {
		sink = discardSink{}
	}
	return &Scope{
		ID:     uuid.NewString(),
		values: make(map[string]interface{}),
		sink:   sink,
	}
}

// Get retrieves a value from the scope store
func (s *Scope) Get(key string) interface{} {
	return s.values[key]
}

// Set stores a value in the scope store
func (s *Scope) Set(key string, value interface{}) {
	s.values[key] = value
}

// Log passes an entry to the scope sink
func (s *Scope) Log(item interface{}, level Level) {
	s.sink.Log(Entry{ScopeID: s.ID, Item: item, Level: level})
}

// Sink returns the sink the scope logs to
func (s *Scope) Sink() Sink {
	return s.sink
}

// Previous returns the scope that was active when this one was entered
func (s *Scope) Previous() *Scope {
	return s.prev
}

// Finished reports whether the scope has been left
func (s *Scope) Finished() bool {
	return s.finished
}

func (s *Scope) start(prev *Scope) {
	s.prev = prev
	s.Log("scope started", Trace)
}

func (s *Scope) finish() {
	s.Log("scope finished", Trace)
	s.finished = true
	s.values = make(map[string]interface{})
}

// WithScope returns a copy of ctx carrying scope
func WithScope(ctx context.Context, scope *Scope) context.Context {
	return context.WithValue(ctx, scopeKey{}, scope)
}

// FromContext returns the active scope or nil
func FromContext(ctx context.Context) *Scope {
	if ctx == nil {
		return nil
	}
	scope, _ := ctx.Value(scopeKey{}).(*Scope)
	return scope
}

// Current returns the active scope or ErrNoScope
func Current(ctx context.Context) (*Scope, error) {
	scope := FromContext(ctx)
	if scope == nil {
		return nil, ErrNoScope
	}
	return scope, nil
}

// Use runs fn with scope as the active scope. The scope is finished and
// its store discarded when fn returns, even if fn panics.
func Use(ctx context.Context, scope *Scope, fn func(ctx context.Context) error) error {
	scope.start(FromContext(ctx))
	defer scope.finish()
	return fn(WithScope(ctx, scope))
}

// Log logs to the active scope, if any
func Log(ctx context.Context, item interface{}, level Level) {
	if scope := FromContext(ctx); scope != nil {
		scope.Log(item, level)
	}
}

package table

import (
	"context"
	"fmt"
)

// Event names a point in the row lifecycle
type Event string

const (
	BeforeCreate Event = "before_create"
	AfterCreate  Event = "after_create"
	BeforeUpdate Event = "before_update"
	AfterUpdate  Event = "after_update"
	BeforeStore  Event = "before_store"
	AfterStore   Event = "after_store"
	BeforeDelete Event = "before_delete"
	AfterDelete  Event = "after_delete"
	AfterLoad    Event = "after_load"
)

// Hook runs on a row lifecycle event. An error from a before hook aborts
// the write.
type Hook func(ctx context.Context, row *Row) error

// RegisterEventHook appends a hook for event
func (t *Table) RegisterEventHook(event Event, hook Hook) {
	t.mu.Lock()
	t.hooks[event] = append(t.hooks[event], hook)
	t.mu.Unlock()
}

func (t *Table) trigger(ctx context.Context, row *Row, events ...Event) error {
	for _, event := range events {
		t.mu.RLock()
		hooks := append([]Hook(nil), t.hooks[event]...)
		t.mu.RUnlock()

		for _, hook := range hooks {
			if err := hook(ctx, row); err != nil {
				return fmt.Errorf("%s hook on %s: %w", event, row.schema.name, err)
			}
		}
	}
	return nil
}

func (r *Row) beforeCreate(ctx context.Context) error {
	return r.table.trigger(ctx, r, BeforeCreate, BeforeStore)
}

func (r *Row) afterCreate(ctx context.Context) error {
	return r.table.trigger(ctx, r, AfterCreate, AfterStore)
}

func (r *Row) beforeUpdate(ctx context.Context) error {
	return r.table.trigger(ctx, r, BeforeStore, BeforeUpdate)
}

func (r *Row) afterUpdate(ctx context.Context) error {
	return r.table.trigger(ctx, r, AfterUpdate, AfterStore)
}

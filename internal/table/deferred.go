package table

import (
	"context"
	"fmt"
)

// State is the evaluation state of a deferred lookup
type State int

const (
	Unevaluated State = iota
	Evaluating
	Evaluated
)

func (s State) String() string {
	switch s {
	case Unevaluated:
		return "unevaluated"
	case Evaluating:
		return "evaluating"
	case Evaluated:
		return "evaluated"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Deferred is a find that runs on first use. Plain key lookups promise
// their keys when deferred, so resolving any lookup of the same table in
// the request scope fetches them too.
type Deferred struct {
	state  State
	eval   func(ctx context.Context) (*Result, error)
	result *Result
	err    error
}

// State returns the evaluation state
func (d *Deferred) State() State {
	return d.state
}

// Resolve runs the find once and returns its result on every call
func (d *Deferred) Resolve(ctx context.Context) (*Result, error) {
	switch d.state {
	case Evaluated:
		return d.result, d.err
	case Evaluating:
		return nil, ErrEvaluating
	}
	d.state = Evaluating
	d.result, d.err = d.eval(ctx)
	d.state = Evaluated
	return d.result, d.err
}

// First resolves the find and returns its first row
func (d *Deferred) First(ctx context.Context) (*Row, error) {
	result, err := d.Resolve(ctx)
	if err != nil || result == nil {
		return nil, err
	}
	return result.First(), nil
}

// Defer validates a find and returns it unevaluated
func (t *Table) Defer(ctx context.Context, opts FindOptions, ids ...interface{}) (*Deferred, error) {
	req, err := t.prepare(ctx, opts, ids)
	if err != nil {
		return nil, err
	}
	if req.unconstrained() && !req.opts.NoScan {
		return nil, ErrUnconstrainedQuery
	}

	if len(req.keys) > 0 && req.opts.cacheable() {
		for _, k := range req.keys {
			req.cache.promise(req.opts.Selection, k)
		}
	}

	return &Deferred{
		eval: func(ctx context.Context) (*Result, error) {
			again, err := t.prepare(ctx, opts, ids)
			if err != nil {
				return nil, err
			}
			return t.find(ctx, again)
		},
	}, nil
}

// Proxy stands in for one row known only by its key. Key columns are read
// without touching the database; anything else resolves the row.
type Proxy struct {
	key      Key
	known    map[string]interface{}
	deferred *Deferred
}

// Proxies returns one proxy per key. The keys must be complete and are
// expected to exist; a proxy whose row is missing resolves to nil.
func (t *Table) Proxies(ctx context.Context, opts FindOptions, ids ...interface{}) ([]*Proxy, error) {
	req, err := t.prepare(ctx, opts, ids)
	if err != nil {
		return nil, err
	}
	if !req.opts.cacheable() {
		return nil, fmt.Errorf("proxies need a plain key lookup")
	}

	proxies := make([]*Proxy, 0, len(req.keys))
	for _, k := range req.keys {
		k := k
		req.cache.promise(req.opts.Selection, k)

		p := &Proxy{key: k, known: make(map[string]interface{}, len(k.Columns))}
		for i, name := range k.Columns {
			p.known[name] = k.Values[i]
		}
		selection := req.opts.Selection
		p.deferred = &Deferred{
			eval: func(ctx context.Context) (*Result, error) {
				rc, err := t.cache(ctx)
				if err != nil {
					return nil, err
				}
				rows, err := t.fetchKeys(ctx, rc, selection, []Key{k})
				if err != nil {
					return nil, err
				}
				result := &Result{Rows: rows, Page: 1}
				if len(result.Rows) > 1 {
					result.Rows = result.Rows[:1]
				}
				return result, nil
			},
		}
		proxies = append(proxies, p)
	}
	return proxies, nil
}

// Key returns the key the proxy stands for
func (p *Proxy) Key() Key {
	return p.key
}

// State returns the evaluation state of the underlying lookup
func (p *Proxy) State() State {
	return p.deferred.State()
}

// Row resolves the proxied row
func (p *Proxy) Row(ctx context.Context) (*Row, error) {
	return p.deferred.First(ctx)
}

// Get returns a column value. Key columns of an unevaluated proxy are
// answered from the key.
func (p *Proxy) Get(ctx context.Context, name string) (interface{}, error) {
	if p.deferred.State() != Evaluated {
		if v, ok := p.known[name]; ok {
			return v, nil
		}
	}
	row, err := p.Row(ctx)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, fmt.Errorf("no %s row for %s", p.key.Index, p.key)
	}
	return row.Lookup(name)
}

// Set resolves the row and assigns a column
func (p *Proxy) Set(ctx context.Context, name string, value interface{}) error {
	row, err := p.Row(ctx)
	if err != nil {
		return err
	}
	if row == nil {
		return fmt.Errorf("no %s row for %s", p.key.Index, p.key)
	}
	return row.Set(name, value)
}

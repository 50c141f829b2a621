package table

import (
	"context"
	"fmt"

	"github.com/vitebski/tablemap/internal/reqctx"
)

// FindOptions controls a find. The zero value looks rows up by primary key
// with all columns.
type FindOptions struct {
	Index      string
	Selection  string
	Conditions *Condition
	Order      string
	Group      string
	Having     string
	Limit      int
	Offset     int
	Page       int

	// Refresh reloads rows even when cached and updates cached rows in place
	Refresh bool
	First   bool
	Count   bool
	// Scan allows a find without any constraint
	Scan bool
	// NoScan turns an unconstrained find into an empty result
	NoScan bool
	// TotalRows runs a count query for the result total
	TotalRows bool
	// CalcRows uses SQL_CALC_FOUND_ROWS for the result total
	CalcRows bool
}

func (o FindOptions) normalize() FindOptions {
	if o.Index == "" {
		o.Index = PrimaryIndex
	}
	if o.Page > 0 {
		if o.Limit <= 0 {
			o.Limit = DefaultPageLength
		}
		if o.Offset <= 0 {
			o.Offset = (o.Page - 1) * o.Limit
		}
	}
	return o
}

// cacheable reports whether a find is a plain key lookup
func (o FindOptions) cacheable() bool {
	return o.Group == "" &&
		o.Conditions == nil &&
		o.Order == "" &&
		!o.Refresh &&
		o.Page == 0 &&
		o.Offset == 0 &&
		!o.Count &&
		o.Limit == 0
}

func (o FindOptions) constrained() bool {
	return o.Conditions != nil || o.Limit > 0 || o.Having != "" || o.Scan
}

func (o FindOptions) streamable() bool {
	return !o.Refresh && !o.Count && !o.TotalRows && !o.CalcRows
}

// groupIDs turns ids into keys of the index. Scalars are grouped by the
// index arity; []interface{} values and Keys are used as whole keys.
func groupIDs(s *schema, index, selection string, ids []interface{}) ([]Key, error) {
	columns, ok := s.indexes[index]
	if !ok {
		return nil, fmt.Errorf("%w: %s on %s", ErrUnknownIndex, index, s.name)
	}

	var keys []Key
	var pending []interface{}
	for _, id := range ids {
		switch v := id.(type) {
		case Key:
			keys = append(keys, v)
		case []interface{}:
			k, err := newKey(s, index, selection, v)
			if err != nil {
				return nil, err
			}
			keys = append(keys, k)
		default:
			pending = append(pending, id)
			if len(pending) == len(columns) {
				k, err := newKey(s, index, selection, pending)
				if err != nil {
					return nil, err
				}
				keys = append(keys, k)
				pending = nil
			}
		}
	}
	if len(pending) > 0 {
		return nil, fmt.Errorf("%w: %d trailing values for %s", ErrKeyArity, len(pending), index)
	}
	return keys, nil
}

// request is a validated find
type request struct {
	opts      FindOptions
	schema    *schema
	cache     *rowCache
	selection *Selection
	keys      []Key
}

func (t *Table) prepare(ctx context.Context, opts FindOptions, ids []interface{}) (*request, error) {
	rc, err := t.cache(ctx)
	if err != nil {
		return nil, err
	}
	s, err := t.snapshot()
	if err != nil {
		return nil, err
	}

	req := &request{opts: opts.normalize(), schema: s, cache: rc}
	if req.opts.Selection != "" {
		req.selection = t.Selection(req.opts.Selection)
		if req.selection == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSelection, req.opts.Selection)
		}
	}

	req.keys, err = groupIDs(s, req.opts.Index, req.opts.Selection, ids)
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (r *request) unconstrained() bool {
	return len(r.keys) == 0 && !r.opts.constrained()
}

func (r *request) query(s *schema) *findQuery {
	q := &findQuery{
		table:     s.name,
		selection: r.selection,
		count:     r.opts.Count,
		calcRows:  r.opts.CalcRows && !r.opts.Count,
		group:     r.opts.Group,
		having:    r.opts.Having,
		order:     r.opts.Order,
		limit:     r.opts.Limit,
		offset:    r.opts.Offset,
	}
	if r.opts.Conditions != nil {
		q.where = r.opts.Conditions.SQL
		q.args = append(q.args, r.opts.Conditions.Args...)
	}
	return q
}

// Find returns the rows addressed by ids and options. Plain key lookups go
// through the request cache: every requested key is promised first, and
// all promised keys of the table are fetched together by one query.
//
// A request scope must be active in ctx.
func (t *Table) Find(ctx context.Context, opts FindOptions, ids ...interface{}) (*Result, error) {
	req, err := t.prepare(ctx, opts, ids)
	if err != nil {
		return nil, err
	}
	return t.find(ctx, req)
}

// First returns the first row addressed by ids and options, or nil
func (t *Table) First(ctx context.Context, opts FindOptions, ids ...interface{}) (*Row, error) {
	opts.First = true
	result, err := t.Find(ctx, opts, ids...)
	if err != nil {
		return nil, err
	}
	return result.First(), nil
}

// Count returns the number of rows addressed by ids and options. It always
// queries the database.
func (t *Table) Count(ctx context.Context, opts FindOptions, ids ...interface{}) (int64, error) {
	opts.Count = true
	result, err := t.Find(ctx, opts, ids...)
	if err != nil {
		return 0, err
	}
	return result.total, nil
}

func (t *Table) find(ctx context.Context, req *request) (*Result, error) {
	opts := req.opts
	if req.unconstrained() {
		if opts.NoScan {
			return &Result{Page: 1}, nil
		}
		return nil, ErrUnconstrainedQuery
	}

	if len(req.keys) > 0 && opts.cacheable() {
		result, err := t.findCached(ctx, req)
		if err != nil {
			return nil, err
		}
		if opts.TotalRows {
			if err := t.countTotal(ctx, req, result); err != nil {
				return nil, err
			}
		}
		return result, nil
	}

	keys := req.keys
	q := req.query(req.schema)
	if opts.First {
		if len(keys) > 0 {
			keys = keys[:1]
		} else {
			q.limit = 1
		}
	}
	q.withKeys(keys)

	result, err := t.runFind(ctx, req.schema, req.cache, q, opts.Refresh)
	if err != nil {
		return nil, err
	}
	if opts.Count {
		return result, nil
	}

	result.Page = opts.Page
	if result.Page < 1 {
		result.Page = 1
	}
	result.PageLength = opts.Limit
	result.Offset = opts.Offset

	if opts.TotalRows {
		if err := t.countTotal(ctx, req, result); err != nil {
			return nil, err
		}
	}

	if opts.First && len(result.Rows) > 1 {
		result.Rows = result.Rows[:1]
	}
	return result, nil
}

// countTotal runs the count query for TotalRows without order or limits
func (t *Table) countTotal(ctx context.Context, req *request, result *Result) error {
	cq := req.query(req.schema)
	cq.count, cq.calcRows = true, false
	cq.order, cq.limit, cq.offset = "", 0, 0
	cq.withKeys(req.keys)
	counted, err := t.runFind(ctx, req.schema, nil, cq, false)
	if err != nil {
		return err
	}
	result.total = counted.total
	result.CalculatedTotal = true
	return nil
}

func (t *Table) findCached(ctx context.Context, req *request) (*Result, error) {
	s := req.schema
	if !covers(req.selection, s.primaryKey()) {
		return nil, fmt.Errorf("%w: selection %s on %s", ErrIncompletePrimaryKey, req.selection.Name, s.name)
	}
	if !covers(req.selection, s.indexes[req.opts.Index]) {
		return nil, fmt.Errorf("%w: index %s is not part of selection %s", ErrColumnNotSelected, req.opts.Index, req.selection.Name)
	}

	// promise every key so a fetch triggered by this or any other lookup
	// picks them all up
	for _, k := range req.keys {
		req.cache.promise(req.opts.Selection, k)
	}

	keys := req.keys
	if req.opts.First {
		keys = keys[:1]
	}

	rows, err := t.fetchKeys(ctx, req.cache, req.opts.Selection, keys)
	if err != nil {
		return nil, err
	}
	result := &Result{Rows: rows, Page: 1}
	result.dedupe()
	if req.opts.First && len(result.Rows) > 1 {
		result.Rows = result.Rows[:1]
	}
	return result, nil
}

// fetchKeys resolves keys from the cache. When any key is missing every
// promised key is fetched first.
func (t *Table) fetchKeys(ctx context.Context, rc *rowCache, selection string, keys []Key) ([]*Row, error) {
	missing := false
	for _, k := range keys {
		if _, ok := rc.load(k); ok {
			rc.unpromise(selection, k)
		} else {
			rc.promise(selection, k)
			missing = true
		}
	}

	if missing {
		if err := t.fetchPromised(ctx, rc); err != nil {
			return nil, err
		}
	}

	var rows []*Row
	for _, k := range keys {
		if e, ok := rc.load(k); ok {
			rows = append(rows, e.rows...)
		}
	}
	return rows, nil
}

// fetchPromised loads every promised key with one query per selection.
// Requested keys that matched rows are cached; keys without a match are
// left uncached.
func (t *Table) fetchPromised(ctx context.Context, rc *rowCache) error {
	s, err := t.snapshot()
	if err != nil {
		return err
	}

	selections, promised := rc.takePromised()
	for _, name := range selections {
		keys := promised[name]
		if len(keys) == 0 {
			continue
		}
		sel := t.Selection(name)
		if name != "" && sel == nil {
			return fmt.Errorf("%w: %s", ErrUnknownSelection, name)
		}

		q := &findQuery{table: s.name, selection: sel}
		q.withKeys(keys)
		reqctx.Log(ctx, fmt.Sprintf("fetching %d promised %s keys", len(keys), s.name), reqctx.Trace)

		result, err := t.runFind(ctx, s, rc, q, false)
		if err != nil {
			return err
		}
		for _, k := range keys {
			if matched := result.Match(k); len(matched) > 0 {
				rc.store(k, matched)
			}
		}
	}
	return nil
}

// CacheNil records that ids have no rows, so later lookups of them in this
// request scope return nothing without querying
func (t *Table) CacheNil(ctx context.Context, opts FindOptions, ids ...interface{}) error {
	req, err := t.prepare(ctx, opts, ids)
	if err != nil {
		return err
	}
	for _, k := range req.keys {
		req.cache.storeNil(k)
		req.cache.unpromise(req.opts.Selection, k)
	}
	return nil
}

// Stream calls fn for every row addressed by ids and options without
// caching them. Cached rows among the requested keys come first; the rest
// are read from a streamed query, which must not be interleaved with other
// queries on the same connection.
func (t *Table) Stream(ctx context.Context, opts FindOptions, fn func(row *Row) error, ids ...interface{}) error {
	if !opts.streamable() {
		return ErrUnstreamableOptions
	}
	req, err := t.prepare(ctx, opts, ids)
	if err != nil {
		return err
	}
	opts = req.opts
	if req.unconstrained() {
		if opts.NoScan {
			return nil
		}
		return ErrUnconstrainedQuery
	}

	keys := req.keys
	q := req.query(req.schema)
	if len(keys) > 0 {
		if opts.First {
			keys = keys[:1]
		}

		var remaining []Key
		for _, k := range keys {
			e, ok := req.cache.load(k)
			if !ok {
				remaining = append(remaining, k)
				continue
			}
			for _, row := range e.rows {
				if err := fn(row); err != nil {
					return err
				}
				if opts.First {
					return nil
				}
			}
		}
		if len(remaining) == 0 {
			return nil
		}
		q.withKeys(remaining)
	}
	if opts.First {
		q.limit = 1
	}

	sql, args := q.build(ctx)
	stream, err := req.schema.db.QueryStreamed(ctx, sql, args...)
	if err != nil {
		return err
	}
	return stream.Each(func(raw map[string]interface{}) error {
		row := newRow(t, req.schema, req.selection)
		if err := row.load(raw); err != nil {
			return err
		}
		if err := t.trigger(ctx, row, AfterLoad); err != nil {
			return err
		}
		return fn(row)
	})
}

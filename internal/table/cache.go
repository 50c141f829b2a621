package table

import (
	"context"

	"github.com/vitebski/tablemap/internal/reqctx"
)

const cacheScopeKey = "table.cache"

type cacheEntry struct {
	key  Key
	rows []*Row
}

// promiseSet is an ordered set of keys waiting to be fetched
type promiseSet struct {
	keys  []Key
	index map[string]int
}

func (p *promiseSet) add(k Key) {
	if _, ok := p.index[k.ID()]; ok {
		return
	}
	p.index[k.ID()] = len(p.keys)
	p.keys = append(p.keys, k)
}

func (p *promiseSet) remove(k Key) {
	i, ok := p.index[k.ID()]
	if !ok {
		return
	}
	p.keys = append(p.keys[:i], p.keys[i+1:]...)
	delete(p.index, k.ID())
	for j := i; j < len(p.keys); j++ {
		p.index[p.keys[j].ID()] = j
	}
}

// rowCache is the identity cache of one table inside one request scope.
// An entry with no rows is a negative entry.
type rowCache struct {
	generation uint64
	entries    map[string]*cacheEntry
	selections []string
	promised   map[string]*promiseSet
}

func newRowCache(generation uint64) *rowCache {
	rc := &rowCache{}
	rc.reset(generation)
	return rc
}

func (rc *rowCache) reset(generation uint64) {
	rc.generation = generation
	rc.entries = make(map[string]*cacheEntry)
	rc.selections = nil
	rc.promised = make(map[string]*promiseSet)
}

func (rc *rowCache) load(k Key) (*cacheEntry, bool) {
	e, ok := rc.entries[k.ID()]
	return e, ok
}

func (rc *rowCache) store(k Key, rows []*Row) {
	rc.entries[k.ID()] = &cacheEntry{key: k, rows: rows}
}

func (rc *rowCache) storeNil(k Key) {
	rc.entries[k.ID()] = &cacheEntry{key: k}
}

// invalidate drops every entry whose key matches and returns how many
func (rc *rowCache) invalidate(match func(Key) bool) int {
	n := 0
	for id, e := range rc.entries {
		if match(e.key) {
			delete(rc.entries, id)
			n++
		}
	}
	return n
}

func (rc *rowCache) promise(selection string, k Key) {
	set, ok := rc.promised[selection]
	if !ok {
		set = &promiseSet{index: make(map[string]int)}
		rc.promised[selection] = set
		rc.selections = append(rc.selections, selection)
	}
	set.add(k)
}

func (rc *rowCache) unpromise(selection string, k Key) {
	if set, ok := rc.promised[selection]; ok {
		set.remove(k)
	}
}

func (rc *rowCache) promisedCount() int {
	n := 0
	for _, set := range rc.promised {
		n += len(set.keys)
	}
	return n
}

// takePromised returns every promised key grouped by selection, in the
// order selections were first promised, and clears the promised sets
func (rc *rowCache) takePromised() ([]string, map[string][]Key) {
	selections := rc.selections
	out := make(map[string][]Key, len(rc.promised))
	for sel, set := range rc.promised {
		if len(set.keys) > 0 {
			out[sel] = set.keys
		}
	}
	rc.selections = nil
	rc.promised = make(map[string]*promiseSet)
	return selections, out
}

// cache returns this table's identity cache in the active request scope.
// A cache built against an older schema generation is reset first.
func (t *Table) cache(ctx context.Context) (*rowCache, error) {
	scope, err := reqctx.Current(ctx)
	if err != nil {
		return nil, err
	}

	caches, ok := scope.Get(cacheScopeKey).(map[*Table]*rowCache)
	if !ok {
		caches = make(map[*Table]*rowCache)
		scope.Set(cacheScopeKey, caches)
	}

	generation := t.Generation()
	rc, ok := caches[t]
	if !ok {
		rc = newRowCache(generation)
		caches[t] = rc
	} else if rc.generation != generation {
		rc.reset(generation)
	}
	return rc, nil
}

// ClearCache drops this table's cache in the active request scope
func (t *Table) ClearCache(ctx context.Context) error {
	rc, err := t.cache(ctx)
	if err != nil {
		return err
	}
	rc.reset(rc.generation)
	return nil
}

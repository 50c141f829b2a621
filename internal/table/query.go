package table

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/vitebski/tablemap/internal/column"
	"github.com/vitebski/tablemap/internal/reqctx"
)

// Condition is an opaque WHERE fragment with its bound parameters
type Condition struct {
	SQL  string
	Args []interface{}
}

// Where builds a condition
func Where(sql string, args ...interface{}) *Condition {
	return &Condition{SQL: sql, Args: args}
}

// maxLimit is the row count MySQL documents for "offset without limit"
const maxLimit = "18446744073709551615"

type findQuery struct {
	table     string
	selection *Selection
	count     bool
	calcRows  bool
	where     string
	args      []interface{}
	group     string
	having    string
	order     string
	limit     int
	offset    int
}

// withKeys ANDs the OR of keys with the query conditions
func (q *findQuery) withKeys(keys []Key) {
	if len(keys) == 0 {
		return
	}
	sql, args := keysCondition(keys)
	if q.where != "" {
		sql = sql + " AND (" + q.where + ")"
		args = append(args, q.args...)
	}
	q.where, q.args = sql, args
}

func (q *findQuery) build(ctx context.Context) (string, []interface{}) {
	var b strings.Builder
	b.WriteString("SELECT ")
	switch {
	case q.count:
		b.WriteString("COUNT(*) AS `rowcount`")
	case q.calcRows:
		b.WriteString("SQL_CALC_FOUND_ROWS ")
		b.WriteString(projection(q.selection))
	default:
		b.WriteString(projection(q.selection))
	}
	b.WriteString(" FROM ")
	b.WriteString(column.Quote(q.table))

	if q.where != "" {
		b.WriteString(" WHERE ")
		b.WriteString(q.where)
	}
	if q.group != "" {
		b.WriteString(" GROUP BY ")
		b.WriteString(q.group)
	}
	if q.having != "" {
		b.WriteString(" HAVING ")
		b.WriteString(q.having)
	}
	if q.order != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(q.order)
	}

	switch {
	case q.limit > 0 && q.offset > 0:
		fmt.Fprintf(&b, " LIMIT %d,%d", q.offset, q.limit)
	case q.limit > 0:
		fmt.Fprintf(&b, " LIMIT %d", q.limit)
	case q.offset > 0:
		reqctx.Log(ctx, fmt.Sprintf("offset %d given without limit on %s", q.offset, q.table), reqctx.Error)
		b.WriteString(" LIMIT " + strconv.Itoa(q.offset) + "," + maxLimit)
	}
	return b.String(), q.args
}

// runFind executes q and turns the result into rows. Rows already cached
// under their primary key are reused, or refreshed in place with refresh.
// Every loaded row is cached under its primary key when rc is not nil.
func (t *Table) runFind(ctx context.Context, s *schema, rc *rowCache, q *findQuery, refresh bool) (*Result, error) {
	sql, args := q.build(ctx)
	res, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}

	if q.count {
		var total int64
		for _, raw := range res.Rows {
			n, _ := strconv.ParseInt(fmt.Sprint(raw["rowcount"]), 10, 64)
			total += n
		}
		return &Result{total: total, CalculatedTotal: true}, nil
	}

	total := res.TotalRows()
	result := &Result{
		Rows:            make([]*Row, 0, res.Len()),
		total:           total,
		CalculatedTotal: res.CalculatedTotal(),
	}

	// rows without their primary key cannot be identified
	if !covers(q.selection, s.primaryKey()) {
		rc = nil
	}

	var loaded []*Row
	for _, raw := range res.Rows {
		var row *Row
		var key Key
		if rc != nil {
			key, err = rawPrimaryKey(s, q.selection, raw)
			if err != nil {
				return nil, err
			}
			if e, ok := rc.load(key); ok && len(e.rows) > 0 {
				if !refresh {
					result.Rows = append(result.Rows, e.rows[0])
					continue
				}
				row = e.rows[0]
				row.ClearModified()
			}
		}
		if row == nil {
			row = newRow(t, s, q.selection)
		}

		if err := row.load(raw); err != nil {
			return nil, err
		}
		row.totalRows = total
		if err := t.trigger(ctx, row, AfterLoad); err != nil {
			return nil, err
		}

		result.Rows = append(result.Rows, row)
		if rc != nil {
			rc.store(key, []*Row{row})
			loaded = append(loaded, row)
		}
	}

	if len(loaded) > 0 {
		reqctx.Log(ctx, fmt.Sprintf("cached %d %s rows", len(loaded), s.name), reqctx.Spam)
	}
	return result, nil
}

// rawPrimaryKey parses the primary key of a raw result row
func rawPrimaryKey(s *schema, sel *Selection, raw map[string]interface{}) (Key, error) {
	pk := s.primaryKey()
	values := make([]interface{}, len(pk))
	for i, name := range pk {
		v := raw[name]
		if v == nil {
			continue
		}
		parsed, err := s.columns[name].ParseString(fmt.Sprint(v))
		if err != nil {
			return Key{}, err
		}
		values[i] = parsed
	}
	return newKey(s, PrimaryIndex, selectionName(sel), values)
}

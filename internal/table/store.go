package table

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vitebski/tablemap/internal/column"
	"github.com/vitebski/tablemap/internal/connector"
	"github.com/vitebski/tablemap/internal/reqctx"
)

// Increment turns the upsert assignment of Column into Column + Delta
type Increment struct {
	Column string
	Delta  int64
}

// StoreOptions controls Row.Store
type StoreOptions struct {
	// NoCache skips request cache invalidation
	NoCache bool
	// Ignore inserts with INSERT IGNORE
	Ignore       bool
	InsertID     bool
	AffectedRows bool
	// Duplicate writes with INSERT ... ON DUPLICATE KEY UPDATE and runs the
	// update hooks
	Duplicate  bool
	Conditions *Condition
	Increment  *Increment
}

// DeleteOptions controls Row.Delete
type DeleteOptions struct {
	NoCache      bool
	AffectedRows bool
}

// statement builds a write, leaving out omitted columns
type statement func(omit map[string]bool) (string, []interface{}, error)

// exec runs a write. When the server reports an unknown column that the
// write does not modify, the column is left out and the write is retried
// once.
func (r *Row) exec(ctx context.Context, op string, modifies func(string) bool, build statement) (*connector.Result, error) {
	omit := make(map[string]bool)
	for attempt := 0; ; attempt++ {
		sql, args, err := build(omit)
		if err != nil {
			return nil, err
		}
		res, err := r.schema.db.Query(ctx, sql, args...)
		if err == nil {
			return res, nil
		}

		var qe *connector.QueryError
		if attempt > 0 || !errors.As(err, &qe) || !errors.Is(err, connector.ErrCannotFindColumn) {
			return nil, err
		}
		if _, known := r.schema.columns[qe.Column]; !known || modifies(qe.Column) {
			return nil, err
		}

		msg := fmt.Sprintf("deleted column '%s' in '%s' detected, retrying %s", qe.Column, r.schema.name, op)
		reqctx.Log(ctx, msg, reqctx.Error)
		r.table.logger.Errorf("%s", msg)
		omit[qe.Column] = true
	}
}

func (r *Row) invalidate(ctx context.Context, modificationAware bool) {
	rc, err := r.table.cache(ctx)
	if err != nil {
		return
	}
	n := rc.invalidate(func(k Key) bool {
		if modificationAware && k.MatchesModified(r) {
			return true
		}
		return k.Matches(r)
	})
	if n > 0 {
		reqctx.Log(ctx, fmt.Sprintf("invalidated %d cached %s entries", n, r.schema.name), reqctx.Spam)
	}
}

func (r *Row) wire(name string) interface{} {
	return r.schema.columns[name].WireValue(r.values[name])
}

// Store writes the row: an insert while the row is pending insert and an
// update afterwards. Duplicate switches a pending insert to update
// semantics and writes it as an upsert.
func (r *Row) Store(ctx context.Context, opts StoreOptions) error {
	if r.mode != ModeInsert && r.mode != ModeUpdate {
		return fmt.Errorf("%w: %v on %s", ErrInvalidUpdateMode, r.mode, r.schema.name)
	}
	if err := r.checkKeySelected(); err != nil {
		return err
	}
	if opts.Increment != nil {
		if _, ok := r.schema.columns[opts.Increment.Column]; !ok {
			return fmt.Errorf("increment %w: %s", ErrUnknownColumn, opts.Increment.Column)
		}
	}

	upsert := opts.Duplicate
	if upsert {
		r.mode = ModeUpdate
	}

	if r.mode == ModeInsert {
		return r.insert(ctx, opts)
	}
	return r.update(ctx, opts, upsert)
}

func (r *Row) insert(ctx context.Context, opts StoreOptions) error {
	if err := r.beforeCreate(ctx); err != nil {
		return err
	}
	if !opts.NoCache {
		r.invalidate(ctx, false)
	}

	var autoIncrement *column.Column
	for _, name := range r.columnNames() {
		if col := r.schema.columns[name]; col.AutoIncrement() {
			autoIncrement = col
		}
	}

	verb := "INSERT INTO"
	if opts.Ignore {
		verb = "INSERT IGNORE INTO"
	}
	res, err := r.exec(ctx, "store", r.explicitlyModified, func(omit map[string]bool) (string, []interface{}, error) {
		var sets []string
		var args []interface{}
		for _, name := range r.columnNames() {
			if omit[name] {
				continue
			}
			sets = append(sets, column.Quote(name)+" = ?")
			args = append(args, r.wire(name))
		}
		return fmt.Sprintf("%s %s SET %s", verb, column.Quote(r.schema.name), strings.Join(sets, ", ")), args, nil
	})
	if err != nil {
		return err
	}

	r.mode = ModeUpdate
	if opts.InsertID || autoIncrement != nil {
		r.insertID = res.InsertID()
		if autoIncrement != nil && r.insertID != 0 {
			v, err := autoIncrement.Assign(r.insertID)
			if err != nil {
				return err
			}
			r.values[autoIncrement.Name] = v
		}
	}
	if opts.AffectedRows {
		r.affectedRows = res.AffectedRows()
	}

	err = r.afterCreate(ctx)
	r.ClearModified()
	return err
}

func (r *Row) update(ctx context.Context, opts StoreOptions, upsert bool) error {
	if err := r.beforeUpdate(ctx); err != nil {
		return err
	}
	if !opts.NoCache {
		r.invalidate(ctx, true)
	}

	if !r.IsModified() && opts.Increment == nil {
		return r.afterUpdate(ctx)
	}

	modified := r.ModifiedColumns()
	isModified := func(name string) bool {
		_, ok := r.modified[name]
		return ok || r.schema.keepsColumn(name)
	}

	var build statement
	if upsert {
		build = r.upsertStatement(modified, opts.Increment)
	} else {
		if len(modified) == 0 {
			return r.afterUpdate(ctx)
		}
		build = r.updateStatement(modified, opts.Conditions)
	}

	res, err := r.exec(ctx, "store", isModified, build)
	if err != nil {
		return err
	}
	if opts.InsertID {
		r.insertID = res.InsertID()
	}
	if opts.AffectedRows {
		r.affectedRows = res.AffectedRows()
	}

	err = r.afterUpdate(ctx)
	r.ClearModified()
	return err
}

// updateStatement builds UPDATE ... SET <modified> WHERE <primary key>.
// The key is matched on its original values.
func (r *Row) updateStatement(modified []string, cond *Condition) statement {
	return func(omit map[string]bool) (string, []interface{}, error) {
		sets := make([]string, 0, len(modified))
		args := make([]interface{}, 0, len(modified))
		for _, name := range modified {
			sets = append(sets, column.Quote(name)+" = ?")
			args = append(args, r.wire(name))
		}

		where, whereArgs := r.primaryKeyCondition(omit, true)
		if where == "" {
			return "", nil, fmt.Errorf("update of %s has no primary key columns left", r.schema.name)
		}
		args = append(args, whereArgs...)
		if cond != nil && cond.SQL != "" {
			where += " AND (" + cond.SQL + ")"
			args = append(args, cond.Args...)
		}
		return fmt.Sprintf("UPDATE %s SET %s WHERE %s", column.Quote(r.schema.name), strings.Join(sets, ", "), where), args, nil
	}
}

// upsertStatement builds INSERT ... SET <key and modified columns> ON
// DUPLICATE KEY UPDATE <modified non key columns>, with the increment
// column added to itself instead of overwritten
func (r *Row) upsertStatement(modified []string, incr *Increment) statement {
	return func(omit map[string]bool) (string, []interface{}, error) {
		pk := r.schema.primaryKey()
		inSet := make(map[string]bool)
		var sets []string
		var args []interface{}
		add := func(name string) {
			if inSet[name] || omit[name] {
				return
			}
			inSet[name] = true
			sets = append(sets, column.Quote(name)+" = ?")
			args = append(args, r.wire(name))
		}
		for _, name := range pk {
			add(name)
		}
		for _, name := range modified {
			add(name)
		}

		primary := make(map[string]bool, len(pk))
		for _, name := range pk {
			primary[name] = true
		}

		var updates []string
		var updateArgs []interface{}
		for _, name := range modified {
			if primary[name] || omit[name] || (incr != nil && incr.Column == name) {
				continue
			}
			updates = append(updates, column.Quote(name)+" = ?")
			updateArgs = append(updateArgs, r.wire(name))
		}
		if incr != nil {
			q := column.Quote(incr.Column)
			updates = append(updates, q+" = "+q+" + ?")
			updateArgs = append(updateArgs, incr.Delta)
		}
		if len(updates) == 0 {
			// nothing but the key changed; keep the existing row
			q := column.Quote(pk[0])
			updates = append(updates, q+" = "+q)
		}

		sql := fmt.Sprintf("INSERT INTO %s SET %s ON DUPLICATE KEY UPDATE %s",
			column.Quote(r.schema.name), strings.Join(sets, ", "), strings.Join(updates, ", "))
		return sql, append(args, updateArgs...), nil
	}
}

// primaryKeyCondition renders the primary key as an AND of equalities,
// using original values when original is set
func (r *Row) primaryKeyCondition(omit map[string]bool, original bool) (string, []interface{}) {
	var parts []string
	var args []interface{}
	for _, name := range r.schema.primaryKey() {
		if omit[name] {
			continue
		}
		v := r.values[name]
		if original {
			v = r.Original(name)
		}
		if v == nil {
			parts = append(parts, column.Quote(name)+" IS NULL")
			continue
		}
		parts = append(parts, column.Quote(name)+" = ?")
		args = append(args, r.schema.columns[name].WireValue(v))
	}
	return strings.Join(parts, " AND "), args
}

// checkKeySelected fails for rows whose selection leaves out part of the
// primary key, since the write could not address the row
func (r *Row) checkKeySelected() error {
	if !covers(r.selection, r.schema.primaryKey()) {
		return fmt.Errorf("%w: selection %s on %s", ErrIncompletePrimaryKey, r.selection.Name, r.schema.name)
	}
	return nil
}

func (r *Row) explicitlyModified(name string) bool {
	_, ok := r.modified[name]
	return ok
}

// Delete removes the row
func (r *Row) Delete(ctx context.Context, opts DeleteOptions) error {
	if r.mode != ModeInsert && r.mode != ModeUpdate {
		return fmt.Errorf("%w: %v on %s", ErrInvalidUpdateMode, r.mode, r.schema.name)
	}

	if err := r.checkKeySelected(); err != nil {
		return err
	}

	if err := r.table.trigger(ctx, r, BeforeDelete); err != nil {
		return err
	}
	if !opts.NoCache {
		r.invalidate(ctx, false)
	}

	res, err := r.exec(ctx, "delete", r.schema.keepsColumn, func(omit map[string]bool) (string, []interface{}, error) {
		where, args := r.primaryKeyCondition(omit, false)
		if where == "" {
			return "", nil, fmt.Errorf("delete from %s has no primary key columns left", r.schema.name)
		}
		return fmt.Sprintf("DELETE FROM %s WHERE %s", column.Quote(r.schema.name), where), args, nil
	})
	if err != nil {
		return err
	}
	if opts.AffectedRows {
		r.affectedRows = res.AffectedRows()
	}
	return r.table.trigger(ctx, r, AfterDelete)
}

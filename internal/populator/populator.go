package populator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/tablemap/internal/analyzer"
	"github.com/vitebski/tablemap/internal/connector"
	"github.com/vitebski/tablemap/internal/generator"
	"github.com/vitebski/tablemap/internal/reqctx"
	"github.com/vitebski/tablemap/internal/table"
	"github.com/vitebski/tablemap/pkg/models"
)

// DatabasePopulator populates database tables with fake data through the
// row insert path
type DatabasePopulator struct {
	SchemaAnalyzer *analyzer.SchemaAnalyzer
	DataGenerator  *generator.DataGenerator
	NumRecords     int
	MaxRetries     int
	InsertedRows   map[string][]*table.Row
	FailedTables   map[string]bool
	deferred       map[string]bool
	Sink           reqctx.Sink
	Logger         *logrus.Logger
}

// NewDatabasePopulator creates a new database populator
func NewDatabasePopulator(
	schemaAnalyzer *analyzer.SchemaAnalyzer,
	dataGenerator *generator.DataGenerator,
	numRecords int,
	maxRetries int,
	logger *logrus.Logger,
) *DatabasePopulator {
	return &DatabasePopulator{
		SchemaAnalyzer: schemaAnalyzer,
		DataGenerator:  dataGenerator,
		NumRecords:     numRecords,
		MaxRetries:     maxRetries,
		InsertedRows:   make(map[string][]*table.Row),
		FailedTables:   make(map[string]bool),
		deferred:       make(map[string]bool),
		Sink:           reqctx.LogrusSink{Logger: logger},
		Logger:         logger,
	}
}

// PopulateDatabase populates every registered table in insertion order.
// Each table is seeded inside its own request scope.
func (dp *DatabasePopulator) PopulateDatabase(ctx context.Context) bool {
	orderedTables, circularTables := dp.SchemaAnalyzer.GetTableInsertionOrder()
	success := true

	for _, name := range orderedTables {
		err := reqctx.Use(ctx, reqctx.New(dp.Sink), func(ctx context.Context) error {
			return dp.populateTable(ctx, name, circularTables)
		})
		if err != nil {
			dp.Logger.Errorf("Error populating table %s: %v", name, err)
			dp.FailedTables[name] = true
			success = false
		}
	}

	// Second pass: point circular foreign keys at rows that now exist
	for _, name := range orderedTables {
		if !dp.deferred[name] || dp.FailedTables[name] {
			continue
		}
		err := reqctx.Use(ctx, reqctx.New(dp.Sink), func(ctx context.Context) error {
			return dp.linkCircularTable(ctx, name, circularTables)
		})
		if err != nil {
			dp.Logger.Errorf("Error updating circular foreign keys of %s: %v", name, err)
			dp.FailedTables[name] = true
			success = false
		}
	}

	return success
}

// Result summarizes the population
func (dp *DatabasePopulator) Result() models.PopulationResult {
	var result models.PopulationResult
	for _, name := range dp.SchemaAnalyzer.Tables {
		if dp.FailedTables[name] {
			result.FailedTables = append(result.FailedTables, name)
		} else {
			result.SuccessfulTables = append(result.SuccessfulTables, name)
		}
		result.TotalRecords += len(dp.InsertedRows[name])
	}
	return result
}

// populateTable inserts NumRecords rows into a table. Foreign keys into
// circular tables are left NULL when possible and fixed up later.
func (dp *DatabasePopulator) populateTable(ctx context.Context, name string, circular map[string]bool) error {
	tbl, err := dp.SchemaAnalyzer.Table(name)
	if err != nil {
		return err
	}
	dp.Logger.Infof("Populating table: %s", name)

	foreignKeys := dp.SchemaAnalyzer.ForeignKeys[name]
	isManyToMany := dp.SchemaAnalyzer.ManyToManyTables[name]

	numRecords := dp.NumRecords
	if isManyToMany {
		numRecords = dp.calculateManyToManyRecords(foreignKeys)
	}

	// Circular references are inserted as NULL and linked in a second pass
	dp.deferred[name] = circular[name] && circularFKsNullable(tbl, foreignKeys, circular)
	skip := make(map[string]bool)
	if dp.deferred[name] {
		for _, fk := range foreignKeys {
			if circular[fk.ReferencedTable] {
				skip[fk.Column] = true
			}
		}
	}

	inserted := 0
	for i := 0; i < numRecords; i++ {
		row, err := dp.insertRow(ctx, tbl, foreignKeys, skip, isManyToMany)
		if err != nil {
			return err
		}
		if row != nil {
			dp.InsertedRows[name] = append(dp.InsertedRows[name], row)
			inserted++
		}
	}

	dp.Logger.Infof("Successfully populated table %s with %d records", name, inserted)
	return nil
}

// insertRow generates and stores one row, regenerating it after duplicate
// key errors. A nil row means an ignored duplicate.
func (dp *DatabasePopulator) insertRow(ctx context.Context, tbl *table.Table, foreignKeys []models.ForeignKey, skip map[string]bool, ignore bool) (*table.Row, error) {
	var lastErr error
	for attempt := 0; attempt <= dp.MaxRetries; attempt++ {
		row, err := tbl.NewRow()
		if err != nil {
			return nil, err
		}
		if err := dp.fill(row, foreignKeys, skip); err != nil {
			return nil, err
		}

		err = row.Store(ctx, table.StoreOptions{Ignore: ignore, AffectedRows: ignore})
		if err == nil {
			if ignore && row.AffectedRows() == 0 {
				return nil, nil
			}
			return row, nil
		}
		if !errors.Is(err, connector.ErrDuplication) {
			return nil, err
		}
		dp.Logger.Debugf("Duplicate entry in %s, regenerating record: %v", tbl.Name(), err)
		lastErr = err
	}
	return nil, lastErr
}

// fill assigns generated values and foreign keys to a new row. Skipped
// foreign key columns are set to NULL.
func (dp *DatabasePopulator) fill(row *table.Row, foreignKeys []models.ForeignKey, skip map[string]bool) error {
	tbl := row.Table()
	record := dp.DataGenerator.GenerateRecord(tbl)

	for _, fk := range foreignKeys {
		col, ok := tbl.Column(fk.Column)
		if !ok {
			continue
		}
		if skip[fk.Column] {
			record[fk.Column] = nil
			continue
		}
		value := dp.getRandomForeignKeyValue(fk)
		if value == nil && !col.Nullable {
			return &MissingReferenceError{ForeignKey: fk}
		}
		record[fk.Column] = value
	}

	names := make([]string, 0, len(record))
	for name := range record {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := row.Set(name, record[name]); err != nil {
			return err
		}
	}
	return nil
}

// linkCircularTable updates the circular foreign keys of inserted rows
func (dp *DatabasePopulator) linkCircularTable(ctx context.Context, name string, circular map[string]bool) error {
	dp.Logger.Infof("Updating circular foreign keys of table: %s", name)

	var circularFKs []models.ForeignKey
	for _, fk := range dp.SchemaAnalyzer.ForeignKeys[name] {
		if circular[fk.ReferencedTable] {
			circularFKs = append(circularFKs, fk)
		}
	}

	for _, row := range dp.InsertedRows[name] {
		for _, fk := range circularFKs {
			value := dp.getRandomForeignKeyValue(fk)
			if value == nil {
				dp.Logger.Warningf("Referenced table %s has no data, skipping update for %s.%s",
					fk.ReferencedTable, name, fk.Column)
				continue
			}
			if err := row.Set(fk.Column, value); err != nil {
				return err
			}
		}
		if !row.IsModified() {
			continue
		}
		if err := row.Store(ctx, table.StoreOptions{}); err != nil {
			return err
		}
	}
	return nil
}

// getRandomForeignKeyValue picks the referenced column of a random inserted row
func (dp *DatabasePopulator) getRandomForeignKeyValue(fk models.ForeignKey) interface{} {
	rows := dp.InsertedRows[fk.ReferencedTable]
	if len(rows) == 0 {
		return nil
	}
	return rows[rand.Intn(len(rows))].Get(fk.ReferencedColumn)
}

// calculateManyToManyRecords calculates how many records to insert for a many-to-many table
func (dp *DatabasePopulator) calculateManyToManyRecords(foreignKeys []models.ForeignKey) int {
	referencedTables := make(map[string]bool)
	for _, fk := range foreignKeys {
		referencedTables[fk.ReferencedTable] = true
	}

	combinations := 1
	for refTable := range referencedTables {
		n := len(dp.InsertedRows[refTable])
		if n == 0 {
			return 0
		}
		combinations *= n
	}

	// Use the smaller of: total possible combinations or 2*NumRecords
	if combinations > 2*dp.NumRecords {
		return 2 * dp.NumRecords
	}
	return combinations
}

// circularFKsNullable reports whether every foreign key into a circular
// table can be left NULL on insert
func circularFKsNullable(tbl *table.Table, foreignKeys []models.ForeignKey, circular map[string]bool) bool {
	for _, fk := range foreignKeys {
		if !circular[fk.ReferencedTable] {
			continue
		}
		if col, ok := tbl.Column(fk.Column); ok && !col.Nullable {
			return false
		}
	}
	return true
}

// MissingReferenceError reports a NOT NULL foreign key whose referenced
// table has no rows
type MissingReferenceError struct {
	ForeignKey models.ForeignKey
}

func (e *MissingReferenceError) Error() string {
	fk := e.ForeignKey
	return fmt.Sprintf("no value available for NOT NULL foreign key %s.%s referencing %s.%s",
		fk.Table, fk.Column, fk.ReferencedTable, fk.ReferencedColumn)
}

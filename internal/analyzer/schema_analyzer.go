// Package analyzer introspects a whole database: it registers one
// table.Table per base table and orders tables by their foreign keys.
package analyzer

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/tablemap/internal/config"
	"github.com/vitebski/tablemap/internal/table"
	"github.com/vitebski/tablemap/pkg/models"
	"github.com/yourbasic/graph"
)

// Catalog is what the analyzer reads from the database
type Catalog interface {
	table.Database
	ListTables(ctx context.Context) ([]string, error)
	ListForeignKeys(ctx context.Context) ([]models.ForeignKey, error)
}

// SchemaAnalyzer analyzes database schema, detects dependencies, and sorts tables for population
type SchemaAnalyzer struct {
	DB                 Catalog
	Config             *config.Config
	Tables             []string
	Registry           map[string]*table.Table
	ForeignKeys        map[string][]models.ForeignKey
	ManyToManyTables   map[string]bool
	DependencyGraph    *graph.Mutable
	TableIndexMap      map[string]int
	IndexTableMap      map[int]string
	DirectCircularDeps [][]string
	Logger             *logrus.Logger
}

// NewSchemaAnalyzer creates a new schema analyzer. cfg may be nil.
func NewSchemaAnalyzer(db Catalog, cfg *config.Config, logger *logrus.Logger) *SchemaAnalyzer {
	if cfg == nil {
		cfg = &config.Config{}
	}
	return &SchemaAnalyzer{
		DB:               db,
		Config:           cfg,
		Registry:         make(map[string]*table.Table),
		ForeignKeys:      make(map[string][]models.ForeignKey),
		ManyToManyTables: make(map[string]bool),
		TableIndexMap:    make(map[string]int),
		IndexTableMap:    make(map[int]string),
		Logger:           logger,
	}
}

// AnalyzeSchema registers every base table and builds the dependency graph
func (sa *SchemaAnalyzer) AnalyzeSchema(ctx context.Context) error {
	tables, err := sa.DB.ListTables(ctx)
	if err != nil {
		sa.Logger.Errorf("Error getting tables: %v", err)
		return err
	}

	for _, name := range tables {
		tbl, err := sa.register(ctx, name)
		if err != nil {
			sa.Logger.Warningf("Failed to initialize table %s: %v", name, err)
			continue
		}
		sa.Registry[name] = tbl
		sa.Tables = append(sa.Tables, name)
	}

	fks, err := sa.DB.ListForeignKeys(ctx)
	if err != nil {
		sa.Logger.Errorf("Error getting foreign keys: %v", err)
		return err
	}

	for i, name := range sa.Tables {
		sa.TableIndexMap[name] = i
		sa.IndexTableMap[i] = name
	}
	sa.DependencyGraph = graph.New(len(sa.Tables))

	for _, fk := range fks {
		if _, ok := sa.Registry[fk.Table]; !ok {
			continue
		}
		sa.ForeignKeys[fk.Table] = append(sa.ForeignKeys[fk.Table], fk)

		// Mandatory references cost 1, optional ones 2
		weight := int64(2)
		if !fk.IsNullable {
			weight = 1
		}
		src, srcOK := sa.TableIndexMap[fk.Table]
		dst, dstOK := sa.TableIndexMap[fk.ReferencedTable]
		if srcOK && dstOK && src != dst {
			sa.DependencyGraph.AddCost(src, dst, weight)
		}
	}

	sa.detectManyToManyTables()
	sa.Logger.Infof("Analyzed %d tables with %d foreign keys", len(sa.Tables), len(fks))
	return nil
}

func (sa *SchemaAnalyzer) register(ctx context.Context, name string) (*table.Table, error) {
	enums, err := sa.Config.Enums(name)
	if err != nil {
		return nil, err
	}
	tbl := table.New(sa.Logger)
	if err := tbl.Init(ctx, sa.DB, name, enums); err != nil {
		return nil, err
	}
	if err := sa.Config.Apply(tbl); err != nil {
		return nil, err
	}
	return tbl, nil
}

// Table returns the registered table
func (sa *SchemaAnalyzer) Table(name string) (*table.Table, error) {
	tbl, ok := sa.Registry[name]
	if !ok {
		return nil, fmt.Errorf("table %s is not registered", name)
	}
	return tbl, nil
}

// detectManyToManyTables detects tables that represent many-to-many
// relationships: two or more foreign key columns inside the primary key,
// pointing at two or more tables
func (sa *SchemaAnalyzer) detectManyToManyTables() {
	for _, name := range sa.Tables {
		primary := make(map[string]bool)
		for _, col := range sa.Registry[name].PrimaryKey() {
			primary[col] = true
		}
		referenced := make(map[string]bool)
		keyed := 0
		for _, fk := range sa.ForeignKeys[name] {
			if !primary[fk.Column] {
				continue
			}
			keyed++
			referenced[fk.ReferencedTable] = true
		}
		if keyed >= 2 && len(referenced) >= 2 {
			sa.ManyToManyTables[name] = true
		}
	}
}

// GetCircularTables returns tables involved in circular dependencies
func (sa *SchemaAnalyzer) GetCircularTables() map[string]bool {
	circular := make(map[string]bool)
	sa.DirectCircularDeps = [][]string{}
	if sa.DependencyGraph == nil {
		return circular
	}

	for _, component := range graph.StrongComponents(sa.DependencyGraph) {
		if len(component) < 2 {
			continue
		}
		for _, v := range component {
			circular[sa.IndexTableMap[v]] = true
		}
	}

	for i := range sa.Tables {
		for j := i + 1; j < len(sa.Tables); j++ {
			if sa.DependencyGraph.Edge(i, j) && sa.DependencyGraph.Edge(j, i) {
				sa.DirectCircularDeps = append(sa.DirectCircularDeps, []string{sa.IndexTableMap[i], sa.IndexTableMap[j]})
			}
		}
	}
	return circular
}

// GetTableInsertionOrder determines the order in which tables should be
// populated: referenced tables before the tables referencing them, then
// circular tables by name, then many-to-many tables
func (sa *SchemaAnalyzer) GetTableInsertionOrder() ([]string, map[string]bool) {
	circular := sa.GetCircularTables()
	n := len(sa.Tables)

	// Edges point from referenced to referencing table
	reversed := graph.New(n)
	for v := 0; v < n; v++ {
		if circular[sa.IndexTableMap[v]] {
			continue
		}
		sa.DependencyGraph.Visit(v, func(w int, c int64) bool {
			if !circular[sa.IndexTableMap[w]] {
				reversed.AddCost(w, v, c)
			}
			return false
		})
	}

	order, ok := graph.TopSort(reversed)
	if !ok {
		// circular tables were taken out, so this cannot happen
		sa.Logger.Warning("Dependency graph is not acyclic, using table name order")
		order = make([]int, n)
		for i := range order {
			order[i] = i
		}
	}

	var ordered, circularList, manyToMany []string
	for _, v := range order {
		name := sa.IndexTableMap[v]
		switch {
		case circular[name]:
			circularList = append(circularList, name)
		case sa.ManyToManyTables[name]:
			manyToMany = append(manyToMany, name)
		default:
			ordered = append(ordered, name)
		}
	}
	sort.Strings(circularList)

	ordered = append(ordered, circularList...)
	ordered = append(ordered, manyToMany...)
	return ordered, circular
}

// Category classifies a table for reports
func (sa *SchemaAnalyzer) Category(name string, circular map[string]bool) models.TableCategory {
	switch {
	case sa.ManyToManyTables[name]:
		return models.ManyToMany
	case circular[name]:
		return models.Circular
	case len(sa.ForeignKeys[name]) > 0:
		return models.Dependent
	default:
		return models.Standalone
	}
}

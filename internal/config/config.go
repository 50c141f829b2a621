// Package config loads the table configuration file: enum map definitions
// and named selections per table.
package config

import (
	"fmt"
	"os"
	"sort"

	"github.com/vitebski/tablemap/internal/enum"
	"github.com/vitebski/tablemap/internal/table"
	"github.com/vitebski/tablemap/pkg/models"
	"gopkg.in/yaml.v3"
)

// DefaultFile is read when no config path is given
const DefaultFile = "tablemap.yaml"

// Config represents the tablemap.yaml configuration file.
//
//	tables:
//	  tickets:
//	    enums:
//	      priority:
//	        - {symbol: low, value: 1}
//	        - {symbol: high, value: 5}
//	    selections:
//	      brief: [id, title]
type Config struct {
	Tables map[string]models.TableConfig `yaml:"tables"`
}

// Load reads the config file. A missing file yields an empty config.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Config{}, nil
	}
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a YAML config and validates its enum maps
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	for name := range cfg.Tables {
		if _, err := cfg.Enums(name); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Enums builds the enum mappings of a table, keyed by column
func (c *Config) Enums(tableName string) (map[string]*enum.Mapping, error) {
	tc, ok := c.Tables[tableName]
	if !ok || len(tc.Enums) == 0 {
		return nil, nil
	}

	out := make(map[string]*enum.Mapping, len(tc.Enums))
	for col, entries := range tc.Enums {
		if len(entries) == 0 {
			return nil, fmt.Errorf("table %s: enum map %s has no symbols", tableName, col)
		}
		list := make([]enum.Entry, len(entries))
		for i, e := range entries {
			list[i] = enum.Entry{Symbol: e.Symbol, Value: e.Value}
		}
		m, err := enum.NewMapping(list...)
		if err != nil {
			return nil, fmt.Errorf("table %s: column %s: %w", tableName, col, err)
		}
		out[col] = m
	}
	return out, nil
}

// Apply registers the configured selections on an initialized table
func (c *Config) Apply(tbl *table.Table) error {
	tc, ok := c.Tables[tbl.Name()]
	if !ok {
		return nil
	}

	names := make([]string, 0, len(tc.Selections))
	for name := range tc.Selections {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, err := tbl.RegisterSelection(name, tc.Selections[name]...); err != nil {
			return fmt.Errorf("table %s: %w", tbl.Name(), err)
		}
	}
	return nil
}

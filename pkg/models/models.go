package models

// FieldInfo is one row of SHOW FIELDS FROM <table>
type FieldInfo struct {
	Field   string
	Type    string
	Null    string
	Key     string
	Default *string
	Extra   string
}

// IndexInfo is one row of SHOW INDEXES FROM <table>
type IndexInfo struct {
	KeyName    string
	ColumnName string
	SeqInIndex int
}

// ForeignKey represents a foreign key relationship
type ForeignKey struct {
	Table            string
	Column           string
	ReferencedTable  string
	ReferencedColumn string
	IsNullable       bool
	ConstraintName   string
}

// TableCategory represents the category of a table
type TableCategory int

const (
	Standalone TableCategory = iota
	Dependent
	ManyToMany
	Circular
)

// String returns a human readable category name
func (c TableCategory) String() string {
	switch c {
	case Dependent:
		return "Dependent"
	case ManyToMany:
		return "Many-to-Many"
	case Circular:
		return "Circular"
	default:
		return "Standalone"
	}
}

// EnumEntry is one symbol of an enum map definition
type EnumEntry struct {
	Symbol string `yaml:"symbol"`
	Value  int64  `yaml:"value"`
}

// TableConfig holds per table settings loaded from the table config file
type TableConfig struct {
	Enums      map[string][]EnumEntry `yaml:"enums"`
	Selections map[string][]string    `yaml:"selections"`
}

// PopulationResult represents the result of the population process
type PopulationResult struct {
	SuccessfulTables []string
	FailedTables     []string
	TotalRecords     int
}

// VerificationResult represents the result of the verification process
type VerificationResult struct {
	Success                  bool
	EmptyTables              []string
	PartiallyPopulatedTables map[string]int
}

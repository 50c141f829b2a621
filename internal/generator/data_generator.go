package generator

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jaswdr/faker"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/tablemap/internal/column"
	"github.com/vitebski/tablemap/internal/table"
)

var lengthPattern = regexp.MustCompile(`\((\d+)`)

// DataGenerator generates fake column values. Generated values are always
// assignable through Row.Set.
type DataGenerator struct {
	Faker     faker.Faker
	Logger    *logrus.Logger
	mu        sync.Mutex
	sequences map[string]int64
}

// NewDataGenerator creates a new data generator
func NewDataGenerator(logger *logrus.Logger) *DataGenerator {
	return &DataGenerator{
		Faker:     faker.New(),
		Logger:    logger,
		sequences: make(map[string]int64),
	}
}

// NextKey returns the next value of a table's key sequence. The first value
// is the table's SeqInitialValue.
func (dg *DataGenerator) NextKey(tbl *table.Table) int64 {
	dg.mu.Lock()
	defer dg.mu.Unlock()

	next, ok := dg.sequences[tbl.Name()]
	if !ok {
		next = tbl.SeqInitialValue()
	}
	dg.sequences[tbl.Name()] = next + 1
	return next
}

// GenerateRecord generates a value for every column of a table that the
// server does not fill itself. A single integer primary key that is not
// auto increment is drawn from the key sequence.
func (dg *DataGenerator) GenerateRecord(tbl *table.Table) map[string]interface{} {
	record := make(map[string]interface{})
	pk := tbl.PrimaryKey()

	for _, col := range tbl.Columns() {
		if col.AutoIncrement() {
			continue
		}
		if len(pk) == 1 && pk[0] == col.Name && isInteger(col.SQLType) && col.Kind == column.Plain {
			record[col.Name] = dg.NextKey(tbl)
			continue
		}
		record[col.Name] = dg.GenerateData(col)
	}
	return record
}

// GenerateData generates data for a column based on its kind, name and type
func (dg *DataGenerator) GenerateData(col *column.Column) interface{} {
	switch col.Kind {
	case column.Boolean:
		return rand.Intn(2) == 1
	case column.Enum, column.EnumMap:
		if len(col.EnumSymbols) == 0 {
			return nil
		}
		return col.EnumSymbols[rand.Intn(len(col.EnumSymbols))]
	}

	if col.AutoIncrement() {
		return nil // Let MySQL handle auto_increment
	}

	if isText(col.SQLType) {
		if v, ok := dg.byName(col); ok {
			return truncate(v, maxLength(col))
		}
	}
	if isTemporal(col.SQLType) {
		if v, ok := dg.temporalByName(col); ok {
			return v
		}
	}

	// Generate data based on data type
	switch col.SQLType {
	case "varchar", "char", "text", "tinytext", "mediumtext", "longtext":
		return dg.generateString(col)
	case "int", "integer", "tinyint", "smallint", "mediumint", "bigint":
		return dg.generateInteger(col)
	case "float", "double", "decimal", "numeric", "real":
		return dg.generateFloat(col)
	case "date":
		return dg.generateDate()
	case "time":
		return dg.generateTime()
	case "datetime", "timestamp":
		return dg.generateDateTime()
	case "year":
		return int64(rand.Intn(time.Now().Year()-1970+1) + 1970)
	case "set":
		return dg.generateSet(col)
	case "bit":
		return int64(rand.Intn(2))
	case "binary", "varbinary", "blob", "tinyblob", "mediumblob", "longblob":
		return dg.generateBinary(col)
	case "json":
		return dg.generateJSON(col)
	default:
		dg.Logger.Warningf("No specific generator for type %s, using default string", col.SQLType)
		return dg.Faker.Lorem().Word()
	}
}

// byName picks a generator from the column name
func (dg *DataGenerator) byName(col *column.Column) (string, bool) {
	name := strings.ToLower(col.Name)

	switch {
	case strings.Contains(name, "email"):
		return dg.Faker.Internet().Email(), true
	case strings.Contains(name, "name") && !strings.Contains(name, "file"):
		switch {
		case strings.Contains(name, "first"):
			return dg.Faker.Person().FirstName(), true
		case strings.Contains(name, "last"):
			return dg.Faker.Person().LastName(), true
		case strings.Contains(name, "user"):
			return dg.Faker.Internet().User(), true
		case strings.Contains(name, "company") || strings.Contains(name, "business"):
			return dg.Faker.Company().Name(), true
		}
		return dg.Faker.Person().Name(), true
	case strings.Contains(name, "phone"):
		return dg.Faker.Phone().Number(), true
	case strings.Contains(name, "address"):
		return dg.Faker.Address().Address(), true
	case strings.Contains(name, "city"):
		return dg.Faker.Address().City(), true
	case strings.Contains(name, "country"):
		return dg.Faker.Address().Country(), true
	case strings.Contains(name, "zip") || strings.Contains(name, "postal"):
		return dg.Faker.Address().PostCode(), true
	case strings.Contains(name, "description") || strings.Contains(name, "summary"):
		return dg.Faker.Lorem().Paragraph(3), true
	case strings.Contains(name, "title"):
		return dg.Faker.Lorem().Sentence(4), true
	case strings.Contains(name, "url") || strings.Contains(name, "website"):
		return dg.Faker.Internet().URL(), true
	case name == "ip" || strings.HasSuffix(name, "_ip"):
		return dg.Faker.Internet().Ipv4(), true
	case strings.Contains(name, "password"):
		return dg.Faker.Internet().Password(), true
	case strings.Contains(name, "token"):
		return dg.Faker.RandomStringWithLength(32), true
	case strings.Contains(name, "color"):
		return dg.Faker.Color().Hex(), true
	case strings.Contains(name, "filename") || strings.Contains(name, "file_name"):
		return dg.Faker.File().FilenameWithExtension(), true
	case strings.Contains(name, "uuid"):
		return dg.Faker.UUID().V4(), true
	}
	return "", false
}

func (dg *DataGenerator) temporalByName(col *column.Column) (interface{}, bool) {
	name := strings.ToLower(col.Name)

	switch {
	case strings.Contains(name, "created_at") || strings.Contains(name, "updated_at"):
		return time.Now().UTC().Add(-time.Duration(rand.Intn(30)) * 24 * time.Hour).Truncate(time.Second), true
	case strings.Contains(name, "deleted_at") && col.Nullable:
		// 70% chance of being null for deleted_at
		if rand.Float32() < 0.7 {
			return nil, true
		}
		return time.Now().UTC().Add(-time.Duration(rand.Intn(10)) * 24 * time.Hour).Truncate(time.Second), true
	}
	return nil, false
}

// generateString generates a string value that fits the column
func (dg *DataGenerator) generateString(col *column.Column) string {
	limit := maxLength(col)
	if limit > 100 {
		limit = 100
	}
	length := rand.Intn(limit) + 1

	var s string
	switch {
	case length <= 5:
		s = dg.Faker.RandomStringWithLength(length)
	case length <= 10:
		s = dg.Faker.Lorem().Word()
	case length <= 50:
		s = dg.Faker.Lorem().Sentence(length / 10)
	default:
		s = dg.Faker.Lorem().Paragraph(length / 30)
	}
	return truncate(s, limit)
}

// generateInteger generates an integer within the range of the column type
func (dg *DataGenerator) generateInteger(col *column.Column) int64 {
	unsigned := strings.Contains(strings.ToLower(col.Type()), "unsigned")

	if col.SQLType == "tinyint" && strings.HasPrefix(strings.ToLower(col.Type()), "tinyint(1)") {
		return int64(rand.Intn(2))
	}

	switch col.SQLType {
	case "tinyint":
		if unsigned {
			return int64(rand.Intn(256))
		}
		return int64(rand.Intn(256) - 128)
	case "smallint":
		if unsigned {
			return int64(rand.Intn(65536))
		}
		return int64(rand.Intn(65536) - 32768)
	case "mediumint":
		if unsigned {
			return int64(rand.Intn(16777216))
		}
		return int64(rand.Intn(16777216) - 8388608)
	case "bigint":
		return rand.Int63()
	default:
		if unsigned {
			return int64(rand.Uint32())
		}
		return int64(rand.Int31())
	}
}

// generateFloat generates a float value rounded to the column scale
func (dg *DataGenerator) generateFloat(col *column.Column) float64 {
	value := rand.Float64() * 1000

	// decimal(10,2) has scale 2
	if i := strings.Index(col.Type(), ","); i >= 0 {
		if scale, err := strconv.Atoi(strings.TrimRight(col.Type()[i+1:], ") unsigned")); err == nil {
			multiplier := 1.0
			for j := 0; j < scale; j++ {
				multiplier *= 10
			}
			value = float64(int64(value*multiplier)) / multiplier
		}
	}
	return value
}

// generateDate generates a date within the last 5 years
func (dg *DataGenerator) generateDate() time.Time {
	days := rand.Intn(365 * 5)
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -days)
}

// generateTime generates a random time of day
func (dg *DataGenerator) generateTime() string {
	return fmt.Sprintf("%02d:%02d:%02d", rand.Intn(24), rand.Intn(60), rand.Intn(60))
}

// generateDateTime generates a datetime within the last 5 years
func (dg *DataGenerator) generateDateTime() time.Time {
	seconds := rand.Int63n(int64(5 * 365 * 24 * time.Hour / time.Second))
	return time.Now().UTC().Add(-time.Duration(seconds) * time.Second).Truncate(time.Second)
}

// generateSet picks one or more members of a set column
func (dg *DataGenerator) generateSet(col *column.Column) string {
	values := quotedValues(col.Type())
	if len(values) == 0 {
		return ""
	}

	n := rand.Intn(len(values)) + 1
	var selected []string
	for _, idx := range rand.Perm(len(values))[:n] {
		selected = append(selected, values[idx])
	}
	return strings.Join(selected, ",")
}

// generateBinary generates random binary data
func (dg *DataGenerator) generateBinary(col *column.Column) []byte {
	length := maxLength(col)
	if length > 100 {
		length = 100
	}
	data := make([]byte, length)
	rand.Read(data)
	return data
}

// generateJSON generates a JSON document shaped by the column name
func (dg *DataGenerator) generateJSON(col *column.Column) string {
	name := strings.ToLower(col.Name)

	var data interface{}
	switch {
	case strings.Contains(name, "address"):
		data = map[string]interface{}{
			"street":  dg.Faker.Address().StreetAddress(),
			"city":    dg.Faker.Address().City(),
			"zipCode": dg.Faker.Address().PostCode(),
			"country": dg.Faker.Address().Country(),
		}
	case strings.Contains(name, "person") || strings.Contains(name, "user"):
		data = map[string]interface{}{
			"firstName": dg.Faker.Person().FirstName(),
			"lastName":  dg.Faker.Person().LastName(),
			"email":     dg.Faker.Internet().Email(),
		}
	case strings.Contains(name, "meta") || strings.Contains(name, "attributes"):
		data = map[string]interface{}{
			"created": dg.Faker.Time().ISO8601(time.Now().AddDate(0, 0, -rand.Intn(365))),
			"author":  dg.Faker.Person().Name(),
			"version": fmt.Sprintf("%d.%d.%d", rand.Intn(10), rand.Intn(10), rand.Intn(10)),
		}
	case strings.Contains(name, "tags"):
		tags := make([]string, rand.Intn(3)+1)
		for i := range tags {
			tags[i] = dg.Faker.Lorem().Word()
		}
		data = tags
	default:
		data = map[string]interface{}{
			"id":      rand.Intn(1000),
			"name":    dg.Faker.Lorem().Word(),
			"enabled": rand.Intn(2) == 1,
		}
	}

	jsonBytes, err := json.Marshal(data)
	if err != nil {
		dg.Logger.Errorf("Error generating JSON: %v", err)
		return "{}"
	}
	return string(jsonBytes)
}

// maxLength reads the declared length of a column, with defaults for the
// text types
func maxLength(col *column.Column) int {
	if m := lengthPattern.FindStringSubmatch(col.Type()); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return n
		}
	}
	switch col.SQLType {
	case "char", "binary":
		return 1
	case "tinytext", "tinyblob":
		return 255
	}
	return 1000
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func quotedValues(columnType string) []string {
	var values []string
	for _, m := range regexp.MustCompile(`'([^']*)'`).FindAllStringSubmatch(columnType, -1) {
		values = append(values, m[1])
	}
	return values
}

func isText(sqlType string) bool {
	switch sqlType {
	case "varchar", "char", "text", "tinytext", "mediumtext", "longtext":
		return true
	}
	return false
}

func isInteger(sqlType string) bool {
	switch sqlType {
	case "tinyint", "smallint", "mediumint", "int", "integer", "bigint":
		return true
	}
	return false
}

func isTemporal(sqlType string) bool {
	return sqlType == "date" || sqlType == "datetime" || sqlType == "timestamp"
}

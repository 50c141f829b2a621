package utils

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/tablemap/internal/analyzer"
	"github.com/vitebski/tablemap/internal/reqctx"
	"github.com/vitebski/tablemap/internal/table"
	"github.com/vitebski/tablemap/pkg/models"
)

// SetupLogging configures the logging system
func SetupLogging(logLevel string) *logrus.Logger {
	logger := logrus.New()

	// Get log level from environment variable or parameter
	levelStr := logLevel
	if levelStr == "" {
		levelStr = os.Getenv("TABLEMAP_LOG_LEVEL")
		if levelStr == "" {
			levelStr = "info"
		}
	}

	level, err := logrus.ParseLevel(levelStr)
	if err != nil {
		level = logrus.InfoLevel
	}

	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	logger.SetOutput(os.Stdout)

	logger.Debugf("Logging configured with level: %s", level)
	return logger
}

// LoadEnvironmentVariables loads environment variables from .env file
func LoadEnvironmentVariables(envFile string, logger *logrus.Logger) bool {
	// Check if a sample .env file exists but not the actual .env file
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		sampleEnvFile := envFile + ".sample"
		if _, err := os.Stat(sampleEnvFile); err == nil {
			logger.Infof("No %s file found, but %s exists. Consider copying %s to %s and updating it.",
				envFile, sampleEnvFile, sampleEnvFile, envFile)
		}
	}

	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			logger.Warningf("Error loading %s file: %v", envFile, err)
		} else {
			logger.Infof("Loaded environment variables from %s", envFile)
		}
	} else {
		logger.Debugf("No %s file found, using existing environment variables", envFile)
	}

	requiredVars := []string{"MYSQL_HOST", "MYSQL_USER", "MYSQL_DATABASE"}
	var missingVars []string
	for _, v := range requiredVars {
		if os.Getenv(v) == "" {
			missingVars = append(missingVars, v)
		}
	}

	if len(missingVars) > 0 {
		logger.Warningf("Missing environment variables: %s", strings.Join(missingVars, ", "))
		logger.Info("These can be provided via command line arguments, environment variables, or a .env file")
		return false
	}

	if logger.IsLevelEnabled(logrus.DebugLevel) {
		for _, env := range os.Environ() {
			if !strings.HasPrefix(env, "MYSQL_") && !strings.HasPrefix(env, "TABLEMAP_") {
				continue
			}
			parts := strings.SplitN(env, "=", 2)
			if len(parts) != 2 {
				continue
			}
			if parts[0] == "MYSQL_PASSWORD" {
				logger.Debugf("%s=********", parts[0])
			} else {
				logger.Debugf("%s=%s", parts[0], parts[1])
			}
		}
	}

	return true
}

// ValidateConnectionParams validates database connection parameters
func ValidateConnectionParams(host, user, password, database, port string, logger *logrus.Logger) bool {
	if host == "" {
		logger.Error("Database host is required")
		return false
	}

	if user == "" {
		logger.Error("Database user is required")
		return false
	}

	if password == "" { // Empty password is allowed
		logger.Warning("Database password is empty")
	}

	if database == "" {
		logger.Error("Database name is required")
		return false
	}

	if _, err := strconv.Atoi(port); err != nil {
		logger.Errorf("Invalid port number: %s", port)
		return false
	}

	return true
}

// PrintSummary prints a summary of the population process
func PrintSummary(result models.PopulationResult) {
	fmt.Println("\n" + strings.Repeat("=", 50))
	fmt.Println("DATABASE POPULATION SUMMARY")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Printf("Total tables processed: %d\n", len(result.SuccessfulTables)+len(result.FailedTables))
	fmt.Printf("Successfully populated tables: %d\n", len(result.SuccessfulTables))
	fmt.Printf("Failed tables: %d\n", len(result.FailedTables))
	fmt.Printf("Total records inserted: %d\n", result.TotalRecords)

	if len(result.FailedTables) > 0 {
		fmt.Println("\nFailed tables:")
		for _, name := range result.FailedTables {
			fmt.Printf("  - %s\n", name)
		}
	}

	fmt.Println(strings.Repeat("=", 50))
}

// PrintSchemaAnalysis prints a detailed analysis of the database schema
func PrintSchemaAnalysis(schemaAnalyzer *analyzer.SchemaAnalyzer) {
	tables := schemaAnalyzer.Tables
	orderedTables, circularTables := schemaAnalyzer.GetTableInsertionOrder()

	counts := make(map[models.TableCategory]int)
	for _, name := range tables {
		counts[schemaAnalyzer.Category(name, circularTables)]++
	}

	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("DATABASE SCHEMA ANALYSIS REPORT")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Println("\n1. BASIC STATISTICS")
	fmt.Printf("   Total tables: %d\n", len(tables))
	fmt.Printf("   Tables with foreign keys: %d\n", len(schemaAnalyzer.ForeignKeys))
	fmt.Printf("   Standalone tables (no foreign keys): %d\n", counts[models.Standalone])
	fmt.Printf("   Dependent tables: %d\n", counts[models.Dependent])
	fmt.Printf("   Many-to-many tables: %d\n", counts[models.ManyToMany])
	fmt.Printf("   Tables in circular dependencies: %d\n", len(circularTables))

	if len(circularTables) > 0 {
		fmt.Println("\n2. CIRCULAR DEPENDENCIES")
		fmt.Printf("   Tables involved: %s\n", strings.Join(sortedKeys(circularTables), ", "))
		fmt.Println("\n   Direct circular dependencies:")
		for _, dep := range schemaAnalyzer.DirectCircularDeps {
			fmt.Printf("     %s <-> %s\n", dep[0], dep[1])
		}
	}

	fmt.Println("\n3. TABLES")
	for _, name := range tables {
		tbl := schemaAnalyzer.Registry[name]
		fmt.Printf("   %s: %d columns, primary key (%s), indexes: %s\n",
			name, len(tbl.Columns()), strings.Join(tbl.PrimaryKey(), ", "), strings.Join(tbl.IndexNames(), ", "))
	}

	fmt.Println("\n4. RECOMMENDED TABLE INSERTION ORDER")
	for i, name := range orderedTables {
		fmt.Printf("   %3d. %s (%s)\n", i+1, name, schemaAnalyzer.Category(name, circularTables))
	}

	fmt.Println("\n" + strings.Repeat("=", 80))
}

// PrintRows prints rows as tab separated columns
func PrintRows(columns []string, rows []*table.Row) {
	fmt.Println(strings.Join(columns, "\t"))
	for _, row := range rows {
		values := make([]string, len(columns))
		for i, name := range columns {
			values[i] = row.Text(name)
		}
		fmt.Println(strings.Join(values, "\t"))
	}
	fmt.Printf("(%d rows)\n", len(rows))
}

// VerifyTablePopulation verifies that all tables have at least the minimum number of records
func VerifyTablePopulation(ctx context.Context, schemaAnalyzer *analyzer.SchemaAnalyzer, minRecords int, logger *logrus.Logger) models.VerificationResult {
	logger.Infof("Verifying that all tables have at least %d record(s)...", minRecords)

	result := models.VerificationResult{PartiallyPopulatedTables: make(map[string]int)}

	for _, name := range schemaAnalyzer.Tables {
		tbl := schemaAnalyzer.Registry[name]

		var count int64
		err := reqctx.Use(ctx, reqctx.New(reqctx.LogrusSink{Logger: logger}), func(ctx context.Context) error {
			var err error
			count, err = tbl.Count(ctx, table.FindOptions{Scan: true})
			return err
		})
		if err != nil {
			logger.Warningf("Could not verify record count for table %s: %v", name, err)
			result.EmptyTables = append(result.EmptyTables, name)
			continue
		}

		if count == 0 {
			logger.Warningf("Table %s has no records", name)
			result.EmptyTables = append(result.EmptyTables, name)
		} else if count < int64(minRecords) {
			logger.Warningf("Table %s has only %d/%d expected records", name, count, minRecords)
			result.PartiallyPopulatedTables[name] = int(count)
		}
	}

	result.Success = len(result.EmptyTables) == 0 && len(result.PartiallyPopulatedTables) == 0

	if result.Success {
		logger.Info("Verification successful: All tables have at least the minimum number of records")
	} else {
		if len(result.EmptyTables) > 0 {
			logger.Errorf("Verification failed: %d tables have no records", len(result.EmptyTables))
		}
		if len(result.PartiallyPopulatedTables) > 0 {
			logger.Errorf("Verification failed: %d tables are partially populated", len(result.PartiallyPopulatedTables))
		}
	}

	return result
}

// PrintVerificationResults prints the results of the table population verification
func PrintVerificationResults(result models.VerificationResult, minRecords int) {
	fmt.Println("\n" + strings.Repeat("=", 50))
	fmt.Println("TABLE POPULATION VERIFICATION RESULTS")
	fmt.Println(strings.Repeat("=", 50))

	if result.Success {
		fmt.Printf("✅ All tables have at least %d record(s)\n", minRecords)
		fmt.Println(strings.Repeat("=", 50))
		return
	}

	if len(result.EmptyTables) > 0 {
		fmt.Printf("❌ %d tables have no records:\n", len(result.EmptyTables))
		for _, name := range result.EmptyTables {
			fmt.Printf("  - %s\n", name)
		}
		fmt.Println()
	}

	if len(result.PartiallyPopulatedTables) > 0 {
		fmt.Printf("⚠️  %d tables are partially populated:\n", len(result.PartiallyPopulatedTables))
		partial := make(map[string]bool, len(result.PartiallyPopulatedTables))
		for name := range result.PartiallyPopulatedTables {
			partial[name] = true
		}
		for _, name := range sortedKeys(partial) {
			fmt.Printf("  - %s: %d/%d records\n", name, result.PartiallyPopulatedTables[name], minRecords)
		}
		fmt.Println()
	}

	fmt.Println(strings.Repeat("=", 50))
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

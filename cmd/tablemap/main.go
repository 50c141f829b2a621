package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vitebski/tablemap/internal/analyzer"
	"github.com/vitebski/tablemap/internal/config"
	"github.com/vitebski/tablemap/internal/connector"
	"github.com/vitebski/tablemap/internal/generator"
	"github.com/vitebski/tablemap/internal/populator"
	"github.com/vitebski/tablemap/internal/reqctx"
	"github.com/vitebski/tablemap/internal/table"
	"github.com/vitebski/tablemap/internal/utils"
)

// connection flags shared by every subcommand
type options struct {
	host       string
	user       string
	password   string
	database   string
	port       string
	envFile    string
	logLevel   string
	configFile string
}

// session is an open connection with an analyzed schema
type session struct {
	db       *connector.DatabaseConnector
	analyzer *analyzer.SchemaAnalyzer
	logger   *logrus.Logger
}

func (s *session) close() {
	s.db.Disconnect()
}

func (o *options) open(ctx context.Context) (*session, error) {
	logger := utils.SetupLogging(o.logLevel)
	utils.LoadEnvironmentVariables(o.envFile, logger)

	// Get connection parameters from environment if not provided
	if o.host == "" {
		o.host = os.Getenv("MYSQL_HOST")
	}
	if o.user == "" {
		o.user = os.Getenv("MYSQL_USER")
	}
	if o.password == "" {
		o.password = os.Getenv("MYSQL_PASSWORD")
	}
	if o.database == "" {
		o.database = os.Getenv("MYSQL_DATABASE")
	}
	if o.port == "" {
		o.port = os.Getenv("MYSQL_PORT")
		if o.port == "" {
			o.port = "3306"
		}
	}
	if !utils.ValidateConnectionParams(o.host, o.user, o.password, o.database, o.port, logger) {
		return nil, fmt.Errorf("invalid connection parameters")
	}

	cfg, err := config.Load(o.configFile)
	if err != nil {
		return nil, err
	}

	db := connector.NewDatabaseConnector(o.host, o.user, o.password, o.database, o.port, logger)
	if err := db.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	schemaAnalyzer := analyzer.NewSchemaAnalyzer(db, cfg, logger)
	if err := schemaAnalyzer.AnalyzeSchema(ctx); err != nil {
		db.Disconnect()
		return nil, fmt.Errorf("failed to analyze schema: %w", err)
	}
	return &session{db: db, analyzer: schemaAnalyzer, logger: logger}, nil
}

func main() {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "tablemap",
		Short: "Request scoped row mapping over MySQL tables",
		Long: `tablemap

Maps MySQL table rows to typed rows with a per request identity cache and
batched key lookups. The subcommands inspect a schema, find rows, seed
tables with generated data and verify that tables are populated.`,
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.host, "host", "H", "", "MySQL host (default: localhost)")
	flags.StringVarP(&opts.user, "user", "u", "", "MySQL user (default: root)")
	flags.StringVarP(&opts.password, "password", "p", "", "MySQL password")
	flags.StringVarP(&opts.database, "database", "d", "", "MySQL database name")
	flags.StringVarP(&opts.port, "port", "P", "", "MySQL port (default: 3306)")
	flags.StringVarP(&opts.envFile, "env-file", "e", ".env", "Path to .env file")
	flags.StringVarP(&opts.logLevel, "log-level", "l", "", "Log level (debug, info, warn, error)")
	flags.StringVarP(&opts.configFile, "config", "c", config.DefaultFile, "Path to the table config file")

	rootCmd.AddCommand(inspectCmd(opts), findCmd(opts), seedCmd(opts), verifyCmd(opts))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func inspectCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Analyze the database schema and print the table insertion order",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			utils.PrintSchemaAnalysis(s.analyzer)
			return nil
		},
	}
}

func findCmd(opts *options) *cobra.Command {
	var (
		find     table.FindOptions
		where    string
		whereArg []string
	)

	cmd := &cobra.Command{
		Use:   "find TABLE [ID...]",
		Short: "Find rows by key or condition",
		Long: `Find rows by key or condition.

IDs are grouped into keys by the width of the chosen index, so a table with
a two column primary key takes IDs in pairs.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			tbl, err := s.analyzer.Table(args[0])
			if err != nil {
				return err
			}
			if where != "" {
				params := make([]interface{}, len(whereArg))
				for i, a := range whereArg {
					params[i] = a
				}
				find.Conditions = table.Where(where, params...)
			}
			ids := make([]interface{}, 0, len(args)-1)
			for _, id := range args[1:] {
				ids = append(ids, id)
			}

			scope := reqctx.New(reqctx.LogrusSink{Logger: s.logger})
			return reqctx.Use(cmd.Context(), scope, func(ctx context.Context) error {
				if find.Count {
					n, err := tbl.Count(ctx, find, ids...)
					if err != nil {
						return err
					}
					fmt.Println(n)
					return nil
				}

				result, err := tbl.Find(ctx, find, ids...)
				if err != nil {
					return err
				}
				columns := selectedColumns(tbl, find.Selection)
				utils.PrintRows(columns, result.Rows)
				if find.TotalRows || find.CalcRows {
					fmt.Printf("page %d of %d, %d rows total\n", result.Page, result.TotalPages(), result.TotalRows())
				}
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.StringVarP(&find.Index, "index", "i", "", "Index the IDs address (default: PRIMARY)")
	f.StringVarP(&find.Selection, "selection", "s", "", "Named selection to load")
	f.StringVarP(&where, "where", "w", "", "Extra WHERE condition with ? placeholders")
	f.StringArrayVarP(&whereArg, "arg", "a", nil, "Value bound to a placeholder of --where (repeatable)")
	f.StringVarP(&find.Order, "order", "o", "", "ORDER BY clause")
	f.IntVar(&find.Limit, "limit", 0, "Maximum number of rows")
	f.IntVar(&find.Offset, "offset", 0, "Number of rows to skip")
	f.IntVar(&find.Page, "page", 0, "Page number, 25 rows per page unless --limit is given")
	f.BoolVar(&find.Scan, "scan", false, "Allow a find without any constraint")
	f.BoolVar(&find.Count, "count", false, "Print the number of matching rows")
	f.BoolVar(&find.TotalRows, "total-rows", false, "Count all matching rows for paging")
	f.BoolVar(&find.CalcRows, "calc-rows", false, "Use SQL_CALC_FOUND_ROWS for paging")
	return cmd
}

func seedCmd(opts *options) *cobra.Command {
	var (
		records    int
		maxRetries int
		minRecords int
		verify     bool
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Populate every table with generated rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			if len(s.analyzer.Tables) == 0 {
				return fmt.Errorf("no tables found in database %s", opts.database)
			}

			dbPopulator := populator.NewDatabasePopulator(
				s.analyzer,
				generator.NewDataGenerator(s.logger),
				records,
				maxRetries,
				s.logger,
			)

			s.logger.Info("Starting database population...")
			success := dbPopulator.PopulateDatabase(cmd.Context())
			utils.PrintSummary(dbPopulator.Result())

			verificationSuccess := true
			if verify {
				result := utils.VerifyTablePopulation(cmd.Context(), s.analyzer, minRecords, s.logger)
				utils.PrintVerificationResults(result, minRecords)
				verificationSuccess = result.Success
			}

			if !success || !verificationSuccess {
				return fmt.Errorf("population incomplete")
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVarP(&records, "records", "r", connector.GetEnvInt("TABLEMAP_RECORDS", 10), "Number of records to generate per table")
	f.IntVarP(&maxRetries, "max-retries", "m", 5, "Maximum number of attempts per row after duplicate key errors")
	f.IntVarP(&minRecords, "min-records", "n", 1, "Minimum number of records each table should have for verification")
	f.BoolVarP(&verify, "verify", "v", false, "Verify that all tables have been populated afterwards")
	return cmd
}

func verifyCmd(opts *options) *cobra.Command {
	var minRecords int

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check that every table has at least a minimum number of rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd.Context())
			if err != nil {
				return err
			}
			defer s.close()

			result := utils.VerifyTablePopulation(cmd.Context(), s.analyzer, minRecords, s.logger)
			utils.PrintVerificationResults(result, minRecords)
			if !result.Success {
				return fmt.Errorf("verification failed")
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&minRecords, "min-records", "n", 1, "Minimum number of records each table should have")
	return cmd
}

// selectedColumns lists the columns a find loads
func selectedColumns(tbl *table.Table, selection string) []string {
	if selection != "" {
		if sel := tbl.Selection(selection); sel != nil {
			return sel.Columns()
		}
	}
	columns := make([]string, 0, len(tbl.Columns()))
	for _, col := range tbl.Columns() {
		columns = append(columns, col.Name)
	}
	return columns
}

package main

import (
	"context"
	"crypto/sha256"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/finance-reconciler/internal/app"
	"github.com/dvloznov/finance-reconciler/internal/config"
	"github.com/dvloznov/finance-reconciler/internal/logger"
)

// Migration is one versioned SQL file.
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

// AppliedMigration is a row of schema_migrations.
type AppliedMigration struct {
	Version   int
	Name      string
	AppliedAt time.Time
	Checksum  string
	AppliedBy string
}

// target names the dataset migrations are applied to.
type target struct {
	ProjectID string
	DatasetID string
}

func (t target) table(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", t.ProjectID, t.DatasetID, name)
}

var migrationPattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

func main() {
	var (
		configPath    = flag.String("config", os.Getenv("RECONCILER_CONFIG"), "path to config file")
		backend       = flag.String("backend", "", "store backend to migrate (store.backend when empty)")
		projectID     = flag.String("project", "", "GCP project ID (store.bigquery.project_id when empty)")
		datasetID     = flag.String("dataset", "", "BigQuery dataset ID (store.bigquery.dataset_id when empty)")
		appliedBy     = flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
		migrationsDir = flag.String("migrations", "migrations/bigquery", "Path to migrations directory")
		dryRun        = flag.Bool("dry-run", false, "list pending migrations without applying them")
	)
	flag.Parse()

	boot := logger.New()
	v := config.New()
	if *configPath != "" {
		v.SetConfigFile(*configPath)
		if err := v.ReadInConfig(); err != nil {
			boot.Fatal().Err(err).Msg("Failed to read config file")
		}
	}
	for key, val := range map[string]string{
		"store.backend":             *backend,
		"store.bigquery.project_id": *projectID,
		"store.bigquery.dataset_id": *datasetID,
	} {
		if val != "" {
			v.Set(key, val)
		}
	}
	cfg, err := config.FromViper(v)
	if err != nil {
		boot.Fatal().Err(err).Msg("Invalid configuration")
	}

	log := app.NewLogger(cfg)
	ctx := logger.WithContext(context.Background(), log)

	switch cfg.Store.Backend {
	case "bigquery":
		t := target{ProjectID: cfg.Store.BigQuery.ProjectID, DatasetID: cfg.Store.BigQuery.DatasetID}
		if err := migrateBigQuery(ctx, log, t, *migrationsDir, *appliedBy, *dryRun); err != nil {
			log.Fatal().Err(err).Msg("Migration failed")
		}
	case "postgres":
		// OpenStore applies the embedded schema.
		_, closeStore, err := app.OpenStore(ctx, cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Migration failed")
		}
		closeStore()
		log.Info().Msg("Postgres schema is up to date")
	default:
		log.Info().Str("backend", cfg.Store.Backend).Msg("Nothing to migrate")
	}
}

func migrateBigQuery(ctx context.Context, log zerolog.Logger, t target, dir, appliedBy string, dryRun bool) error {
	client, err := bigquery.NewClient(ctx, t.ProjectID)
	if err != nil {
		return fmt.Errorf("creating BigQuery client: %w", err)
	}
	defer client.Close()

	log.Info().Str("project", t.ProjectID).Str("dataset", t.DatasetID).Msg("Connected to BigQuery")

	if err := runQuery(ctx, client, ensureSchemaMigrationsSQL(t), nil); err != nil {
		return fmt.Errorf("ensuring schema_migrations table: %w", err)
	}

	migrations, err := readMigrations(resolveDir(dir), t)
	if err != nil {
		return err
	}
	applied, err := getAppliedMigrations(ctx, client, t)
	if err != nil {
		return err
	}
	log.Info().Int("files", len(migrations)).Int("applied", len(applied)).Msg("Migrations loaded")

	pending, err := pendingMigrations(migrations, applied)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		log.Info().Msg("No new migrations to apply. Database is up to date.")
		return nil
	}

	for _, m := range pending {
		l := log.With().Int("version", m.Version).Str("name", m.Name).Logger()
		if dryRun {
			l.Info().Msg("Pending")
			continue
		}
		l.Info().Msg("Applying")
		if err := runQuery(ctx, client, m.SQL, nil); err != nil {
			return fmt.Errorf("executing %s: %w", m.Filename, err)
		}
		if err := runQuery(ctx, client, recordMigrationSQL(t), []bigquery.QueryParameter{
			{Name: "version", Value: m.Version},
			{Name: "name", Value: m.Name},
			{Name: "checksum", Value: m.Checksum},
			{Name: "applied_by", Value: appliedBy},
		}); err != nil {
			return fmt.Errorf("recording %s: %w", m.Filename, err)
		}
	}
	if !dryRun {
		log.Info().Int("count", len(pending)).Msg("Migrations applied")
	}
	return nil
}

// resolveDir also accepts being run from cmd/migrate.
func resolveDir(dir string) string {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if alt := filepath.Join("..", "..", dir); dirExists(alt) {
			return alt
		}
	}
	return dir
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// parseFilename splits "0001_name.sql" into version and name.
func parseFilename(filename string) (int, string, bool) {
	m := migrationPattern.FindStringSubmatch(filename)
	if m == nil {
		return 0, "", false
	}
	version, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, "", false
	}
	return version, m[2], true
}

// checksum is taken over the file before placeholder substitution so a
// migration keeps its identity across projects.
func checksum(content []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(content))
}

func renderSQL(content string, t target) string {
	sql := strings.ReplaceAll(content, "{{PROJECT_ID}}", t.ProjectID)
	return strings.ReplaceAll(sql, "{{DATASET_ID}}", t.DatasetID)
}

// readMigrations loads the migration files of dir in version order.
func readMigrations(dir string, t target) ([]Migration, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	var migrations []Migration
	seen := make(map[int]string)
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		version, name, ok := parseFilename(file.Name())
		if !ok {
			continue
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("duplicate migration version %04d: %s and %s", version, prev, file.Name())
		}
		seen[version] = file.Name()

		content, err := os.ReadFile(filepath.Join(dir, file.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading file %s: %w", file.Name(), err)
		}
		migrations = append(migrations, Migration{
			Version:  version,
			Name:     name,
			Filename: file.Name(),
			SQL:      renderSQL(string(content), t),
			Checksum: checksum(content),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// pendingMigrations returns the migrations not yet applied. An applied
// migration whose file changed since is an error.
func pendingMigrations(all []Migration, applied []AppliedMigration) ([]Migration, error) {
	done := make(map[int]AppliedMigration, len(applied))
	for _, am := range applied {
		done[am.Version] = am
	}
	var pending []Migration
	for _, m := range all {
		am, ok := done[m.Version]
		if !ok {
			pending = append(pending, m)
			continue
		}
		if am.Checksum != "" && am.Checksum != m.Checksum {
			return nil, fmt.Errorf("migration %s changed after it was applied", m.Filename)
		}
	}
	return pending, nil
}

func ensureSchemaMigrationsSQL(t target) string {
	return `CREATE TABLE IF NOT EXISTS ` + t.table("schema_migrations") + ` (
		version       INT64 NOT NULL,
		name          STRING NOT NULL,
		applied_at    TIMESTAMP NOT NULL,
		checksum      STRING,
		applied_by    STRING
	)`
}

func recordMigrationSQL(t target) string {
	return `INSERT INTO ` + t.table("schema_migrations") + `
		(version, name, applied_at, checksum, applied_by)
		VALUES (@version, @name, CURRENT_TIMESTAMP(), @checksum, @applied_by)`
}

func getAppliedMigrations(ctx context.Context, client *bigquery.Client, t target) ([]AppliedMigration, error) {
	q := client.Query(`SELECT version, name, applied_at, checksum, applied_by FROM ` +
		t.table("schema_migrations") + ` ORDER BY version ASC`)
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}

	var applied []AppliedMigration
	for {
		var row struct {
			Version   int64
			Name      string
			AppliedAt time.Time
			Checksum  bigquery.NullString
			AppliedBy bigquery.NullString
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating results: %w", err)
		}
		applied = append(applied, AppliedMigration{
			Version:   int(row.Version),
			Name:      row.Name,
			AppliedAt: row.AppliedAt,
			Checksum:  row.Checksum.StringVal,
			AppliedBy: row.AppliedBy.StringVal,
		})
	}
	return applied, nil
}

func runQuery(ctx context.Context, client *bigquery.Client, sql string, params []bigquery.QueryParameter) error {
	q := client.Query(sql)
	q.Parameters = params
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}

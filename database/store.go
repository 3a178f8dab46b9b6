package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"agent-crawler/models"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Store keeps agent records and crawl runs in Postgres or SQLite.
type Store struct {
	DB     *sqlx.DB
	driver string
}

type Run struct {
	RunID   string         `db:"run_id"`
	BaseURL string         `db:"base_url"`
	Status  string         `db:"status"`
	Pages   int            `db:"pages"`
	Records int            `db:"records"`
	Error   sql.NullString `db:"error"`
}

func Open(driver, databaseURL string) (*Store, error) {
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sqlx.Open(driver, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}

	s := &Store{DB: db, driver: driver}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return s, nil
}

func (s *Store) createTables() error {
	idColumn := "id SERIAL PRIMARY KEY"
	if s.driver == DriverSQLite {
		idColumn = "id INTEGER PRIMARY KEY AUTOINCREMENT"
	}

	queries := []string{
		`CREATE TABLE IF NOT EXISTS crawl_runs (
            run_id TEXT PRIMARY KEY,
            base_url TEXT NOT NULL,
            status TEXT NOT NULL DEFAULT 'running',
            pages INTEGER DEFAULT 0,
            records INTEGER DEFAULT 0,
            error TEXT,
            started_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            finished_at TIMESTAMP
        )`,
		`CREATE TABLE IF NOT EXISTS agents (
            ` + idColumn + `,
            run_id TEXT NOT NULL,
            page INTEGER,
            page_url TEXT,
            name TEXT,
            position TEXT,
            company TEXT,
            address TEXT,
            mobile TEXT,
            office TEXT,
            crawled_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE INDEX IF NOT EXISTS idx_agents_run ON agents(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_agents_name ON agents(name)`,
	}

	for _, query := range queries {
		if _, err := s.DB.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query %s: %w", query, err)
		}
	}

	return nil
}

func (s *Store) StartRun(ctx context.Context, runID, baseURL string) error {
	_, err := s.DB.ExecContext(ctx, s.DB.Rebind(`
        INSERT INTO crawl_runs (run_id, base_url, status)
        VALUES (?, ?, ?)`),
		runID, baseURL, RunRunning,
	)
	return err
}

// FinishRun marks the run completed, or failed when runErr is set, with the
// totals from stats.
func (s *Store) FinishRun(ctx context.Context, stats *models.CrawlStats, runErr error) error {
	status := RunCompleted
	var errText sql.NullString
	if runErr != nil {
		status = RunFailed
		errText = sql.NullString{String: runErr.Error(), Valid: true}
	}

	_, err := s.DB.ExecContext(ctx, s.DB.Rebind(`
        UPDATE crawl_runs
        SET status = ?, pages = ?, records = ?, error = ?, finished_at = ?
        WHERE run_id = ?`),
		status, stats.PagesVisited, stats.Records, errText, time.Now().UTC(), stats.RunID,
	)
	return err
}

// Append inserts a page's records in one transaction.
func (s *Store) Append(ctx context.Context, batch models.Batch) error {
	if len(batch.Records) == 0 {
		return nil
	}

	tx, err := s.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(`
        INSERT INTO agents (run_id, page, page_url, name, position, company, address, mobile, office)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, rec := range batch.Records {
		_, err := stmt.ExecContext(ctx,
			batch.RunID, int(batch.Page), batch.URL,
			rec.Name, rec.Position, rec.Company, rec.Address, rec.Mobile, rec.Office,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Agents returns a run's records in insertion order.
func (s *Store) Agents(ctx context.Context, runID string) ([]models.AgentRecord, error) {
	var records []models.AgentRecord
	err := s.DB.SelectContext(ctx, &records, s.DB.Rebind(`
        SELECT name, position, company, address, mobile, office
        FROM agents
        WHERE run_id = ?
        ORDER BY id`), runID)
	return records, err
}

func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	var run Run
	err := s.DB.GetContext(ctx, &run, s.DB.Rebind(`
        SELECT run_id, base_url, status, pages, records, error
        FROM crawl_runs
        WHERE run_id = ?`), runID)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}

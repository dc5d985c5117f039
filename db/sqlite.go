package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/tejiriaustin/tiffwatch/models"
)

const defaultPollLimit = 50

type Client struct {
	db *sql.DB
}

var _ Repository = (*Client)(nil)

func NewClient(ctx context.Context, dbPath string) (*Client, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("error creating database directory: %w", err)
		}
	}

	database, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := database.PingContext(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	c := &Client{db: database}
	if err := c.CreatePollResultsTable(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("error creating schema: %w", err)
	}
	return c, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) CreatePollResultsTable(ctx context.Context) error {
	query := `CREATE TABLE IF NOT EXISTS poll_results (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        run_id TEXT NOT NULL,
        sequence INTEGER NOT NULL,
        directory TEXT NOT NULL,
        polled_at TEXT NOT NULL,
        file_count INTEGER NOT NULL,
        net INTEGER NOT NULL,
        added INTEGER NOT NULL,
        modified INTEGER NOT NULL,
        removed INTEGER NOT NULL,
        pending INTEGER NOT NULL,
        free_gb REAL NOT NULL,
        low_space INTEGER NOT NULL,
        warning TEXT NOT NULL DEFAULT ''
    );
    CREATE INDEX IF NOT EXISTS idx_poll_results_run ON poll_results(run_id, sequence);`
	_, err := c.db.ExecContext(ctx, query)
	return err
}

func (c *Client) InsertPollResult(ctx context.Context, r models.PollResult) (int64, error) {
	query := `INSERT INTO poll_results
        (run_id, sequence, directory, polled_at, file_count, net, added, modified, removed, pending, free_gb, low_space, warning)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := c.db.ExecContext(ctx, query,
		r.RunID, r.Sequence, r.Directory, r.PolledAt.UTC().Format(time.RFC3339Nano),
		r.FileCount, r.Net, r.Added, r.Modified, r.Removed, r.Pending,
		r.FreeGB, r.LowSpace, r.Warning,
	)
	if err != nil {
		return 0, fmt.Errorf("error inserting poll result: %w", err)
	}
	return res.LastInsertId()
}

// GetPollResults returns poll results newest first.
func (c *Client) GetPollResults(ctx context.Context, filter PollFilter) ([]models.PollResult, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultPollLimit
	}

	query := `SELECT id, run_id, sequence, directory, polled_at, file_count, net, added, modified, removed, pending, free_gb, low_space, warning
        FROM poll_results`
	args := []interface{}{}
	if filter.RunID != "" {
		query += ` WHERE run_id = ?`
		args = append(args, filter.RunID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error querying poll results: %w", err)
	}
	defer rows.Close()

	results := make([]models.PollResult, 0)
	for rows.Next() {
		var (
			r        models.PollResult
			polledAt string
		)
		err := rows.Scan(&r.ID, &r.RunID, &r.Sequence, &r.Directory, &polledAt,
			&r.FileCount, &r.Net, &r.Added, &r.Modified, &r.Removed, &r.Pending,
			&r.FreeGB, &r.LowSpace, &r.Warning)
		if err != nil {
			return nil, fmt.Errorf("error scanning row: %w", err)
		}
		r.PolledAt, err = time.Parse(time.RFC3339Nano, polledAt)
		if err != nil {
			return nil, fmt.Errorf("error parsing timestamp: %w", err)
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating poll results: %w", err)
	}

	return results, nil
}

package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// connParams are passed in the DSN so every pooled connection gets them.
const connParams = "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"

// expectedSettings are read back after connecting; a journal on a
// filesystem that cannot do WAL is refused rather than silently degraded.
var expectedSettings = map[string]string{
	"journal_mode": "wal",
	"synchronous":  "1",
	"busy_timeout": "5000",
}

// upgrades moves the decisions table forward one layout at a time. The
// layout number stored in user_version is the count of upgrades applied.
var upgrades = []func(ctx context.Context, tx *sql.Tx) error{
	indexOutcomes,
}

// layoutVersion is the layout a freshly opened journal ends up at.
var layoutVersion = len(upgrades)

// Journal is the durable decision log. It implements engine.Journal.
type Journal struct {
	db *sql.DB
}

// Open opens the journal at path, creating the file and table on first use
// and upgrading older layouts. Reopening an existing journal is harmless.
func Open(path string) (*Journal, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite3", path+sep+connParams)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	// one writer at a time; readers share the connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	j := &Journal{db: db}
	if err := j.prepare(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) prepare(ctx context.Context) error {
	if err := j.db.PingContext(ctx); err != nil {
		return fmt.Errorf("connect journal: %w", err)
	}
	for name, want := range expectedSettings {
		got, err := j.setting(ctx, name)
		if err != nil {
			return err
		}
		if got != want {
			return fmt.Errorf("journal %s is %q, want %q", name, got, want)
		}
	}
	if _, err := j.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create decisions table: %w", err)
	}
	return j.upgrade(ctx)
}

// Close closes the database connection.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

// setting reads a connection setting as SQLite reports it.
func (j *Journal) setting(ctx context.Context, name string) (string, error) {
	var v string
	if err := j.db.QueryRowContext(ctx, "PRAGMA "+name).Scan(&v); err != nil {
		return "", fmt.Errorf("read journal %s: %w", name, err)
	}
	return v, nil
}

// layout returns the number of upgrades applied to the file.
func (j *Journal) layout(ctx context.Context) (int, error) {
	var v int
	if err := j.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("read journal layout: %w", err)
	}
	return v, nil
}

// upgrade applies each pending upgrade in its own transaction, bumping the
// stored layout alongside it.
func (j *Journal) upgrade(ctx context.Context) error {
	from, err := j.layout(ctx)
	if err != nil {
		return err
	}
	for v := from; v < len(upgrades); v++ {
		tx, err := j.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("upgrade journal to layout %d: %w", v+1, err)
		}
		if err := upgrades[v](ctx, tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("upgrade journal to layout %d: %w", v+1, err)
		}
		// PRAGMA does not take bind parameters
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", v+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("record journal layout %d: %w", v+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit journal layout %d: %w", v+1, err)
		}
	}
	return nil
}

// indexOutcomes backs Counts.
func indexOutcomes(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_decisions_outcome ON decisions(outcome)`)
	return err
}

package history

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"time"

	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"

	"github.com/antonkrylov/logwise/internal/agent"
)

const (
	encodingPlain = "plain"
	encodingZstd  = "zstd"
)

type sqliteBackend struct {
	db           *sql.DB
	enc          *zstd.Encoder
	dec          *zstd.Decoder
	compressOver int
}

func openSQLite(opts *SQLiteOptions) (*sqliteBackend, error) {
	cfg := *opts
	cfg.setDefaults()
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	// WAL mode for concurrent readers while the agent writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history db: %w", err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		db.Close()
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		db.Close()
		return nil, err
	}
	return &sqliteBackend{db: db, enc: enc, dec: dec, compressOver: cfg.CompressOver}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS executions (
			id           TEXT PRIMARY KEY,
			command      TEXT NOT NULL,
			exit_code    INTEGER NOT NULL,
			outcome      TEXT NOT NULL,
			rule         TEXT NOT NULL DEFAULT '',
			cwd          TEXT NOT NULL,
			encoding     TEXT NOT NULL DEFAULT 'plain',
			stdout       BLOB,
			stderr       BLOB,
			started_at   TEXT NOT NULL,
			completed_at TEXT NOT NULL
		)
	`)
	return err
}

func (b *sqliteBackend) Close() error {
	b.enc.Close()
	b.dec.Close()
	return b.db.Close()
}

func (b *sqliteBackend) insert(ctx context.Context, e Entry) error {
	encoding := encodingPlain
	stdout, stderr := []byte(e.Stdout), []byte(e.Stderr)
	if len(stdout)+len(stderr) > b.compressOver {
		encoding = encodingZstd
		stdout = b.enc.EncodeAll(stdout, nil)
		stderr = b.enc.EncodeAll(stderr, nil)
	}
	_, err := b.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO executions
			(id, command, exit_code, outcome, rule, cwd, encoding, stdout, stderr, started_at, completed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Command, e.ExitCode, string(e.Outcome), e.Rule, e.Cwd, encoding, stdout, stderr,
		e.StartedAt.UTC().Format(time.RFC3339Nano), e.CompletedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// recent returns the newest limit rows in chronological order.
func (b *sqliteBackend) recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT id, command, exit_code, outcome, rule, cwd, encoding, stdout, stderr, started_at, completed_at
			FROM executions ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e                  Entry
			outcome, encoding  string
			stdout, stderr     []byte
			started, completed string
		)
		if err := rows.Scan(&e.ID, &e.Command, &e.ExitCode, &outcome, &e.Rule, &e.Cwd, &encoding, &stdout, &stderr, &started, &completed); err != nil {
			return nil, err
		}
		if encoding == encodingZstd {
			if stdout, err = b.dec.DecodeAll(stdout, nil); err != nil {
				return nil, fmt.Errorf("decode stdout of %s: %w", e.ID, err)
			}
			if stderr, err = b.dec.DecodeAll(stderr, nil); err != nil {
				return nil, fmt.Errorf("decode stderr of %s: %w", e.ID, err)
			}
		}
		e.Outcome = agent.Outcome(outcome)
		e.Stdout, e.Stderr = string(stdout), string(stderr)
		e.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		e.CompletedAt, _ = time.Parse(time.RFC3339Nano, completed)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}

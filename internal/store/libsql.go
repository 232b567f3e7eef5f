package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/harvest/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-20000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Acquisitions ---

func (s *LibSQLStore) AppendAcquisition(ctx context.Context, acq *Acquisition) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO acquisitions (run_id, item, amount, receipt_id, acquired_at) VALUES (?, ?, ?, ?, ?)`,
		nullStr(acq.RunID), acq.Item, acq.Amount, acq.ReceiptID, timeOrNow(acq.AcquiredAt),
	)
	if err != nil {
		return err
	}
	if id, err := res.LastInsertId(); err == nil {
		acq.ID = id
	}
	return nil
}

func (s *LibSQLStore) ListAcquisitions(ctx context.Context) ([]*Acquisition, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, item, amount, receipt_id, acquired_at FROM acquisitions ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Acquisition
	for rows.Next() {
		a := &Acquisition{}
		var runID sql.NullString
		if err := rows.Scan(&a.ID, &runID, &a.Item, &a.Amount, &a.ReceiptID, &a.AcquiredAt); err != nil {
			return nil, err
		}
		a.RunID = runID.String
		out = append(out, a)
	}
	return out, rows.Err()
}

// --- Runs ---

func (s *LibSQLStore) CreateRun(ctx context.Context, run *Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, items_total, items_done, items_acted, error, started_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Status), run.ItemsTotal, run.ItemsDone, run.ItemsActed,
		nullStr(run.Error), timeOrNow(run.StartedAt), nullTime(run.CompletedAt),
	)
	return err
}

func (s *LibSQLStore) UpdateRun(ctx context.Context, id string, update RunUpdate) error {
	sets := []string{}
	args := []any{}
	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}
	if update.ItemsTotal != nil {
		sets = append(sets, "items_total = ?")
		args = append(args, *update.ItemsTotal)
	}
	if update.ItemsDone != nil {
		sets = append(sets, "items_done = ?")
		args = append(args, *update.ItemsDone)
	}
	if update.ItemsActed != nil {
		sets = append(sets, "items_acted = ?")
		args = append(args, *update.ItemsActed)
	}
	if update.Error != nil {
		sets = append(sets, "error = ?")
		args = append(args, nullStr(*update.Error))
	}
	if update.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, *update.CompletedAt)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE runs SET %s WHERE id = ?", strings.Join(sets, ", ")), args...,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "run", id)
}

func (s *LibSQLStore) GetRun(ctx context.Context, id string) (*Run, error) {
	r := &Run{}
	var status string
	var errMsg sql.NullString
	var completed sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT id, status, items_total, items_done, items_acted, error, started_at, completed_at
		 FROM runs WHERE id = ?`, id,
	).Scan(&r.ID, &status, &r.ItemsTotal, &r.ItemsDone, &r.ItemsActed, &errMsg, &r.StartedAt, &completed)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("run", id)
	}
	if err != nil {
		return nil, err
	}
	r.Status = schema.RunStatus(status)
	r.Error = errMsg.String
	if completed.Valid {
		r.CompletedAt = &completed.Time
	}
	return r, nil
}

func (s *LibSQLStore) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, status, items_total, items_done, items_acted, error, started_at, completed_at
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Run
	for rows.Next() {
		r := &Run{}
		var status string
		var errMsg sql.NullString
		var completed sql.NullTime
		if err := rows.Scan(&r.ID, &status, &r.ItemsTotal, &r.ItemsDone, &r.ItemsActed, &errMsg, &r.StartedAt, &completed); err != nil {
			return nil, err
		}
		r.Status = schema.RunStatus(status)
		r.Error = errMsg.String
		if completed.Valid {
			r.CompletedAt = &completed.Time
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

var _ Store = (*LibSQLStore)(nil)

// --- Helpers ---

func storeNotFound(kind, id string) error {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", kind, id)
}

func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(kind, id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

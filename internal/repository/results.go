package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"portfoliosim/internal/engine"
	"portfoliosim/internal/fixed"
	"portfoliosim/internal/series"
)

var ErrRunNotFound = errors.New("run not found")

const (
	returnsDaily   = "daily"
	returnsMonthly = "monthly"
)

const resultsSchema = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL,
	start_date   INTEGER NOT NULL,
	end_date     INTEGER NOT NULL,
	initial_cash INTEGER NOT NULL,
	deposits     INTEGER NOT NULL,
	final_value  INTEGER NOT NULL,
	created_at   INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS returns (
	run_id     TEXT NOT NULL REFERENCES runs(id),
	kind       TEXT NOT NULL,
	ts         INTEGER NOT NULL,
	multiplier REAL NOT NULL,
	PRIMARY KEY (run_id, kind, ts)
);`

// ResultStore persists finished runs in a SQLite database. Money columns hold
// raw fixed.Point values.
type ResultStore struct {
	db *sql.DB
}

// StoredRun is a run read back from a ResultStore.
type StoredRun struct {
	ID             string
	Name           string
	Start          time.Time
	End            time.Time
	InitialCash    fixed.Point
	Deposits       fixed.Point
	Final          fixed.Point
	ReturnsDaily   *series.Series
	ReturnsMonthly *series.Series
}

// NewResultStore opens (or creates) the database at dbPath and creates its
// tables.
func NewResultStore(ctx context.Context, dbPath string) (*ResultStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, resultsSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &ResultStore{db: db}, nil
}

func (s *ResultStore) Close() error {
	return s.db.Close()
}

// SaveRun writes res under id in one transaction.
func (s *ResultStore) SaveRun(ctx context.Context, id string, res *engine.Result) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, name, start_date, end_date, initial_cash, deposits, final_value, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, res.Name, res.Start.UnixMilli(), res.End.UnixMilli(),
		int64(res.InitialCash), int64(res.Deposits), int64(res.Final), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("insert run %s: %w", id, err)
	}
	if err = insertReturns(ctx, tx, id, returnsDaily, res.ReturnsDaily); err != nil {
		return err
	}
	if err = insertReturns(ctx, tx, id, returnsMonthly, res.ReturnsMonthly); err != nil {
		return err
	}
	return tx.Commit()
}

func insertReturns(ctx context.Context, tx *sql.Tx, id, kind string, s *series.Series) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO returns (run_id, kind, ts, multiplier) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i := 0; i < s.Len(); i++ {
		ts, err := s.Time(i)
		if err != nil {
			return err
		}
		m, err := s.Get(i, 0)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, id, kind, ts.UnixMilli(), m); err != nil {
			return fmt.Errorf("insert %s return of %s: %w", kind, id, err)
		}
	}
	return nil
}

func (s *ResultStore) LoadRun(ctx context.Context, id string) (*StoredRun, error) {
	var (
		run                  = StoredRun{ID: id}
		start, end           int64
		initial, dep, finalV int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT name, start_date, end_date, initial_cash, deposits, final_value FROM runs WHERE id = ?`, id).
		Scan(&run.Name, &start, &end, &initial, &dep, &finalV)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", id, ErrRunNotFound)
		}
		return nil, err
	}
	run.Start = time.UnixMilli(start).UTC()
	run.End = time.UnixMilli(end).UTC()
	run.InitialCash = fixed.Point(initial)
	run.Deposits = fixed.Point(dep)
	run.Final = fixed.Point(finalV)

	if run.ReturnsDaily, err = s.loadReturns(ctx, id, returnsDaily, run.Name); err != nil {
		return nil, err
	}
	if run.ReturnsMonthly, err = s.loadReturns(ctx, id, returnsMonthly, run.Name); err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *ResultStore) loadReturns(ctx context.Context, id, kind, name string) (*series.Series, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, multiplier FROM returns WHERE run_id = ? AND kind = ? ORDER BY ts`, id, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := series.New(name)
	for rows.Next() {
		var ts int64
		var m float64
		if err := rows.Scan(&ts, &m); err != nil {
			return nil, err
		}
		if err := out.Add(time.UnixMilli(ts).UTC(), m); err != nil {
			return nil, err
		}
	}
	return out, rows.Err()
}

// ListRuns returns the stored run ids, newest first.
func (s *ResultStore) ListRuns(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM runs ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

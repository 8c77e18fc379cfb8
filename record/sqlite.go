package record

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/notargets/RPTKernel/locate"
	"gonum.org/v1/gonum/spatial/r3"
	_ "modernc.org/sqlite"
)

const schema = `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		created TEXT NOT NULL,
		dim INTEGER NOT NULL,
		observations INTEGER NOT NULL,
		found INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS positions (
		run_id TEXT NOT NULL,
		idx INTEGER NOT NULL,
		x REAL,
		y REAL,
		z REAL,
		found INTEGER NOT NULL,
		defined INTEGER NOT NULL,
		cost REAL,
		cell INTEGER NOT NULL,
		search TEXT NOT NULL,
		fallback INTEGER NOT NULL,
		PRIMARY KEY (run_id, idx),
		FOREIGN KEY (run_id) REFERENCES runs(run_id)
	);
`

// SQLiteSink stores reconstructed trajectories in a SQLite database, one row
// per observation keyed by run id and observation index
type SQLiteSink struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path and applies the schema
func OpenSQLite(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err = db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err = db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

// Close closes the database
func (s *SQLiteSink) Close() error { return s.db.Close() }

// Write stores a trajectory under runID in a single transaction. Undefined
// positions are stored as NULL.
func (s *SQLiteSink) Write(ctx context.Context, runID string, traj *locate.Trajectory) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO runs (run_id, created, dim, observations, found) VALUES (?, ?, ?, ?, ?)`,
		runID, time.Now().UTC().Format(time.RFC3339), traj.Dim, traj.Len(), traj.Found()); err != nil {
		return fmt.Errorf("insert run %s: %w", runID, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO positions (run_id, idx, x, y, z, found, defined, cost, cell, search, fallback)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range traj.Entries {
		var x, y, z, cost sql.NullFloat64
		if e.Defined {
			x = sql.NullFloat64{Float64: e.Position.X, Valid: true}
			y = sql.NullFloat64{Float64: e.Position.Y, Valid: true}
			z = sql.NullFloat64{Float64: e.Position.Z, Valid: true}
			cost = sql.NullFloat64{Float64: e.Cost, Valid: true}
		}
		if _, err = stmt.ExecContext(ctx, runID, e.Index, x, y, z, e.Found, e.Defined, cost,
			e.Cell, e.Search.String(), e.Fallback); err != nil {
			return fmt.Errorf("insert position %d: %w", e.Index, err)
		}
	}
	return tx.Commit()
}

// Trajectory reads back the trajectory stored under runID
func (s *SQLiteSink) Trajectory(ctx context.Context, runID string) (*locate.Trajectory, error) {
	traj := &locate.Trajectory{}
	if err := s.db.QueryRowContext(ctx, `SELECT dim FROM runs WHERE run_id = ?`, runID).Scan(&traj.Dim); err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, x, y, z, found, defined, cost, cell, search, fallback
		FROM positions WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e          locate.Entry
			x, y, z, c sql.NullFloat64
			search     string
		)
		if err = rows.Scan(&e.Index, &x, &y, &z, &e.Found, &e.Defined, &c, &e.Cell, &search, &e.Fallback); err != nil {
			return nil, err
		}
		e.Position = r3.Vec{X: x.Float64, Y: y.Float64, Z: z.Float64}
		e.Cost = c.Float64
		if search == locate.SearchLocal.String() {
			e.Search = locate.SearchLocal
		}
		if err = traj.Append(e); err != nil {
			return nil, err
		}
	}
	return traj, rows.Err()
}

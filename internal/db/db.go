// Package db stores energy scan runs and their results in SQLite.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/banshee-data/telescope/internal/monitoring"
	"github.com/banshee-data/telescope/internal/scan"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrRunNotFound is returned for unknown run IDs.
var ErrRunNotFound = errors.New("scan run not found")

type DB struct {
	*sql.DB
}

// NewDB opens the database at path and applies the embedded migrations.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(Migrations); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// OpenDB opens the database without migrating it.
func OpenDB(path string) (*DB, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return &DB{db}, nil
}

// Run describes one energy scan.
type Run struct {
	ID         string
	Label      string
	QueryPlane int
	// ConfigJSON is the scan configuration the run was made with.
	ConfigJSON string
	StartedAt  time.Time
}

func (r *Run) String() string {
	return fmt.Sprintf("Run: %s, Label: %q, QueryPlane: %d, Started: %s",
		r.ID, r.Label, r.QueryPlane, r.StartedAt.Format(time.RFC3339))
}

// RecordRun inserts a run. An empty ID is replaced by a new UUID and a
// zero StartedAt by the current time.
func (db *DB) RecordRun(run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	if run.ConfigJSON == "" {
		run.ConfigJSON = "{}"
	}
	_, err := db.Exec(
		`INSERT INTO scan_runs (run_id, label, query_plane, config_json, started_unix_nanos) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Label, run.QueryPlane, run.ConfigJSON, run.StartedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("record run %s: %w", run.ID, err)
	}
	return nil
}

// RecordResults stores the results of a run in one transaction. Results at
// an energy already stored for the run replace the old row.
func (db *DB) RecordResults(runID string, results []scan.Result) error {
	if _, err := db.Run(runID); err != nil {
		return err
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO scan_results
		(run_id, energy_gev, resolution_mm, unbiased_mm, chi2, ndf) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range results {
		if _, err := stmt.Exec(runID, r.Energy, r.Resolution, r.Unbiased, r.Chi2, r.Ndf); err != nil {
			return fmt.Errorf("record result at %g GeV: %w", r.Energy, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	monitoring.Debugf("db: stored %d results for run %s", len(results), runID)
	return nil
}

func scanRun(row interface{ Scan(...any) error }) (Run, error) {
	var r Run
	var started int64
	if err := row.Scan(&r.ID, &r.Label, &r.QueryPlane, &r.ConfigJSON, &started); err != nil {
		return Run{}, err
	}
	r.StartedAt = time.Unix(0, started)
	return r, nil
}

// Run returns a single run.
func (db *DB) Run(runID string) (Run, error) {
	row := db.QueryRow(`SELECT run_id, label, query_plane, config_json, started_unix_nanos FROM scan_runs WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return r, err
}

// Runs returns all runs, most recent first.
func (db *DB) Runs() ([]Run, error) {
	rows, err := db.Query(`SELECT run_id, label, query_plane, config_json, started_unix_nanos
		FROM scan_runs ORDER BY started_unix_nanos DESC, run_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

// Results returns the results of a run ordered by energy.
func (db *DB) Results(runID string) ([]scan.Result, error) {
	if _, err := db.Run(runID); err != nil {
		return nil, err
	}
	rows, err := db.Query(`SELECT energy_gev, resolution_mm, unbiased_mm, chi2, ndf
		FROM scan_results WHERE run_id = ? ORDER BY energy_gev`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []scan.Result
	for rows.Next() {
		var r scan.Result
		if err := rows.Scan(&r.Energy, &r.Resolution, &r.Unbiased, &r.Chi2, &r.Ndf); err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// DeleteRun removes a run and its results.
func (db *DB) DeleteRun(runID string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM scan_results WHERE run_id = ?`, runID); err != nil {
		return err
	}
	res, err := tx.Exec(`DELETE FROM scan_runs WHERE run_id = ?`, runID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return tx.Commit()
}

// RunSummary is one row of the scan_run_summary view.
type RunSummary struct {
	ID                string   `json:"run_id"`
	Label             string   `json:"label"`
	QueryPlane        int      `json:"query_plane"`
	StartedUnixNanos  int64    `json:"started_unix_nanos"`
	Energies          int      `json:"energies"`
	MinEnergyGeV      *float64 `json:"min_energy_gev,omitempty"`
	MaxEnergyGeV      *float64 `json:"max_energy_gev,omitempty"`
	BestResolutionUm  *float64 `json:"best_resolution_um,omitempty"`
	WorstResolutionUm *float64 `json:"worst_resolution_um,omitempty"`
}

// RunSummaries returns per-run aggregates, most recent first. The energy
// and resolution fields are nil for runs without results.
func (db *DB) RunSummaries() ([]RunSummary, error) {
	rows, err := db.Query(`SELECT run_id, label, query_plane, started_unix_nanos, energies,
		min_energy_gev, max_energy_gev, best_resolution_um, worst_resolution_um
		FROM scan_run_summary ORDER BY started_unix_nanos DESC, run_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := []RunSummary{}
	for rows.Next() {
		var s RunSummary
		var minE, maxE, best, worst sql.NullFloat64
		if err := rows.Scan(&s.ID, &s.Label, &s.QueryPlane, &s.StartedUnixNanos, &s.Energies,
			&minE, &maxE, &best, &worst); err != nil {
			return nil, err
		}
		s.MinEnergyGeV = nullFloat(minE)
		s.MaxEnergyGeV = nullFloat(maxE)
		s.BestResolutionUm = nullFloat(best)
		s.WorstResolutionUm = nullFloat(worst)
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

func nullFloat(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	return &n.Float64
}

package store

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/scencast/scencast/internal/models"
)

type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

func New(db *sql.DB, log zerolog.Logger) *Store {
	return &Store{db: db, log: log}
}

// SaveForecast replaces a location's quantile-forecast table and its control
// rows in one transaction.
func (s *Store) SaveForecast(location string, table *models.QuantileTable, ctrl *models.ControlConfig) error {
	if err := table.Validate(); err != nil {
		return fmt.Errorf("save forecast %s: %w", location, err)
	}
	if ctrl.Rows() != table.Rows() {
		return fmt.Errorf("save forecast %s: %d control rows for %d table rows", location, ctrl.Rows(), table.Rows())
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM forecast_rows WHERE location = ?", location); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM forecast_values WHERE location = ?", location); err != nil {
		return err
	}

	rowStmt, err := tx.Prepare(`
		INSERT INTO forecast_rows (location, row_idx, fold, issue_time, lead_seconds)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer rowStmt.Close()

	valStmt, err := tx.Prepare(`
		INSERT INTO forecast_values (location, row_idx, level, value)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer valStmt.Close()

	for i := range table.Values {
		if _, err := rowStmt.Exec(location, i, ctrl.Folds[i], ctrl.IssueTimes[i].UTC(), int64(ctrl.LeadTimes[i].Seconds())); err != nil {
			return fmt.Errorf("insert forecast row %d: %w", i, err)
		}
		for li, level := range table.Levels {
			if _, err := valStmt.Exec(location, i, level, table.Values[i][li]); err != nil {
				return fmt.Errorf("insert forecast value row %d level %g: %w", i, level, err)
			}
		}
	}

	return tx.Commit()
}

// LoadForecast reads a location's quantile table and control rows back in
// stored row order. PIT settings are runtime configuration and are not
// persisted; the caller fills them in.
func (s *Store) LoadForecast(location string) (*models.QuantileTable, *models.ControlConfig, error) {
	rows, err := s.db.Query(`
		SELECT row_idx, fold, issue_time, lead_seconds
		FROM forecast_rows
		WHERE location = ?
		ORDER BY row_idx ASC
	`, location)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	ctrl := &models.ControlConfig{}
	for rows.Next() {
		var idx int
		var fold string
		var issue time.Time
		var leadSec int64
		if err := rows.Scan(&idx, &fold, &issue, &leadSec); err != nil {
			return nil, nil, err
		}
		ctrl.Folds = append(ctrl.Folds, fold)
		ctrl.IssueTimes = append(ctrl.IssueTimes, issue.UTC())
		ctrl.LeadTimes = append(ctrl.LeadTimes, time.Duration(leadSec)*time.Second)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	if ctrl.Rows() == 0 {
		return nil, nil, fmt.Errorf("no forecast stored for location %q", location)
	}

	valRows, err := s.db.Query(`
		SELECT row_idx, level, value
		FROM forecast_values
		WHERE location = ?
		ORDER BY row_idx ASC, level ASC
	`, location)
	if err != nil {
		return nil, nil, err
	}
	defer valRows.Close()

	table := &models.QuantileTable{Values: make([][]float64, ctrl.Rows())}
	for valRows.Next() {
		var idx int
		var level, value float64
		if err := valRows.Scan(&idx, &level, &value); err != nil {
			return nil, nil, err
		}
		if idx == 0 {
			table.Levels = append(table.Levels, level)
		}
		if idx < 0 || idx >= len(table.Values) {
			return nil, nil, fmt.Errorf("forecast value row index %d out of range", idx)
		}
		table.Values[idx] = append(table.Values[idx], value)
	}
	if err := valRows.Err(); err != nil {
		return nil, nil, err
	}
	if err := table.Validate(); err != nil {
		return nil, nil, fmt.Errorf("stored forecast for %q invalid: %w", location, err)
	}
	return table, ctrl, nil
}

func (s *Store) UpsertActual(location string, issue time.Time, lead time.Duration, value float64) error {
	_, err := s.db.Exec(`
		INSERT INTO actuals (location, issue_time, lead_seconds, value)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(location, issue_time, lead_seconds) DO UPDATE SET value = excluded.value
	`, location, issue.UTC(), int64(lead.Seconds()), value)
	return err
}

// LoadActuals returns actuals row-aligned with the control; rows without a
// stored actual come back as NaN, which the pinball scorer skips.
func (s *Store) LoadActuals(location string, ctrl *models.ControlConfig) ([]float64, error) {
	out := make([]float64, ctrl.Rows())
	for i := range out {
		var v float64
		err := s.db.QueryRow(`
			SELECT value FROM actuals
			WHERE location = ? AND issue_time = ? AND lead_seconds = ?
		`, location, ctrl.IssueTimes[i].UTC(), int64(ctrl.LeadTimes[i].Seconds())).Scan(&v)
		if err == sql.ErrNoRows {
			out[i] = math.NaN()
			continue
		}
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (s *Store) CreateRun(copula string, sampleCount int, seed uint64) (int64, error) {
	res, err := s.db.Exec(`
		INSERT INTO scenario_runs (copula, sample_count, seed)
		VALUES (?, ?, ?)
	`, copula, sampleCount, int64(seed))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) SaveScenarios(runID int64, set *models.ScenarioSet) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO scenario_values (run_id, location, row_idx, sample, value)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, row := range set.Samples {
		for si, v := range row {
			if _, err := stmt.Exec(runID, set.Location, i, si, v); err != nil {
				return fmt.Errorf("insert scenario value row %d sample %d: %w", i, si, err)
			}
		}
	}
	return tx.Commit()
}

func (s *Store) LoadScenarios(runID int64, location string) ([][]float64, error) {
	rows, err := s.db.Query(`
		SELECT row_idx, sample, value
		FROM scenario_values
		WHERE run_id = ? AND location = ?
		ORDER BY row_idx ASC, sample ASC
	`, runID, location)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out [][]float64
	for rows.Next() {
		var idx, sample int
		var v float64
		if err := rows.Scan(&idx, &sample, &v); err != nil {
			return nil, err
		}
		for len(out) <= idx {
			out = append(out, nil)
		}
		out[idx] = append(out[idx], v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no scenarios stored for run %d location %q", runID, location)
	}
	return out, nil
}

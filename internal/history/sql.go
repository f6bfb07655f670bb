package history

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/psantana5/covrun/internal/report"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	module TEXT NOT NULL,
	success BOOLEAN NOT NULL,
	stage TEXT NOT NULL,
	retries INTEGER NOT NULL,
	unresolved INTEGER NOT NULL,
	started_ns BIGINT NOT NULL,
	duration_ns BIGINT NOT NULL,
	diagnostics TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_ns);
`

// sqlStore is shared by the SQLite and PostgreSQL stores. Queries are
// written with ? placeholders and rebound for drivers that number them.
type sqlStore struct {
	db       *sql.DB
	numbered bool
}

func (s *sqlStore) rebind(query string) string {
	if !s.numbered {
		return query
	}
	var b strings.Builder
	n := 0
	for _, c := range query {
		if c == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

func (s *sqlStore) initSchema() error {
	_, err := s.db.Exec(schema)
	return err
}

func (s *sqlStore) Record(r *report.Result) error {
	diags, err := json.Marshal(r.Diagnostics)
	if err != nil {
		return fmt.Errorf("failed to marshal diagnostics: %w", err)
	}
	_, err = s.db.Exec(s.rebind(`
		INSERT INTO runs (run_id, module, success, stage, retries, unresolved, started_ns, duration_ns, diagnostics)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id) DO NOTHING
	`), r.RunID, r.Module, r.Success, r.Stage, r.Retries, r.Unresolved,
		r.StartTime.UnixNano(), int64(r.Duration), string(diags))
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", r.RunID, err)
	}
	return nil
}

const selectRuns = `SELECT run_id, module, success, stage, retries, unresolved, started_ns, duration_ns, diagnostics FROM runs`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanResult(row scanner) (*report.Result, error) {
	var r report.Result
	var startedNs, durationNs int64
	var diags string
	if err := row.Scan(&r.RunID, &r.Module, &r.Success, &r.Stage, &r.Retries, &r.Unresolved,
		&startedNs, &durationNs, &diags); err != nil {
		return nil, err
	}
	r.StartTime = time.Unix(0, startedNs).UTC()
	r.Duration = time.Duration(durationNs)
	r.EndTime = r.StartTime.Add(r.Duration)
	if err := json.Unmarshal([]byte(diags), &r.Diagnostics); err != nil {
		return nil, fmt.Errorf("failed to unmarshal diagnostics: %w", err)
	}
	return &r, nil
}

func (s *sqlStore) Get(runID string) (*report.Result, error) {
	r, err := scanResult(s.db.QueryRow(s.rebind(selectRuns+` WHERE run_id = ?`), runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

func (s *sqlStore) List(limit int) ([]*report.Result, error) {
	query := selectRuns + ` ORDER BY started_ns DESC, run_id`
	var args []interface{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.Query(s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []*report.Result
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqlStore) Prune(cutoff time.Time) (int, error) {
	res, err := s.db.Exec(s.rebind(`DELETE FROM runs WHERE started_ns < ?`), cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

func (s *sqlStore) HealthCheck() error {
	return s.db.Ping()
}

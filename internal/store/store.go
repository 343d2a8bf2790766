// Package store persists run summaries and their results.
//
// Two database/sql drivers are supported: "sqlite" (modernc.org/sqlite, pure
// Go, a file path or ":memory:" as DSN) and "postgres" (github.com/lib/pq, a
// postgres:// URL as DSN). The schema is portable across both: timestamps and
// durations are stored as nanosecond integers.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"fibpool/internal/coordinator"
	"fibpool/internal/logger"
	"fibpool/internal/sink"
)

var (
	ErrNotFound      = errors.New("run not found")
	ErrUnknownDriver = errors.New("unknown history driver")
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    started_at BIGINT NOT NULL,
    elapsed_ns BIGINT NOT NULL,
    jobs INTEGER NOT NULL,
    workload INTEGER NOT NULL,
    workers INTEGER NOT NULL,
    func_name TEXT NOT NULL,
    strategy TEXT NOT NULL,
    transport TEXT NOT NULL,
    delivered INTEGER NOT NULL,
    failed INTEGER NOT NULL,
    err_msg TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS run_results (
    run_id TEXT NOT NULL,
    position INTEGER NOT NULL,
    worker_id INTEGER NOT NULL,
    seq INTEGER NOT NULL,
    result_value BIGINT NOT NULL,
    PRIMARY KEY (run_id, position),
    FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
);
`

// Run は保存された実行の要約
type Run struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	StartedAt time.Time     `json:"started_at"`
	Elapsed   time.Duration `json:"elapsed"`
	Jobs      int           `json:"jobs"`
	Workload  int           `json:"workload"`
	Workers   int           `json:"workers"`
	Function  string        `json:"function"`
	Strategy  string        `json:"strategy"`
	Transport string        `json:"transport"`
	Delivered int           `json:"delivered"`
	Failed    int           `json:"failed"`
	Error     string        `json:"error,omitempty"`
}

// FromResult は実行結果から保存用の要約を作る
func FromResult(r *coordinator.Result) Run {
	run := Run{
		ID:        r.RunID,
		Name:      r.Name,
		StartedAt: r.StartTime,
		Elapsed:   r.Elapsed,
		Jobs:      r.Jobs,
		Workload:  r.Workload,
		Workers:   r.Workers,
		Function:  r.Function,
		Strategy:  string(r.Strategy),
		Transport: string(r.Transport),
		Delivered: r.Delivered,
		Failed:    int(r.Metrics.FailedJobs),
	}
	if r.Err != nil {
		run.Error = r.Err.Error()
	}
	return run
}

// Store は実行履歴のデータベース
type Store struct {
	db     *sql.DB
	driver string
}

// Open はデータベースに接続し、スキーマを用意する
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if driver == DriverSQLite {
		// SQLite は書き込みを1接続に絞る
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(time.Hour)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping failed: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	logger.Info("store", "Run history opened (%s)", driver)
	return &Store{db: db, driver: driver}, nil
}

// Close は接続を閉じる
func (s *Store) Close() error {
	return s.db.Close()
}

// Driver はドライバ名を返す
func (s *Store) Driver() string {
	return s.driver
}

// rebind は ? プレースホルダを postgres の $N に置き換える
func rebind(driver, query string) string {
	if driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) q(query string) string {
	return rebind(s.driver, query)
}

// SaveRun は実行の要約と結果を1トランザクションで保存する
func (s *Store) SaveRun(ctx context.Context, r *coordinator.Result) error {
	run := FromResult(r)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, s.q(`INSERT INTO runs
        (id, name, started_at, elapsed_ns, jobs, workload, workers, func_name, strategy, transport, delivered, failed, err_msg)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		run.ID, run.Name, run.StartedAt.UnixNano(), int64(run.Elapsed),
		run.Jobs, run.Workload, run.Workers, run.Function, run.Strategy, run.Transport,
		run.Delivered, run.Failed, run.Error)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}

	stmt, err := tx.PrepareContext(ctx, s.q(`INSERT INTO run_results
        (run_id, position, worker_id, seq, result_value) VALUES (?, ?, ?, ?, ?)`))
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, rec := range r.Records {
		if _, err := stmt.ExecContext(ctx, run.ID, i, rec.WorkerID, rec.Seq, rec.Value); err != nil {
			return fmt.Errorf("insert result %d of run %s: %w", i, run.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	logger.Debug("store", "saved run %s with %d results", run.ID, len(r.Records))
	return nil
}

const runColumns = `id, name, started_at, elapsed_ns, jobs, workload, workers, func_name, strategy, transport, delivered, failed, err_msg`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var run Run
	var startedAt, elapsed int64
	if err := row.Scan(&run.ID, &run.Name, &startedAt, &elapsed,
		&run.Jobs, &run.Workload, &run.Workers, &run.Function, &run.Strategy, &run.Transport,
		&run.Delivered, &run.Failed, &run.Error); err != nil {
		return nil, err
	}
	run.StartedAt = time.Unix(0, startedAt)
	run.Elapsed = time.Duration(elapsed)
	return &run, nil
}

// GetRun はIDで実行を取得する
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+runColumns+` FROM runs WHERE id = ?`), id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns は新しい順に最大 limit 件の実行を返す（0以下で全件）
func (s *Store) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Records は実行の結果をコレクタが受け取った順に返す
func (s *Store) Records(ctx context.Context, id string) ([]sink.Record, error) {
	if _, err := s.GetRun(ctx, id); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, s.q(`SELECT worker_id, seq, result_value FROM run_results
        WHERE run_id = ? ORDER BY position`), id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []sink.Record{}
	for rows.Next() {
		var rec sink.Record
		if err := rows.Scan(&rec.WorkerID, &rec.Seq, &rec.Value); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// DeleteRun は実行と結果を削除する
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM run_results WHERE run_id = ?`), id); err != nil {
		return err
	}
	result, err := tx.ExecContext(ctx, s.q(`DELETE FROM runs WHERE id = ?`), id)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

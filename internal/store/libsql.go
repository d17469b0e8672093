package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/stepflow-io/stepflow/pkg/schema"
)

// LibSQLStore implements ExecutionStore using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path. The path should
// be a file URI, e.g. "file:/path/to/stepflow.db".
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

func (s *LibSQLStore) Create(ctx context.Context, rec *schema.ExecutionRecord) error {
	results, wfCtx, err := marshalRecordBlobs(rec)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO executions
		   (execution_id, workflow_id, status, current_step, progress,
		    step_results, context, error_message,
		    started_at, completed_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ExecutionID, rec.WorkflowID, string(rec.Status), nullStr(rec.CurrentStep),
		rec.Progress, results, wfCtx, nullStr(rec.ErrorMessage),
		timeOrNow(rec.StartedAt), nullTime(rec.CompletedAt),
		timeOrNow(rec.CreatedAt), timeOrNow(rec.UpdatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return schema.NewErrorf(schema.ErrCodeConflict,
				"execution %q already exists", rec.ExecutionID).WithCause(err)
		}
		return schema.NewErrorf(schema.ErrCodeStore, "create execution: %s", err.Error()).WithCause(err)
	}
	return nil
}

func (s *LibSQLStore) Update(ctx context.Context, rec *schema.ExecutionRecord) error {
	results, wfCtx, err := marshalRecordBlobs(rec)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE executions SET
		   status = ?, current_step = ?, progress = ?,
		   step_results = ?, context = ?, error_message = ?,
		   started_at = ?, completed_at = ?, updated_at = ?
		 WHERE execution_id = ?`,
		string(rec.Status), nullStr(rec.CurrentStep), rec.Progress,
		results, wfCtx, nullStr(rec.ErrorMessage),
		timeOrNow(rec.StartedAt), nullTime(rec.CompletedAt), time.Now().UTC(),
		rec.ExecutionID,
	)
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeStore, "update execution: %s", err.Error()).WithCause(err)
	}
	return checkRowsAffected(res, rec.ExecutionID)
}

func (s *LibSQLStore) Get(ctx context.Context, executionID string) (*schema.ExecutionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT execution_id, workflow_id, status, current_step, progress,
		        step_results, context, error_message,
		        started_at, completed_at, created_at, updated_at
		 FROM executions WHERE execution_id = ?`, executionID)

	rec, err := scanExecution(row)
	if err == sql.ErrNoRows {
		return nil, storeNotFound(executionID)
	}
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "get execution: %s", err.Error()).WithCause(err)
	}
	return rec, nil
}

func (s *LibSQLStore) List(ctx context.Context, filter ExecutionFilter) ([]*schema.ExecutionRecord, error) {
	query := `SELECT execution_id, workflow_id, status, current_step, progress,
	                 step_results, context, error_message,
	                 started_at, completed_at, created_at, updated_at
	          FROM executions`
	var conds []string
	var args []any

	if filter.WorkflowID != "" {
		conds = append(conds, "workflow_id = ?")
		args = append(args, filter.WorkflowID)
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, string(filter.Status))
	}
	if !filter.Since.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, filter.Since)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "list executions: %s", err.Error()).WithCause(err)
	}
	defer rows.Close()

	var out []*schema.ExecutionRecord
	for rows.Next() {
		rec, err := scanExecution(rows)
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeStore, "scan execution: %s", err.Error()).WithCause(err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeStore, "iterate executions: %s", err.Error()).WithCause(err)
	}
	return out, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanExecution(row scanner) (*schema.ExecutionRecord, error) {
	rec := &schema.ExecutionRecord{}
	var status string
	var currentStep, errorMessage sql.NullString
	var results, wfCtx sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(&rec.ExecutionID, &rec.WorkflowID, &status, &currentStep, &rec.Progress,
		&results, &wfCtx, &errorMessage,
		&rec.StartedAt, &completedAt, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}

	rec.Status = schema.ExecutionStatus(status)
	rec.CurrentStep = currentStep.String
	rec.ErrorMessage = errorMessage.String
	if completedAt.Valid {
		t := completedAt.Time
		rec.CompletedAt = &t
	}

	rec.StepResults = make(map[string]schema.StepResult)
	if results.Valid && results.String != "" {
		if err := json.Unmarshal([]byte(results.String), &rec.StepResults); err != nil {
			return nil, fmt.Errorf("unmarshal step_results: %w", err)
		}
	}
	if wfCtx.Valid && wfCtx.String != "" {
		rec.Context = &schema.WorkflowContext{}
		if err := json.Unmarshal([]byte(wfCtx.String), rec.Context); err != nil {
			return nil, fmt.Errorf("unmarshal context: %w", err)
		}
	}
	return rec, nil
}

// marshalRecordBlobs serializes the JSON columns of an execution row.
func marshalRecordBlobs(rec *schema.ExecutionRecord) (results string, wfCtx any, err error) {
	b, err := json.Marshal(rec.StepResults)
	if err != nil {
		return "", nil, schema.NewError(schema.ErrCodeStore, "marshal step_results").WithCause(err)
	}
	results = string(b)

	if rec.Context == nil {
		return results, nil, nil
	}
	cb, err := json.Marshal(rec.Context)
	if err != nil {
		return "", nil, schema.NewError(schema.ErrCodeStore, "marshal context").WithCause(err)
	}
	return results, string(cb), nil
}

// --- Helpers ---

func storeNotFound(id string) *schema.EngineError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "execution %q not found", id)
}

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(id)
	}
	return nil
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var _ ExecutionStore = (*LibSQLStore)(nil)

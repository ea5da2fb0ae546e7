package batch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const executionColumns = `id, instance_id, job_name, owner, fencing_token, status, created_at, start_time, end_time, exit_message`

const stepColumns = `id, execution_id, step_name, status, start_time, end_time, chunk_count, exit_message`

// Repository persists instances, executions and steps in the shared store.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// CreateRun starts a new instance of jobName with a running execution. It
// fails with ErrAlreadyRunning if any execution of the job is still running.
func (r *Repository) CreateRun(ctx context.Context, jobName string, tag Tag) (*JobExecution, error) {
	if jobName == "" {
		return nil, fmt.Errorf("job name is empty")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create run: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var running int
	if err := tx.QueryRowContext(ctx, `
SELECT COUNT(*) FROM job_execution WHERE job_name = ? AND status IN (?, ?);
`, jobName, StatusRunning, StatusStopping).Scan(&running); err != nil {
		return nil, fmt.Errorf("check running executions: %w", err)
	}
	if running > 0 {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, jobName)
	}

	now := time.Now().UTC()
	nowS := now.Format(time.RFC3339Nano)

	res, err := tx.ExecContext(ctx, `INSERT INTO job_instance(job_name, created_at) VALUES(?, ?);`, jobName, nowS)
	if err != nil {
		return nil, fmt.Errorf("insert job instance: %w", err)
	}
	instanceID, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("job instance id: %w", err)
	}

	res, err = tx.ExecContext(ctx, `
INSERT INTO job_execution(instance_id, job_name, owner, fencing_token, status, created_at, start_time)
VALUES(?, ?, ?, ?, ?, ?, ?);
`, instanceID, jobName, tag.Owner, int64(tag.FencingToken), StatusRunning, nowS, nowS)
	if err != nil {
		return nil, fmt.Errorf("insert job execution: %w", err)
	}
	execID, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("job execution id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create run: %w", err)
	}

	return &JobExecution{
		ID:           execID,
		InstanceID:   instanceID,
		JobName:      jobName,
		Owner:        tag.Owner,
		FencingToken: tag.FencingToken,
		Status:       StatusRunning,
		CreatedAt:    now,
		StartTime:    &now,
	}, nil
}

func (r *Repository) CreateStepExecution(ctx context.Context, executionID int64, stepName string) (*StepExecution, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
INSERT INTO step_execution(execution_id, step_name, status, start_time) VALUES(?, ?, ?, ?);
`, executionID, stepName, StatusRunning, now.Format(time.RFC3339Nano))
	if err != nil {
		return nil, fmt.Errorf("insert step execution: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("step execution id: %w", err)
	}
	return &StepExecution{
		ID:          id,
		ExecutionID: executionID,
		StepName:    stepName,
		Status:      StatusRunning,
		StartTime:   &now,
	}, nil
}

// RecordChunk stores progress on a step without touching its status.
func (r *Repository) RecordChunk(ctx context.Context, stepID int64, chunks int) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE step_execution SET chunk_count = ? WHERE id = ?;`, chunks, stepID); err != nil {
		return fmt.Errorf("record chunk: %w", err)
	}
	return nil
}

// FinishStep moves a step to a terminal status only while it is still
// running, so a forced stop written by another instance wins.
func (r *Repository) FinishStep(ctx context.Context, stepID int64, status Status, msg string) (bool, error) {
	return r.finish(ctx, "step_execution", stepID, status, msg)
}

// FinishExecution is FinishStep for executions.
func (r *Repository) FinishExecution(ctx context.Context, executionID int64, status Status, msg string) (bool, error) {
	return r.finish(ctx, "job_execution", executionID, status, msg)
}

func (r *Repository) finish(ctx context.Context, table string, id int64, status Status, msg string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
UPDATE `+table+`
SET status = ?, end_time = ?, exit_message = ?
WHERE id = ? AND status IN (?, ?);
`, status, time.Now().UTC().Format(time.RFC3339Nano), msg, id, StatusRunning, StatusStopping)
	if err != nil {
		return false, fmt.Errorf("finish %s %d: %w", table, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("finish %s %d: %w", table, id, err)
	}
	return n == 1, nil
}

// UpdateJobExecution overwrites status, end time and exit message.
func (r *Repository) UpdateJobExecution(ctx context.Context, e *JobExecution) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE job_execution SET status = ?, end_time = ?, exit_message = ? WHERE id = ?;
`, e.Status, formatTime(e.EndTime), e.ExitMessage, e.ID)
	if err != nil {
		return fmt.Errorf("update job execution %d: %w", e.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update job execution %d: %w", e.ID, ErrExecutionNotFound)
	}
	return nil
}

// UpdateStepExecution overwrites status, end time, chunk count and exit message.
func (r *Repository) UpdateStepExecution(ctx context.Context, s *StepExecution) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE step_execution SET status = ?, end_time = ?, chunk_count = ?, exit_message = ? WHERE id = ?;
`, s.Status, formatTime(s.EndTime), s.ChunkCount, s.ExitMessage, s.ID)
	if err != nil {
		return fmt.Errorf("update step execution %d: %w", s.ID, err)
	}
	return nil
}

// FindInstancesByName returns instances of jobName, newest first.
func (r *Repository) FindInstancesByName(ctx context.Context, jobName string, offset, limit int) ([]*JobInstance, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, job_name, created_at FROM job_instance
WHERE job_name = ?
ORDER BY id DESC
LIMIT ? OFFSET ?;
`, jobName, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("find instances: %w", err)
	}
	defer rows.Close()

	var out []*JobInstance
	for rows.Next() {
		var (
			inst       JobInstance
			createdAtS string
		)
		if err := rows.Scan(&inst.ID, &inst.JobName, &createdAtS); err != nil {
			return nil, fmt.Errorf("scan instance: %w", err)
		}
		inst.CreatedAt = parseTime(createdAtS)
		out = append(out, &inst)
	}
	return out, rows.Err()
}

func (r *Repository) ExecutionsForInstance(ctx context.Context, instanceID int64) ([]*JobExecution, error) {
	return r.queryExecutions(ctx, `WHERE instance_id = ? ORDER BY id DESC`, instanceID)
}

// FindRunningExecutions returns running or stopping executions of jobName.
func (r *Repository) FindRunningExecutions(ctx context.Context, jobName string) ([]*JobExecution, error) {
	return r.queryExecutions(ctx, `WHERE job_name = ? AND status IN (?, ?) ORDER BY id ASC`,
		jobName, StatusRunning, StatusStopping)
}

// ListExecutions returns the latest executions, optionally for one job.
func (r *Repository) ListExecutions(ctx context.Context, jobName string, limit int) ([]*JobExecution, error) {
	if limit <= 0 {
		limit = 20
	}
	if jobName == "" {
		return r.queryExecutions(ctx, `ORDER BY id DESC LIMIT ?`, limit)
	}
	return r.queryExecutions(ctx, `WHERE job_name = ? ORDER BY id DESC LIMIT ?`, jobName, limit)
}

func (r *Repository) GetExecution(ctx context.Context, id int64) (*JobExecution, error) {
	execs, err := r.queryExecutions(ctx, `WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(execs) == 0 {
		return nil, fmt.Errorf("execution %d: %w", id, ErrExecutionNotFound)
	}
	return execs[0], nil
}

// JobNames lists every job with at least one recorded instance.
func (r *Repository) JobNames(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT job_name FROM job_instance ORDER BY job_name;`)
	if err != nil {
		return nil, fmt.Errorf("list job names: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan job name: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (r *Repository) queryExecutions(ctx context.Context, where string, args ...any) ([]*JobExecution, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+executionColumns+` FROM job_execution `+where+`;`, args...)
	if err != nil {
		return nil, fmt.Errorf("query executions: %w", err)
	}

	var out []*JobExecution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		out = append(out, e)
	}
	err = rows.Err()
	_ = rows.Close()
	if err != nil {
		return nil, fmt.Errorf("iterate executions: %w", err)
	}

	for _, e := range out {
		steps, err := r.stepsFor(ctx, e.ID)
		if err != nil {
			return nil, err
		}
		e.Steps = steps
	}
	return out, nil
}

func (r *Repository) stepsFor(ctx context.Context, executionID int64) ([]*StepExecution, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+stepColumns+` FROM step_execution WHERE execution_id = ? ORDER BY id ASC;`, executionID)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()

	var out []*StepExecution
	for rows.Next() {
		var (
			s            StepExecution
			statusS      string
			startS, endS sql.NullString
		)
		if err := rows.Scan(&s.ID, &s.ExecutionID, &s.StepName, &statusS, &startS, &endS, &s.ChunkCount, &s.ExitMessage); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		s.Status = Status(statusS)
		s.StartTime = parseNullTime(startS)
		s.EndTime = parseNullTime(endS)
		out = append(out, &s)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExecution(row scanner) (*JobExecution, error) {
	var (
		e            JobExecution
		fence        int64
		statusS      string
		createdAtS   string
		startS, endS sql.NullString
	)
	err := row.Scan(&e.ID, &e.InstanceID, &e.JobName, &e.Owner, &fence, &statusS, &createdAtS, &startS, &endS, &e.ExitMessage)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrExecutionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan execution: %w", err)
	}
	e.FencingToken = uint64(fence)
	e.Status = Status(statusS)
	e.CreatedAt = parseTime(createdAtS)
	e.StartTime = parseNullTime(startS)
	e.EndTime = parseNullTime(endS)
	return &e, nil
}

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || strings.TrimSpace(s.String) == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return nil
	}
	return &t
}

package jobs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store manages job persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
    id TEXT PRIMARY KEY,
    source_name TEXT,
    source_format TEXT,
    target_format TEXT,
    state TEXT NOT NULL,
    display INTEGER NOT NULL DEFAULT 0,
    workspace_path TEXT,
    output_path TEXT,
    error_code TEXT,
    error_message TEXT,
    created_at TEXT NOT NULL,
    updated_at TEXT NOT NULL,
    deadline TEXT,
    released_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_jobs_state ON jobs(state);
CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);
`

// Open initializes or connects to the job registry under runtimeDir.
func Open(runtimeDir string) (*Store, error) {
	dbPath := filepath.Join(runtimeDir, "jobs.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, path: dbPath}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the registry database path.
func (s *Store) Path() string {
	return s.path
}

// Reset wipes all job rows. Called by the daemon holding the instance lock at
// startup: the registry only ever describes the current execution.
func (s *Store) Reset(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM jobs`); err != nil {
		return fmt.Errorf("reset registry: %w", err)
	}
	return nil
}

// Insert persists a new job record.
func (s *Store) Insert(ctx context.Context, rec *Record) error {
	if rec == nil {
		return errors.New("record is nil")
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (
            id, source_name, source_format, target_format, state, display,
            workspace_path, output_path, error_code, error_message,
            created_at, updated_at, deadline, released_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		nullableString(rec.SourceName),
		nullableString(rec.SourceFormat),
		nullableString(rec.TargetFormat),
		rec.State,
		rec.Display,
		nullableString(rec.WorkspacePath),
		nullableString(rec.OutputPath),
		nullableString(rec.ErrorCode),
		nullableString(rec.ErrorMessage),
		now.Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
		nullableTimeValue(rec.Deadline),
		nullableTime(rec.ReleasedAt),
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// Update persists changes to an existing job record.
func (s *Store) Update(ctx context.Context, rec *Record) error {
	if rec == nil {
		return errors.New("record is nil")
	}
	rec.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET source_name = ?, source_format = ?, target_format = ?, state = ?,
             display = ?, workspace_path = ?, output_path = ?, error_code = ?,
             error_message = ?, updated_at = ?, deadline = ?, released_at = ?
         WHERE id = ?`,
		nullableString(rec.SourceName),
		nullableString(rec.SourceFormat),
		nullableString(rec.TargetFormat),
		rec.State,
		rec.Display,
		nullableString(rec.WorkspacePath),
		nullableString(rec.OutputPath),
		nullableString(rec.ErrorCode),
		nullableString(rec.ErrorMessage),
		rec.UpdatedAt.Format(time.RFC3339Nano),
		nullableTimeValue(rec.Deadline),
		nullableTime(rec.ReleasedAt),
		rec.ID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

// GetByID fetches a job record by identifier. Returns nil when not found.
func (s *Store) GetByID(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return rec, nil
}

// List returns job records filtered by state set (or all records when no state
// is provided), ordered by creation time.
func (s *Store) List(ctx context.Context, states ...State) ([]*Record, error) {
	var (
		rows *sql.Rows
		err  error
	)

	baseQuery := `SELECT ` + jobColumns + ` FROM jobs`
	orderClause := ` ORDER BY created_at`

	if len(states) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(states))
		args := make([]any, len(states))
		for i, state := range states {
			args[i] = state
		}
		query := baseQuery + ` WHERE state IN (` + placeholders + `)` + orderClause
		rows, err = s.db.QueryContext(ctx, query, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ClearFinished removes released job records and returns the removed count.
func (s *Store) ClearFinished(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE released_at IS NOT NULL`)
	if err != nil {
		return 0, fmt.Errorf("clear finished jobs: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns a count of jobs grouped by state.
func (s *Store) Stats(ctx context.Context) (map[State]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(1) FROM jobs GROUP BY state`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[State]int)
	for rows.Next() {
		var state State
		var count int
		if err := rows.Scan(&state, &count); err != nil {
			return nil, err
		}
		stats[state] = count
	}
	return stats, rows.Err()
}

// Summarize aggregates registry state for diagnostic output.
func (s *Store) Summarize(ctx context.Context) (Summary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return Summary{}, err
	}
	summary := Summary{}
	for state, count := range stats {
		summary.Total += count
		switch state {
		case StateQueued:
			summary.Queued += count
		case StateProvisioning, StateConverting:
			summary.Active += count
		case StateSucceeded:
			summary.Succeeded += count
		case StateFailed:
			summary.Failed += count
		case StateTimedOut:
			summary.TimedOut += count
		}
	}
	return summary, nil
}

const jobColumns = "id, source_name, source_format, target_format, state, display, workspace_path, output_path, error_code, error_message, created_at, updated_at, deadline, released_at"

func scanRecord(scanner interface{ Scan(dest ...any) error }) (*Record, error) {
	var (
		id            string
		sourceName    sql.NullString
		sourceFormat  sql.NullString
		targetFormat  sql.NullString
		stateStr      string
		displayNum    sql.NullInt64
		workspacePath sql.NullString
		outputPath    sql.NullString
		errorCode     sql.NullString
		errorMessage  sql.NullString
		createdRaw    sql.NullString
		updatedRaw    sql.NullString
		deadlineRaw   sql.NullString
		releasedRaw   sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&sourceName,
		&sourceFormat,
		&targetFormat,
		&stateStr,
		&displayNum,
		&workspacePath,
		&outputPath,
		&errorCode,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
		&deadlineRaw,
		&releasedRaw,
	); err != nil {
		return nil, err
	}

	rec := &Record{
		ID:            id,
		SourceName:    sourceName.String,
		SourceFormat:  sourceFormat.String,
		TargetFormat:  targetFormat.String,
		State:         State(stateStr),
		Display:       int(displayNum.Int64),
		WorkspacePath: workspacePath.String,
		OutputPath:    outputPath.String,
		ErrorCode:     errorCode.String,
		ErrorMessage:  errorMessage.String,
	}

	if created, err := parseTimeString(createdRaw.String); err == nil {
		rec.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		rec.UpdatedAt = updated
	}
	if deadline, err := parseTimeString(deadlineRaw.String); err == nil {
		rec.Deadline = deadline
	}
	if releasedRaw.Valid {
		if released, err := parseTimeString(releasedRaw.String); err == nil {
			rec.ReleasedAt = &released
		}
	}
	return rec, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func nullableTimeValue(value time.Time) any {
	if value.IsZero() {
		return nil
	}
	return value.UTC().Format(time.RFC3339Nano)
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	return time.Parse(time.RFC3339Nano, value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}

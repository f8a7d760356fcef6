package scene

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository persists scenes and their activation history.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Scene, error)
	List(ctx context.Context) ([]Scene, error)
	Create(ctx context.Context, s *Scene) error
	Update(ctx context.Context, s *Scene) error
	Delete(ctx context.Context, id string) error

	CreateExecution(ctx context.Context, e *Execution) error
	UpdateExecution(ctx context.Context, e *Execution) error
	GetExecution(ctx context.Context, id string) (*Execution, error)
	ListExecutions(ctx context.Context, sceneID string, limit int) ([]Execution, error)
}

const sceneColumns = `id, name, slug, room_id, icon, enabled, actions, sort_order, created_at, updated_at`

const executionColumns = `id, scene_id, subject, status, actions_total, actions_completed,
			actions_failed, actions_skipped, failures, started_at, completed_at, duration_ms`

// SQLiteRepository implements Repository on the shared SQLite database.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetByID retrieves a scene by ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Scene, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sceneColumns+` FROM scenes WHERE id = ?`, id)
	s, err := scanScene(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSceneNotFound
		}
		return nil, fmt.Errorf("querying scene by id: %w", err)
	}
	return s, nil
}

// List retrieves all scenes ordered by sort_order then name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Scene, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+sceneColumns+` FROM scenes ORDER BY sort_order, name`)
	if err != nil {
		return nil, fmt.Errorf("querying scenes: %w", err)
	}
	defer rows.Close()

	var scenes []Scene
	for rows.Next() {
		s, scanErr := scanScene(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning scene: %w", scanErr)
		}
		scenes = append(scenes, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating scenes: %w", err)
	}
	return scenes, nil
}

// Create inserts a new scene.
func (r *SQLiteRepository) Create(ctx context.Context, s *Scene) error {
	actions, err := json.Marshal(s.Actions)
	if err != nil {
		return fmt.Errorf("marshalling actions: %w", err)
	}

	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO scenes (`+sceneColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID,
		s.Name,
		s.Slug,
		nullableString(s.RoomID),
		nullableString(s.Icon),
		boolToInt(s.Enabled),
		string(actions),
		s.SortOrder,
		s.CreatedAt.Format(time.RFC3339),
		s.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrSceneExists
		}
		return fmt.Errorf("inserting scene: %w", err)
	}
	return nil
}

// Update replaces an existing scene.
func (r *SQLiteRepository) Update(ctx context.Context, s *Scene) error {
	actions, err := json.Marshal(s.Actions)
	if err != nil {
		return fmt.Errorf("marshalling actions: %w", err)
	}
	s.UpdatedAt = time.Now().UTC()

	result, err := r.db.ExecContext(ctx, `
		UPDATE scenes SET
			name = ?, slug = ?, room_id = ?, icon = ?, enabled = ?,
			actions = ?, sort_order = ?, updated_at = ?
		WHERE id = ?`,
		s.Name,
		s.Slug,
		nullableString(s.RoomID),
		nullableString(s.Icon),
		boolToInt(s.Enabled),
		string(actions),
		s.SortOrder,
		s.UpdatedAt.Format(time.RFC3339),
		s.ID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrSceneExists
		}
		return fmt.Errorf("updating scene: %w", err)
	}
	return requireRow(result, ErrSceneNotFound)
}

// Delete removes a scene and, through the foreign key, its history.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM scenes WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting scene: %w", err)
	}
	return requireRow(result, ErrSceneNotFound)
}

// CreateExecution inserts an execution record.
func (r *SQLiteRepository) CreateExecution(ctx context.Context, e *Execution) error {
	failures, err := marshalFailures(e.Failures)
	if err != nil {
		return fmt.Errorf("marshalling failures: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO scene_executions (`+executionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		e.SceneID,
		nullableString(&e.Subject),
		string(e.Status),
		e.ActionsTotal,
		e.ActionsCompleted,
		e.ActionsFailed,
		e.ActionsSkipped,
		failures,
		e.StartedAt.Format(time.RFC3339Nano),
		nullableTime(e.CompletedAt),
		e.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("inserting execution: %w", err)
	}
	return nil
}

// UpdateExecution stores the final counters and status of an execution.
func (r *SQLiteRepository) UpdateExecution(ctx context.Context, e *Execution) error {
	failures, err := marshalFailures(e.Failures)
	if err != nil {
		return fmt.Errorf("marshalling failures: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE scene_executions SET
			status = ?, actions_completed = ?, actions_failed = ?, actions_skipped = ?,
			failures = ?, completed_at = ?, duration_ms = ?
		WHERE id = ?`,
		string(e.Status),
		e.ActionsCompleted,
		e.ActionsFailed,
		e.ActionsSkipped,
		failures,
		nullableTime(e.CompletedAt),
		e.DurationMS,
		e.ID,
	)
	if err != nil {
		return fmt.Errorf("updating execution: %w", err)
	}
	return requireRow(result, ErrExecutionNotFound)
}

// GetExecution retrieves an execution by ID.
func (r *SQLiteRepository) GetExecution(ctx context.Context, id string) (*Execution, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+executionColumns+` FROM scene_executions WHERE id = ?`, id)
	e, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrExecutionNotFound
		}
		return nil, fmt.Errorf("querying execution: %w", err)
	}
	return e, nil
}

// ListExecutions returns the most recent executions of a scene, newest
// first. A non-positive limit defaults to 20.
func (r *SQLiteRepository) ListExecutions(ctx context.Context, sceneID string, limit int) ([]Execution, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+executionColumns+` FROM scene_executions
		WHERE scene_id = ?
		ORDER BY started_at DESC, id
		LIMIT ?`, sceneID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying executions: %w", err)
	}
	defer rows.Close()

	var out []Execution
	for rows.Next() {
		e, scanErr := scanExecution(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("scanning execution: %w", scanErr)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating executions: %w", err)
	}
	return out, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanScene(scanner rowScanner) (*Scene, error) {
	var (
		s                    Scene
		roomID, icon         sql.NullString
		actions              string
		enabled              int
		createdAt, updatedAt string
	)
	err := scanner.Scan(
		&s.ID, &s.Name, &s.Slug, &roomID, &icon, &enabled,
		&actions, &s.SortOrder, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if roomID.Valid {
		s.RoomID = &roomID.String
	}
	if icon.Valid {
		s.Icon = &icon.String
	}
	s.Enabled = enabled != 0
	s.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	s.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	if actions != "" {
		if err := json.Unmarshal([]byte(actions), &s.Actions); err != nil {
			return nil, fmt.Errorf("unmarshalling actions: %w", err)
		}
	}
	if s.Actions == nil {
		s.Actions = []Action{}
	}
	return &s, nil
}

func scanExecution(scanner rowScanner) (*Execution, error) {
	var (
		e                       Execution
		subject, failures, done sql.NullString
		status, startedAt       string
	)
	err := scanner.Scan(
		&e.ID, &e.SceneID, &subject, &status,
		&e.ActionsTotal, &e.ActionsCompleted, &e.ActionsFailed, &e.ActionsSkipped,
		&failures, &startedAt, &done, &e.DurationMS,
	)
	if err != nil {
		return nil, err
	}

	e.Subject = subject.String
	e.Status = ExecutionStatus(status)
	e.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	if done.Valid {
		if t, parseErr := time.Parse(time.RFC3339Nano, done.String); parseErr == nil {
			e.CompletedAt = &t
		}
	}
	if failures.Valid && failures.String != "" {
		if err := json.Unmarshal([]byte(failures.String), &e.Failures); err != nil {
			return nil, fmt.Errorf("unmarshalling failures: %w", err)
		}
	}
	return &e, nil
}

func requireRow(result sql.Result, notFound error) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339Nano), Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func marshalFailures(failures []ActionFailure) (sql.NullString, error) {
	if len(failures) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(failures)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique constraint")
}

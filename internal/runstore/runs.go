package runstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned by Get for an unknown run id.
var ErrNotFound = errors.New("run not found")

// Record is one archived run.
type Record struct {
	ID          string          `json:"id"`
	VideoPath   string          `json:"video_path"`
	OutputDir   string          `json:"output_dir,omitempty"`
	Status      string          `json:"status"`
	FailedStage string          `json:"failed_stage,omitempty"`
	Error       string          `json:"error,omitempty"`
	Config      json.RawMessage `json:"config,omitempty"`
	Artifacts   json.RawMessage `json:"artifacts,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  *time.Time      `json:"finished_at,omitempty"`
	Stages      []StageRecord   `json:"stages,omitempty"`
}

// Duration is the run's wall time, measured to now while it is unfinished.
func (r Record) Duration() time.Duration {
	if r.StartedAt.IsZero() {
		return 0
	}
	end := time.Now()
	if r.FinishedAt != nil {
		end = *r.FinishedAt
	}
	return end.Sub(r.StartedAt)
}

// StageRecord is a stage's final state within a run.
type StageRecord struct {
	Name       string     `json:"name"`
	Status     string     `json:"status"`
	Outputs    []string   `json:"outputs,omitempty"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Save inserts or replaces a run together with its stages.
func (s *Store) Save(ctx context.Context, rec Record) error {
	if strings.TrimSpace(rec.ID) == "" {
		return errors.New("save run: id required")
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now()
	}
	return retryOnBusy(ctx, func() error { return s.save(ctx, rec) })
}

func (s *Store) save(ctx context.Context, rec Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
        INSERT INTO runs (
            id, video_path, output_dir, status, failed_stage, error,
            config_json, artifacts, started_at, finished_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            video_path = excluded.video_path,
            output_dir = excluded.output_dir,
            status = excluded.status,
            failed_stage = excluded.failed_stage,
            error = excluded.error,
            config_json = excluded.config_json,
            artifacts = excluded.artifacts,
            started_at = excluded.started_at,
            finished_at = excluded.finished_at,
            updated_at = excluded.updated_at`,
		rec.ID,
		rec.VideoPath,
		nullableString(rec.OutputDir),
		rec.Status,
		nullableString(rec.FailedStage),
		nullableString(rec.Error),
		nullableJSON(rec.Config),
		nullableJSON(rec.Artifacts),
		formatTime(rec.StartedAt),
		nullableTime(rec.FinishedAt),
		formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM run_stages WHERE run_id = ?", rec.ID); err != nil {
		return fmt.Errorf("clear run stages: %w", err)
	}
	for i, st := range rec.Stages {
		outputs, err := json.Marshal(st.Outputs)
		if err != nil {
			return fmt.Errorf("encode stage outputs: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_stages (run_id, position, name, status, outputs, started_at, finished_at)
             VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, i, st.Name, st.Status, string(outputs),
			nullableTime(st.StartedAt), nullableTime(st.FinishedAt),
		); err != nil {
			return fmt.Errorf("insert stage %s: %w", st.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}
	return nil
}

const runColumns = `id, video_path, output_dir, status, failed_stage, error,
    config_json, artifacts, started_at, finished_at`

// Get returns the run with id, including its stages.
func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+runColumns+" FROM runs WHERE id = ?", id)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Record{}, err
	}
	if rec.Stages, err = s.stages(ctx, id); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// List returns up to limit runs, newest first, without stage detail. A
// non-positive limit returns every run.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	query := "SELECT " + runColumns + " FROM runs ORDER BY started_at DESC, id"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}

// Delete removes a run and its stages. Deleting an unknown id is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	return retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", id)
		return err
	})
}

func (s *Store) stages(ctx context.Context, runID string) ([]StageRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, status, outputs, started_at, finished_at
         FROM run_stages WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("list stages: %w", err)
	}
	defer rows.Close()

	var out []StageRecord
	for rows.Next() {
		var (
			st                StageRecord
			outputs           sql.NullString
			started, finished sql.NullString
		)
		if err := rows.Scan(&st.Name, &st.Status, &outputs, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan stage: %w", err)
		}
		if outputs.Valid && outputs.String != "" && outputs.String != "null" {
			if err := json.Unmarshal([]byte(outputs.String), &st.Outputs); err != nil {
				return nil, fmt.Errorf("decode stage outputs: %w", err)
			}
		}
		st.StartedAt = parseNullableTime(started)
		st.FinishedAt = parseNullableTime(finished)
		out = append(out, st)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Record, error) {
	var rec Record
	var outputDir, failedStage, errText sql.NullString
	var configJSON, artifacts, started, finished sql.NullString
	if err := row.Scan(&rec.ID, &rec.VideoPath, &outputDir, &rec.Status, &failedStage, &errText,
		&configJSON, &artifacts, &started, &finished); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, err
		}
		return Record{}, fmt.Errorf("scan run: %w", err)
	}
	rec.OutputDir = outputDir.String
	rec.FailedStage = failedStage.String
	rec.Error = errText.String
	if configJSON.Valid && configJSON.String != "" {
		rec.Config = json.RawMessage(configJSON.String)
	}
	if artifacts.Valid && artifacts.String != "" {
		rec.Artifacts = json.RawMessage(artifacts.String)
	}
	if t := parseNullableTime(started); t != nil {
		rec.StartedAt = *t
	}
	rec.FinishedAt = parseNullableTime(finished)
	return rec, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nullableTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return formatTime(*t)
}

func parseNullableTime(value sql.NullString) *time.Time {
	if !value.Valid || value.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, value.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func nullableJSON(value json.RawMessage) any {
	if len(value) == 0 {
		return nil
	}
	return string(value)
}

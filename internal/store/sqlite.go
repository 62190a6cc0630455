package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/chriseon/relay/internal/models"
)

const schemaVersion = 1

const schema = `
CREATE TABLE schema_version (version INTEGER NOT NULL);

CREATE TABLE runs (
	id              TEXT PRIMARY KEY,
	status          TEXT NOT NULL,
	query           TEXT NOT NULL,
	selected_models TEXT NOT NULL,
	options         TEXT NOT NULL,
	total_usage     TEXT NOT NULL,
	error           TEXT,
	created_at      TEXT NOT NULL,
	started_at      TEXT,
	ended_at        TEXT
);

CREATE TABLE artifacts (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL REFERENCES runs(id),
	pass_index  INTEGER NOT NULL,
	role        TEXT NOT NULL,
	model_id    TEXT NOT NULL,
	output_text TEXT NOT NULL DEFAULT '',
	usage       TEXT NOT NULL,
	latency_ms  INTEGER NOT NULL DEFAULT 0,
	error       TEXT,
	created_at  TEXT NOT NULL,
	UNIQUE(run_id, pass_index)
);
CREATE INDEX idx_artifacts_run ON artifacts(run_id);

CREATE TABLE scores (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL REFERENCES runs(id),
	artifact_id TEXT NOT NULL UNIQUE REFERENCES artifacts(id),
	total       REAL NOT NULL,
	dimensions  TEXT NOT NULL,
	notes       TEXT NOT NULL,
	meta        TEXT NOT NULL,
	created_at  TEXT NOT NULL
);
CREATE INDEX idx_scores_run ON scores(run_id);

CREATE TABLE provider_keys (
	id         TEXT PRIMARY KEY,
	provider   TEXT NOT NULL UNIQUE,
	enabled    INTEGER NOT NULL,
	secret     TEXT NOT NULL,
	created_at TEXT NOT NULL
);
`

// SQLStore implements Store with SQLite.
type SQLStore struct {
	db *sql.DB
}

// Open opens or creates a SQLite database at path and runs migrations.
// The parent directory is created if it does not exist.
func Open(path string) (*SQLStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &SQLStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate() error {
	var tableCount int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableCount)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableCount == 0 {
		if _, err := s.db.Exec(schema); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("set schema version: %w", err)
		}
		return nil
	}

	var v int
	if err := s.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&v); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if v != schemaVersion {
		return fmt.Errorf("unknown schema version %d", v)
	}
	return nil
}

func (s *SQLStore) CreateRun(ctx context.Context, run *models.Run) error {
	selected, err := json.Marshal(run.SelectedModels)
	if err != nil {
		return fmt.Errorf("encode selected models: %w", err)
	}
	options, err := json.Marshal(run.Options)
	if err != nil {
		return fmt.Errorf("encode options: %w", err)
	}
	usage, err := json.Marshal(run.TotalUsage)
	if err != nil {
		return fmt.Errorf("encode usage: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, status, query, selected_models, options, total_usage, error, created_at, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID.String(), string(run.Status), run.Query,
		string(selected), string(options), string(usage),
		nullFromPtr(run.Error), fmtTime(run.CreatedAt),
		fmtTimePtr(run.StartedAt), fmtTimePtr(run.EndedAt))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *SQLStore) GetRun(ctx context.Context, id uuid.UUID) (*models.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, status, query, selected_models, options, total_usage, error, created_at, started_at, ended_at
		FROM runs WHERE id = ?`, id.String())
	return scanRun(row)
}

func (s *SQLStore) ListRuns(ctx context.Context) ([]*models.Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, status, query, selected_models, options, total_usage, error, created_at, started_at, ended_at
		FROM runs ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []*models.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (s *SQLStore) UpdateRun(ctx context.Context, run *models.Run) error {
	usage, err := json.Marshal(run.TotalUsage)
	if err != nil {
		return fmt.Errorf("encode usage: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, total_usage = ?, error = ?, started_at = ?, ended_at = ?
		WHERE id = ?`,
		string(run.Status), string(usage), nullFromPtr(run.Error),
		fmtTimePtr(run.StartedAt), fmtTimePtr(run.EndedAt), run.ID.String())
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) CreateArtifact(ctx context.Context, artifact *models.Artifact) error {
	usage, err := json.Marshal(artifact.Usage)
	if err != nil {
		return fmt.Errorf("encode usage: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO artifacts (id, run_id, pass_index, role, model_id, output_text, usage, latency_ms, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		artifact.ID.String(), artifact.RunID.String(), artifact.PassIndex,
		string(artifact.Role), artifact.ModelID, artifact.OutputText,
		string(usage), artifact.LatencyMS, nullFromPtr(artifact.Error),
		fmtTime(artifact.CreatedAt))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateArtifact
		}
		return fmt.Errorf("insert artifact: %w", err)
	}
	return nil
}

func (s *SQLStore) ArtifactForPass(ctx context.Context, runID uuid.UUID, passIndex int) (*models.Artifact, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, run_id, pass_index, role, model_id, output_text, usage, latency_ms, error, created_at
		FROM artifacts WHERE run_id = ? AND pass_index = ?`, runID.String(), passIndex)
	return scanArtifact(row)
}

func (s *SQLStore) ArtifactsForRun(ctx context.Context, runID uuid.UUID) ([]*models.Artifact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, pass_index, role, model_id, output_text, usage, latency_ms, error, created_at
		FROM artifacts WHERE run_id = ? ORDER BY pass_index`, runID.String())
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var out []*models.Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLStore) CreateScore(ctx context.Context, score *models.Score) error {
	dims, err := json.Marshal(score.Dimensions)
	if err != nil {
		return fmt.Errorf("encode dimensions: %w", err)
	}
	notes, err := json.Marshal(score.Notes)
	if err != nil {
		return fmt.Errorf("encode notes: %w", err)
	}
	meta, err := json.Marshal(score.Meta)
	if err != nil {
		return fmt.Errorf("encode meta: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO scores (id, run_id, artifact_id, total, dimensions, notes, meta, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		score.ID.String(), score.RunID.String(), score.ArtifactID.String(),
		score.Total, string(dims), string(notes), string(meta),
		fmtTime(score.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert score: %w", err)
	}
	return nil
}

func (s *SQLStore) ScoresForRun(ctx context.Context, runID uuid.UUID) ([]*models.Score, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, artifact_id, total, dimensions, notes, meta, created_at
		FROM scores WHERE run_id = ?`, runID.String())
	if err != nil {
		return nil, fmt.Errorf("list scores: %w", err)
	}
	defer rows.Close()

	var out []*models.Score
	for rows.Next() {
		var (
			sc                   models.Score
			id, runIDStr, artID  string
			dims, notes, meta    string
			createdAt            string
		)
		if err := rows.Scan(&id, &runIDStr, &artID, &sc.Total, &dims, &notes, &meta, &createdAt); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		if sc.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse score id: %w", err)
		}
		if sc.RunID, err = uuid.Parse(runIDStr); err != nil {
			return nil, fmt.Errorf("parse score run id: %w", err)
		}
		if sc.ArtifactID, err = uuid.Parse(artID); err != nil {
			return nil, fmt.Errorf("parse score artifact id: %w", err)
		}
		if err := json.Unmarshal([]byte(dims), &sc.Dimensions); err != nil {
			return nil, fmt.Errorf("decode dimensions: %w", err)
		}
		if err := json.Unmarshal([]byte(notes), &sc.Notes); err != nil {
			return nil, fmt.Errorf("decode notes: %w", err)
		}
		if err := json.Unmarshal([]byte(meta), &sc.Meta); err != nil {
			return nil, fmt.Errorf("decode meta: %w", err)
		}
		sc.CreatedAt = parseTime(createdAt)
		out = append(out, &sc)
	}
	return out, rows.Err()
}

func (s *SQLStore) ProviderKey(ctx context.Context, provider string) (*models.ProviderKey, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, provider, enabled, secret, created_at
		FROM provider_keys WHERE provider = ?`, provider)

	var (
		key       models.ProviderKey
		id        string
		enabled   int
		createdAt string
	)
	err := row.Scan(&id, &key.Provider, &enabled, &key.Secret, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan provider key: %w", err)
	}
	if key.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse key id: %w", err)
	}
	key.Enabled = enabled != 0
	key.CreatedAt = parseTime(createdAt)
	return &key, nil
}

func (s *SQLStore) PutProviderKey(ctx context.Context, key *models.ProviderKey) error {
	enabled := 0
	if key.Enabled {
		enabled = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO provider_keys (id, provider, enabled, secret, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(provider) DO UPDATE SET enabled = excluded.enabled, secret = excluded.secret`,
		key.ID.String(), key.Provider, enabled, key.Secret, fmtTime(key.CreatedAt))
	if err != nil {
		return fmt.Errorf("upsert provider key: %w", err)
	}
	return nil
}

func (s *SQLStore) Close() error { return s.db.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*models.Run, error) {
	var (
		run                       models.Run
		id, status                string
		selected, options, usage  string
		errStr                    sql.NullString
		createdAt                 string
		startedAt, endedAt        sql.NullString
	)
	err := row.Scan(&id, &status, &run.Query, &selected, &options, &usage,
		&errStr, &createdAt, &startedAt, &endedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	if run.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse run id: %w", err)
	}
	run.Status = models.RunStatus(status)
	if err := json.Unmarshal([]byte(selected), &run.SelectedModels); err != nil {
		return nil, fmt.Errorf("decode selected models: %w", err)
	}
	if err := json.Unmarshal([]byte(options), &run.Options); err != nil {
		return nil, fmt.Errorf("decode options: %w", err)
	}
	if err := json.Unmarshal([]byte(usage), &run.TotalUsage); err != nil {
		return nil, fmt.Errorf("decode usage: %w", err)
	}
	run.Error = ptrFromNull(errStr)
	run.CreatedAt = parseTime(createdAt)
	run.StartedAt = timePtrFromNull(startedAt)
	run.EndedAt = timePtrFromNull(endedAt)
	return &run, nil
}

func scanArtifact(row rowScanner) (*models.Artifact, error) {
	var (
		a             models.Artifact
		id, runID     string
		role          string
		usage         string
		errStr        sql.NullString
		createdAt     string
	)
	err := row.Scan(&id, &runID, &a.PassIndex, &role, &a.ModelID,
		&a.OutputText, &usage, &a.LatencyMS, &errStr, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan artifact: %w", err)
	}
	if a.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse artifact id: %w", err)
	}
	if a.RunID, err = uuid.Parse(runID); err != nil {
		return nil, fmt.Errorf("parse artifact run id: %w", err)
	}
	a.Role = models.Role(role)
	if err := json.Unmarshal([]byte(usage), &a.Usage); err != nil {
		return nil, fmt.Errorf("decode usage: %w", err)
	}
	a.Error = ptrFromNull(errStr)
	a.CreatedAt = parseTime(createdAt)
	return &a, nil
}

func fmtTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func timePtrFromNull(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func nullFromPtr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func ptrFromNull(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

var _ Store = (*SQLStore)(nil)

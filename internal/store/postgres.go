package store

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps artifacts as BYTEA rows.
type PostgresStore struct {
	pool    *pgxpool.Pool
	baseURL string
}

// NewPostgres establishes a connection pool and ensures the schema is initialized.
func NewPostgres(ctx context.Context, connString, baseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	// Initialize schema (Auto-Migration)
	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &PostgresStore{pool: pool, baseURL: baseURL}, nil
}

// initSchema creates the artifacts table if it doesn't exist (Auto-Migration).
func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	query := `
		CREATE TABLE IF NOT EXISTS artifacts (
			name TEXT PRIMARY KEY,
			content_type TEXT NOT NULL,
			data BYTEA NOT NULL,
			size BIGINT NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS artifacts_created_at_idx ON artifacts (created_at);
	`
	_, err := pool.Exec(ctx, query)
	return err
}

// Close terminates the connection pool.
func (s *PostgresStore) Close(ctx context.Context) {
	s.pool.Close()
}

// Put saves an artifact, replacing any previous one with the same name.
func (s *PostgresStore) Put(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	name, err := CleanName(name)
	if err != nil {
		return "", err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO artifacts (name, content_type, data, size, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (name) DO UPDATE
		SET content_type = EXCLUDED.content_type, data = EXCLUDED.data, size = EXCLUDED.size, created_at = NOW()
	`, name, contentType, data, len(data))
	if err != nil {
		return "", err
	}
	return URLFor(s.baseURL, name), nil
}

// Get fetches one artifact by name.
func (s *PostgresStore) Get(ctx context.Context, name string) (*Artifact, error) {
	name, err := CleanName(name)
	if err != nil {
		return nil, err
	}

	a := &Artifact{Name: name}
	err = s.pool.QueryRow(ctx, "SELECT content_type, data, created_at FROM artifacts WHERE name = $1", name).
		Scan(&a.ContentType, &a.Data, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// List returns every artifact, oldest first.
func (s *PostgresStore) List(ctx context.Context) ([]ArtifactInfo, error) {
	rows, err := s.pool.Query(ctx, "SELECT name, content_type, size, created_at FROM artifacts ORDER BY created_at, name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ArtifactInfo
	for rows.Next() {
		var info ArtifactInfo
		if err := rows.Scan(&info.Name, &info.ContentType, &info.Size, &info.CreatedAt); err != nil {
			return nil, err
		}
		info.URL = URLFor(s.baseURL, info.Name)
		out = append(out, info)
	}
	return out, rows.Err()
}

// Reset deletes every stored artifact.
func (s *PostgresStore) Reset(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "DELETE FROM artifacts")
	return err
}

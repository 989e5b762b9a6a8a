package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository loads and stores the whole profile.
type Repository interface {
	Load(ctx context.Context) (Profile, error)
	Save(ctx context.Context, p Profile) error
}

// FileRepository keeps the profile in a JSON file.
type FileRepository struct {
	path string
}

// NewFileRepository builds a repository for the JSON file at path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{path: path}
}

// Load returns an empty profile when the file does not exist yet.
func (r *FileRepository) Load(_ context.Context) (Profile, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Profile{}, nil
		}
		return Profile{}, fmt.Errorf("read profile: %w", err)
	}
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("decode profile %s: %w", r.path, err)
	}
	return p, nil
}

// Save writes the profile through a temp file and rename.
func (r *FileRepository) Save(_ context.Context, p Profile) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o700); err != nil {
		return fmt.Errorf("create profile dir: %w", err)
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("replace profile: %w", err)
	}
	return nil
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed profile repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const profileSchema = `
CREATE TABLE IF NOT EXISTS profile_localchains (
    position INTEGER NOT NULL,
    path     TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS profile_databrokers (
    position      INTEGER NOT NULL,
    host          TEXT PRIMARY KEY,
    user_identity TEXT NOT NULL,
    name          TEXT NOT NULL
);`

// EnsureSchema creates the profile tables when missing.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, profileSchema); err != nil {
		return fmt.Errorf("create profile schema: %w", err)
	}
	return nil
}

// Load reads both lists in their stored order.
func (r *PostgresRepository) Load(ctx context.Context) (Profile, error) {
	var p Profile
	rows, err := r.db.Query(ctx, `SELECT path FROM profile_localchains ORDER BY position`)
	if err != nil {
		return Profile{}, err
	}
	paths, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return Profile{}, err
	}
	p.LocalchainPaths = paths

	rows, err = r.db.Query(ctx, `SELECT host, user_identity, name FROM profile_databrokers ORDER BY position`)
	if err != nil {
		return Profile{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var b BrokerEntry
		if err := rows.Scan(&b.Host, &b.UserIdentity, &b.Name); err != nil {
			return Profile{}, err
		}
		p.Databrokers = append(p.Databrokers, b)
	}
	return p, rows.Err()
}

// Save replaces the stored profile in one transaction.
func (r *PostgresRepository) Save(ctx context.Context, p Profile) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM profile_localchains`); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM profile_databrokers`); err != nil {
		return err
	}
	for i, path := range p.LocalchainPaths {
		if _, err := tx.Exec(ctx, `INSERT INTO profile_localchains (position, path) VALUES ($1, $2)`, i, path); err != nil {
			return err
		}
	}
	for i, b := range p.Databrokers {
		if _, err := tx.Exec(ctx, `INSERT INTO profile_databrokers (position, host, user_identity, name)
            VALUES ($1, $2, $3, $4)`, i, b.Host, b.UserIdentity, b.Name); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

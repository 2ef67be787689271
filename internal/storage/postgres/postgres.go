// Package postgres is the shared-database target store, for deployments
// where more than one process reads the target set.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/rmarins/sitesentry/internal/core"
	"github.com/rmarins/sitesentry/internal/storage"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Store struct {
	db *sqlx.DB
}

// Open connects, applies pending migrations and returns the store.
func Open(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := migrateUp(databaseURL); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func migrateUp(databaseURL string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, databaseURL)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	srcErr, dbErr := m.Close()
	if srcErr != nil {
		return srcErr
	}
	return dbErr
}

func (s *Store) Close() error { return s.db.Close() }

type row struct {
	Owner     string    `db:"owner"`
	URL       string    `db:"url"`
	State     []byte    `db:"state"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func toRow(t *core.Target) (*row, error) {
	state, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("marshal target state: %w", err)
	}
	return &row{
		Owner:     t.Owner,
		URL:       t.URL,
		State:     state,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}, nil
}

func fromRow(r *row) (*core.Target, error) {
	var t core.Target
	if err := json.Unmarshal(r.State, &t); err != nil {
		return nil, fmt.Errorf("unmarshal target state: %w", err)
	}
	t.Owner = r.Owner
	t.URL = r.URL
	t.CreatedAt = r.CreatedAt
	t.UpdatedAt = r.UpdatedAt
	return &t, nil
}

func (s *Store) List(ctx context.Context) ([]*core.Target, error) {
	return s.selectTargets(ctx, `SELECT owner, url, state, created_at, updated_at FROM targets ORDER BY owner, url`)
}

func (s *Store) ListUser(ctx context.Context, owner string) ([]*core.Target, error) {
	return s.selectTargets(ctx, `SELECT owner, url, state, created_at, updated_at FROM targets WHERE owner = $1 ORDER BY url`, owner)
}

func (s *Store) selectTargets(ctx context.Context, query string, args ...any) ([]*core.Target, error) {
	var rows []row
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select targets: %w", err)
	}
	targets := make([]*core.Target, 0, len(rows))
	for i := range rows {
		t, err := fromRow(&rows[i])
		if err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, nil
}

func (s *Store) Get(ctx context.Context, owner, url string) (*core.Target, error) {
	var r row
	err := s.db.GetContext(ctx, &r,
		`SELECT owner, url, state, created_at, updated_at FROM targets WHERE owner = $1 AND url = $2`, owner, url)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get target: %w", err)
	}
	return fromRow(&r)
}

func (s *Store) Add(ctx context.Context, t *core.Target) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	r, err := toRow(t)
	if err != nil {
		return err
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO targets (owner, url, state, created_at, updated_at)
		VALUES (:owner, :url, :state, :created_at, :updated_at)`, r)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
		return storage.ErrExists
	}
	if err != nil {
		return fmt.Errorf("insert target: %w", err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, t *core.Target) error {
	r, err := toRow(t)
	if err != nil {
		return err
	}
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE targets
		SET state = :state, updated_at = :updated_at
		WHERE owner = :owner AND url = :url`, r)
	if err != nil {
		return fmt.Errorf("update target: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, owner, url string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM targets WHERE owner = $1 AND url = $2`, owner, url)
	if err != nil {
		return fmt.Errorf("delete target: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

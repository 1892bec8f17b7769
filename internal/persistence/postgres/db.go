// Package postgres implements the persistence.Port against PostgreSQL,
// adapted from the teacher's repository pattern (pgxpool + one explicit
// pgx transaction per Tx) to the entity/edge/permission schema of spec §6's
// "conforming schema": entity(id, kind, attrs_json), edge(parent_id,
// child_id, kind), permission(id, entity_id, uri, verb, grant_flag,
// deny_flag, scheme, priority, valid_from, valid_until).
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mvaleed/acs/internal/domain"
	"github.com/mvaleed/acs/internal/persistence"
)

// Store is the pgxpool-backed implementation of persistence.Port.
type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, connString string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &Store{pool: pool}, nil
}

func (s *Store) Close() { s.pool.Close() }

// BeginTransaction implements persistence.Port.
func (s *Store) BeginTransaction(ctx context.Context) (persistence.Tx, error) {
	pgxTx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	return &Tx{pgxTx: pgxTx}, nil
}

const (
	uniqueViolationCode = "23505"
	foreignKeyViolation = "23503"
)

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolationCode:
			return domain.ErrAlreadyExists
		case foreignKeyViolation:
			return domain.ErrConflict
		}
	}
	return err
}

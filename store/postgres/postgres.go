// Package postgres implements the store ports on a pgx connection pool.
// The schema these adapters expect ships in schema.sql.
package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/awe-platform/authcore/store"
)

// New wires every repository over one pool.
func New(pool *pgxpool.Pool) store.Store {
	return store.Store{
		Users:      NewUsers(pool),
		Tokens:     NewTokens(pool),
		Roles:      NewRoleCatalog(pool),
		Onboarding: NewOnboarding(pool),
	}
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// Package repository defines the persistence ports of the engine and their
// Postgres implementations. Every implementation resolves its connection
// through persistence.Conn so that calls made inside Transactor.WithinTx
// share one transaction.
package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// Transactor runs fn as a single unit of work. Any error returned by fn
// discards every write made through ctx.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// invalidTextRepresentation is the SQLSTATE Postgres raises when a value
// does not parse as the column type, e.g. a non-UUID id.
const invalidTextRepresentation = "22P02"

// notFound maps lookup failures that mean "no such row" onto ErrNotFound.
// An id Postgres can not parse names no row either.
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == invalidTextRepresentation {
		return ErrNotFound
	}
	return err
}

// validID reports whether id can be a primary key. Ids reach the
// repositories straight from request paths.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientFunds is returned when a conditional debit finds the
	// balance below the requested amount.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDuplicateEarning is returned when an earning already exists for the
	// session (unique constraint on earnings.session_id).
	ErrDuplicateEarning = errors.New("earning already recorded for session")
)

// isUniqueViolation reports whether err is a Postgres unique_violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

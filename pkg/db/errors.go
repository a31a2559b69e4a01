package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// IsUniqueViolation reports whether err is a unique constraint violation. When
// markers are supplied, at least one of them (a constraint name for Postgres, a
// table.column pair for SQLite) must appear in the error.
func IsUniqueViolation(err error, markers ...string) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != pgUniqueViolation {
			return false
		}
		if len(markers) == 0 {
			return true
		}
		for _, m := range markers {
			if m != "" && (pgErr.ConstraintName == m || strings.Contains(pgErr.Message, m)) {
				return true
			}
		}
		return false
	}

	msg := err.Error()
	if !strings.Contains(msg, "duplicate key value") && !strings.Contains(msg, "UNIQUE constraint failed") {
		return false
	}
	if len(markers) == 0 {
		return true
	}
	for _, m := range markers {
		if m != "" && strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// IsForeignKeyViolation reports whether err is a foreign key violation. Markers
// are matched against the Postgres constraint name; SQLite does not name the
// failing constraint, so markers are not checked there.
func IsForeignKeyViolation(err error, markers ...string) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != pgForeignKeyViolation {
			return false
		}
		if len(markers) == 0 {
			return true
		}
		for _, m := range markers {
			if m != "" && pgErr.ConstraintName == m {
				return true
			}
		}
		return false
	}

	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

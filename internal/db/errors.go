package db

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/errs"
)

// Classify wraps a SQL failure as a warehouse error, carrying the SQLSTATE
// and constraint name when the driver exposes them.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errs.KindOf(err) != errs.KindUnknown {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		detail := pgErr.Message
		if pgErr.ConstraintName != "" {
			detail += " (constraint " + pgErr.ConstraintName + ")"
		}
		return errs.E(errs.KindWarehouse, op, fmt.Errorf("sqlstate %s: %s: %w", pgErr.Code, detail, err))
	}
	return errs.E(errs.KindWarehouse, op, err)
}

// IsUndefinedTable reports whether err is SQLSTATE 42P01.
func IsUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}

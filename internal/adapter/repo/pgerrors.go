package repo

import (
	"errors"
	"regexp"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgCodeUndefinedColumn     = "42703"
	pgCodeForeignKeyViolation = "23503"
	pgCodeUniqueViolation     = "23505"
)

var columnNameRegexp = regexp.MustCompile(`column "([^"]+)"`)

// IsUndefinedColumn reports whether err is the store telling us a column in
// the statement does not exist, returning the offending column name when it
// can be determined.
func IsUndefinedColumn(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgCodeUndefinedColumn {
		return "", false
	}
	if pgErr.ColumnName != "" {
		return pgErr.ColumnName, true
	}
	if m := columnNameRegexp.FindStringSubmatch(pgErr.Message); m != nil {
		return m[1], true
	}
	return "", true
}

// IsForeignKeyViolation reports whether err is a foreign-key violation,
// typically a job insert referencing an owner row that does not exist yet.
func IsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgCodeForeignKeyViolation
}

// IsUniqueViolation reports whether err is a duplicate-key violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgCodeUniqueViolation
}

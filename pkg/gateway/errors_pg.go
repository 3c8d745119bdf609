package gateway

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// retryablePgCodes is the fixed set of PostgreSQL error codes eligible for
// automatic retry. Serialization and deadlock conflicts resolve themselves
// on a fresh attempt; connection failures may heal through the pool.
// See: https://www.postgresql.org/docs/current/errcodes-appendix.html
var retryablePgCodes = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"08000": true, // connection_exception
	"08003": true, // connection_does_not_exist
	"08006": true, // connection_failure
}

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// MapStoreError converts a PostgreSQL error into a gateway error type.
// Constraint violations become typed client-visible errors, retryable codes
// become TransientError, everything else becomes an opaque FatalError.
func MapStoreError(err error, entity string, op string) error {
	if err == nil {
		return nil
	}

	// Already classified; pass through untouched.
	var ge GatewayError
	if errors.As(err, &ge) {
		return err
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return &FatalError{Op: op, Err: err}
	}

	switch pgErr.Code {
	case "23505": // unique_violation
		return &UniqueConstraintError{
			Entity: entity,
			Field:  fieldFromDetail(pgErr.Detail),
		}

	case "23503": // foreign_key_violation
		return &ForeignKeyError{
			Entity:          entity,
			Field:           fieldFromDetail(pgErr.Detail),
			ReferencedTable: referencedTable(pgErr.ConstraintName),
		}

	case "23502": // not_null_violation
		field := pgErr.ColumnName
		if field == "" {
			field = quotedToken(pgErr.Message)
		}
		return &NotNullError{Entity: entity, Field: field}
	}

	if retryablePgCodes[pgErr.Code] {
		return &TransientError{PgCode: pgErr.Code, Err: err}
	}

	return &FatalError{Op: op, Err: err}
}

// fieldFromDetail extracts the field name from a constraint detail string.
// Input: `Key (email)=(test@mail.com) already exists.` -> "email"
func fieldFromDetail(detail string) string {
	start := strings.Index(detail, "(")
	end := strings.Index(detail, ")")
	if start >= 0 && end > start {
		return detail[start+1 : end]
	}
	return ""
}

// referencedTable extracts the referenced table from a constraint name
// following the fk_{table}_{field}_{referenced} convention.
func referencedTable(constraint string) string {
	parts := strings.Split(constraint, "_")
	if len(parts) >= 4 && parts[0] == "fk" {
		return parts[len(parts)-1]
	}
	return "referenced row"
}

// quotedToken returns the first double-quoted token in a message.
// Input: `null value in column "email" violates ...` -> "email"
func quotedToken(message string) string {
	start := strings.Index(message, `"`)
	if start < 0 {
		return ""
	}
	end := strings.Index(message[start+1:], `"`)
	if end < 0 {
		return ""
	}
	return message[start+1 : start+1+end]
}

package db

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/clinicdesk/clinicdesk/internal/platform/apperror"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeSerializationFail   = "40001"
)

// Unique constraints guarding allocated identifiers. A violation on one of
// these means two requests computed the same candidate code.
const (
	ConstraintPatientCode     = "appointment_patient_code_key"
	ConstraintTransactionCode = "billing_transaction_transaction_code_key"
	ConstraintVisitCode       = "visit_visit_code_key"
)

var identifierConstraints = map[string]bool{
	ConstraintPatientCode:     true,
	ConstraintTransactionCode: true,
	ConstraintVisitCode:       true,
}

func pgError(err error) *pgconn.PgError {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr
	}
	return nil
}

func IsUniqueViolation(err error) bool {
	pgErr := pgError(err)
	return pgErr != nil && pgErr.Code == codeUniqueViolation
}

// ConstraintName returns the violated constraint, or "" when err is not a
// Postgres constraint error.
func ConstraintName(err error) string {
	if pgErr := pgError(err); pgErr != nil {
		return pgErr.ConstraintName
	}
	return ""
}

// Classify maps a driver error onto the application taxonomy. Identifier
// collisions and serialization failures become retryable conflicts, other
// unique or foreign key violations plain conflicts, missing rows ErrNotFound
// and everything else a persistence failure.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, apperror.ErrNotFound)
	}
	if pgErr := pgError(err); pgErr != nil {
		switch pgErr.Code {
		case codeUniqueViolation:
			if identifierConstraints[pgErr.ConstraintName] {
				return apperror.RetryableConflict(fmt.Sprintf("%s: identifier already taken (%s)", op, pgErr.ConstraintName), err)
			}
			return &apperror.ConflictError{Reason: fmt.Sprintf("%s: duplicate (%s)", op, pgErr.ConstraintName), Err: err}
		case codeForeignKeyViolation:
			return &apperror.ConflictError{Reason: fmt.Sprintf("%s: referenced record missing (%s)", op, pgErr.ConstraintName), Err: err}
		case codeSerializationFail:
			return apperror.RetryableConflict(op+": concurrent update", err)
		}
	}
	if apperror.IsValidation(err) || apperror.IsConflict(err) || apperror.IsPrecondition(err) || apperror.IsPersistence(err) {
		return err
	}
	return apperror.Persistence(op, err)
}

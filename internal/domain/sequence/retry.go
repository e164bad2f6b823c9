package sequence

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinicdesk/internal/platform/apperror"
	"github.com/clinicdesk/clinicdesk/internal/platform/db"
	"github.com/clinicdesk/clinicdesk/internal/platform/metrics"
)

// RetryOnConflict runs fn up to attempts times while it fails with a
// retryable conflict. fn must be the whole atomic unit: it is re-run from
// the start, not resumed. Any other error, or the last collision, is
// returned as is.
func RetryOnConflict(ctx context.Context, attempts int, fn func(ctx context.Context) error) error {
	return retry(ctx, attempts, nil, fn)
}

func retry(ctx context.Context, attempts int, onConflict func(error), fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			if err != nil {
				return err
			}
			return ctxErr
		}
		err = fn(ctx)
		if err == nil || !apperror.IsRetryable(err) {
			return err
		}
		if onConflict != nil {
			onConflict(err)
		}
	}
	return err
}

// Namespace names the identifier namespace a collision happened in.
func Namespace(err error) string {
	switch db.ConstraintName(err) {
	case db.ConstraintPatientCode:
		return "patient_code"
	case db.ConstraintTransactionCode:
		return "transaction_code"
	case db.ConstraintVisitCode:
		return "visit_code"
	default:
		return "other"
	}
}

// Retrier is RetryOnConflict with its attempt budget, metrics and logging
// bound once at startup.
type Retrier struct {
	Attempts int
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
}

// Inside an already open unit of work fn runs once: the transaction is
// aborted after a collision, so only the outermost caller can retry.
func (r Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if db.InUnit(ctx) {
		return fn(ctx)
	}
	return retry(ctx, r.Attempts, func(err error) {
		ns := Namespace(err)
		r.Metrics.SequenceConflict(ns)
		r.Logger.Debug().Str("namespace", ns).Err(err).Msg("identifier collision, retrying unit")
	}, fn)
}

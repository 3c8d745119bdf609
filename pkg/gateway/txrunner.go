package gateway

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// TxSpec are the per-invocation transaction parameters.
type TxSpec struct {
	MaxRetries int
	Timeout    time.Duration
	Isolation  pgx.TxIsoLevel
}

// DefaultTxSpec returns the default spec: 3 retries, 5s timeout per
// attempt, read committed isolation.
func DefaultTxSpec() TxSpec {
	return TxSpec{
		MaxRetries: 3,
		Timeout:    5 * time.Second,
		Isolation:  pgx.ReadCommitted,
	}
}

func (s TxSpec) withDefaults() TxSpec {
	d := DefaultTxSpec()
	if s.MaxRetries <= 0 {
		s.MaxRetries = d.MaxRetries
	}
	if s.Timeout <= 0 {
		s.Timeout = d.Timeout
	}
	if s.Isolation == "" {
		s.Isolation = d.Isolation
	}
	return s
}

// TxBeginner is the slice of the store's transaction primitive the runner
// needs. *pgxpool.Pool satisfies it.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// UnitOfWork is the function executed inside a transaction. Returning an
// error rolls the attempt back.
type UnitOfWork func(ctx context.Context, tx pgx.Tx) error

// TxRunner executes a unit of work atomically with bounded retry. Each
// attempt is its own transaction racing against the spec timeout; only
// timeouts and errors in the retryable code set are retried, with
// exponential backoff between attempts. Work is never partially committed
// across retries.
type TxRunner struct {
	db          TxBeginner
	backoffBase time.Duration
	debug       *DebugContext

	// sleep is swappable in tests.
	sleep func(time.Duration)
}

// NewTxRunner creates a runner over the store's transaction primitive.
func NewTxRunner(db TxBeginner) *TxRunner {
	return &TxRunner{
		db:          db,
		backoffBase: 100 * time.Millisecond,
		debug:       DefaultDebugContext(),
		sleep:       time.Sleep,
	}
}

// WithDebug sets the debug context and returns the runner.
func (r *TxRunner) WithDebug(debug *DebugContext) *TxRunner {
	if debug != nil {
		r.debug = debug
	}
	return r
}

// Run executes fn with the given spec. On success the transaction commits
// and the error is nil. A non-retryable failure propagates immediately;
// after the retry budget is exhausted the last error is returned.
func (r *TxRunner) Run(ctx context.Context, spec TxSpec, fn UnitOfWork) error {
	spec = spec.withDefaults()

	var lastErr error
	for attempt := 0; attempt < spec.MaxRetries; attempt++ {
		if attempt > 0 {
			// base × 2^(attempt-1): 100ms, 200ms, 400ms...
			r.sleep(r.backoffBase << (attempt - 1))
		}

		err := r.attempt(ctx, spec, fn)
		if err == nil {
			if attempt > 0 {
				r.debug.Tracef("[TX] succeeded after %d retries", attempt)
			}
			return nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return err
		}
		// Caller's context is gone; retrying cannot help.
		if ctx.Err() != nil {
			return lastErr
		}
		r.debug.Tracef("[TX] attempt %d failed with retryable error: %v", attempt+1, err)
	}
	return lastErr
}

func (r *TxRunner) attempt(ctx context.Context, spec TxSpec, fn UnitOfWork) error {
	attemptCtx, cancel := context.WithTimeout(ctx, spec.Timeout)
	defer cancel()

	tx, err := r.db.BeginTx(attemptCtx, pgx.TxOptions{IsoLevel: spec.Isolation})
	if err != nil {
		return err
	}

	if err := fn(attemptCtx, tx); err != nil {
		rollback(tx)
		if attemptCtx.Err() != nil && ctx.Err() == nil {
			return context.DeadlineExceeded
		}
		return err
	}

	if err := tx.Commit(attemptCtx); err != nil {
		rollback(tx)
		if attemptCtx.Err() != nil && ctx.Err() == nil {
			return context.DeadlineExceeded
		}
		return err
	}
	return nil
}

func rollback(tx pgx.Tx) {
	// Rollback after a failed commit reports ErrTxClosed; safe to ignore.
	_ = tx.Rollback(context.Background())
}

package sqlite

import (
	"context"
	"database/sql"
	"math/rand/v2"
	"strings"
	"time"
)

// RetryConfig controls exponential backoff on SQLITE_BUSY.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	JitterPct  float64 // e.g. 0.25 for 25% jitter
}

// DefaultRetryConfig returns the default retry configuration:
// 7 retries, 50ms base, 25% jitter.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 7,
		BaseDelay:  50 * time.Millisecond,
		JitterPct:  0.25,
	}
}

// retryHandle retries busy errors at the statement seam so every Store
// method gets the same treatment. QueryRowContext cannot be retried here
// (its error only surfaces at Scan) and passes through.
type retryHandle struct {
	inner dbHandle
	cfg   RetryConfig
	sleep func(time.Duration)
}

func withRetry(inner dbHandle) dbHandle {
	return &retryHandle{inner: inner, cfg: DefaultRetryConfig(), sleep: time.Sleep}
}

func (r *retryHandle) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := r.do(func() error {
		var err error
		res, err = r.inner.ExecContext(ctx, query, args...)
		return err
	})
	return res, err
}

func (r *retryHandle) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	var rows *sql.Rows
	err := r.do(func() error {
		var err error
		rows, err = r.inner.QueryContext(ctx, query, args...)
		return err
	})
	return rows, err
}

func (r *retryHandle) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return r.inner.QueryRowContext(ctx, query, args...)
}

func (r *retryHandle) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	var tx *sql.Tx
	err := r.do(func() error {
		var err error
		tx, err = r.inner.BeginTx(ctx, opts)
		return err
	})
	return tx, err
}

func (r *retryHandle) do(fn func() error) error {
	err := fn()
	if err == nil || !isBusy(err) {
		return err
	}

	for attempt := 1; attempt <= r.cfg.MaxRetries; attempt++ {
		delay := r.cfg.BaseDelay * (1 << (attempt - 1))
		jitter := time.Duration(float64(delay) * rand.Float64() * r.cfg.JitterPct)
		r.sleep(delay + jitter)

		err = fn()
		if err == nil || !isBusy(err) {
			return err
		}
	}
	return err
}

func isBusy(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "table is locked")
}

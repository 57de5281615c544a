// Package retry absorbs transient storage failures around whole transaction
// begin and commit calls.
package retry

import (
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = time.Second
	DefaultMaxDelay    = 30 * time.Second
)

// Config bounds a Policy.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Policy retries transient failures with exponential backoff and
// decorrelated jitter. It holds no per-call state and is safe to share.
type Policy struct {
	cfg       Config
	transient func(error) bool
	logger    *zap.Logger
}

// Option customizes a Policy.
type Option func(*Policy)

// WithClassifier replaces the transient error classifier.
func WithClassifier(fn func(error) bool) Option {
	return func(p *Policy) {
		if fn != nil {
			p.transient = fn
		}
	}
}

// WithLogger logs every retried attempt at warn level.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Policy) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPolicy fills unset bounds with the defaults.
func NewPolicy(cfg Config, opts ...Option) *Policy {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = max(DefaultMaxDelay, cfg.BaseDelay)
	}

	p := &Policy{cfg: cfg, transient: IsTransient, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Do runs op until it succeeds, fails with a non-transient error, or the
// attempt bound is reached. The last error is returned unchanged.
func (p *Policy) Do(ctx context.Context, op func(context.Context) error) error {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := op(ctx)
		if err == nil {
			return struct{}{}, nil
		}
		if !p.transient(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(newDecorrelatedJitter(p.cfg.BaseDelay, p.cfg.MaxDelay)),
		backoff.WithMaxTries(uint(p.cfg.MaxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			p.logger.Warn("retrying transient failure", zap.Error(err), zap.Duration("backoff", next))
		}),
	)
	return err
}

// decorrelatedJitter yields sleep = min(max, random in [base, prev*3]).
type decorrelatedJitter struct {
	base time.Duration
	max  time.Duration
	prev time.Duration
}

func newDecorrelatedJitter(base, maxDelay time.Duration) *decorrelatedJitter {
	return &decorrelatedJitter{base: base, max: maxDelay, prev: base}
}

func (d *decorrelatedJitter) NextBackOff() time.Duration {
	upper := d.prev * 3
	if upper <= d.base || upper > d.max {
		upper = d.max
	}
	next := d.base
	if span := int64(upper - d.base); span > 0 {
		next += time.Duration(rand.Int64N(span + 1)) // #nosec G404 -- jitter only
	}
	d.prev = next
	return next
}

func (d *decorrelatedJitter) Reset() {
	d.prev = d.base
}

// transientCodes are SQLSTATEs outside class 08 worth retrying.
var transientCodes = map[string]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"53300": {}, // too_many_connections
	"57P01": {}, // admin_shutdown
	"57P02": {}, // crash_shutdown
	"57P03": {}, // cannot_connect_now
}

// IsTransient classifies connection level and contention failures.
// Context cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var marked interface{ Transient() bool }
	if errors.As(err, &marked) {
		return marked.Transient()
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if strings.HasPrefix(pgErr.Code, "08") {
			return true
		}
		_, ok := transientCodes[pgErr.Code]
		return ok
	}

	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF)
}

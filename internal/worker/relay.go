package worker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/identity-service/internal/events"
	"github.com/spec-kit/identity-service/internal/observability"
	"github.com/spec-kit/identity-service/internal/outbox"
	"github.com/spec-kit/identity-service/internal/uow"
)

const (
	defaultRelayInterval  = 5 * time.Second
	defaultRelayBatchSize = 50
)

// RelayDependencies wires an OutboxRelay.
type RelayDependencies struct {
	UnitOfWork *uow.Factory
	Codec      *outbox.Codec
	Dispatcher events.Dispatcher
	Locker     Locker
	Metrics    *observability.Metrics
	Clock      func() time.Time
	Logger     *zap.Logger
	Interval   time.Duration
	BatchSize  int
}

// OutboxRelay drains committed outbox rows through the dispatch table. A batch
// is dispatched and marked processed in one transaction, so every committed
// event is handled at least once and a failed batch is retried whole.
type OutboxRelay struct {
	deps RelayDependencies
}

// NewOutboxRelay fills unset dependencies with defaults.
func NewOutboxRelay(deps RelayDependencies) *OutboxRelay {
	if deps.Locker == nil {
		deps.Locker = NoopLocker{}
	}
	if deps.Clock == nil {
		deps.Clock = func() time.Time { return time.Now().UTC() }
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Interval <= 0 {
		deps.Interval = defaultRelayInterval
	}
	if deps.BatchSize <= 0 {
		deps.BatchSize = defaultRelayBatchSize
	}
	return &OutboxRelay{deps: deps}
}

// Run polls until ctx is cancelled. Batch failures are logged and retried on
// the next tick, never returned.
func (r *OutboxRelay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.deps.Interval)
	defer ticker.Stop()

	r.deps.Logger.Info("outbox relay started",
		zap.Duration("interval", r.deps.Interval),
		zap.Int("batch_size", r.deps.BatchSize))

	for {
		r.tick(ctx)

		select {
		case <-ctx.Done():
			r.deps.Logger.Info("outbox relay stopped")
			return
		case <-ticker.C:
		}
	}
}

func (r *OutboxRelay) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	n, err := r.RunOnce(ctx)
	if err != nil {
		streak := r.deps.Metrics.RecordRelayFailure()
		r.deps.Logger.Error("outbox relay batch failed",
			zap.Error(err),
			zap.Int64("consecutive_failures", streak))
		return
	}
	r.deps.Metrics.RecordRelaySuccess(n, r.deps.Clock())
	if n > 0 {
		r.deps.Logger.Debug("outbox relay batch committed", zap.Int("events", n))
	}
}

// RunOnce relays one batch and returns how many events it processed. When the
// lease is held elsewhere it does nothing.
func (r *OutboxRelay) RunOnce(ctx context.Context) (int, error) {
	unlock, acquired, err := r.deps.Locker.TryLock(ctx)
	if err != nil {
		return 0, err
	}
	if !acquired {
		r.deps.Logger.Debug("outbox relay lease held elsewhere")
		return 0, nil
	}
	defer unlock(context.WithoutCancel(ctx))

	work, err := r.deps.UnitOfWork.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer work.Rollback()
	wctx := work.Context()

	messages, err := work.Outbox().ListUnprocessed(wctx, r.deps.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list outbox: %w", err)
	}
	if len(messages) == 0 {
		return 0, nil
	}

	for _, message := range messages {
		event, err := r.deps.Codec.Decode(message)
		if err != nil {
			return 0, err
		}
		if err := r.deps.Dispatcher.Dispatch(wctx, work.Repositories(), event); err != nil {
			return 0, fmt.Errorf("dispatch: %w", err)
		}
		if err := work.Outbox().MarkProcessed(wctx, message.EventID, r.deps.Clock()); err != nil {
			return 0, fmt.Errorf("mark %s processed: %w", message.EventID, err)
		}
	}

	if err := work.Commit(); err != nil {
		return 0, err
	}
	return len(messages), nil
}

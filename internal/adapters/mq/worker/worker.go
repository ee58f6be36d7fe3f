// Package worker applies queued awards with bounded exponential retry.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/okian/pointsboard/internal/domain/model"
	"github.com/okian/pointsboard/pkg/logger"
	"github.com/okian/pointsboard/pkg/metrics"
)

const (
	defaultWorkers         = 4
	defaultMaxAttempts     = 5
	defaultInitialInterval = 50 * time.Millisecond
	defaultMaxInterval     = 2 * time.Second
)

// Applier applies one award to the ledger.
type Applier interface {
	Apply(ctx context.Context, r model.AwardRequest) error
}

// Source is where workers receive awards from.
type Source interface {
	Dequeue() <-chan model.AwardRequest
}

// Pool runs a fixed set of workers over a Source.
type Pool struct {
	src     Source
	applier Applier

	workers         int
	maxAttempts     int
	initialInterval time.Duration
	maxInterval     time.Duration
	permanent       func(error) bool
	onDrop          func(model.AwardRequest, error)
	log             logger.Logger

	active  atomic.Int64
	wg      sync.WaitGroup
	started atomic.Bool
}

// NewPool creates a pool. Nothing runs until Start.
func NewPool(src Source, applier Applier, opts ...Option) *Pool {
	p := &Pool{
		src:             src,
		applier:         applier,
		workers:         defaultWorkers,
		maxAttempts:     defaultMaxAttempts,
		initialInterval: defaultInitialInterval,
		maxInterval:     defaultMaxInterval,
		permanent:       func(error) bool { return false },
		log:             logger.Discard(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Size is the configured worker count.
func (p *Pool) Size() int { return p.workers }

// Active is the number of awards being applied right now.
func (p *Pool) Active() int { return int(p.active.Load()) }

// Start launches the workers. They stop when ctx is done or the source
// channel is closed and drained. Calling Start twice is a no-op.
func (p *Pool) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	metrics.UpdateWorkerCount(p.workers)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
	p.log.Info(ctx, "award workers started", logger.Int("workers", p.workers))
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	awards := p.src.Dequeue()
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-awards:
			if !ok {
				return
			}
			metrics.RecordQueueDequeue()
			if !r.SubmittedAt.IsZero() {
				metrics.RecordQueueProcessingLatency(float64(time.Since(r.SubmittedAt).Milliseconds()))
			}
			p.process(ctx, id, r)
		}
	}
}

func (p *Pool) process(ctx context.Context, id int, r model.AwardRequest) { //nolint:gocritic // value semantics from the channel
	metrics.UpdateWorkerActiveCount(int(p.active.Add(1)))
	start := time.Now()
	defer func() {
		metrics.UpdateWorkerActiveCount(int(p.active.Add(-1)))
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.initialInterval
	b.MaxInterval = p.maxInterval

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		err := p.applier.Apply(ctx, r)
		if err != nil && p.permanent(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(p.maxAttempts)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			metrics.RecordWorkerRetry()
			p.log.Warn(ctx, "award attempt failed, retrying",
				logger.Int("worker", id),
				logger.String("submission_id", r.SubmissionID),
				logger.Int("attempt", attempt),
				logger.Duration("wait", wait),
				logger.Error(err))
		}),
	)
	if err == nil {
		return
	}
	p.drop(ctx, id, r, attempt, err)
}

func (p *Pool) drop(ctx context.Context, id int, r model.AwardRequest, attempts int, err error) { //nolint:gocritic // value semantics from the channel
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Unwrap()
	}
	metrics.RecordWorkerError()
	metrics.RecordAwardDropped()
	p.log.Error(ctx, "award dropped",
		logger.Int("worker", id),
		logger.String("submission_id", r.SubmissionID),
		logger.String("user_id", r.UserID),
		logger.String("community_id", r.CommunityID),
		logger.String("action", r.ActionKey),
		logger.Int("attempts", attempts),
		logger.Error(err))
	if p.onDrop != nil {
		p.onDrop(r, err)
	}
}

// Shutdown closes the source when it can be closed, then waits for the
// workers to drain it or for ctx to end.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.src.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.log.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		metrics.UpdateWorkerCount(0)
		return nil
	case <-ctx.Done():
		p.log.Warn(ctx, "worker shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"crosspost/internal/publish"
	"crosspost/internal/storage"
	logx "crosspost/pkg/logx"
)

// Config controls per-target retry and the simulated-mode delay.
type Config struct {
	// MaxAttempts is the total attempt ceiling per target (first try
	// included). Default 3.
	MaxAttempts int
	// RetryBase is the delay before the first retry; it doubles after
	// every failed attempt. Default 1s.
	RetryBase time.Duration
	// SimulatedDelay is how long a simulated dispatch waits before
	// synthesizing success, so callers observe comparable latency.
	// Default 2s.
	SimulatedDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = time.Second
	}
	if c.SimulatedDelay <= 0 {
		c.SimulatedDelay = 2 * time.Second
	}
	return c
}

// Request is one resolved publish order. Names carries the target names in
// selection order; in live mode Targets holds the matching adapters. A
// simulated request never touches Targets, so it may be nil.
type Request struct {
	Asset     publish.Asset
	Caption   string
	Names     []string
	Targets   []publish.Target
	Simulated bool
}

// Result is the fanned-in outcome set plus the aggregate lifecycle status.
type Result struct {
	Status   storage.Status
	Outcomes map[string]storage.TargetOutcome
}

// Engine executes publish requests: one attempt sequence per target, all
// targets concurrently, full fan-in before aggregation. A target's
// exhaustion never aborts dispatch to the others and never escapes as an
// error from Dispatch.
type Engine struct {
	cfg Config
	log logx.Logger
}

func New(cfg Config, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{cfg: cfg.withDefaults(), log: log}
}

// Dispatch runs the request to completion and returns the aggregate. It
// only returns once every target has resolved; there is no early exit in
// either direction because the aggregate depends on every outcome.
func (e *Engine) Dispatch(ctx context.Context, req Request) Result {
	if req.Simulated {
		return e.dispatchSimulated(ctx, req.Names)
	}

	outcomes := make(map[string]storage.TargetOutcome, len(req.Targets))
	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, t := range req.Targets {
		wg.Add(1)
		go func(t publish.Target) {
			defer wg.Done()
			out := e.runTarget(ctx, t, req.Asset, req.Caption)
			mu.Lock()
			outcomes[t.Name()] = out
			mu.Unlock()
		}(t)
	}
	wg.Wait()

	status := Aggregate(outcomes)
	e.log.Info("dispatch finished",
		logx.String("status", string(status)),
		logx.Int("targets", len(outcomes)))
	return Result{Status: status, Outcomes: outcomes}
}

// runTarget is one target's full attempt sequence: strictly sequential
// attempts with doubling backoff between them, up to the attempt ceiling.
func (e *Engine) runTarget(ctx context.Context, t publish.Target, asset publish.Asset, caption string) storage.TargetOutcome {
	delay := e.cfg.RetryBase
	var lastErr error

	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		err := e.publishOnce(ctx, t, asset, caption)
		if err == nil {
			e.log.Info("target published",
				logx.String("target", t.Name()), logx.Int("attempt", attempt))
			return storage.TargetOutcome{Status: storage.OutcomeSuccess, CompletedAt: time.Now().UTC()}
		}
		lastErr = err

		if attempt == e.cfg.MaxAttempts {
			break
		}
		e.log.Warn("publish attempt failed; retrying",
			logx.String("target", t.Name()),
			logx.Int("attempt", attempt),
			logx.Duration("backoff", delay),
			logx.Err(err))
		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
			attempt = e.cfg.MaxAttempts // stop retrying
		case <-time.After(delay):
			delay *= 2
		}
	}

	e.log.Error("target exhausted retries", logx.String("target", t.Name()), logx.Err(lastErr))
	return storage.TargetOutcome{
		Status:      storage.OutcomeFailed,
		Detail:      publish.Classify(t.Name(), lastErr).Error(),
		CompletedAt: time.Now().UTC(),
	}
}

// publishOnce guards a single adapter call. A panicking adapter is treated
// as a failed attempt, not a crashed dispatch.
func (e *Engine) publishOnce(ctx context.Context, t publish.Target, asset publish.Asset, caption string) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = publish.Rejected(t.Name(), fmt.Sprintf("adapter panic: %v", rec))
		}
	}()
	return t.Publish(ctx, asset, caption)
}

// dispatchSimulated synthesizes success for every named target without
// touching any adapter. The short wait keeps the observable latency in the
// same shape as a real dispatch.
func (e *Engine) dispatchSimulated(ctx context.Context, names []string) Result {
	select {
	case <-ctx.Done():
	case <-time.After(e.cfg.SimulatedDelay):
	}

	outcomes := make(map[string]storage.TargetOutcome, len(names))
	now := time.Now().UTC()
	for _, name := range names {
		outcomes[name] = storage.TargetOutcome{Status: storage.OutcomeMockSuccess, CompletedAt: now}
	}
	return Result{Status: Aggregate(outcomes), Outcomes: outcomes}
}

// Aggregate reduces an outcome set to the post status. It is a pure,
// commutative function of the set: completion order cannot influence it.
// An empty set aggregates to failed; a publish request that reached
// dispatch with no usable targets is degenerate and never completed.
func Aggregate(outcomes map[string]storage.TargetOutcome) storage.Status {
	if len(outcomes) == 0 {
		return storage.StatusFailed
	}
	ok, failed := 0, 0
	for _, o := range outcomes {
		if o.Status.OK() {
			ok++
		} else {
			failed++
		}
	}
	switch {
	case failed == 0:
		return storage.StatusCompleted
	case ok == 0:
		return storage.StatusFailed
	default:
		return storage.StatusPartial
	}
}

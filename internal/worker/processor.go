// Package worker executes claimed jobs against the render API.
package worker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"modelshoot/internal/domain"
	"modelshoot/internal/infra"
	"modelshoot/internal/metrics"
	"modelshoot/internal/providers/render"
	"modelshoot/internal/queue"
	"modelshoot/internal/storage"
)

// ObjectStore persists rendered images.
type ObjectStore interface {
	Write(ctx context.Context, key string, data []byte) (string, error)
}

// settleTimeout bounds the storage write and state updates after a render.
const settleTimeout = 30 * time.Second

// Config tunes a processor.
type Config struct {
	WorkerID      string
	Concurrency   int
	RenderTimeout time.Duration
	PollInterval  time.Duration
	// RatePerSecond limits render calls; zero disables the limiter.
	RatePerSecond float64
	Burst         int
}

// Processor claims jobs from the scheduler and drives them to a terminal or
// requeued state.
type Processor struct {
	scheduler   *queue.Scheduler
	transitions *queue.Transitions
	renderer    render.Renderer
	objects     ObjectStore
	limiter     *rate.Limiter
	cfg         Config
	logger      infra.Logger
}

// NewProcessor wires a processor.
func NewProcessor(scheduler *queue.Scheduler, renderer render.Renderer, objects ObjectStore, cfg Config, logger infra.Logger) *Processor {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 2
	}
	if cfg.RenderTimeout <= 0 {
		cfg.RenderTimeout = 90 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.WorkerID == "" {
		cfg.WorkerID = "worker"
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return &Processor{
		scheduler:   scheduler,
		transitions: scheduler.Transitions(),
		renderer:    renderer,
		objects:     objects,
		limiter:     limiter,
		cfg:         cfg,
		logger:      logger.With().Str("component", "worker").Str("worker_id", cfg.WorkerID).Logger(),
	}
}

// ProcessNextBatch selects the next eligible batch and executes its claimable
// members, at most Concurrency at a time. It reports whether any job was
// processed; an empty queue is not an error.
func (p *Processor) ProcessNextBatch(ctx context.Context) (bool, error) {
	batch, err := p.scheduler.NextEligibleBatch(ctx)
	if err != nil {
		return false, fmt.Errorf("select batch: %w", err)
	}
	if batch == nil {
		return false, nil
	}
	log := p.logger.With().Str("batch_id", batch.ID).Logger()

	// Each lane claims only when it is free, so no job holds a lease while
	// waiting for a slot. A claim error stops only its own lane; jobs already
	// claimed by sibling lanes run to completion.
	var processed atomic.Int64
	var g errgroup.Group
	for lane := 0; lane < p.cfg.Concurrency; lane++ {
		g.Go(func() error {
			for ctx.Err() == nil {
				job, err := p.scheduler.ClaimNext(ctx, batch.ID, p.cfg.WorkerID)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					log.Error().Err(err).Msg("claim failed; lane stopped")
					return fmt.Errorf("claim from batch %s: %w", batch.ID, err)
				}
				if job == nil {
					return nil
				}
				processed.Add(1)
				p.execute(ctx, job)
			}
			return nil
		})
	}
	err = g.Wait()
	n := processed.Load()
	if n > 0 {
		log.Info().Int64("jobs", n).Msg("batch pass finished")
	}
	return n > 0, err
}

// Run processes batches until ctx is cancelled, reaping expired leases and
// sleeping PollInterval whenever the queue is idle.
func (p *Processor) Run(ctx context.Context) error {
	p.logger.Info().Int("concurrency", p.cfg.Concurrency).Msg("worker: started")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := p.scheduler.RequeueExpired(ctx); err != nil && ctx.Err() == nil {
			p.logger.Error().Err(err).Msg("worker: requeue expired leases failed")
		}
		didWork, err := p.ProcessNextBatch(ctx)
		if err != nil && ctx.Err() == nil {
			p.logger.Error().Err(err).Msg("worker: batch pass failed")
		}
		if didWork {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.cfg.PollInterval):
		}
	}
}

// execute drives a claimed job to its next state. Once claimed, a job is
// detached from ctx so shutdown or a dropped caller cannot strand it in
// processing; the work is bounded by the render timeout plus settleTimeout.
func (p *Processor) execute(ctx context.Context, job *domain.Job) {
	log := p.logger.With().Str("job_id", job.ID).Str("batch_id", job.BatchID).Logger()
	ctx, cancelJob := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.RenderTimeout+settleTimeout)
	defer cancelJob()

	start := time.Now()
	rctx, cancel := context.WithTimeout(ctx, p.cfg.RenderTimeout)
	var (
		result *render.Result
		err    error
	)
	if err = p.limiter.Wait(rctx); err == nil {
		result, err = p.renderer.Render(rctx, render.Request{
			JobID:     job.ID,
			Kind:      job.Kind,
			InputRef:  job.InputRef,
			TargetRef: job.TargetRef,
		})
	}
	timedOut := rctx.Err() != nil
	cancel()
	metrics.RenderDuration.WithLabelValues(string(job.Kind)).Observe(time.Since(start).Seconds())

	if err != nil {
		failure := render.Classify(err)
		if timedOut {
			failure = domain.Transient(domain.FailureUpstreamTimeout, fmt.Sprintf("render exceeded %s", p.cfg.RenderTimeout))
		}
		p.fail(ctx, job, failure)
		return
	}
	if len(result.Data) == 0 {
		p.fail(ctx, job, domain.Transient(domain.FailureUpstreamUnavailable, "render returned no image"))
		return
	}

	ref, err := p.objects.Write(ctx, storage.OutputKey(job.BatchID, job.ID, result.MIME), result.Data)
	if err != nil {
		p.fail(ctx, job, domain.Transient(domain.FailureStorage, err.Error()))
		return
	}
	if err := p.transitions.RecordOutput(ctx, job.ID, p.cfg.WorkerID, ref); err != nil {
		log.Error().Err(err).Msg("record output failed")
		return
	}

	done, err := p.transitions.Complete(ctx, job.ID, p.cfg.WorkerID)
	if err != nil {
		log.Error().Err(err).Msg("complete job failed")
		return
	}
	outcome := string(done.Status)
	if done.Status == domain.JobStatusFailed {
		outcome = string(done.FailureCode)
	}
	metrics.JobOutcomes.WithLabelValues(string(job.Kind), outcome).Inc()
	log.Info().Str("status", string(done.Status)).Str("output_ref", done.OutputRef).Msg("job finished")
}

func (p *Processor) fail(ctx context.Context, job *domain.Job, failure domain.Failure) {
	failed, err := p.transitions.Fail(ctx, job.ID, p.cfg.WorkerID, failure)
	if err != nil {
		p.logger.Error().Err(err).Str("job_id", job.ID).Str("failure_code", string(failure.Code)).Msg("record failure failed")
		return
	}
	outcome := "retry"
	if failed.Status.Terminal() {
		outcome = string(failure.Code)
	}
	metrics.JobOutcomes.WithLabelValues(string(job.Kind), outcome).Inc()
}

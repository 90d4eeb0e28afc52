package refresh

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/engine/cache"
	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/engine/merge"
	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/engine/ratelimit"
	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/engine/sources"
	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/logging"
	"github.com/Rolandozapa/Cryptorebound-ranker-v1/pkg/metrics"
)

const (
	// DefaultJobTimeout bounds a job's total wall-clock time.
	DefaultJobTimeout = 60 * time.Second
	// DefaultAdmissionInterval is the retry cadence while every source is
	// rate-limited.
	DefaultAdmissionInterval = 2 * time.Second
	// DefaultRetention is how long terminal jobs stay queryable.
	DefaultRetention = 10 * time.Minute
	// commitTimeout bounds the cache write after a merge completes.
	commitTimeout = 10 * time.Second
)

// Config tunes the coordinator.
type Config struct {
	JobTimeout        time.Duration
	AdmissionInterval time.Duration
	Retention         time.Duration
	FetchLimit        int
}

func (c Config) withDefaults() Config {
	if c.JobTimeout <= 0 {
		c.JobTimeout = DefaultJobTimeout
	}
	if c.AdmissionInterval <= 0 {
		c.AdmissionInterval = DefaultAdmissionInterval
	}
	if c.Retention <= 0 {
		c.Retention = DefaultRetention
	}
	return c
}

type archivedJob struct {
	job       *Job
	expiresAt time.Time
}

// Coordinator runs background aggregation jobs. The central invariant: at
// most one non-terminal job exists per cache key; concurrent triggers for
// the same key join the existing job instead of starting a second one.
type Coordinator struct {
	mu          sync.Mutex
	active      map[cache.Key]*Job
	archive     map[string]*archivedJob
	generations map[cache.Key]uint64

	store      *cache.Store
	governor   *ratelimit.Governor
	merger     *merge.Merger
	sources    []sources.Source
	cfg        Config
	logger     *logging.Logger
	onFinished func(key cache.Key, status Status)

	baseCtx context.Context
	stop    context.CancelFunc
	stopped bool
}

// NewCoordinator creates a coordinator over the given sources.
func NewCoordinator(store *cache.Store, governor *ratelimit.Governor, merger *merge.Merger,
	srcs []sources.Source, cfg Config, logger *logging.Logger) *Coordinator {
	baseCtx, stop := context.WithCancel(context.Background())
	return &Coordinator{
		active:      make(map[cache.Key]*Job),
		archive:     make(map[string]*archivedJob),
		generations: make(map[cache.Key]uint64),
		store:       store,
		governor:    governor,
		merger:      merger,
		sources:     srcs,
		cfg:         cfg.withDefaults(),
		logger:      logger,
		baseCtx:     baseCtx,
		stop:        stop,
	}
}

// OnFinished registers a callback invoked after every job reaches a
// terminal state, outside the coordinator's lock. Must be set before the
// first Trigger.
func (c *Coordinator) OnFinished(fn func(key cache.Key, status Status)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onFinished = fn
}

// Trigger starts a refresh job for the key, or joins the one already in
// flight. The second return reports whether a new job was created.
func (c *Coordinator) Trigger(key cache.Key) (*Job, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stopped {
		return nil, false
	}
	if job, ok := c.active[key]; ok {
		return job, false
	}

	c.generations[key]++
	ctx, cancel := context.WithTimeout(c.baseCtx, c.cfg.JobTimeout)
	job := &Job{
		ID:         uuid.NewString(),
		Key:        key,
		Generation: c.generations[key],
		status:     StatusPending,
		createdAt:  time.Now().UTC(),
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	c.active[key] = job
	metrics.RefreshJobsInflight.Inc()

	c.logger.Debug("Refresh job created",
		"job_id", job.ID,
		"key", key.String(),
		"generation", job.Generation)
	go c.run(ctx, job)
	return job, true
}

// Job returns a snapshot of the job with the given ID, searching both
// in-flight and retained terminal jobs.
func (c *Coordinator) Job(id string) (View, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, job := range c.active {
		if job.ID == id {
			return job.view(), nil
		}
	}
	if archived, ok := c.archive[id]; ok {
		return archived.job.view(), nil
	}
	return View{}, ErrJobNotFound
}

// Inflight returns the number of non-terminal jobs. The freshness policy
// uses it as the load signal.
func (c *Coordinator) Inflight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active)
}

// Wait blocks until the job reaches a terminal state or the context ends,
// and returns the job's status at that point.
func (c *Coordinator) Wait(ctx context.Context, job *Job) Status {
	select {
	case <-job.Done():
	case <-ctx.Done():
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return job.status
}

// Status returns the job's current status.
func (c *Coordinator) Status(job *Job) Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return job.status
}

// Invalidate clears the key from the cache and cancels any in-flight job
// for it, so a subsequent request can start a fresh one.
func (c *Coordinator) Invalidate(ctx context.Context, key cache.Key) error {
	c.mu.Lock()
	if job, ok := c.active[key]; ok {
		job.cancelled = true
		job.cancel()
	}
	c.mu.Unlock()
	return c.store.Invalidate(ctx, key)
}

// Stop cancels all in-flight jobs and rejects new triggers.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	c.stopped = true
	for _, job := range c.active {
		job.cancelled = true
	}
	c.mu.Unlock()
	c.stop()
}

// run drives one job through the state machine.
func (c *Coordinator) run(ctx context.Context, job *Job) {
	defer job.cancel()

	granted, ok := c.awaitAdmission(ctx, job)
	if !ok {
		c.finish(job, c.abortStatus(ctx, job), "no source admitted before timeout")
		return
	}

	c.setRunning(job)
	responses := c.fanOut(ctx, granted)

	if ctx.Err() != nil {
		c.finish(job, c.abortStatus(ctx, job), "aborted while fetching")
		return
	}

	usable := 0
	for _, resp := range responses {
		if resp.Status.Usable() && len(resp.Quotes) > 0 {
			usable++
		}
	}
	if usable == 0 {
		c.finish(job, StatusFailed, ErrAllSourcesFailed.Error())
		return
	}

	records := c.merger.MergeAll(responses)
	if len(records) == 0 {
		c.finish(job, StatusFailed, ErrAllSourcesFailed.Error())
		return
	}

	// Coverage is partial when any configured source contributed nothing;
	// the store then field-merges into the previous snapshot instead of
	// replacing it.
	partial := usable < len(c.sources)
	entry := &cache.Entry{
		Key:        job.Key,
		Records:    records,
		ComputedAt: time.Now().UTC(),
		Generation: job.Generation,
	}

	// The job context may be close to its deadline; commits get their own.
	commitCtx, cancel := context.WithTimeout(context.Background(), commitTimeout)
	defer cancel()
	if err := c.store.Put(commitCtx, entry, partial); err != nil {
		if errors.Is(err, cache.ErrStaleWrite) {
			// A newer generation already committed; this writer is dropped.
			c.finish(job, StatusCancelled, "superseded by newer pass")
			return
		}
		c.finish(job, StatusFailed, err.Error())
		return
	}

	c.mu.Lock()
	job.coverage = float64(usable) / float64(len(c.sources))
	c.mu.Unlock()
	c.finish(job, StatusSucceeded, "")
}

// awaitAdmission asks the governor for permits until at least one source is
// admitted, retrying on a short interval while everything is rate-limited.
// Unhealthy sources still get queried: a recovered provider re-proves itself
// here, and failures only reduce coverage.
func (c *Coordinator) awaitAdmission(ctx context.Context, job *Job) ([]sources.Source, bool) {
	ticker := time.NewTicker(c.cfg.AdmissionInterval)
	defer ticker.Stop()

	for {
		granted := make([]sources.Source, 0, len(c.sources))
		for _, src := range c.sources {
			if ok, _ := c.governor.Acquire(src.Name()); ok {
				granted = append(granted, src)
			}
		}
		if len(granted) > 0 {
			return granted, true
		}

		c.logger.Warn("All sources rate-limited, job stays pending",
			"job_id", job.ID, "key", job.Key.String())
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, false
		}
	}
}

// fanOut queries the granted sources concurrently and collects their
// responses. Adapter failures come back as statused responses, never as
// panics or errors.
func (c *Coordinator) fanOut(ctx context.Context, granted []sources.Source) []sources.Response {
	var wg sync.WaitGroup
	results := make(chan sources.Response, len(granted))

	for _, src := range granted {
		wg.Add(1)
		go func(src sources.Source) {
			defer wg.Done()
			start := time.Now()
			resp := src.Fetch(ctx, sources.FetchRequest{Limit: c.cfg.FetchLimit})
			metrics.RecordSourceFetch(resp.Source, string(resp.Status), time.Since(start))
			metrics.RecordSourceHealth(resp.Source, src.IsHealthy())

			if resp.Status.Usable() {
				c.governor.RecordSuccess(resp.Source)
			} else {
				c.governor.RecordFailure(resp.Source)
				c.logger.Warn("Source fetch unusable",
					"source", resp.Source,
					"status", string(resp.Status),
					"reason", resp.Reason)
			}
			results <- resp
		}(src)
	}

	wg.Wait()
	close(results)

	responses := make([]sources.Response, 0, len(granted))
	for resp := range results {
		responses = append(responses, resp)
	}
	return responses
}

// abortStatus distinguishes external cancellation from timeout.
func (c *Coordinator) abortStatus(_ context.Context, job *Job) Status {
	c.mu.Lock()
	cancelled := job.cancelled
	c.mu.Unlock()
	if cancelled {
		return StatusCancelled
	}
	return StatusTimedOut
}

func (c *Coordinator) setRunning(job *Job) {
	c.mu.Lock()
	defer c.mu.Unlock()
	job.status = StatusRunning
	job.startedAt = time.Now().UTC()
}

// finish moves the job to a terminal state, releases the key's slot and
// retains the job for status polling until the retention window lapses.
func (c *Coordinator) finish(job *Job, status Status, reason string) {
	now := time.Now().UTC()

	c.mu.Lock()
	job.status = status
	job.reason = reason
	job.finishedAt = now
	if c.active[job.Key] == job {
		delete(c.active, job.Key)
	}
	c.archive[job.ID] = &archivedJob{job: job, expiresAt: now.Add(c.cfg.Retention)}
	c.pruneArchiveLocked(now)
	onFinished := c.onFinished
	c.mu.Unlock()

	close(job.done)
	metrics.RefreshJobsInflight.Dec()
	metrics.RecordRefreshJob(string(status), now.Sub(job.createdAt))
	if onFinished != nil {
		onFinished(job.Key, status)
	}

	c.logger.Info("Refresh job finished",
		"job_id", job.ID,
		"key", job.Key.String(),
		"status", string(status),
		"duration", now.Sub(job.createdAt).String(),
		"reason", reason)
}

func (c *Coordinator) pruneArchiveLocked(now time.Time) {
	for id, archived := range c.archive {
		if now.After(archived.expiresAt) {
			delete(c.archive, id)
		}
	}
}

// Package scheduler implements the Background Scheduler: named jobs with a
// period and bounded jitter, each running on its own ticker loop, never
// concurrently with itself, with failures isolated per job.
package scheduler

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ozkanpakdil/grepwise-sub005/internal/logging"
	"github.com/ozkanpakdil/grepwise-sub005/internal/metrics"
)

// JobFunc is one scheduled unit of work.
type JobFunc func(ctx context.Context) error

// Job describes a named, periodic background task. Jitter is a fraction of
// Period (0-0.1, enforced at registration) applied as +/- randomness to
// each tick so that many jobs with the same period don't all fire in lockstep.
type Job struct {
	Name   string
	Period time.Duration
	Jitter float64
	Fn     JobFunc
}

type scheduledJob struct {
	job     Job
	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Scheduler runs a registry of Jobs.
type Scheduler struct {
	mu   sync.Mutex
	jobs map[string]*scheduledJob

	log     *logging.Logger
	metrics *metrics.Metrics
}

func New(log *logging.Logger, m *metrics.Metrics) *Scheduler {
	return &Scheduler{jobs: make(map[string]*scheduledJob), log: log, metrics: m}
}

// Register adds a job. Jitter is clamped to [0, 0.1] per the documented
// bound. Registering after Start has no effect on already-running jobs
// until the scheduler is restarted.
func (s *Scheduler) Register(j Job) {
	if j.Jitter < 0 {
		j.Jitter = 0
	}
	if j.Jitter > 0.1 {
		j.Jitter = 0.1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.Name] = &scheduledJob{job: j}
}

// Start launches one ticker loop per registered job.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sj := range s.jobs {
		if sj.cancel != nil {
			continue // already running
		}
		runCtx, cancel := context.WithCancel(ctx)
		sj.cancel = cancel
		sj.wg.Add(1)
		go s.loop(runCtx, sj)
	}
}

// Stop cancels every job loop and waits for in-flight runs to finish or ctx
// to expire, whichever comes first.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	jobs := make([]*scheduledJob, 0, len(s.jobs))
	for _, sj := range s.jobs {
		if sj.cancel != nil {
			sj.cancel()
			sj.cancel = nil
		}
		jobs = append(jobs, sj)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		for _, sj := range jobs {
			sj.wg.Wait()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (s *Scheduler) loop(ctx context.Context, sj *scheduledJob) {
	defer sj.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(jitteredInterval(sj.job.Period, sj.job.Jitter)):
			s.run(ctx, sj)
		}
	}
}

// run executes the job if it isn't already running; a tick landing while
// the previous run is still in flight is skipped rather than queued, so a
// slow job never backs up concurrent executions of itself.
func (s *Scheduler) run(ctx context.Context, sj *scheduledJob) {
	if !sj.running.CompareAndSwap(false, true) {
		return
	}
	defer sj.running.Store(false)
	s.execute(ctx, sj)
}

// RunNow triggers an immediate out-of-band run of a registered job, subject
// to the same never-concurrently-with-itself guarantee. Returns false if
// the job is unknown or already running.
func (s *Scheduler) RunNow(ctx context.Context, name string) bool {
	s.mu.Lock()
	sj, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return false
	}
	if !sj.running.CompareAndSwap(false, true) {
		return false
	}
	defer sj.running.Store(false)
	s.execute(ctx, sj)
	return true
}

func (s *Scheduler) execute(ctx context.Context, sj *scheduledJob) {
	started := time.Now()
	err := sj.job.Fn(ctx)
	duration := time.Since(started)

	if s.metrics != nil {
		s.metrics.RecordJobRun(sj.job.Name, err)
	}
	if s.log != nil {
		s.log.LogJob(ctx, sj.job.Name, duration, err)
	}
}

func jitteredInterval(period time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return period
	}
	delta := float64(period) * jitter
	return period + time.Duration(rand.Float64()*delta*2-delta)
}

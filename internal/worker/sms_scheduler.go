// Package worker runs SMS jobs in the background on a cron schedule.
package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ignite/campaign-dashboard/internal/service/job"
	"github.com/robfig/cron/v3"
)

// DefaultRunTimeout bounds one scheduled pass over all SMS jobs.
const DefaultRunTimeout = 30 * time.Minute

// JobRunner processes every eligible SMS job.
type JobRunner interface {
	ProcessAll(ctx context.Context) ([]job.RunResult, error)
}

// SchedulerStats counts scheduled passes and their outcomes.
type SchedulerStats struct {
	Runs      int64     `json:"runs"`
	Jobs      int64     `json:"jobs"`
	Failed    int64     `json:"failed"`
	Published int64     `json:"published"`
	Errors    int64     `json:"errors"`
	LastRun   time.Time `json:"lastRun"`
}

// SMSJobScheduler runs ProcessAll on a cron schedule. A pass still running
// when the next tick fires causes that tick to be skipped.
type SMSJobScheduler struct {
	runner     JobRunner
	schedule   string
	runTimeout time.Duration
	cron       *cron.Cron

	runs      int64
	jobs      int64
	failed    int64
	published int64
	errors    int64
	lastRun   atomic.Int64

	ctx     context.Context
	cancel  context.CancelFunc
	running bool
	mu      sync.Mutex
}

// NewSMSJobScheduler creates a scheduler for runner. schedule accepts the
// standard five-field cron syntax and descriptors such as "@every 5m".
func NewSMSJobScheduler(runner JobRunner, schedule string) *SMSJobScheduler {
	cronLog := cron.PrintfLogger(log.New(os.Stdout, "[cron] ", log.LstdFlags))
	return &SMSJobScheduler{
		runner:     runner,
		schedule:   schedule,
		runTimeout: DefaultRunTimeout,
		cron: cron.New(cron.WithChain(
			cron.Recover(cronLog),
			cron.SkipIfStillRunning(cronLog),
		)),
	}
}

// SetRunTimeout overrides DefaultRunTimeout.
func (s *SMSJobScheduler) SetRunTimeout(d time.Duration) {
	if d > 0 {
		s.runTimeout = d
	}
}

// Start registers the schedule and starts the cron loop.
func (s *SMSJobScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	if _, err := s.cron.AddFunc(s.schedule, func() { s.RunOnce(s.ctx) }); err != nil {
		s.cancel()
		return fmt.Errorf("invalid job schedule %q: %w", s.schedule, err)
	}
	s.cron.Start()
	s.running = true
	log.Printf("[SMSJobScheduler] Started with schedule %q", s.schedule)
	return nil
}

// Stop cancels any pass in flight and waits for it to return.
func (s *SMSJobScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	log.Printf("[SMSJobScheduler] Stopping...")
	s.cancel()
	<-s.cron.Stop().Done()
	st := s.Stats()
	log.Printf("[SMSJobScheduler] Stopped. Runs: %d, Jobs: %d, Published: %d", st.Runs, st.Jobs, st.Published)
}

// RunOnce performs one pass over all SMS jobs.
func (s *SMSJobScheduler) RunOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.runTimeout)
	defer cancel()

	atomic.AddInt64(&s.runs, 1)
	s.lastRun.Store(time.Now().UnixNano())

	results, err := s.runner.ProcessAll(ctx)
	var published, failed int64
	for _, r := range results {
		published += int64(r.Published)
		if r.Err != "" {
			failed++
			log.Printf("[SMSJobScheduler] job %s failed: %s", r.JobID, r.Err)
		}
	}
	atomic.AddInt64(&s.jobs, int64(len(results)))
	atomic.AddInt64(&s.failed, failed)
	atomic.AddInt64(&s.published, published)

	if err != nil {
		atomic.AddInt64(&s.errors, 1)
		log.Printf("[SMSJobScheduler] pass aborted after %d jobs: %v", len(results), err)
		return
	}
	log.Printf("[SMSJobScheduler] pass finished: %d jobs, %d failed, %d events published", len(results), failed, published)
}

// Stats returns a snapshot of the counters.
func (s *SMSJobScheduler) Stats() SchedulerStats {
	st := SchedulerStats{
		Runs:      atomic.LoadInt64(&s.runs),
		Jobs:      atomic.LoadInt64(&s.jobs),
		Failed:    atomic.LoadInt64(&s.failed),
		Published: atomic.LoadInt64(&s.published),
		Errors:    atomic.LoadInt64(&s.errors),
	}
	if ns := s.lastRun.Load(); ns != 0 {
		st.LastRun = time.Unix(0, ns)
	}
	return st
}

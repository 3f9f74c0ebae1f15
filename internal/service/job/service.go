package job

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/campaign-dashboard/internal/domain"
	"github.com/ignite/campaign-dashboard/internal/duckdb"
	"github.com/ignite/campaign-dashboard/internal/metrics"
	"github.com/ignite/campaign-dashboard/internal/pkg/distlock"
	"github.com/ignite/campaign-dashboard/internal/publisher"
	"github.com/ignite/campaign-dashboard/internal/smsjob"
)

// Lister lists the objects under partition folders.
type Lister interface {
	ListFiles(ctx context.Context, seeds []string) ([]string, error)
}

// ListerFactory builds a Lister for a cube provider's credentials.
type ListerFactory func(ctx context.Context, creds domain.S3ProviderDetails) (Lister, error)

// Config controls where results are written and how they are published.
type Config struct {
	OutputBucket string
	OutputPrefix string
	// WriteOutput enables the partitioned Parquet COPY. Without it the
	// result only lives in the run's DuckDB session.
	WriteOutput bool
	WindowSize  int
	Statuses    []domain.JobStatus
}

// RunResult reports one job run.
type RunResult struct {
	JobID      string           `json:"jobId"`
	RunID      string           `json:"runId"`
	SQL        string           `json:"sql,omitempty"`
	Published  int              `json:"published"`
	Windows    int              `json:"windows"`
	Cursor     publisher.Cursor `json:"cursor"`
	Partitions []string         `json:"partitions,omitempty"`
	DurationMS int64            `json:"durationMs"`
	Err        string           `json:"error,omitempty"`
}

// JobSQL is a dry-run view of what a job run would execute.
type JobSQL struct {
	JobID          string          `json:"jobId"`
	ProcessSQL     string          `json:"processSql"`
	ResultSQL      string          `json:"resultSql"`
	WindowSQL      string          `json:"windowSql"`
	OutputPath     string          `json:"outputPath,omitempty"`
	PartitionPaths []string        `json:"partitionPaths"`
	Input          smsjob.JobInput `json:"input"`
}

// Option configures a Service.
type Option func(*Service)

// WithLocks serializes runs of the same job through lock.
func WithLocks(f distlock.Factory) Option {
	return func(s *Service) { s.locks = f }
}

// WithListerFactory enables listing the written partitions after a run.
func WithListerFactory(f ListerFactory) Option {
	return func(s *Service) { s.listers = f }
}

// Service runs SMS jobs.
type Service struct {
	repo    Repository
	engine  *duckdb.Engine
	sink    publisher.Sink
	cfg     Config
	locks   distlock.Factory
	listers ListerFactory
	now     func() time.Time
}

// NewService creates a job service.
func NewService(repo Repository, engine *duckdb.Engine, sink publisher.Sink, cfg Config, opts ...Option) *Service {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = publisher.DefaultWindowSize
	}
	s := &Service{repo: repo, engine: engine, sink: sink, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// plan is everything resolved from a job before anything runs.
type plan struct {
	job        *domain.Job
	input      smsjob.JobInput
	cubeSQL    string
	creds      domain.S3ProviderDetails
	outputPath string
	script     string
}

func (s *Service) plan(j *domain.Job) (*plan, error) {
	details, err := j.ParseDetails()
	if err != nil {
		return nil, fmt.Errorf("parse job details: %w", err)
	}
	if !details.IsSMS() {
		return nil, ErrNotSMSJob
	}
	smsDetails, err := details.Integration.ParseSMSIntegrationDetails()
	if err != nil {
		return nil, fmt.Errorf("parse sms integration: %w", err)
	}
	cube := smsDetails.CubeIntegration
	if cube == nil {
		return nil, ErrMissingCubeIntegration
	}
	cubeDetails, err := cube.ParseCubeIntegrationDetails()
	if err != nil {
		return nil, fmt.Errorf("parse cube integration: %w", err)
	}
	creds, err := cube.ParseS3ProviderDetails()
	if err != nil {
		return nil, fmt.Errorf("parse cube provider: %w", err)
	}

	input, err := smsjob.NewJobInput(details.Placement)
	if err != nil {
		return nil, err
	}

	p := &plan{job: j, input: input, cubeSQL: cubeDetails.SQL, creds: creds}
	p.outputPath = smsjob.OutputPath(s.cfg.OutputBucket, s.cfg.OutputPrefix, j.ID)
	copyTarget := ""
	if s.cfg.WriteOutput {
		copyTarget = p.outputPath
	}
	p.script, err = smsjob.BuildProcessSQL(cubeDetails.SQL, input, copyTarget)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GenerateJobSQL returns the scripts a run of job id would execute, without
// touching DuckDB or S3.
func (s *Service) GenerateJobSQL(ctx context.Context, id string) (*JobSQL, error) {
	j, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	p, err := s.plan(j)
	if err != nil {
		return nil, err
	}

	seeds := smsjob.PartitionPaths(p.outputPath, p.input)
	globs := make([]string, len(seeds))
	for i, seed := range seeds {
		globs[i] = seed + "/*.parquet"
	}
	out := &JobSQL{
		JobID:          j.ID,
		ProcessSQL:     duckdb.WithPrelude(p.creds, p.script),
		ResultSQL:      smsjob.BuildResultSQL(globs),
		WindowSQL:      smsjob.WindowSQL(nil, s.cfg.WindowSize),
		PartitionPaths: seeds,
		Input:          p.input,
	}
	if s.cfg.WriteOutput {
		out.OutputPath = p.outputPath
	}
	return out, nil
}

// ProcessJob runs a single job by ID.
func (s *Service) ProcessJob(ctx context.Context, id string) (*RunResult, error) {
	j, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.process(ctx, j)
}

// ProcessAll runs every SMS job matching the configured statuses, one after
// another. A failing job is recorded in its result and does not stop the
// others; non-SMS jobs are skipped, and jobs whose details do not decode are
// logged and skipped.
func (s *Service) ProcessAll(ctx context.Context) ([]RunResult, error) {
	jobs, err := s.repo.List(ctx, ListFilter{Statuses: s.cfg.Statuses})
	if err != nil {
		return nil, err
	}

	var results []RunResult
	for i := range jobs {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		j := &jobs[i]
		details, err := j.ParseDetails()
		if err != nil {
			log.Printf("[job] skipping job %s: decode details: %v", j.ID, err)
			continue
		}
		if !details.IsSMS() {
			continue
		}

		res, err := s.process(ctx, j)
		if res == nil {
			res = &RunResult{JobID: j.ID}
		}
		if err != nil {
			res.Err = err.Error()
		}
		results = append(results, *res)
	}
	return results, nil
}

func (s *Service) process(ctx context.Context, j *domain.Job) (*RunResult, error) {
	p, err := s.plan(j)
	if err != nil {
		metrics.RecordJobRun("invalid")
		return nil, err
	}

	res := &RunResult{JobID: j.ID, RunID: uuid.NewString(), SQL: p.script}
	run := func(ctx context.Context) error {
		return s.run(ctx, p, res)
	}

	start := s.now()
	if s.locks != nil {
		err = distlock.WithLock(ctx, s.locks(distlock.JobKey(j.ID)), run)
		if errors.Is(err, distlock.ErrNotAcquired) {
			metrics.RecordJobRun("locked")
			return res, ErrLocked
		}
	} else {
		err = run(ctx)
	}
	res.DurationMS = s.now().Sub(start).Milliseconds()

	if err != nil {
		metrics.RecordJobRun("failed")
		log.Printf("[job] run %s of job %s failed after %d events: %v", res.RunID, j.ID, res.Published, err)
		return res, err
	}
	metrics.RecordJobRun("succeeded")
	log.Printf("[job] run %s of job %s published %d events in %d windows", res.RunID, j.ID, res.Published, res.Windows)
	return res, nil
}

func (s *Service) run(ctx context.Context, p *plan, res *RunResult) error {
	session, err := s.engine.NewSession(ctx, p.creds)
	if err != nil {
		return err
	}
	defer session.Close()

	if err := session.Exec(ctx, p.script); err != nil {
		return err
	}

	loop := &publisher.Loop{
		Source:     publisher.NewResultSource(session.DB()),
		Sink:       s.sink,
		WindowSize: s.cfg.WindowSize,
	}
	cur, err := loop.Run(ctx)
	res.Cursor = cur
	res.Published = cur.TotalPublished
	res.Windows = cur.Windows
	if err != nil {
		return err
	}

	if s.cfg.WriteOutput && s.listers != nil {
		lister, err := s.listers(ctx, p.creds)
		if err != nil {
			log.Printf("[job] partition listing unavailable for job %s: %v", p.job.ID, err)
			return nil
		}
		files, err := lister.ListFiles(ctx, smsjob.PartitionPaths(p.outputPath, p.input))
		if err != nil {
			log.Printf("[job] list partitions for job %s: %v", p.job.ID, err)
			return nil
		}
		res.Partitions = files
	}
	return nil
}

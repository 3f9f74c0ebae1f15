package job_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/campaign-dashboard/internal/domain"
	"github.com/ignite/campaign-dashboard/internal/duckdb"
	"github.com/ignite/campaign-dashboard/internal/pkg/distlock"
	"github.com/ignite/campaign-dashboard/internal/publisher"
	"github.com/ignite/campaign-dashboard/internal/service/job"
)

const cubeSQL = `SELECT * FROM (VALUES
    ('01000000001', 'Seoul', ['news']),
    ('01000000002', 'Busan', ['drama']),
    ('01000000003', 'Seoul', ['drama', 'news']),
    ('01000000004', 'Daegu', ['sports'])
) AS t(phone, city, genres)`

// memRepo is an in-memory job repository for unit testing.
type memRepo struct {
	mu   sync.Mutex
	jobs []domain.Job
}

func (m *memRepo) Get(_ context.Context, id string) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.ID == id {
			cp := j
			return &cp, nil
		}
	}
	return nil, job.ErrNotFound
}

func (m *memRepo) List(_ context.Context, f job.ListFilter) ([]domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Job
	for _, j := range m.jobs {
		if len(f.Statuses) > 0 && !containsStatus(f.Statuses, j.Status) {
			continue
		}
		out = append(out, j)
	}
	return out, nil
}

func containsStatus(list []domain.JobStatus, s domain.JobStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

type memSink struct {
	mu     sync.Mutex
	events []publisher.Event
}

func (m *memSink) Publish(_ context.Context, events []publisher.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, events...)
	return nil
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func strPtr(s string) *string { return &s }

func smsJob(t *testing.T, id string, withCube bool) domain.Job {
	t.Helper()
	contentType := domain.ContentType{
		ID:   "ct-1",
		Type: "SMS",
		Details: mustJSON(t, domain.SMSContentTypeDetail{
			From:     "15880000",
			Template: "Hi {{city}}, use {{coupon}}",
			ToColumn: "phone",
			Columns: []domain.ColumnMetadata{
				{ColumnName: "phone", ColumnType: "VARCHAR"},
				{ColumnName: "city", ColumnType: "VARCHAR"},
				{ColumnName: "genres", ColumnType: "VARCHAR[]"},
			},
		}),
	}
	placement := domain.Placement{
		ID:          "pl-1",
		ContentType: &contentType,
		AdSets: []domain.AdSet{
			{
				ID:      "drama",
				Segment: &domain.Segment{ID: "s1", Where: strPtr(`{"in":[{"var":"genres"},["drama"]]}`)},
				Content: &domain.Content{ID: "c1", Values: domain.JSONObject{"coupon": "DRAMA10"}},
			},
			{
				ID:      "everyone",
				Content: &domain.Content{ID: "c2", Values: domain.JSONObject{"coupon": "HELLO5"}},
			},
		},
	}

	smsDetails := map[string]any{}
	if withCube {
		smsDetails["cubeIntegration"] = domain.Integration{
			ID:      "cube-1",
			Provide: "CUBE",
			Details: mustJSON(t, domain.CubeIntegrationDetails{SQL: cubeSQL}),
		}
	}
	details := domain.JobDetails{
		Placement: &placement,
		Integration: &domain.Integration{
			ID:      "sms-1",
			Provide: domain.ProviderSMS,
			Details: mustJSON(t, smsDetails),
		},
	}
	return domain.Job{
		ID:          id,
		Name:        "job " + id,
		Status:      domain.JobPublished,
		PlacementID: "pl-1",
		Details:     mustJSON(t, details),
	}
}

func emailJob(t *testing.T, id string) domain.Job {
	return domain.Job{
		ID:      id,
		Status:  domain.JobPublished,
		Details: mustJSON(t, domain.JobDetails{Integration: &domain.Integration{ID: "e", Provide: "EMAIL"}}),
	}
}

func newService(repo job.Repository, sink publisher.Sink, opts ...job.Option) *job.Service {
	return job.NewService(repo, duckdb.NewEngine(duckdb.DefaultOptions()), sink, job.Config{
		OutputBucket: "bucket",
		OutputPrefix: "jobs",
		WindowSize:   2,
		Statuses:     []domain.JobStatus{domain.JobPublished},
	}, opts...)
}

func TestProcessJob_PublishesOneEventPerRecipient(t *testing.T) {
	repo := &memRepo{jobs: []domain.Job{smsJob(t, "job-1", true)}}
	sink := &memSink{}
	svc := newService(repo, sink)

	res, err := svc.ProcessJob(context.Background(), "job-1")
	require.NoError(t, err)

	assert.Equal(t, "job-1", res.JobID)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 4, res.Published)
	assert.Equal(t, 3, res.Windows, "two full windows of 2 then an empty one")
	require.NotNil(t, res.Cursor.ToColumnValueMax)
	assert.Equal(t, "01000000004", *res.Cursor.ToColumnValueMax)

	require.Len(t, sink.events, 4)
	byRecipient := map[string]publisher.Event{}
	for _, ev := range sink.events {
		byRecipient[ev.Who] = ev
		assert.Equal(t, publisher.EventWhat, ev.What)
		assert.Equal(t, "pl-1", ev.Props.PlacementID)
		assert.Equal(t, "15880000", ev.Props.From)
	}
	assert.Equal(t, "drama", byRecipient["01000000002"].Which)
	assert.Equal(t, "Hi Busan, use DRAMA10", byRecipient["01000000002"].Props.Text)
	assert.Equal(t, "drama", byRecipient["01000000003"].Which)
	assert.Equal(t, "everyone", byRecipient["01000000001"].Which)
	assert.Equal(t, "Hi Daegu, use HELLO5", byRecipient["01000000004"].Props.Text)
}

func TestProcessJob_Errors(t *testing.T) {
	repo := &memRepo{jobs: []domain.Job{emailJob(t, "email"), smsJob(t, "nocube", false)}}
	svc := newService(repo, &memSink{})
	ctx := context.Background()

	_, err := svc.ProcessJob(ctx, "missing")
	assert.ErrorIs(t, err, job.ErrNotFound)

	_, err = svc.ProcessJob(ctx, "email")
	assert.ErrorIs(t, err, job.ErrNotSMSJob)

	_, err = svc.ProcessJob(ctx, "nocube")
	assert.ErrorIs(t, err, job.ErrMissingCubeIntegration)
}

func TestProcessJob_HonoursLock(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	repo := &memRepo{jobs: []domain.Job{smsJob(t, "job-1", true)}}
	sink := &memSink{}
	svc := newService(repo, sink, job.WithLocks(distlock.NewFactory(client, nil, time.Minute)))

	held := distlock.NewRedisLock(client, distlock.JobKey("job-1"), time.Minute)
	ok, err := held.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	_, err = svc.ProcessJob(context.Background(), "job-1")
	assert.ErrorIs(t, err, job.ErrLocked)
	assert.Empty(t, sink.events)

	require.NoError(t, held.Release(context.Background()))
	res, err := svc.ProcessJob(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, 4, res.Published)
	assert.False(t, mr.Exists("lock:sms-job:job-1"), "lock released after the run")
}

func TestProcessAll_SkipsNonSMSAndContinuesPastFailures(t *testing.T) {
	draft := smsJob(t, "draft", true)
	draft.Status = domain.JobDraft
	repo := &memRepo{jobs: []domain.Job{
		smsJob(t, "nocube", false),
		emailJob(t, "email"),
		draft,
		smsJob(t, "good", true),
	}}
	sink := &memSink{}
	svc := newService(repo, sink)

	results, err := svc.ProcessAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "nocube", results[0].JobID)
	assert.Contains(t, results[0].Err, "cube integration")
	assert.Equal(t, "good", results[1].JobID)
	assert.Empty(t, results[1].Err)
	assert.Equal(t, 4, results[1].Published)
	assert.Len(t, sink.events, 4)
}

func TestProcessAll_LogsJobsWithCorruptDetails(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	repo := &memRepo{jobs: []domain.Job{
		{ID: "corrupt", Status: domain.JobPublished, Details: json.RawMessage(`{"integration":`)},
		smsJob(t, "good", true),
	}}
	svc := newService(repo, &memSink{})

	results, err := svc.ProcessAll(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "good", results[0].JobID)
	assert.Contains(t, buf.String(), "[job] skipping job corrupt: decode details")
}

func TestGenerateJobSQL(t *testing.T) {
	repo := &memRepo{jobs: []domain.Job{smsJob(t, "job-1", true)}}
	svc := job.NewService(repo, duckdb.NewEngine(duckdb.DefaultOptions()), &memSink{}, job.Config{
		OutputBucket: "bucket",
		OutputPrefix: "jobs",
		WriteOutput:  true,
	})

	out, err := svc.GenerateJobSQL(context.Background(), "job-1")
	require.NoError(t, err)

	assert.Equal(t, "s3://bucket/jobs/job-1", out.OutputPath)
	assert.Equal(t, []string{
		"s3://bucket/jobs/job-1/placement_id=pl-1/ad_set_id=drama",
		"s3://bucket/jobs/job-1/placement_id=pl-1/ad_set_id=everyone",
	}, out.PartitionPaths)
	assert.Contains(t, out.ProcessSQL, "CREATE TABLE result")
	assert.Contains(t, out.ProcessSQL, "COPY")
	assert.Contains(t, out.ResultSQL, "ad_set_id=drama/*.parquet")
	assert.Contains(t, out.WindowSQL, "LIMIT 100")
	require.Len(t, out.Input.AdSets, 2)
	assert.Equal(t, []string{"city", "coupon"}, out.Input.AdSets[0].Variables)
}

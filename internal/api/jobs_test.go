package api

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/khanhnv2901/seca-posture/internal/fleet"
)

func newJobManager(t *testing.T) *JobManager {
	t.Helper()
	jm := NewJobManager()
	t.Cleanup(jm.Close)
	return jm
}

func waitForJob(t *testing.T, jm *JobManager, id string, status string) *Job {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		job := jm.GetJob(id)
		if job != nil && job.Status == status {
			return job
		}
		if time.Now().After(deadline) {
			t.Fatalf("job %s never reached %q: %+v", id, status, job)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNewJobManager(t *testing.T) {
	jm := newJobManager(t)
	if jm.maxJobs != 1000 {
		t.Errorf("expected maxJobs 1000, got %d", jm.maxJobs)
	}
	if jm.jobs == nil || jm.subscribers == nil {
		t.Error("expected maps to be initialized")
	}
}

func TestJobManager_CreateJob(t *testing.T) {
	jm := newJobManager(t)

	job := jm.CreateJob(3)
	if job.Status != JobStatusPending {
		t.Errorf("expected status pending, got %s", job.Status)
	}
	if job.Hosts != 3 {
		t.Errorf("expected 3 hosts, got %d", job.Hosts)
	}
	if !strings.HasPrefix(job.ID, "job_") {
		t.Errorf("unexpected job ID %q", job.ID)
	}

	job.Status = "tampered"
	if got := jm.GetJob(job.ID); got == nil || got.Status != JobStatusPending {
		t.Fatalf("returned job must be a copy, stored job: %+v", got)
	}
}

func TestJobManager_UpdateJob(t *testing.T) {
	jm := newJobManager(t)
	job := jm.CreateJob(1)

	updated := jm.UpdateJob(job.ID, func(j *Job) {
		j.Status = JobStatusRunning
		j.Completed = 1
	})
	if updated == nil || updated.Status != JobStatusRunning || updated.Completed != 1 {
		t.Fatalf("unexpected update result: %+v", updated)
	}
	if jm.UpdateJob("job_missing", func(*Job) {}) != nil {
		t.Error("expected nil for unknown job")
	}
}

func TestJobManager_ListJobs(t *testing.T) {
	jm := newJobManager(t)
	first := jm.CreateJob(1)
	time.Sleep(2 * time.Millisecond)
	second := jm.CreateJob(2)
	jm.UpdateJob(second.ID, func(j *Job) {
		j.Reports = []fleet.HostReport{{Host: "a", Status: fleet.StatusOK}}
	})

	jobs := jm.ListJobs(0)
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0].ID != second.ID || jobs[1].ID != first.ID {
		t.Fatalf("expected newest first, got %s then %s", jobs[0].ID, jobs[1].ID)
	}
	if jobs[0].Reports != nil {
		t.Error("listing should omit per-host reports")
	}
	if got := jm.GetJob(second.ID); len(got.Reports) != 1 {
		t.Error("stored job lost its reports")
	}

	if limited := jm.ListJobs(1); len(limited) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(limited))
	}
}

func TestJobManager_Subscribe(t *testing.T) {
	jm := newJobManager(t)
	ch, unsubscribe := jm.Subscribe()

	job := jm.CreateJob(1)
	select {
	case got := <-ch:
		if got.ID != job.ID {
			t.Fatalf("expected update for %s, got %s", job.ID, got.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("expected job update")
	}

	unsubscribe()
	unsubscribe()
	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed after unsubscribe")
	}
}

func TestJobManager_BroadcastDropsSlowSubscribers(t *testing.T) {
	jm := newJobManager(t)
	_, unsubscribe := jm.Subscribe()
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			jm.CreateJob(1)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on a full subscriber")
	}
}

func TestJobManager_StartAudit(t *testing.T) {
	jm := newJobManager(t)
	collector := fleet.StaticCollector{
		"db-1":  {Listening: "0.0.0.0:22\n0.0.0.0:3306\n", FirewallActive: true, Fail2banActive: true},
		"web-1": {Listening: "0.0.0.0:443\n", FirewallActive: true, Fail2banActive: true},
	}

	job := jm.StartAudit(&fleet.Runner{Concurrency: 2}, collector, collector.Hosts())
	done := waitForJob(t, jm, job.ID, JobStatusDone)

	if done.Completed != 2 || len(done.Reports) != 2 {
		t.Fatalf("expected 2 completed hosts, got %+v", done)
	}
	if done.StartedAt == nil || done.FinishedAt == nil {
		t.Fatal("expected start and finish timestamps")
	}
	if done.Summary == nil || done.Summary.LowestHost != "db-1" || done.Summary.LowestScore != 85 {
		t.Fatalf("unexpected summary: %+v", done.Summary)
	}
}

type blockingCollector struct{}

func (blockingCollector) Collect(ctx context.Context, host string) (fleet.RawFacts, error) {
	<-ctx.Done()
	return fleet.RawFacts{}, ctx.Err()
}

func TestJobManager_CloseCancelsRunningAudits(t *testing.T) {
	jm := NewJobManager()
	job := jm.StartAudit(&fleet.Runner{Concurrency: 1}, blockingCollector{}, []string{"stuck-1"})
	waitForJob(t, jm, job.ID, JobStatusRunning)

	jm.Close()

	got := jm.GetJob(job.ID)
	if got.Status != JobStatusError || got.Error == "" {
		t.Fatalf("expected cancelled job to be marked as error, got %+v", got)
	}
}

func TestGenerateID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := generateID("job")
		if !strings.HasPrefix(id, "job_") || len(id) != len("job_")+32 {
			t.Fatalf("unexpected ID format: %s", id)
		}
		if seen[id] {
			t.Fatalf("duplicate ID: %s", id)
		}
		seen[id] = true
	}
}

func TestJobManager_Prune(t *testing.T) {
	jm := newJobManager(t)
	jm.SetMaxJobs(2)
	jm.SetMaxJobs(0)
	if jm.maxJobs != 2 {
		t.Fatalf("non-positive max should be ignored, got %d", jm.maxJobs)
	}

	var ids []string
	for i := 0; i < 4; i++ {
		job := jm.CreateJob(1)
		ids = append(ids, job.ID)
		finished := time.Now().Add(time.Duration(i) * time.Second)
		jm.UpdateJob(job.ID, func(j *Job) {
			j.Status = JobStatusDone
			j.FinishedAt = &finished
		})
	}
	running := jm.CreateJob(1)

	jm.prune()

	if len(jm.ListJobs(0)) != 2 {
		t.Fatalf("expected 2 jobs after prune, got %d", len(jm.ListJobs(0)))
	}
	if jm.GetJob(ids[0]) != nil || jm.GetJob(ids[2]) != nil {
		t.Error("expected oldest finished jobs to be pruned")
	}
	if jm.GetJob(running.ID) == nil || jm.GetJob(ids[3]) == nil {
		t.Error("expected running job and newest finished job to remain")
	}
}

func TestJobManager_ConcurrentAccess(t *testing.T) {
	jm := newJobManager(t)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job := jm.CreateJob(1)
			jm.UpdateJob(job.ID, func(j *Job) { j.Completed++ })
			_ = jm.GetJob(job.ID)
			_ = jm.ListJobs(5)
		}()
	}
	wg.Wait()

	if got := len(jm.ListJobs(0)); got != 20 {
		t.Fatalf("expected 20 jobs, got %d", got)
	}
}

package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/khanhnv2901/seca-posture/internal/fleet"
)

const (
	JobStatusPending = "pending"
	JobStatusRunning = "running"
	JobStatusDone    = "done"
	JobStatusError   = "error"
)

// Job tracks an asynchronous fleet audit.
type Job struct {
	ID         string             `json:"id"`
	Status     string             `json:"status"`
	Hosts      int                `json:"hosts"`
	Completed  int                `json:"completed"`
	CreatedAt  time.Time          `json:"created_at"`
	StartedAt  *time.Time         `json:"started_at,omitempty"`
	FinishedAt *time.Time         `json:"finished_at,omitempty"`
	Summary    *fleet.Summary     `json:"summary,omitempty"`
	Reports    []fleet.HostReport `json:"reports,omitempty"`
	Error      string             `json:"error,omitempty"`
}

type JobManager struct {
	mu          sync.RWMutex
	jobs        map[string]*Job
	subscribers map[chan Job]struct{}
	maxJobs     int // Maximum number of jobs to keep in memory
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

func NewJobManager() *JobManager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &JobManager{
		jobs:        make(map[string]*Job),
		subscribers: make(map[chan Job]struct{}),
		maxJobs:     1000, // Default: keep last 1000 jobs
		ctx:         ctx,
		cancel:      cancel,
	}
	go m.cleanupLoop()
	return m
}

// Close cancels running audits and waits for them to finish.
func (m *JobManager) Close() {
	m.cancel()
	m.wg.Wait()
}

func (m *JobManager) CreateJob(hosts int) *Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	job := &Job{
		ID:        generateID("job"),
		Status:    JobStatusPending,
		Hosts:     hosts,
		CreatedAt: time.Now().UTC(),
	}
	m.jobs[job.ID] = job
	m.broadcast(*job)
	copy := *job
	return &copy
}

// StartAudit registers a job and runs the fleet audit in the background.
func (m *JobManager) StartAudit(runner *fleet.Runner, collector fleet.Collector, hosts []string) *Job {
	job := m.CreateJob(len(hosts))

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		m.UpdateJob(job.ID, func(j *Job) {
			now := time.Now().UTC()
			j.Status = JobStatusRunning
			j.StartedAt = &now
		})

		reports := runner.RunAudits(m.ctx, hosts, collector, func(fleet.HostReport) {
			m.UpdateJob(job.ID, func(j *Job) { j.Completed++ })
		})
		summary := fleet.Summarize(reports)

		m.UpdateJob(job.ID, func(j *Job) {
			now := time.Now().UTC()
			j.FinishedAt = &now
			j.Reports = reports
			j.Summary = &summary
			j.Status = JobStatusDone
			if err := m.ctx.Err(); err != nil {
				j.Status = JobStatusError
				j.Error = err.Error()
			}
		})
	}()

	return job
}

func (m *JobManager) UpdateJob(id string, update func(*Job)) *Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil
	}
	update(job)
	m.broadcast(*job)
	copy := *job
	return &copy
}

func (m *JobManager) GetJob(id string) *Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if job, ok := m.jobs[id]; ok {
		copy := *job
		return &copy
	}
	return nil
}

// ListJobs returns up to limit jobs, newest first, without per-host reports.
func (m *JobManager) ListJobs(limit int) []Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	jobs := make([]Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		j := *job
		j.Reports = nil
		jobs = append(jobs, j)
	}

	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID > jobs[j].ID
		}
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})

	if limit > 0 && limit < len(jobs) {
		jobs = jobs[:limit]
	}
	return jobs
}

func (m *JobManager) Subscribe() (chan Job, func()) {
	ch := make(chan Job, 10)
	m.mu.Lock()
	m.subscribers[ch] = struct{}{}
	m.mu.Unlock()
	return ch, func() {
		m.mu.Lock()
		if _, ok := m.subscribers[ch]; ok {
			delete(m.subscribers, ch)
			close(ch)
		}
		m.mu.Unlock()
	}
}

// broadcast must be called with m.mu held. Slow subscribers miss updates.
func (m *JobManager) broadcast(job Job) {
	job.Reports = nil
	for ch := range m.subscribers {
		select {
		case ch <- job:
		default:
		}
	}
}

func generateID(prefix string) string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s_%s", prefix, hex.EncodeToString(b))
}

// cleanupLoop removes old finished jobs to prevent unbounded memory growth
func (m *JobManager) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.prune()
		case <-m.ctx.Done():
			return
		}
	}
}

func (m *JobManager) prune() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.jobs) <= m.maxJobs {
		return
	}

	type jobWithTime struct {
		id   string
		time time.Time
	}
	var finished []jobWithTime
	for id, job := range m.jobs {
		if job.Status == JobStatusDone || job.Status == JobStatusError {
			finishTime := job.CreatedAt
			if job.FinishedAt != nil {
				finishTime = *job.FinishedAt
			}
			finished = append(finished, jobWithTime{id: id, time: finishTime})
		}
	}

	sort.Slice(finished, func(i, j int) bool {
		return finished[i].time.Before(finished[j].time)
	})

	toRemove := min(len(m.jobs)-m.maxJobs, len(finished))
	for i := 0; i < toRemove; i++ {
		delete(m.jobs, finished[i].id)
	}
}

// SetMaxJobs configures the maximum number of jobs to retain in memory
func (m *JobManager) SetMaxJobs(max int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if max > 0 {
		m.maxJobs = max
	}
}

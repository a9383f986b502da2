package fleet

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/khanhnv2901/seca-posture/internal/posture"
	secaerrors "github.com/khanhnv2901/seca-posture/internal/shared/errors"
	"golang.org/x/time/rate"
)

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// HostReport is the outcome of auditing a single host.
type HostReport struct {
	Host       string               `json:"host"`
	AuditedAt  time.Time            `json:"audited_at"`
	Status     string               `json:"status"`
	Input      *posture.AuditInput  `json:"input,omitempty"`
	Result     *posture.AuditResult `json:"result,omitempty"`
	Error      string               `json:"error,omitempty"`
	DurationMs float64              `json:"duration_ms"`
}

// ReportFunc is called once per host as soon as its audit finishes.
type ReportFunc func(report HostReport)

// Runner orchestrates host audits with bounded concurrency and rate limiting.
type Runner struct {
	Concurrency int           // Maximum number of concurrent host audits
	RateLimit   int           // Audits started per second (0 = unlimited)
	Timeout     time.Duration // Timeout for collecting one host
	Engine      *posture.Engine
}

// RunAudits collects and scores every host. Results are sorted by host name.
func (r *Runner) RunAudits(ctx context.Context, hosts []string, collector Collector, reportFn ReportFunc) []HostReport {
	engine := r.Engine
	if engine == nil {
		engine = posture.NewEngine(posture.DefaultPolicy())
	}

	concurrency := r.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	var limiter *rate.Limiter
	if r.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(r.RateLimit), r.RateLimit)
	}

	// Worker pool
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	mu := sync.Mutex{}
	reports := make([]HostReport, 0, len(hosts))

	for _, host := range hosts {
		wg.Add(1)
		go func(h string) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			var report HostReport
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					report = failedReport(h, time.Now(), err)
				}
			}
			if report.Status == "" {
				report = r.auditHost(ctx, engine, h, collector)
			}

			if reportFn != nil {
				reportFn(report)
			}

			mu.Lock()
			reports = append(reports, report)
			mu.Unlock()
		}(host)
	}

	wg.Wait()
	sort.Slice(reports, func(i, j int) bool { return reports[i].Host < reports[j].Host })
	return reports
}

func (r *Runner) auditHost(ctx context.Context, engine *posture.Engine, host string, collector Collector) HostReport {
	start := time.Now()
	if host == "" {
		return failedReport(host, start, secaerrors.ErrEmptyHost)
	}

	collectCtx := ctx
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		collectCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	facts, err := collector.Collect(collectCtx, host)
	if err != nil {
		if !errors.Is(err, secaerrors.ErrHostNotFound) {
			err = fmt.Errorf("%w: %w", secaerrors.ErrCollectFailed, err)
		}
		return failedReport(host, start, err)
	}

	input := facts.AuditInput()
	if err := input.Validate(); err != nil {
		return failedReport(host, start, err)
	}

	result := engine.Score(input)
	return HostReport{
		Host:       host,
		AuditedAt:  start.UTC(),
		Status:     StatusOK,
		Input:      &input,
		Result:     &result,
		DurationMs: float64(time.Since(start).Microseconds()) / 1000,
	}
}

func failedReport(host string, start time.Time, err error) HostReport {
	return HostReport{
		Host:       host,
		AuditedAt:  start.UTC(),
		Status:     StatusError,
		Error:      err.Error(),
		DurationMs: float64(time.Since(start).Microseconds()) / 1000,
	}
}

package cmd

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

type progressPrinter struct {
	out      io.Writer
	total    int
	name     string
	mu       sync.Mutex
	ok       int
	fail     int
	duration float64
	updates  chan struct{}
	done     chan struct{}
	exited   chan struct{}
	started  bool
	stopOnce sync.Once
}

func newProgressPrinter(out io.Writer, total int, name string) *progressPrinter {
	if total <= 0 {
		total = 1
	}
	return &progressPrinter{
		out:     out,
		total:   total,
		name:    name,
		updates: make(chan struct{}, 1),
		done:    make(chan struct{}),
		exited:  make(chan struct{}),
	}
}

func (p *progressPrinter) Start() {
	p.mu.Lock()
	p.started = true
	p.mu.Unlock()
	go p.loop()
}

// Increment records one finished host; duration is in seconds.
func (p *progressPrinter) Increment(success bool, duration float64) {
	p.mu.Lock()
	if success {
		p.ok++
	} else {
		p.fail++
	}
	p.duration += duration
	p.mu.Unlock()

	select {
	case p.updates <- struct{}{}:
	default:
	}
}

func (p *progressPrinter) Stop() {
	p.stopOnce.Do(func() {
		close(p.done)
	})
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	if started {
		<-p.exited
	}

	p.mu.Lock()
	fmt.Fprintf(p.out, "\r%s\r", strings.Repeat(" ", 80))
	p.mu.Unlock()
	p.print()
	fmt.Fprintln(p.out)
}

func (p *progressPrinter) loop() {
	defer close(p.exited)
	ticker := time.NewTicker(300 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-p.updates:
			p.print()
		case <-ticker.C:
			p.print()
		case <-p.done:
			return
		}
	}
}

func (p *progressPrinter) print() {
	p.mu.Lock()
	defer p.mu.Unlock()

	completed := p.ok + p.fail
	if completed > p.total {
		p.total = completed
	}

	percent := (float64(completed) / float64(p.total)) * 100
	avg := 0.0
	if completed > 0 {
		avg = p.duration / float64(completed)
	}

	fmt.Fprintf(p.out, "\r[%s] Progress: %d/%d (%.1f%%) OK:%d Fail:%d Avg:%.2fs",
		p.name, completed, p.total, percent, p.ok, p.fail, avg)
}

package hydrate

import (
	"log/slog"
	"sync"
	"time"
)

// ProgressTracker logs the progress of a long batch operation.
type ProgressTracker struct {
	logger         *slog.Logger
	operation      string
	total          int
	current        int
	reportInterval int
	lastReported   int
	startTime      time.Time
	started        bool
	mu             sync.Mutex
}

// NewProgressTracker creates a new progress tracker.
// operation: label included in every log line
// total: total number of items to process
// reportInterval: log progress every N items
func NewProgressTracker(logger *slog.Logger, operation string, total, reportInterval int) *ProgressTracker {
	if logger == nil {
		logger = slog.Default()
	}
	if reportInterval <= 0 {
		reportInterval = max(total/10, 1)
	}
	return &ProgressTracker{
		logger:         logger,
		operation:      operation,
		total:          total,
		reportInterval: reportInterval,
	}
}

// Start begins tracking progress.
func (p *ProgressTracker) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.startTime = time.Now()
	p.started = true
	p.current = 0
	p.lastReported = 0
}

// Increment increases the current progress by delta.
// The total grows if the operation turns out larger than announced.
func (p *ProgressTracker) Increment(delta int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}

	p.current += delta
	if p.current > p.total {
		p.total = p.current
	}
	if p.current-p.lastReported >= p.reportInterval {
		p.report("progress")
		p.lastReported = p.current
	}
}

// Current returns the number of processed items.
func (p *ProgressTracker) Current() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Finish logs the final count and rate.
func (p *ProgressTracker) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return
	}
	p.report("complete")
}

// Elapsed returns the time elapsed since Start was called.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		return 0
	}

	return time.Since(p.startTime)
}

// report must be called with the lock held.
func (p *ProgressTracker) report(msg string) {
	elapsed := time.Since(p.startTime)
	rate := 0.0
	if s := elapsed.Seconds(); s > 0 {
		rate = float64(p.current) / s
	}

	percentage := 100.0
	if p.total > 0 {
		percentage = float64(p.current) / float64(p.total) * 100.0
	}

	p.logger.Info(p.operation+" "+msg,
		"current", p.current,
		"total", p.total,
		"percent", percentage,
		"per_second", rate,
	)
}

package reembed

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// ProgressTracker reports how far a run has come: memories done out of the
// total, chunks written, throughput and an estimate of the time left.
type ProgressTracker struct {
	mu sync.Mutex

	out      io.Writer
	total    int
	interval int
	now      func() time.Time

	done         int
	chunks       int
	lastReported int
	started      time.Time
	running      bool
}

// NewProgressTracker returns a tracker that writes a status line to out
// every interval memories.
func NewProgressTracker(out io.Writer, total, interval int) *ProgressTracker {
	return &ProgressTracker{
		out:      out,
		total:    total,
		interval: max(interval, 1),
		now:      time.Now,
	}
}

// Start resets the counters and the clock.
func (p *ProgressTracker) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.started = p.now()
	p.running = true
	p.done, p.chunks, p.lastReported = 0, 0, 0
}

// Add records memories finished since the last call and the chunks they
// produced. The memory count never exceeds the total.
func (p *ProgressTracker) Add(memories, chunks int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	p.done = min(p.done+memories, p.total)
	p.chunks += chunks
	if p.done-p.lastReported >= p.interval {
		p.report()
		p.lastReported = p.done
	}
}

// Finish prints the final line. Done is set to the total only when complete
// is true, so an aborted run reports where it stopped.
func (p *ProgressTracker) Finish(complete bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	if complete {
		p.done = p.total
	}
	p.report()
	fmt.Fprintln(p.out)
	p.running = false
}

// Elapsed returns the time since Start, or 0 before it.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started.IsZero() {
		return 0
	}
	return p.now().Sub(p.started)
}

// Done returns the number of memories recorded so far.
func (p *ProgressTracker) Done() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// report must be called with the lock held.
func (p *ProgressTracker) report() {
	elapsed := p.now().Sub(p.started)

	var rate float64
	if elapsed > 0 {
		rate = float64(p.done) / elapsed.Seconds()
	}
	var pct float64
	if p.total > 0 {
		pct = float64(p.done) * 100 / float64(p.total)
	}

	eta := "-"
	if left := p.total - p.done; left == 0 {
		eta = "0s"
	} else if rate > 0 {
		eta = time.Duration(float64(left) / rate * float64(time.Second)).Round(time.Second).String()
	}

	fmt.Fprintf(p.out, "\rProgress: %d/%d memories (%.1f%%), %d chunks, %.1f memories/s, eta %s",
		p.done, p.total, pct, p.chunks, rate, eta)
}

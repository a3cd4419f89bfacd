package tnkernel

import "sync"

// Metrics tracks optional runtime statistics for a Kernel. Collection is
// disabled unless WithMetrics(true) is supplied to New; when disabled,
// every recording call is a single boolean check. Metrics is safe to read
// concurrently with Kernel operation via Kernel.Metrics, which returns a
// copy.
type Metrics struct {
	ContextSwitches       uint64
	PriorityBoosts        uint64
	TimerFires            uint64
	DeadlineMissTicks     uint64
	ReadyDepth            []uint32 // indexed by priority
	WaitDuration          waitPercentile
}

// waitPercentile is a small streaming quantile estimator over wait
// durations measured in ticks, grounded on the teacher's own p-square
// latency percentile tracker (metrics.go) but simplified: the kernel only
// ever needs three fixed quantiles and operates on integer tick counts,
// not time.Duration, so the full multi-quantile P-square machinery isn't
// needed — a small reservoir of the most recent samples, sorted on read,
// is accurate enough at the sample rates a microcontroller kernel sees.
type waitPercentile struct {
	samples [256]uint32
	idx     int
	count   int
}

func (p *waitPercentile) record(ticks uint32) {
	p.samples[p.idx] = ticks
	p.idx = (p.idx + 1) % len(p.samples)
	if p.count < len(p.samples) {
		p.count++
	}
}

// Percentile returns the given percentile (0-100) of recorded wait
// durations in ticks, or 0 if no samples have been recorded.
func (p *waitPercentile) Percentile(pct int) uint32 {
	if p.count == 0 {
		return 0
	}
	buf := make([]uint32, p.count)
	copy(buf, p.samples[:p.count])
	for i := 1; i < len(buf); i++ {
		v := buf[i]
		j := i - 1
		for j >= 0 && buf[j] > v {
			buf[j+1] = buf[j]
			j--
		}
		buf[j+1] = v
	}
	idx := pct * (len(buf) - 1) / 100
	return buf[idx]
}

// metricsRecorder guards live Metrics mutation from concurrent Kernel.Metrics
// reads; it is only ever mutated from inside the kernel's own critical
// section, so this is a read/write-copy guard, not a contention point.
type metricsRecorder struct {
	mu      sync.Mutex
	enabled bool
	m       Metrics
}

func newMetricsRecorder(enabled bool, priorityCount int) *metricsRecorder {
	return &metricsRecorder{enabled: enabled, m: Metrics{ReadyDepth: make([]uint32, priorityCount)}}
}

func (r *metricsRecorder) contextSwitch() {
	if !r.enabled {
		return
	}
	r.mu.Lock()
	r.m.ContextSwitches++
	r.mu.Unlock()
}

func (r *metricsRecorder) priorityBoost() {
	if !r.enabled {
		return
	}
	r.mu.Lock()
	r.m.PriorityBoosts++
	r.mu.Unlock()
}

func (r *metricsRecorder) timerFire(lateBy uint32) {
	if !r.enabled {
		return
	}
	r.mu.Lock()
	r.m.TimerFires++
	if lateBy > 0 {
		r.m.DeadlineMissTicks += uint64(lateBy)
	}
	r.mu.Unlock()
}

func (r *metricsRecorder) waitCompleted(ticks uint32) {
	if !r.enabled {
		return
	}
	r.mu.Lock()
	r.m.WaitDuration.record(ticks)
	r.mu.Unlock()
}

func (r *metricsRecorder) setReadyDepth(priority int, depth uint32) {
	if !r.enabled {
		return
	}
	r.mu.Lock()
	if priority >= 0 && priority < len(r.m.ReadyDepth) {
		r.m.ReadyDepth[priority] = depth
	}
	r.mu.Unlock()
}

// Snapshot returns a copy of the current metrics.
func (r *metricsRecorder) Snapshot() Metrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.m
	out.ReadyDepth = append([]uint32(nil), r.m.ReadyDepth...)
	return out
}

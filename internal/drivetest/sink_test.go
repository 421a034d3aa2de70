package drivetest

import "sync"

// recordingSink captures progress reports for assertions.
type recordingSink struct {
	mu      sync.Mutex
	percent []float64
	steps   []string
}

func (r *recordingSink) Report(percent float64, step string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.percent = append(r.percent, percent)
	r.steps = append(r.steps, step)
}

func (r *recordingSink) lastPercent() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.percent) == 0 {
		return 0
	}
	return r.percent[len(r.percent)-1]
}

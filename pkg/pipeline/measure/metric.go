package measure

import (
	"sync"
	"time"
)

type DefaultMetric struct {
	mu    sync.Mutex
	runs  int64
	total time.Duration
	last  time.Duration
}

func (mt *DefaultMetric) AddDuration(elapsed time.Duration) {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	mt.runs++
	mt.total += elapsed
	mt.last = elapsed
}

func (mt *DefaultMetric) Duration() time.Duration {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	return round(mt.total)
}

func (mt *DefaultMetric) Last() time.Duration {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	return round(mt.last)
}

func (mt *DefaultMetric) Runs() int64 {
	mt.mu.Lock()
	defer mt.mu.Unlock()

	return mt.runs
}

// precisions maps a magnitude to the unit durations above it are rounded to.
var precisions = []struct {
	above, unit time.Duration
}{
	{above: time.Hour, unit: time.Minute},
	{above: time.Second, unit: time.Second},
	{above: time.Millisecond, unit: time.Millisecond},
	{above: time.Microsecond, unit: time.Microsecond},
}

func round(d time.Duration) time.Duration {
	for _, p := range precisions {
		if d > p.above {
			return d.Round(p.unit)
		}
	}

	return d
}

var _ Metric = (*DefaultMetric)(nil)

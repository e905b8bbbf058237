package measure

import "time"

// Measure keeps one Metric per step.
type Measure interface {
	AddMetric(name string) Metric
	// GetMetric returns nil for a step without metric.
	GetMetric(name string) Metric
	AllMetrics() map[string]Metric
	// Names lists the measured steps in the order their metrics were added.
	Names() []string
}

// Metric records how long a step took.
type Metric interface {
	AddDuration(elapsed time.Duration)
	// Duration is the total time spent in the step.
	Duration() time.Duration
	// Last is the duration of the latest run.
	Last() time.Duration
	// Runs is the number of times the step ran.
	Runs() int64
}

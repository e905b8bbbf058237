package measure

import (
	"sync"
)

// DefaultMeasure keeps metrics in memory. It is safe for concurrent steps.
type DefaultMeasure struct {
	mu      sync.RWMutex
	names   []string
	metrics map[string]*DefaultMetric
}

func NewDefaultMeasure() *DefaultMeasure {
	return &DefaultMeasure{
		metrics: make(map[string]*DefaultMetric),
	}
}

// AddMetric resets the metric of name.
func (m *DefaultMeasure) AddMetric(name string) Metric {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.metrics[name]; !ok {
		m.names = append(m.names, name)
	}
	mt := &DefaultMetric{}
	m.metrics[name] = mt

	return mt
}

func (m *DefaultMeasure) GetMetric(name string) Metric {
	m.mu.RLock()
	defer m.mu.RUnlock()

	mt, ok := m.metrics[name]
	if !ok {
		return nil
	}

	return mt
}

func (m *DefaultMeasure) AllMetrics() map[string]Metric {
	m.mu.RLock()
	defer m.mu.RUnlock()

	res := make(map[string]Metric, len(m.metrics))
	for name, mt := range m.metrics {
		res[name] = mt
	}

	return res
}

func (m *DefaultMeasure) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]string(nil), m.names...)
}

var _ Measure = (*DefaultMeasure)(nil)

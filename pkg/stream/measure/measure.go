package measure

import (
	"sync"
)

// DefaultMeasure is a thread-safe in-memory Measure.
type DefaultMeasure struct {
	mu    sync.RWMutex
	steps map[string]Metric
}

// NewDefaultMeasure creates an empty measure.
func NewDefaultMeasure() *DefaultMeasure {
	return &DefaultMeasure{
		steps: make(map[string]Metric),
	}
}

// AddMetric registers a metric for name, keeping the existing one if any.
func (m *DefaultMeasure) AddMetric(name string, concurrent int) Metric {
	m.mu.Lock()
	defer m.mu.Unlock()

	if mt, ok := m.steps[name]; ok {
		return mt
	}

	if concurrent < 1 {
		concurrent = 1
	}

	mt := &DefaultMetric{
		allTransports: make(map[string]*TransportInfo),
		concurrent:    concurrent,
	}
	m.steps[name] = mt

	return mt
}

// GetMetric returns the metric of a step, creating it when missing.
func (m *DefaultMeasure) GetMetric(name string) Metric {
	m.mu.RLock()
	mt, ok := m.steps[name]
	m.mu.RUnlock()

	if ok {
		return mt
	}

	return m.AddMetric(name, 1)
}

// AllMetrics returns a copy of the metrics indexed by step name.
func (m *DefaultMeasure) AllMetrics() map[string]Metric {
	m.mu.RLock()
	defer m.mu.RUnlock()

	res := make(map[string]Metric, len(m.steps))
	for name, mt := range m.steps {
		res[name] = mt
	}

	return res
}

var _ Measure = (*DefaultMeasure)(nil)

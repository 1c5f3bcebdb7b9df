package query

import (
	"cmp"
	"time"

	"github.com/dominikbraun/graph"
	"github.com/pkg/errors"

	"github.com/askiada/go-query-pipeline/pkg/stream/measure"
)

// CriticalPath returns the root to leaf path with the largest sum of average module run
// times recorded in msr, and that sum. Modules without timings weigh nothing, as do all
// modules when msr is nil.
func (p *Pipeline) CriticalPath(msr measure.Measure) ([]string, time.Duration, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if len(p.modules) == 0 {
		return nil, 0, ErrNoModules
	}

	var metrics map[string]measure.Metric
	if msr != nil {
		metrics = msr.AllMetrics()
	}
	weight := func(name string) time.Duration {
		if metric, ok := metrics[name]; ok {
			return metric.AVGDuration()
		}

		return 0
	}

	order, err := graph.StableTopologicalSort(p.dag, func(a, b string) bool {
		return cmp.Less(a, b)
	})
	if err != nil {
		return nil, 0, errors.Wrap(err, "unable to sort modules")
	}

	total := make(map[string]time.Duration, len(order))
	prev := make(map[string]string, len(order))

	for _, name := range order {
		best, from := time.Duration(-1), ""
		for _, parent := range p.store.Parents(name) {
			if total[parent] > best {
				best, from = total[parent], parent
			}
		}
		if from == "" {
			best = 0
		}

		total[name] = best + weight(name)
		prev[name] = from
	}

	end := ""
	for _, leaf := range p.store.Leaves() {
		if end == "" || total[leaf] > total[end] {
			end = leaf
		}
	}

	path := []string{}
	for name := end; name != ""; name = prev[name] {
		path = append([]string{name}, path...)
	}

	return path, total[end], nil
}

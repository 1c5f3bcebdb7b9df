package query

import (
	"context"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/yaoapp/kun/log"
	"golang.org/x/sync/errgroup"
)

// Intermediate is what a module received and produced during a run.
type Intermediate struct {
	Inputs   map[string]any `json:"inputs"`
	Outputs  map[string]any `json:"outputs,omitempty"`
	Skipped  bool           `json:"skipped,omitempty"`
	Duration time.Duration  `json:"duration"`
}

// RunResult is the outcome of a run.
type RunResult struct {
	RunID string `json:"run_id"`
	// Outputs holds the output of every leaf module that ran.
	Outputs       map[string]map[string]any `json:"outputs"`
	Intermediates map[string]*Intermediate  `json:"intermediates"`
}

// snapshot is a consistent copy of the pipeline topology used by a single run.
type snapshot struct {
	modules  map[string]Component
	outLinks map[string][]*Link
	parents  map[string][]string
	children map[string][]string
	roots    []string
	leaves   []string
}

func (p *Pipeline) snapshot() *snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	snap := &snapshot{
		modules:  maps.Clone(p.modules),
		outLinks: make(map[string][]*Link),
		parents:  make(map[string][]string, len(p.modules)),
		children: make(map[string][]string, len(p.modules)),
		roots:    p.store.Roots(),
		leaves:   p.store.Leaves(),
	}

	for name := range p.modules {
		snap.parents[name] = p.store.Parents(name)
		snap.children[name] = p.store.Children(name)
	}

	for _, links := range p.links {
		for _, link := range links {
			snap.outLinks[link.Src] = append(snap.outLinks[link.Src], link)
		}
	}

	return snap
}

type runState struct {
	p     *Pipeline
	snap  *snapshot
	runID string

	received  map[string]map[string]any
	skipped   map[string]map[string]struct{}
	remaining map[string]int
	results   map[string]*Intermediate
}

func (st *runState) markSkipped(dest, key string) {
	if st.skipped[dest] == nil {
		st.skipped[dest] = map[string]struct{}{}
	}
	st.skipped[dest][key] = struct{}{}
}

func (st *runState) inputs(name string) map[string]any {
	if st.received[name] == nil {
		st.received[name] = map[string]any{}
	}

	return st.received[name]
}

// decide reports whether name must run. A module that received nothing, or whose missing
// inputs all come from skipped links, is skipped.
func (st *runState) decide(name string, given bool) (bool, error) {
	c := st.snap.modules[name]
	inputs := st.inputs(name)
	required := c.InputKeys().Required

	if len(st.snap.parents[name]) == 0 {
		if !given && len(required) > 0 {
			return false, nil
		}

		return true, CheckInputs(c, inputs)
	}

	if len(inputs) == 0 {
		return false, nil
	}

	for _, key := range required {
		if _, ok := inputs[key]; ok {
			continue
		}
		if _, ok := st.skipped[name][key]; ok {
			return false, nil
		}

		return false, errors.Wrapf(ErrMissingInput, "key %q", key)
	}

	return true, nil
}

// routeValue selects the value sent through a link from the source output.
func routeValue(src Component, output map[string]any, srcKey string) (any, error) {
	if srcKey == "" {
		key, ok := src.OutputKeys().Only()
		if !ok {
			return output, nil
		}
		srcKey = key
	}

	value, ok := output[srcKey]
	if !ok {
		return nil, errors.Wrapf(ErrMissingInput, "output %q not produced", srcKey)
	}

	return value, nil
}

// route forwards the result of name to its children and returns the children now ready.
func (st *runState) route(name string) ([]string, error) {
	res := st.results[name]

	for _, link := range st.snap.outLinks[name] {
		if res.Skipped {
			st.markSkipped(link.Dest, link.DestKey)

			continue
		}

		value, err := routeValue(st.snap.modules[name], res.Outputs, link.SrcKey)
		if err != nil {
			return nil, errors.Wrapf(err, "link %s -> %s", link.Src, link.Dest)
		}

		ok, err := link.allows(value, res.Outputs)
		if err != nil {
			return nil, errors.Wrapf(err, "link %s -> %s", link.Src, link.Dest)
		}
		if !ok {
			log.With(log.F{"run": st.runID, "src": link.Src, "dest": link.Dest}).Trace("link condition is false")
			st.markSkipped(link.Dest, link.DestKey)

			continue
		}

		st.inputs(link.Dest)[link.DestKey] = value
	}

	ready := []string{}
	for _, child := range st.snap.children[name] {
		st.remaining[child]--
		if st.remaining[child] == 0 {
			ready = append(ready, child)
		}
	}

	return ready, nil
}

func (p *Pipeline) runModule(ctx context.Context, runID, name string, c Component, inputs map[string]any) (map[string]any, time.Duration, error) {
	if p.verbose {
		log.Info("> running module %s with input: %v", name, inputs)
	} else {
		log.With(log.F{"pipeline": p.name, "run": runID, "module": name}).Trace("running module")
	}

	start := time.Now()
	out, err := c.Run(ctx, maps.Clone(inputs))
	elapsed := time.Since(start)
	if err != nil {
		return nil, elapsed, errors.Wrapf(err, "module %s", name)
	}
	if out == nil {
		out = map[string]any{}
	}

	if p.measure != nil {
		p.measure.GetMetric(name).AddDuration(elapsed)
	}
	if p.verbose {
		log.Info("> module %s output: %v", name, out)
	}

	return out, elapsed, nil
}

type moduleDone struct {
	name    string
	out     map[string]any
	elapsed time.Duration
	err     error
}

// schedule runs the modules as soon as all their parents are done, at most concurrency at a
// time. The first error cancels the running modules.
func (st *runState) schedule(ctx context.Context, given map[string]map[string]any) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errGrp, dCtx := errgroup.WithContext(ctx)
	errGrp.SetLimit(st.p.concurrency)

	fail := func(err error) error {
		cancel()
		_ = errGrp.Wait()

		return err
	}

	done := make(chan moduleDone, len(st.snap.modules))
	queue := slices.Clone(st.snap.roots)
	running := 0

	for {
		for len(queue) > 0 {
			if err := ctx.Err(); err != nil {
				return fail(err)
			}

			name := queue[0]
			queue = queue[1:]

			_, isGiven := given[name]

			run, err := st.decide(name, isGiven)
			if err != nil {
				return fail(errors.Wrapf(err, "module %s", name))
			}

			if !run {
				log.With(log.F{"run": st.runID, "module": name}).Trace("module skipped")
				st.results[name] = &Intermediate{Inputs: st.inputs(name), Skipped: true}

				children, err := st.route(name)
				if err != nil {
					return fail(err)
				}
				queue = append(queue, children...)

				continue
			}

			c, inputs := st.snap.modules[name], st.received[name]
			running++
			errGrp.Go(func() error {
				out, elapsed, err := st.p.runModule(dCtx, st.runID, name, c, inputs)
				done <- moduleDone{name: name, out: out, elapsed: elapsed, err: err}

				return err
			})
		}

		if running == 0 {
			return errGrp.Wait()
		}

		res := <-done
		running--
		if res.err != nil {
			return fail(res.err)
		}

		st.results[res.name] = &Intermediate{Inputs: st.received[res.name], Outputs: res.out, Duration: res.elapsed}

		children, err := st.route(res.name)
		if err != nil {
			return fail(err)
		}
		queue = append(queue, children...)
	}
}

func (p *Pipeline) execute(ctx context.Context, snap *snapshot, rootInputs map[string]map[string]any) (*RunResult, error) {
	if len(snap.modules) == 0 {
		return nil, ErrNoModules
	}

	for name := range rootInputs {
		if _, ok := snap.modules[name]; !ok {
			return nil, errors.Wrapf(ErrModuleNotFound, "module %s", name)
		}
		if len(snap.parents[name]) > 0 {
			return nil, errors.Wrapf(ErrNotRoot, "module %s", name)
		}
	}

	st := &runState{
		p:         p,
		snap:      snap,
		runID:     uuid.NewString(),
		received:  make(map[string]map[string]any, len(snap.modules)),
		skipped:   make(map[string]map[string]struct{}),
		remaining: make(map[string]int, len(snap.modules)),
		results:   make(map[string]*Intermediate, len(snap.modules)),
	}
	for name := range snap.modules {
		st.remaining[name] = len(snap.parents[name])
	}
	for name, inputs := range rootInputs {
		st.received[name] = maps.Clone(inputs)
	}

	start := time.Now()

	err := st.schedule(ctx, rootInputs)
	if err != nil {
		return nil, err
	}

	res := &RunResult{
		RunID:         st.runID,
		Outputs:       make(map[string]map[string]any, len(snap.leaves)),
		Intermediates: st.results,
	}
	for _, leaf := range snap.leaves {
		if r, ok := st.results[leaf]; ok && !r.Skipped {
			res.Outputs[leaf] = r.Outputs
		}
	}

	log.With(log.F{
		"pipeline": p.name,
		"run":      st.runID,
		"modules":  len(st.results),
		"elapsed":  time.Since(start).String(),
	}).Debug("query pipeline run finished")

	return res, nil
}

func (p *Pipeline) singleRootAndLeaf(snap *snapshot) (string, string, error) {
	if len(snap.modules) == 0 {
		return "", "", ErrNoModules
	}
	if len(snap.roots) != 1 {
		return "", "", errors.Wrapf(ErrSingleRoot, "found %v", snap.roots)
	}
	if len(snap.leaves) != 1 {
		return "", "", errors.Wrapf(ErrSingleLeaf, "found %v", snap.leaves)
	}

	return snap.roots[0], snap.leaves[0], nil
}

// Run feeds inputs to the only root module and returns the output of the only leaf module.
func (p *Pipeline) Run(ctx context.Context, inputs map[string]any) (map[string]any, error) {
	snap := p.snapshot()

	root, leaf, err := p.singleRootAndLeaf(snap)
	if err != nil {
		return nil, err
	}

	res, err := p.execute(ctx, snap, map[string]map[string]any{root: inputs})
	if err != nil {
		return nil, err
	}

	out, ok := res.Outputs[leaf]
	if !ok {
		return nil, errors.Wrapf(ErrNoOutput, "module %s", leaf)
	}

	return out, nil
}

// RunValue sends value to the only input of the root module and returns the only output of
// the leaf module. When the leaf has several outputs the whole output map is returned.
func (p *Pipeline) RunValue(ctx context.Context, value any) (any, error) {
	snap := p.snapshot()

	root, leaf, err := p.singleRootAndLeaf(snap)
	if err != nil {
		return nil, err
	}

	keys := snap.modules[root].InputKeys()
	key, ok := keys.Only()
	if !ok && len(keys.Required) == 1 {
		key, ok = keys.Required[0], true
	}
	if !ok {
		return nil, errors.Wrapf(ErrAmbiguousKey, "root module %s has inputs %v", root, keys.All())
	}

	res, err := p.execute(ctx, snap, map[string]map[string]any{root: {key: value}})
	if err != nil {
		return nil, err
	}

	out, ok := res.Outputs[leaf]
	if !ok {
		return nil, errors.Wrapf(ErrNoOutput, "module %s", leaf)
	}

	return routeValue(snap.modules[leaf], out, "")
}

// RunMultiple runs the pipeline with inputs indexed by root module and returns the output of
// every leaf module that ran. Roots missing from inputs only run when they need no input.
func (p *Pipeline) RunMultiple(ctx context.Context, inputs map[string]map[string]any) (map[string]map[string]any, error) {
	res, err := p.RunWithIntermediates(ctx, inputs)
	if err != nil {
		return nil, err
	}

	return res.Outputs, nil
}

// RunWithIntermediates is like RunMultiple and also returns the inputs and outputs of every
// module.
func (p *Pipeline) RunWithIntermediates(ctx context.Context, inputs map[string]map[string]any) (*RunResult, error) {
	return p.execute(ctx, p.snapshot(), inputs)
}

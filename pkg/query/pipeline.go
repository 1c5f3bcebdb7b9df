package query

import (
	"cmp"
	"maps"
	"slices"
	"strconv"
	"sync"

	"github.com/dominikbraun/graph"
	"github.com/pkg/errors"

	"github.com/askiada/go-query-pipeline/internal/graphstore"
	"github.com/askiada/go-query-pipeline/pkg/stream/measure"
	"github.com/askiada/go-query-pipeline/pkg/stream/model"
)

const DefaultConcurrency = 4

// Pipeline is a DAG of named components connected by links.
type Pipeline struct {
	name        string
	concurrency int
	verbose     bool
	measure     measure.Measure
	streamOpts  []model.PipelineOption

	mu      sync.RWMutex
	modules map[string]Component
	// links are indexed by destination module.
	links map[string][]*Link
	store *graphstore.MemoryStore[string, string]
	dag   graph.Graph[string, string]
}

// Option configures a pipeline.
type Option func(*Pipeline)

// WithConcurrency sets the number of modules running at the same time.
func WithConcurrency(concurrency int) Option {
	return func(p *Pipeline) {
		p.concurrency = concurrency
	}
}

// WithVerbose logs every module input and output at info level.
func WithVerbose() Option {
	return func(p *Pipeline) {
		p.verbose = true
	}
}

// WithName names the pipeline in logs.
func WithName(name string) Option {
	return func(p *Pipeline) {
		p.name = name
	}
}

// WithMeasure records the duration of every module run into msr.
func WithMeasure(msr measure.Measure) Option {
	return func(p *Pipeline) {
		p.measure = msr
	}
}

// WithStreamOptions adds options to the stream pipeline created by RunBatch.
func WithStreamOptions(opts ...model.PipelineOption) Option {
	return func(p *Pipeline) {
		p.streamOpts = append(p.streamOpts, opts...)
	}
}

// New creates an empty pipeline.
func New(opts ...Option) *Pipeline {
	store := graphstore.New[string, string]()
	p := &Pipeline{
		name:        "query",
		concurrency: DefaultConcurrency,
		modules:     make(map[string]Component),
		links:       make(map[string][]*Link),
		store:       store,
		dag:         graph.NewWithStore(graph.StringHash, graph.Store[string, string](store), graph.Directed(), graph.PreventCycles()),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.concurrency < 1 {
		p.concurrency = 1
	}

	return p
}

// NewChain creates a pipeline where every component feeds the next one.
func NewChain(components []Component, opts ...Option) (*Pipeline, error) {
	p := New(opts...)

	err := p.AddChain(components...)
	if err != nil {
		return nil, err
	}

	return p, nil
}

// Name returns the pipeline name.
func (p *Pipeline) Name() string {
	return p.name
}

// AddModule adds c under name.
func (p *Pipeline) AddModule(name string, c Component) error {
	if c == nil {
		return errors.Wrapf(ErrNilComponent, "module %s", name)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.addModule(name, c)
}

func (p *Pipeline) addModule(name string, c Component) error {
	if _, ok := p.modules[name]; ok {
		return errors.Wrapf(ErrModuleExists, "module %s", name)
	}

	err := p.dag.AddVertex(name)
	if err != nil {
		return errors.Wrapf(err, "unable to add module %s", name)
	}
	p.modules[name] = c

	return nil
}

// AddModules adds every component, in name order.
func (p *Pipeline) AddModules(modules map[string]Component) error {
	for _, name := range slices.Sorted(maps.Keys(modules)) {
		err := p.AddModule(name, modules[name])
		if err != nil {
			return err
		}
	}

	return nil
}

// AddChain adds components named after their position in the pipeline and links each one to
// the next.
func (p *Pipeline) AddChain(components ...Component) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	names := make([]string, len(components))
	offset := len(p.modules)
	for i, c := range components {
		if c == nil {
			return errors.Wrapf(ErrNilComponent, "chain position %d", i)
		}

		names[i] = strconv.Itoa(offset + i)
		err := p.addModule(names[i], c)
		if err != nil {
			return err
		}
	}

	for i := 1; i < len(names); i++ {
		err := p.addLink(&Link{Src: names[i-1], Dest: names[i]})
		if err != nil {
			return err
		}
	}

	return nil
}

// AddLink links src to dest.
func (p *Pipeline) AddLink(src, dest string, opts ...LinkOption) error {
	link := &Link{Src: src, Dest: dest}
	for _, opt := range opts {
		opt(link)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.addLink(link)
}

// AddLinks adds copies of links.
func (p *Pipeline) AddLinks(links ...Link) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, link := range links {
		err := p.addLink(&link)
		if err != nil {
			return err
		}
	}

	return nil
}

func (p *Pipeline) linkedKeys(dest string) map[string]struct{} {
	res := make(map[string]struct{}, len(p.links[dest]))
	for _, link := range p.links[dest] {
		res[link.DestKey] = struct{}{}
	}

	return res
}

func (p *Pipeline) addLink(link *Link) error {
	src, ok := p.modules[link.Src]
	if !ok {
		return errors.Wrapf(ErrModuleNotFound, "source %s", link.Src)
	}
	dest, ok := p.modules[link.Dest]
	if !ok {
		return errors.Wrapf(ErrModuleNotFound, "destination %s", link.Dest)
	}

	if link.SrcKey != "" && !src.OutputKeys().Has(link.SrcKey) {
		return errors.Wrapf(ErrUnknownKey, "module %s has no output %q", link.Src, link.SrcKey)
	}

	linked := p.linkedKeys(link.Dest)
	destKeys := dest.InputKeys()

	switch {
	case link.DestKey != "":
		if !destKeys.Has(link.DestKey) {
			return errors.Wrapf(ErrUnknownKey, "module %s has no input %q", link.Dest, link.DestKey)
		}
	case destKeys.Variadic:
		link.DestKey = link.Src
	default:
		free := slices.DeleteFunc(destKeys.All(), func(key string) bool {
			_, ok := linked[key]

			return ok
		})
		if len(free) != 1 {
			return errors.Wrapf(ErrAmbiguousKey, "module %s has %d free inputs %v, set a destination key", link.Dest, len(free), free)
		}
		link.DestKey = free[0]
	}

	if _, ok := linked[link.DestKey]; ok {
		return errors.Wrapf(ErrKeyAlreadyLinked, "module %s input %q", link.Dest, link.DestKey)
	}

	err := link.compile()
	if err != nil {
		return err
	}

	err = p.dag.AddEdge(link.Src, link.Dest)
	switch {
	case errors.Is(err, graph.ErrEdgeCreatesCycle):
		return errors.Wrapf(ErrCycle, "%s -> %s", link.Src, link.Dest)
	case err != nil && !errors.Is(err, graph.ErrEdgeAlreadyExists):
		return errors.Wrapf(err, "unable to link %s to %s", link.Src, link.Dest)
	}

	p.links[link.Dest] = append(p.links[link.Dest], link)

	return nil
}

// Module returns the component named name.
func (p *Pipeline) Module(name string) (Component, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	c, ok := p.modules[name]

	return c, ok
}

// Modules returns the module names, sorted.
func (p *Pipeline) Modules() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return slices.Sorted(maps.Keys(p.modules))
}

// Links returns every link, sorted by destination then source.
func (p *Pipeline) Links() []Link {
	p.mu.RLock()
	defer p.mu.RUnlock()

	res := []Link{}
	for _, dest := range slices.Sorted(maps.Keys(p.links)) {
		for _, link := range p.links[dest] {
			res = append(res, *link)
		}
	}

	slices.SortStableFunc(res, func(a, b Link) int {
		if a.Dest != b.Dest {
			return cmp.Compare(a.Dest, b.Dest)
		}

		return cmp.Compare(a.Src, b.Src)
	})

	return res
}

// Roots returns the modules without incoming link.
func (p *Pipeline) Roots() []string {
	return p.store.Roots()
}

// Leaves returns the modules without outgoing link.
func (p *Pipeline) Leaves() []string {
	return p.store.Leaves()
}

package query

import (
	"fmt"
	"io"
	"strings"

	"github.com/dominikbraun/graph"
	"github.com/pkg/errors"

	"github.com/askiada/go-query-pipeline/pkg/stream/drawer"
	"github.com/askiada/go-query-pipeline/pkg/stream/measure"
)

// kindOf returns a short name for the component type, such as "Prompt" or "partial Prompt".
func kindOf(c Component) string {
	if p, ok := c.(*partialComponent); ok {
		return "partial " + kindOf(p.Component)
	}

	name := strings.TrimPrefix(fmt.Sprintf("%T", c), "*")
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}

	return strings.TrimSuffix(name, "Component")
}

// Draw writes the pipeline in the DOT language. Vertices show the component type and, when
// msr holds timings for them, the average run time. Edges show the routed keys.
func (p *Pipeline) Draw(w io.Writer, msr measure.Measure) error {
	var metrics map[string]measure.Metric
	if msr != nil {
		metrics = msr.AllMetrics()
	}

	gra := graph.New(graph.StringHash, graph.Directed())

	for _, name := range p.Modules() {
		c, _ := p.Module(name)
		label := kindOf(c)
		if metric, ok := metrics[name]; ok && metric.AVGDuration() > 0 {
			label += ", avg: " + metric.AVGDuration().String()
		}

		err := gra.AddVertex(name, graph.VertexAttribute("xlabel", label))
		if err != nil {
			return errors.Wrapf(err, "unable to add vertex %s", name)
		}
	}

	labels := make(map[[2]string][]string)
	order := [][2]string{}
	for _, link := range p.Links() {
		pair := [2]string{link.Src, link.Dest}
		if _, ok := labels[pair]; !ok {
			order = append(order, pair)
		}
		labels[pair] = append(labels[pair], strings.ReplaceAll(link.label(), `"`, `\"`))
	}

	for _, pair := range order {
		err := gra.AddEdge(pair[0], pair[1], graph.EdgeAttribute("label", strings.Join(labels[pair], ", ")))
		if err != nil {
			return errors.Wrapf(err, "unable to add edge from %s to %s", pair[0], pair[1])
		}
	}

	return drawer.WriteDOT(gra, w, drawer.GraphAttribute("label", p.name))
}

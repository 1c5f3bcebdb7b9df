package drawer

import (
	"io"
	"os"
	"sort"
	"time"

	"github.com/dominikbraun/graph"
	"github.com/pkg/errors"
	"gopkg.in/go-playground/colors.v1" //nolint

	"github.com/askiada/go-query-pipeline/pkg/stream/measure"
)

// DOTDrawer is a drawer that writes the pipeline graph in the DOT language.
type DOTDrawer struct {
	graph    graph.Graph[string, string]
	writer   io.Writer
	fileName string
}

// NewDOTDrawer creates a drawer writing to w.
func NewDOTDrawer(w io.Writer) *DOTDrawer {
	return &DOTDrawer{
		writer: w,
		graph:  graph.New(graph.StringHash, graph.Directed()),
	}
}

// NewFileDrawer creates a drawer writing to fileName.
func NewFileDrawer(fileName string) *DOTDrawer {
	return &DOTDrawer{
		fileName: fileName,
		graph:    graph.New(graph.StringHash, graph.Directed()),
	}
}

// AddStep adds a step to the pipeline graph. Adding a known step is a no-op.
func (d *DOTDrawer) AddStep(name string) error {
	err := d.graph.AddVertex(name)
	if err != nil && !errors.Is(err, graph.ErrVertexAlreadyExists) {
		return errors.Wrap(err, "unable to add vertex")
	}

	return nil
}

// AddLink adds a link between parent and children steps.
func (d *DOTDrawer) AddLink(parentName, childrenName string) error {
	err := d.graph.AddEdge(parentName, childrenName)
	if err != nil && !errors.Is(err, graph.ErrEdgeAlreadyExists) {
		return errors.Wrapf(err, "unable to add edge from %s to %s", parentName, childrenName)
	}

	return nil
}

// Draw writes the pipeline graph.
func (d *DOTDrawer) Draw() error {
	if d.writer != nil {
		return WriteDOT(d.graph, d.writer)
	}

	file, err := os.Create(d.fileName)
	if err != nil {
		return errors.Wrapf(err, "unable to create file %s", d.fileName)
	}
	defer file.Close()

	err = WriteDOT(d.graph, file)
	if err != nil {
		return errors.Wrapf(err, "unable to write dot file %s", d.fileName)
	}

	return nil
}

// SetTotalTime sets the total time for the step.
func (d *DOTDrawer) SetTotalTime(stepName string, startTime time.Time) error {
	_, properties, err := d.graph.VertexWithProperties(stepName)
	if err != nil {
		return errors.Wrap(err, "unable to get vertex properties")
	}

	properties.Attributes["xlabel"] = time.Since(startTime).String()

	return nil
}

const maxRGB = 240

// edgeColours maps every distinct transport duration to a colour from blue (fast) to red (slow).
func edgeColours(durations []time.Duration) (map[time.Duration]string, error) {
	res := make(map[time.Duration]string, len(durations))
	if len(durations) == 0 {
		return res, nil
	}

	sort.Slice(durations, func(i, j int) bool {
		return durations[i] > durations[j]
	})

	maxValue := durations[0]
	minValue := durations[len(durations)-1]

	for _, curr := range durations {
		fraction := 1.0
		if maxValue > minValue {
			fraction = float64(curr-minValue) / float64(maxValue-minValue)
		}

		red := maxRGB * fraction
		blue := maxRGB - red

		colour, err := colors.RGB(uint8(red), 0, uint8(blue)) //nolint
		if err != nil {
			return nil, errors.Wrap(err, "unable to get colour")
		}

		res[curr] = colour.ToHEX().String()
	}

	return res, nil
}

// AddMeasure adds measure to drawer.
func (d *DOTDrawer) AddMeasure(msr measure.Measure) error {
	seen := make(map[time.Duration]struct{})
	durations := []time.Duration{}

	for _, step := range msr.AllMetrics() {
		for _, info := range step.AVGTransportDuration() {
			if info.Elapsed == 0 {
				continue
			}

			if _, ok := seen[info.Elapsed]; ok {
				continue
			}

			seen[info.Elapsed] = struct{}{}
			durations = append(durations, info.Elapsed)
		}
	}

	colours, err := edgeColours(durations)
	if err != nil {
		return err
	}

	err = d.updateMetrics(msr, colours)
	if err != nil {
		return errors.Wrap(err, "unable to update metrics")
	}

	return nil
}

func (d *DOTDrawer) updateMetrics(msr measure.Measure, colours map[time.Duration]string) error {
	for name, step := range msr.AllMetrics() {
		_, properties, err := d.graph.VertexWithProperties(name)
		if errors.Is(err, graph.ErrVertexNotFound) {
			continue
		}
		if err != nil {
			return errors.Wrap(err, "unable to get vertex properties")
		}

		stepAvg := step.AVGDuration()
		if stepAvg != 0 {
			properties.Attributes["xlabel"] = stepAvg.String()
		}

		if step.GetTotalDuration() > 0 {
			properties.Attributes["xlabel"] += ", end: " + step.GetTotalDuration().String()
		}

		for inputStep, info := range step.AVGTransportDuration() {
			if info.Elapsed == 0 {
				continue
			}

			err := d.graph.UpdateEdge(inputStep, name,
				graph.EdgeAttribute("label", info.Elapsed.String()),
				graph.EdgeAttribute("fontcolor", "blue"),
				graph.EdgeAttribute("color", colours[info.Elapsed]),
			)
			if err != nil && !errors.Is(err, graph.ErrEdgeNotFound) {
				return errors.Wrap(err, "unable to update edge")
			}
		}
	}

	return nil
}

var _ Drawer = (*DOTDrawer)(nil)

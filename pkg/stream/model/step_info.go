package model

// StepType identifies how a step consumes and produces elements.
type StepType string

const (
	RootStepType     StepType = "root"
	NormalStepType   StepType = "step"
	SplitterStepType StepType = "splitter"
	SinkStepType     StepType = "sink"
	MergerStepType   StepType = "merger"
)

// StepInfo describes a step to the pipeline options.
type StepInfo struct {
	Type       StepType
	Name       string
	Concurrent int
	BufferSize int
}

var (
	StartStep = &Step[any]{Details: &StepInfo{Type: RootStepType, Name: "start"}}
	EndStep   = &Step[any]{Details: &StepInfo{Type: SinkStepType, Name: "end"}}
)

// Step is the output side of a pipeline stage. Downstream steps read from Output.
type Step[O any] struct {
	Output  chan O
	Details *StepInfo
}

// Info returns the step details, falling back to the start step for
// hand-built input steps.
func (s *Step[O]) Info() *StepInfo {
	if s.Details == nil {
		s.Details = &StepInfo{Type: RootStepType, Name: StartStep.Details.Name, Concurrent: 1}
	}

	return s.Details
}

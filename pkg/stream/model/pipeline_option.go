package model

import "time"

// PipelineOption defines the interface for pipeline options.
type PipelineOption interface {
	// New initialises the pipeline option.
	New() error

	pipelineStepOption
	pipelineSplitterOption
	pipelineMergerOption
	pipelineSinkOption

	// Finish runs after the pipeline is finished.
	Finish() error
}

// pipelineStepOption defines the interface for step options at the pipeline level.
type pipelineStepOption interface {
	// PrepareStep runs before the step is executed.
	PrepareStep(parentStep, step *StepInfo) error
	// OnStepOutput runs everytime something is pushed to the output of the step.
	OnStepOutput(parentStep, step *StepInfo, iterationDuration, computationDuration time.Duration) error
}

// pipelineSplitterOption defines the interface for splitter options at the pipeline level.
type pipelineSplitterOption interface {
	// PrepareSplitter runs before the splitter step is executed.
	PrepareSplitter(parentStep, splitterStep *StepInfo) error
	// OnSplitterOutput runs everytime something is pushed to the outputs of the splitter step.
	OnSplitterOutput(parentStep, splitterStep *StepInfo, iterationDuration, computationDuration time.Duration) error
}

// pipelineMergerOption defines the interface for merger options at the pipeline level.
type pipelineMergerOption interface {
	// PrepareMerger runs before the merger step is executed.
	PrepareMerger(parentSteps []*StepInfo, step *StepInfo) error
	// OnMergerOutput runs everytime something is pushed to the output of the merger step.
	OnMergerOutput(parentStep, outputStep *StepInfo, iterationDuration time.Duration) error
}

// pipelineSinkOption defines the interface for sink options at the pipeline level.
type pipelineSinkOption interface {
	// PrepareSink runs before the sink step is executed.
	PrepareSink(parentStep, step *StepInfo) error
	// OnSinkOutput runs everytime the sink consumes an element.
	OnSinkOutput(parentStep, step *StepInfo, iterationDuration, computationDuration time.Duration) error
	// AfterSink runs after the sink step is executed.
	AfterSink(step *StepInfo, totalDuration time.Duration) error
}

// NoopOption implements every hook as a no-op. Embed it to implement only some hooks.
type NoopOption struct{}

func (NoopOption) New() error                                     { return nil }
func (NoopOption) Finish() error                                  { return nil }
func (NoopOption) PrepareStep(_, _ *StepInfo) error               { return nil }
func (NoopOption) PrepareSplitter(_, _ *StepInfo) error           { return nil }
func (NoopOption) PrepareMerger(_ []*StepInfo, _ *StepInfo) error { return nil }
func (NoopOption) PrepareSink(_, _ *StepInfo) error               { return nil }

func (NoopOption) OnStepOutput(_, _ *StepInfo, _, _ time.Duration) error     { return nil }
func (NoopOption) OnSplitterOutput(_, _ *StepInfo, _, _ time.Duration) error { return nil }
func (NoopOption) OnMergerOutput(_, _ *StepInfo, _ time.Duration) error      { return nil }
func (NoopOption) OnSinkOutput(_, _ *StepInfo, _, _ time.Duration) error     { return nil }
func (NoopOption) AfterSink(_ *StepInfo, _ time.Duration) error              { return nil }

var _ PipelineOption = NoopOption{}

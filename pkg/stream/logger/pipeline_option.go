// Package logger provides a stream pipeline option tracing the pipeline lifecycle.
package logger

import (
	"sync/atomic"
	"time"

	"github.com/yaoapp/kun/log"

	"github.com/askiada/go-query-pipeline/pkg/stream/model"
)

type pipelineLogger struct {
	model.NoopOption
	name    string
	start   time.Time
	outputs atomic.Int64
}

func (pl *pipelineLogger) New() error {
	pl.start = time.Now()
	log.With(log.F{"pipeline": pl.name}).Trace("stream pipeline created")

	return nil
}

func (pl *pipelineLogger) prepare(kind string, parentStep, step *model.StepInfo) error {
	log.With(log.F{
		"pipeline":   pl.name,
		"kind":       kind,
		"step":       step.Name,
		"parent":     parentStep.Name,
		"concurrent": step.Concurrent,
	}).Trace("stream step prepared")

	return nil
}

func (pl *pipelineLogger) PrepareStep(parentStep, step *model.StepInfo) error {
	return pl.prepare(string(step.Type), parentStep, step)
}

func (pl *pipelineLogger) PrepareSplitter(parentStep, splitterStep *model.StepInfo) error {
	return pl.prepare(string(model.SplitterStepType), parentStep, splitterStep)
}

func (pl *pipelineLogger) PrepareSink(parentStep, step *model.StepInfo) error {
	return pl.prepare(string(model.SinkStepType), parentStep, step)
}

func (pl *pipelineLogger) OnSinkOutput(_, _ *model.StepInfo, _, _ time.Duration) error {
	pl.outputs.Add(1)

	return nil
}

func (pl *pipelineLogger) AfterSink(step *model.StepInfo, totalDuration time.Duration) error {
	log.With(log.F{"pipeline": pl.name, "step": step.Name, "elapsed": totalDuration.String()}).Trace("stream sink done")

	return nil
}

func (pl *pipelineLogger) Finish() error {
	log.Info("stream pipeline %s finished: consumed=%d elapsed=%s", pl.name, pl.outputs.Load(), time.Since(pl.start))

	return nil
}

// PipelineLogger logs the pipeline lifecycle with the process logger.
func PipelineLogger(name string) model.PipelineOption {
	return &pipelineLogger{name: name}
}

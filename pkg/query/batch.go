package query

import (
	"context"

	"github.com/pkg/errors"

	"github.com/askiada/go-query-pipeline/pkg/stream"
)

type batchItem struct {
	index  int
	inputs map[string]any
	output map[string]any
}

// RunBatch runs every inputs map through Run on the stream engine, with as many queries in
// flight as the pipeline concurrency. Outputs keep the order of inputs.
func (p *Pipeline) RunBatch(ctx context.Context, inputs []map[string]any) ([]map[string]any, error) {
	items := make([]*batchItem, len(inputs))
	for i, in := range inputs {
		items[i] = &batchItem{index: i, inputs: in}
	}

	pipe, err := stream.New(p.streamOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "unable to create stream pipeline")
	}

	root, err := stream.AddRootSlice(pipe, "queries", items)
	if err != nil {
		return nil, errors.Wrap(err, "unable to add root step")
	}

	run, err := stream.AddStepOneToOne(pipe, p.name, root, func(ctx context.Context, item *batchItem) (*batchItem, error) {
		out, err := p.Run(ctx, item.inputs)
		if err != nil {
			return nil, errors.Wrapf(err, "query %d", item.index)
		}
		item.output = out

		return item, nil
	}, stream.StepConcurrency(p.concurrency), stream.StepBufferSize(p.concurrency))
	if err != nil {
		return nil, errors.Wrap(err, "unable to add run step")
	}

	res := make([]map[string]any, len(inputs))
	err = stream.AddSink(pipe, "outputs", run, func(_ context.Context, item *batchItem) error {
		res[item.index] = item.output

		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "unable to add sink")
	}

	err = pipe.Run(ctx)
	if err != nil {
		return nil, err
	}

	return res, nil
}

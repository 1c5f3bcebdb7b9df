// Package stream provides a channel based pipeline for processing a flow of elements.
//
// A stream pipeline is made of typed steps. A root step produces elements, intermediate steps
// transform them one to one, one to many or one to zero, splitters fan them out to several
// branches, mergers fan them back in and sinks consume them. Every step runs in its own
// goroutine and can consume its input concurrently.
//
// The pipeline stops on the first error. The failing step cancels the context shared by the
// steps before closing its outputs, so downstream steps see a cancelled run rather than the
// end of their input. Run waits for every step and returns the first error wrapped with the
// name of the failing step.
//
// Options implementing model.PipelineOption observe the pipeline while it is built and run. The
// measure package records step timings and the drawer package renders the pipeline as a DOT
// graph.
//
// The query package uses stream pipelines to run batches of queries and the index package uses
// them to ingest documents.
package stream

// Package query wires components into a sequential chain or a directed acyclic graph and runs
// them end to end.
//
// A component declares its input and output keys. Links route an output value of a source
// module to an input key of a destination module, optionally guarded by a condition:
//
//	p := query.New()
//	_ = p.AddModules(map[string]query.Component{
//		"input":     query.NewInputComponent(),
//		"retriever": query.NewRetrieverComponent(r),
//		"synth":     query.NewSynthesizerComponent(s),
//	})
//	_ = p.AddLink("input", "retriever")
//	_ = p.AddLink("input", "synth", query.WithDestKey("query_str"))
//	_ = p.AddLink("retriever", "synth", query.WithDestKey("nodes"))
//	res, err := p.RunValue(ctx, "what did the author do growing up?")
//
// Modules whose inputs are all ready run concurrently, up to the pipeline concurrency.
package query

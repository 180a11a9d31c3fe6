// Package operations runs the dataset preparation pipeline as a sequence of
// registered steps.
//
// The full pipeline is clean, features and dataset; each step reads the
// artifact of the one before it from disk. The spec step is standalone and
// rebuilds the dataset specification from already published partitions.
//
// Core Components:
//
// Manager: executes one step or the full pipeline sequentially, records every
// step and artifact in a PipelineManifest and, when a tracer is set, wraps
// the run and each step in a span.
//
// Step: a single unit of work. Steps declare the artifacts they read
// (RequiredInputs) and write (ProducedOutputs). A step run on its own whose
// input is missing fails with an INPUT_MISSING error naming the upstream step.
//
// Registry: registration and dependency ordering of steps.
//
// Example usage:
//
//	registry := operations.NewRegistry()
//	for _, step := range operations.NewPipelineStages(opts) {
//		registry.Register(step)
//	}
//	manager := operations.NewManager(registry, operations.NewConfig())
//	resp, err := manager.Execute(ctx, operations.OperationRequest{Step: "features"})
//	resp.Manifest.SaveToFile(paths.ManifestFile)
package operations

// Package backend defines the surface an execution backend exposes to the
// partitioning engine: a capability describing what it can claim, and a
// compiler turning an accepted graph into an executable plan.
package backend

import (
	"context"

	"github.com/example/go-graphsplit/internal/graph"
	"github.com/example/go-graphsplit/internal/tensor"
)

// Plan is a compiled, executable form of one graph.
type Plan interface {
	// Run executes the plan with named input tensors and returns the named
	// outputs. Inputs map to the graph's declared non-initializer inputs.
	Run(ctx context.Context, inputs map[string]*tensor.Tensor) (map[string]*tensor.Tensor, error)

	// Close releases plan resources. Safe to call multiple times.
	Close()
}

// Backend compiles graphs it has claimed. Compile receives a structurally
// resolved, self-contained graph; returning an error rejects the region
// without failing the partitioning pass.
type Backend interface {
	Name() string
	Capability() Capability
	Compile(ctx context.Context, g *graph.Graph) (Plan, error)
}

// Exporter serializes a graph into a model file a delegate runtime can load.
// The format is the exporter's concern; backends only pass the path on.
type Exporter interface {
	Export(g *graph.Graph, dir string) (path string, err error)
}

// Config carries the settings a backend factory may need. Fields a given
// backend does not use are ignored.
type Config struct {
	// LibraryPath locates the delegate runtime's shared library.
	LibraryPath string

	// APIVersion selects the delegate runtime API revision; zero means the
	// backend default.
	APIVersion uint32

	// Threads bounds intra-op parallelism where the backend supports it.
	Threads int

	// Capability overrides the backend's built-in capability when non-nil,
	// typically loaded from a capability file.
	Capability *Capability

	// Exporter serializes claimed regions for delegate backends.
	Exporter Exporter
}

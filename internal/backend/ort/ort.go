// Package ort implements the accelerator delegate backend: claimed regions
// are serialized through an injected exporter and executed by ONNX Runtime
// sessions loaded via purego bindings.
package ort

import (
	"context"
	"errors"
	"fmt"
	"os"

	ortrt "github.com/shota3506/onnxruntime-purego/onnxruntime"

	"github.com/example/go-graphsplit/internal/backend"
	"github.com/example/go-graphsplit/internal/graph"
	"github.com/example/go-graphsplit/internal/tensor"
)

// Name is the backend's registry name.
const Name = "ort"

// defaultAPIVersion is the ORT C API revision the bindings target.
const defaultAPIVersion = 23

func init() {
	backend.Register(Name, func(cfg backend.Config) (backend.Backend, error) {
		return New(cfg)
	})
}

// Backend compiles regions into ONNX Runtime sessions.
type Backend struct {
	libraryPath string
	apiVersion  uint32
	exporter    backend.Exporter
	capability  backend.Capability
}

// New creates an ORT backend. An exporter is required; without one there is
// no way to hand a region to the runtime.
func New(cfg backend.Config) (*Backend, error) {
	if cfg.Exporter == nil {
		return nil, errors.New("ort: an exporter is required to serialize claimed regions")
	}

	apiVersion := cfg.APIVersion
	if apiVersion == 0 {
		apiVersion = defaultAPIVersion
	}

	capability := defaultCapability()
	if cfg.Capability != nil {
		capability = *cfg.Capability
	}

	return &Backend{
		libraryPath: cfg.LibraryPath,
		apiVersion:  apiVersion,
		exporter:    cfg.Exporter,
		capability:  capability,
	}, nil
}

func (b *Backend) Name() string { return Name }

func (b *Backend) Capability() backend.Capability { return b.capability }

func defaultCapability() backend.Capability {
	return backend.NewCapability(
		[]string{"Add", "Sub", "Mul", "Div", "MatMul", "Relu", "Softmax", "Identity", "If", "Loop", "Cast", "Squeeze", "Unsqueeze"},
		[]tensor.DType{tensor.Float32, tensor.Int64},
	)
}

// Compile exports the graph and loads it into a session. The returned plan
// owns the runtime, environment, session and the exported model directory.
func (b *Backend) Compile(_ context.Context, g *graph.Graph) (backend.Plan, error) {
	dir, err := os.MkdirTemp("", "graphsplit-ort-")
	if err != nil {
		return nil, fmt.Errorf("ort: temp dir for %q: %w", g.Name(), err)
	}

	path, err := b.exporter.Export(g, dir)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("ort: export %q: %w", g.Name(), err)
	}

	runtime, err := ortrt.NewRuntime(b.libraryPath, b.apiVersion)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, fmt.Errorf("ort: runtime for %q: %w", g.Name(), err)
	}

	env, err := runtime.NewEnv("graphsplit-"+g.Name(), ortrt.LoggingLevelWarning)
	if err != nil {
		_ = runtime.Close()
		_ = os.RemoveAll(dir)

		return nil, fmt.Errorf("ort: env for %q: %w", g.Name(), err)
	}

	session, err := runtime.NewSession(env, path, nil)
	if err != nil {
		env.Close()
		_ = runtime.Close()
		_ = os.RemoveAll(dir)

		return nil, fmt.Errorf("ort: session for %q (%s): %w", g.Name(), path, err)
	}

	return &plan{
		name:    g.Name(),
		dir:     dir,
		runtime: runtime,
		env:     env,
		session: session,
	}, nil
}

// plan wraps an ORT session for one compiled region.
type plan struct {
	name    string
	dir     string
	runtime *ortrt.Runtime
	env     *ortrt.Env
	session *ortrt.Session
}

func (p *plan) Run(ctx context.Context, inputs map[string]*tensor.Tensor) (map[string]*tensor.Tensor, error) {
	ortInputs := make(map[string]*ortrt.Value, len(inputs))

	for name, t := range inputs {
		v, err := tensorToORT(p.runtime, t)
		if err != nil {
			closeORTValues(ortInputs)
			return nil, fmt.Errorf("ort: input %q: %w", name, err)
		}

		ortInputs[name] = v
	}

	defer closeORTValues(ortInputs)

	ortOutputs, err := p.session.Run(ctx, ortInputs)
	if err != nil {
		return nil, fmt.Errorf("ort: run %q: %w", p.name, err)
	}
	defer closeORTValues(ortOutputs)

	results := make(map[string]*tensor.Tensor, len(ortOutputs))

	for name, v := range ortOutputs {
		t, err := ortToTensor(v)
		if err != nil {
			return nil, fmt.Errorf("ort: output %q: %w", name, err)
		}

		results[name] = t
	}

	return results, nil
}

// Close releases all session resources. Safe to call multiple times.
func (p *plan) Close() {
	if p.session != nil {
		p.session.Close()
		p.session = nil
	}

	if p.env != nil {
		p.env.Close()
		p.env = nil
	}

	if p.runtime != nil {
		_ = p.runtime.Close()
		p.runtime = nil
	}

	if p.dir != "" {
		_ = os.RemoveAll(p.dir)
		p.dir = ""
	}
}

func tensorToORT(runtime *ortrt.Runtime, t *tensor.Tensor) (*ortrt.Value, error) {
	switch t.DType() {
	case tensor.Float32:
		data, err := t.Float32s()
		if err != nil {
			return nil, err
		}

		return ortrt.NewTensorValue(runtime, data, t.Shape())
	case tensor.Int64:
		data, err := t.Int64s()
		if err != nil {
			return nil, err
		}

		return ortrt.NewTensorValue(runtime, data, t.Shape())
	default:
		return nil, fmt.Errorf("unsupported tensor dtype %s", t.DType())
	}
}

func ortToTensor(v *ortrt.Value) (*tensor.Tensor, error) {
	elemType, err := v.GetTensorElementType()
	if err != nil {
		return nil, fmt.Errorf("get element type: %w", err)
	}

	switch elemType {
	case ortrt.ONNXTensorElementDataTypeFloat:
		data, shape, err := ortrt.GetTensorData[float32](v)
		if err != nil {
			return nil, err
		}

		return tensor.NewFloat32(data, shape)
	case ortrt.ONNXTensorElementDataTypeInt64:
		data, shape, err := ortrt.GetTensorData[int64](v)
		if err != nil {
			return nil, err
		}

		return tensor.NewInt64(data, shape)
	default:
		return nil, fmt.Errorf("unsupported ORT element type %d", elemType)
	}
}

func closeORTValues(vals map[string]*ortrt.Value) {
	for _, v := range vals {
		if v != nil {
			v.Close()
		}
	}
}

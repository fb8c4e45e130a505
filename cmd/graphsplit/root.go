package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/go-graphsplit/internal/backend"
	"github.com/example/go-graphsplit/internal/config"
	"github.com/example/go-graphsplit/internal/engine"
	"github.com/example/go-graphsplit/internal/graph"
	"github.com/example/go-graphsplit/internal/model"

	// Backend packages register their factories from init.
	_ "github.com/example/go-graphsplit/internal/backend/cpu"
	_ "github.com/example/go-graphsplit/internal/backend/ort"
)

var (
	cfgFile   string
	activeCfg config.Config
)

func NewRootCmd() *cobra.Command {
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "graphsplit",
		Short: "Graph partitioning for heterogeneous inference backends",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load(config.LoadOptions{
				Cmd:        cmd,
				ConfigFile: cfgFile,
				Defaults:   defaults,
			})
			if err != nil {
				return err
			}
			activeCfg = loaded
			setupLogger(loaded.LogLevel)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Optional config file (yaml|toml|json)")
	config.RegisterFlags(cmd.PersistentFlags(), defaults)

	cmd.AddCommand(newInspectCmd())
	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newPartitionCmd())
	cmd.AddCommand(newRunCmd())

	return cmd
}

// setupLogger configures the process-wide slog default logger.
func setupLogger(levelStr string) {
	lvl, err := config.ParseLogLevel(levelStr)
	if err != nil {
		lvl = slog.LevelInfo
	}
	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(h))
}

func requireConfig() (config.Config, error) {
	if activeCfg.Paths.ModelPath == "" {
		return config.Config{}, fmt.Errorf("configuration not loaded")
	}
	return activeCfg, nil
}

// loadModel reads the configured model graph and its weights.
func loadModel(cfg config.Config) (*graph.Graph, error) {
	return model.Load(cfg.Paths.ModelPath, cfg.Paths.WeightsPath)
}

// modelExporter serializes claimed regions in the module's JSON graph
// format. Runtimes that need another serialization are handed the region
// through their own exporter; with this one a runtime that cannot read the
// format fails the region's compile and the engine falls back to the CPU.
type modelExporter struct{}

func (modelExporter) Export(g *graph.Graph, dir string) (string, error) {
	path := dir + "/" + g.Name() + ".json"
	if err := model.Save(g, path, ""); err != nil {
		return "", err
	}

	return path, nil
}

// buildEngine constructs the accelerator set from config and wraps it in an
// engine. The CPU backend is implicit.
func buildEngine(cfg config.Config) (*engine.Engine, error) {
	var capabilities map[string]backend.Capability

	if cfg.Paths.CapabilityPath != "" {
		loaded, err := backend.LoadCapabilities(cfg.Paths.CapabilityPath)
		if err != nil {
			return nil, err
		}

		capabilities = loaded
	}

	accelerators := make([]backend.Backend, 0, len(cfg.Runtime.Backends))

	for _, name := range cfg.Runtime.Backends {
		if name == config.BackendCPU {
			// Implicit and always last.
			continue
		}

		bcfg := backend.Config{
			LibraryPath: cfg.Runtime.ORTLibraryPath,
			APIVersion:  cfg.Runtime.ORTVersion,
			Threads:     cfg.Runtime.Threads,
			Exporter:    modelExporter{},
		}

		if c, ok := capabilities[name]; ok {
			bcfg.Capability = &c
		}

		b, err := backend.New(name, bcfg)
		if err != nil {
			return nil, err
		}

		accelerators = append(accelerators, b)
	}

	return engine.New(accelerators), nil
}

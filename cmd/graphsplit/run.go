package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/example/go-graphsplit/internal/model"
	"github.com/example/go-graphsplit/internal/tensor"
)

// inputsFile is the document the run command reads its feed from: tensor
// names mapped to inline tensor specs.
type inputsFile struct {
	Inputs map[string]model.TensorSpec `json:"inputs"`
}

func newRunCmd() *cobra.Command {
	var inputsPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Partition the model and execute it with the given inputs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			inputs, err := readInputs(inputsPath)
			if err != nil {
				return err
			}

			g, err := loadModel(cfg)
			if err != nil {
				return err
			}

			eng, err := buildEngine(cfg)
			if err != nil {
				return err
			}

			prepared, err := eng.Prepare(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer prepared.Close()

			outputs, err := prepared.Run(cmd.Context(), inputs)
			if err != nil {
				return err
			}

			return printOutputs(cmd, outputs)
		},
	}

	cmd.Flags().StringVar(&inputsPath, "inputs", "", "JSON file with the input tensors")
	_ = cmd.MarkFlagRequired("inputs")

	return cmd
}

func readInputs(path string) (map[string]*tensor.Tensor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read inputs file: %w", err)
	}

	var file inputsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse inputs file %s: %w", path, err)
	}

	if len(file.Inputs) == 0 {
		return nil, fmt.Errorf("inputs file %s declares no tensors", path)
	}

	out := make(map[string]*tensor.Tensor, len(file.Inputs))

	for name, spec := range file.Inputs {
		t, err := model.TensorFromSpec(&spec)
		if err != nil {
			return nil, fmt.Errorf("input %q: %w", name, err)
		}

		out[name] = t
	}

	return out, nil
}

func printOutputs(cmd *cobra.Command, outputs map[string]*tensor.Tensor) error {
	names := make([]string, 0, len(outputs))
	for name := range outputs {
		names = append(names, name)
	}

	sort.Strings(names)

	doc := map[string]*model.TensorSpec{}

	for _, name := range names {
		spec, err := model.TensorToSpec(outputs[name])
		if err != nil {
			return fmt.Errorf("output %q: %w", name, err)
		}

		doc[name] = spec
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")

	return enc.Encode(map[string]any{"outputs": doc})
}

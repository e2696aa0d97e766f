package cmd

import (
	"os"

	"gopkg.in/yaml.v3"
)

// RunConfig is the YAML overlay for run parameters: CLI flags set the
// defaults, an optional --config file overrides any of them by name.
type RunConfig struct {
	Rows      int     `yaml:"rows"`
	Cols      int     `yaml:"cols"`
	NumRanks  int     `yaml:"num_ranks"`
	BlockSize int     `yaml:"block_size"`
	Beta      float64 `yaml:"beta"`
	Gamma     float64 `yaml:"gamma"`
	DT        float64 `yaml:"dt"`
	Steps     int     `yaml:"steps"`
	W         float64 `yaml:"mixing_weight"`
	Input     string  `yaml:"input"`
	Output    string  `yaml:"output"`
}

// loadRunConfig reads a YAML file and overlays its non-zero fields onto
// base, returning the merged config.
func loadRunConfig(path string, base RunConfig) (RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, err
	}
	var overlay RunConfig
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return base, err
	}
	merged := base
	if overlay.Rows != 0 {
		merged.Rows = overlay.Rows
	}
	if overlay.Cols != 0 {
		merged.Cols = overlay.Cols
	}
	if overlay.NumRanks != 0 {
		merged.NumRanks = overlay.NumRanks
	}
	if overlay.BlockSize != 0 {
		merged.BlockSize = overlay.BlockSize
	}
	if overlay.Beta != 0 {
		merged.Beta = overlay.Beta
	}
	if overlay.Gamma != 0 {
		merged.Gamma = overlay.Gamma
	}
	if overlay.DT != 0 {
		merged.DT = overlay.DT
	}
	if overlay.Steps != 0 {
		merged.Steps = overlay.Steps
	}
	if overlay.W != 0 {
		merged.W = overlay.W
	}
	if overlay.Input != "" {
		merged.Input = overlay.Input
	}
	if overlay.Output != "" {
		merged.Output = overlay.Output
	}
	return merged, nil
}

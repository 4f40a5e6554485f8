package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the optional ctcheck configuration file. Every field has a
// matching flag; flags set on the command line win over the file.
type Config struct {
	// PrintCommands echoes recognized runtime commands to the diagnostic
	// stream.
	PrintCommands bool `yaml:"print_commands"`

	// Output is where diagnostics go: a file path, or empty for stderr.
	Output string `yaml:"output"`

	// MaxStackDepth bounds stack traces attached to diagnostics.
	MaxStackDepth int `yaml:"max_stack_depth"`
}

// loadConfig reads and parses the YAML configuration at path. A missing
// file is an error only when the path was given explicitly.
func loadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

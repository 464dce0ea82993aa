// Package config holds the runtime configuration shared by all commands
// and the optional specdeploy.yaml defaults file.
package config

import (
	"os"

	dserrors "github.com/systmms/specdeploy/internal/errors"
	"github.com/systmms/specdeploy/internal/logging"
	"gopkg.in/yaml.v3"
)

// Built-in defaults, overridable by specdeploy.yaml and then by flags.
const (
	DefaultRegion              = "us-east-1"
	DefaultDownloadRuleTable   = "spec-download-rule"
	DefaultEnrichmentRuleTable = "spec-enrichment-rule"
	DefaultInputRoot           = "input"
)

// Config holds the runtime configuration
type Config struct {
	Path   string
	Logger *logging.Logger

	Defaults Defaults
}

// Defaults is the specdeploy.yaml structure.
type Defaults struct {
	Region              string `yaml:"region"`
	DownloadRuleTable   string `yaml:"download_rule_table"`
	EnrichmentRuleTable string `yaml:"enrichment_rule_table"`
	InputRoot           string `yaml:"input_root"`
	ArtifactRoot        string `yaml:"artifact_root"`
}

// Load reads the defaults file at Path. A missing file is not an error:
// built-in defaults apply.
func (c *Config) Load() error {
	c.Defaults = Defaults{
		Region:              DefaultRegion,
		DownloadRuleTable:   DefaultDownloadRuleTable,
		EnrichmentRuleTable: DefaultEnrichmentRuleTable,
		InputRoot:           DefaultInputRoot,
		ArtifactRoot:        ".",
	}

	if c.Path == "" {
		return nil
	}

	data, err := os.ReadFile(c.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return dserrors.ConfigError{
			File:    c.Path,
			Message: err.Error(),
		}
	}

	var loaded Defaults
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return dserrors.ConfigError{
			File:       c.Path,
			Message:    "invalid YAML: " + err.Error(),
			Suggestion: "Check for indentation errors and missing quotes",
		}
	}

	if loaded.Region != "" {
		c.Defaults.Region = loaded.Region
	}
	if loaded.DownloadRuleTable != "" {
		c.Defaults.DownloadRuleTable = loaded.DownloadRuleTable
	}
	if loaded.EnrichmentRuleTable != "" {
		c.Defaults.EnrichmentRuleTable = loaded.EnrichmentRuleTable
	}
	if loaded.InputRoot != "" {
		c.Defaults.InputRoot = loaded.InputRoot
	}
	if loaded.ArtifactRoot != "" {
		c.Defaults.ArtifactRoot = loaded.ArtifactRoot
	}

	return nil
}

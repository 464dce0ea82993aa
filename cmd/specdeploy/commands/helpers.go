package commands

import (
	"path/filepath"

	"github.com/systmms/specdeploy/internal/config"
)

// resolveInputDir picks the input directory from either the full-path
// flag or the input-root shorthand.
func resolveInputDir(inputDir, inputName string, cfg *config.Config) string {
	if inputDir != "" {
		return inputDir
	}
	return filepath.Join(cfg.Defaults.InputRoot, inputName)
}

// valueOr returns value unless it is empty, in which case it falls back
// to the configured default.
func valueOr(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

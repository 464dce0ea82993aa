// Package inputs loads the JSON documents describing one deployment unit
// from a local input directory: the client object, the environments
// object, and the two flat rule arrays.
package inputs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	dserrors "github.com/systmms/specdeploy/internal/errors"
)

// Input file names expected inside the input directory.
const (
	ClientFile          = "client.json"
	EnvironmentsFile    = "environments.json"
	DownloadRulesFile   = "download_rules.json"
	EnrichmentRulesFile = "enrichment_rules.json"
)

// Loader reads deployment inputs from one directory.
type Loader struct {
	dir string
}

// NewLoader creates a loader rooted at dir.
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir}
}

// Dir returns the input directory.
func (l *Loader) Dir() string {
	return l.dir
}

// CheckDir verifies the input directory exists.
func (l *Loader) CheckDir() error {
	info, err := os.Stat(l.dir)
	if err != nil || !info.IsDir() {
		return dserrors.ConfigError{
			Message:    fmt.Sprintf("input directory '%s' does not exist", l.dir),
			Suggestion: "Pass --input-dir with the directory holding client.json and environments.json",
		}
	}
	return nil
}

// LoadClient reads client.json and returns the raw client object plus its
// required tag field.
func (l *Loader) LoadClient() (map[string]interface{}, string, error) {
	var client map[string]interface{}
	if err := l.readJSON(ClientFile, &client); err != nil {
		return nil, "", err
	}

	tag, ok := client["tag"].(string)
	if !ok || tag == "" {
		return nil, "", dserrors.ConfigError{
			File:       ClientFile,
			Field:      "tag",
			Message:    "'tag' field is missing",
			Suggestion: "Add a short namespace token, e.g. {\"tag\": \"acme\"}",
		}
	}
	return client, tag, nil
}

// LoadEnvironments reads environments.json: a mapping from symbolic
// environment key to environment object.
func (l *Loader) LoadEnvironments() (map[string]map[string]interface{}, error) {
	var raw map[string]interface{}
	if err := l.readJSON(EnvironmentsFile, &raw); err != nil {
		return nil, err
	}

	envs := make(map[string]map[string]interface{}, len(raw))
	for key, value := range raw {
		env, ok := value.(map[string]interface{})
		if !ok {
			return nil, dserrors.ConfigError{
				File:    EnvironmentsFile,
				Field:   key,
				Message: "environment entry must be a JSON object",
			}
		}
		if _, ok := env["tag"].(string); !ok {
			return nil, dserrors.ConfigError{
				File:    EnvironmentsFile,
				Field:   key,
				Message: "environment is missing its 'tag' field",
			}
		}
		envs[key] = env
	}
	return envs, nil
}

// LoadDownloadRules reads download_rules.json, which must be a flat JSON
// array. Record shapes are validated later, per invocation, after the
// pipeline filter is applied.
func (l *Loader) LoadDownloadRules() ([]interface{}, error) {
	return l.readArray(DownloadRulesFile)
}

// LoadEnrichmentRules reads enrichment_rules.json, which must be a flat
// JSON array.
func (l *Loader) LoadEnrichmentRules() ([]interface{}, error) {
	return l.readArray(EnrichmentRulesFile)
}

// ExtractSecrets removes the "secret" mapping from an environment object
// and returns it. The stored environment config never carries secret
// material; extracted values are redirected to the parameter store.
func ExtractSecrets(env map[string]interface{}) (map[string]string, error) {
	raw, ok := env["secret"]
	if !ok {
		return nil, nil
	}
	delete(env, "secret")

	mapping, ok := raw.(map[string]interface{})
	if !ok {
		return nil, dserrors.ConfigError{
			File:    EnvironmentsFile,
			Field:   "secret",
			Message: "'secret' must be a mapping of secret name to value",
		}
	}

	secrets := make(map[string]string, len(mapping))
	for name, value := range mapping {
		s, ok := value.(string)
		if !ok {
			return nil, dserrors.ConfigError{
				File:    EnvironmentsFile,
				Field:   "secret." + name,
				Message: "secret values must be strings",
			}
		}
		secrets[name] = s
	}
	return secrets, nil
}

func (l *Loader) readJSON(name string, out interface{}) error {
	path := filepath.Join(l.dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		return dserrors.ConfigError{
			File:       name,
			Message:    fmt.Sprintf("required file not found in '%s'", l.dir),
			Suggestion: "Check the input directory layout",
		}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return dserrors.ConfigError{
			File:    name,
			Message: fmt.Sprintf("invalid JSON: %v", err),
		}
	}
	return nil
}

func (l *Loader) readArray(name string) ([]interface{}, error) {
	var raw interface{}
	if err := l.readJSON(name, &raw); err != nil {
		return nil, err
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil, dserrors.ConfigError{
			File:    name,
			Message: "file must contain a JSON array",
		}
	}
	return list, nil
}

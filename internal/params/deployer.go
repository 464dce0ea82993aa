// Package params serializes client and environment configuration blobs
// and writes them, plus each extracted secret, to the parameter store
// under the /spec/enrichment path scheme. In dry-run mode the same
// payloads go to local artifact files instead.
package params

import (
	"context"
	"encoding/json"
	"fmt"

	dserrors "github.com/systmms/specdeploy/internal/errors"
	"github.com/systmms/specdeploy/internal/dryrun"
	"github.com/systmms/specdeploy/internal/logging"
	"github.com/systmms/specdeploy/internal/secure"
	"github.com/systmms/specdeploy/pkg/paramstore"
)

// Deployer writes configuration blobs and secrets. When Artifacts is set
// the run is a dry run: payloads are written locally and the store is
// never touched.
type Deployer struct {
	Store     paramstore.Store
	Artifacts *dryrun.Writer
	Logger    *logging.Logger
}

// DryRun reports whether this deployer writes artifacts instead of store
// entries.
func (d *Deployer) DryRun() bool {
	return d.Artifacts != nil
}

// DeployClientConfig writes the client configuration blob. A failure here
// is fatal to the whole run: environments have no identity to deploy
// under without it.
func (d *Deployer) DeployClientConfig(ctx context.Context, clientID string, config map[string]interface{}) error {
	name := paramstore.ClientConfigPath(clientID)

	if d.DryRun() {
		d.Logger.Info("Would create client parameter: %s", name)
		return d.Artifacts.WriteJSON("client_config.json", config)
	}

	blob, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to serialize client config: %w", err)
	}
	if err := d.Store.Put(ctx, name, string(blob), paramstore.Plain); err != nil {
		return dserrors.WriteError{Target: name, Err: err}
	}

	d.Logger.Info("Created client parameter: %s", name)
	return nil
}

// DeployEnvConfig writes one environment's configuration blob. Failures
// are returned for the caller to record; sibling environments continue.
func (d *Deployer) DeployEnvConfig(ctx context.Context, clientID, envKey, envID string, config map[string]interface{}) error {
	name := paramstore.EnvConfigPath(clientID, envID)

	if d.DryRun() {
		d.Logger.Info("Would create environment parameter: %s", name)
		return d.Artifacts.WriteJSON(fmt.Sprintf("environment_%s_config.json", envKey), config)
	}

	blob, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to serialize environment config for %s: %w", envKey, err)
	}
	if err := d.Store.Put(ctx, name, string(blob), paramstore.Plain); err != nil {
		return dserrors.WriteError{Target: name, Err: err}
	}

	d.Logger.Info("Created environment parameter: %s", name)
	return nil
}

// DeploySecrets writes each secret in the bundle as its own SecureString
// parameter. A failure writing one secret does not abort the rest; all
// failures are returned together.
func (d *Deployer) DeploySecrets(ctx context.Context, clientID, envKey, envID string, bundle *secure.Bundle) (int, []error) {
	if bundle == nil || bundle.Len() == 0 {
		return 0, nil
	}

	if d.DryRun() {
		values, err := bundle.RevealAll()
		if err != nil {
			return 0, []error{err}
		}
		for _, name := range bundle.Names() {
			d.Logger.Info("Would create secret parameter: %s", paramstore.SecretPath(clientID, envID, name))
		}
		if err := d.Artifacts.WriteJSON(fmt.Sprintf("environment_%s_secrets.json", envKey), values); err != nil {
			return 0, []error{err}
		}
		return bundle.Len(), nil
	}

	written := 0
	var failures []error
	for _, name := range bundle.Names() {
		path := paramstore.SecretPath(clientID, envID, name)

		value, err := bundle.Reveal(name)
		if err != nil {
			failures = append(failures, dserrors.WriteError{Target: path, Err: err})
			continue
		}
		d.Logger.Debug("Deploying secret %s with value %s", name, logging.Secret(value))

		if err := d.Store.Put(ctx, path, value, paramstore.Secret); err != nil {
			failures = append(failures, dserrors.WriteError{Target: path, Err: err})
			continue
		}
		written++
		d.Logger.Info("Created secret parameter: %s", path)
	}
	return written, failures
}

package paramstore

import "fmt"

// Path scheme for the /spec/enrichment namespace. Every blob this engine
// writes lives under one client's subtree.
const pathRoot = "/spec/enrichment/clients"

// ClientConfigPath returns the path of a client's configuration blob.
func ClientConfigPath(clientID string) string {
	return fmt.Sprintf("%s/%s/config", pathRoot, clientID)
}

// EnvConfigPath returns the path of one environment's configuration blob.
func EnvConfigPath(clientID, envID string) string {
	return fmt.Sprintf("%s/%s/envs/%s/config", pathRoot, clientID, envID)
}

// SecretPath returns the path at which one extracted secret lives. This
// is also the value rewritten into connections that reference the secret
// symbolically.
func SecretPath(clientID, envID, name string) string {
	return fmt.Sprintf("%s/%s/envs/%s/secrets/%s", pathRoot, clientID, envID, name)
}

package paramstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaths(t *testing.T) {
	assert.Equal(t,
		"/spec/enrichment/clients/acme-cid-01/config",
		ClientConfigPath("acme-cid-01"))
	assert.Equal(t,
		"/spec/enrichment/clients/acme-cid-01/envs/acme-prod-02/config",
		EnvConfigPath("acme-cid-01", "acme-prod-02"))
	assert.Equal(t,
		"/spec/enrichment/clients/acme-cid-01/envs/acme-prod-02/secrets/db_password",
		SecretPath("acme-cid-01", "acme-prod-02", "db_password"))
}

package logging

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSecretNeverPrintsItsValue(t *testing.T) {
	s := Secret("hunter2")
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%s", s))
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%#v", s))
}

func TestRedact(t *testing.T) {
	t.Run("replaces secrets", func(t *testing.T) {
		out := Redact("writing hunter2 to /spec/enrichment", []string{"hunter2"})
		assert.Equal(t, "writing [REDACTED] to /spec/enrichment", out)
	})

	t.Run("skips trivially short values", func(t *testing.T) {
		out := Redact("port 443 open", []string{"443", ""})
		assert.Equal(t, "port 443 open", out)
	})

	t.Run("multiple secrets", func(t *testing.T) {
		out := Redact("a=alpha b=bravo", []string{"alpha", "bravo"})
		assert.Equal(t, "a=[REDACTED] b=[REDACTED]", out)
	})
}

package identity

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// IDSource supplies the random components of generated identifiers.
// Deployments use the crypto/rand-backed RandomSource; tests inject a
// deterministic implementation so dry-run and live artifacts can be
// compared byte for byte.
type IDSource interface {
	// Hex16 returns 16 lowercase hex characters (8 random bytes).
	Hex16() string

	// BatchGUID returns the shared identifier for one rule batch.
	BatchGUID() string
}

// RandomSource is the production IDSource.
type RandomSource struct{}

// NewRandomSource returns an IDSource backed by crypto/rand and uuid.
func NewRandomSource() RandomSource {
	return RandomSource{}
}

// Hex16 returns 16 random hex characters.
func (RandomSource) Hex16() string {
	var buf [8]byte
	// rand.Read on the crypto reader never fails on supported platforms.
	if _, err := rand.Read(buf[:]); err != nil {
		panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
	}
	return hex.EncodeToString(buf[:])
}

// BatchGUID returns a random UUID string.
func (RandomSource) BatchGUID() string {
	return uuid.NewString()
}

// NewID builds a generated identifier of the form {tag}-{label}-{hex16}.
// Labels in use: "cid" for clients, "con" for connections, "pipe" for
// pipelines, and the environment's own tag for environments.
func NewID(tag, label string, src IDSource) string {
	return fmt.Sprintf("%s-%s-%s", tag, label, src.Hex16())
}

package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// The version suffix enables future algorithm migration.
const (
	DomainAtom     = "lattice/atom/v1"
	DomainRegistry = "lattice/registry/v1"
)

// HashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain || 0x00 || data). The null separator prevents
// domain/data boundary ambiguity.
func HashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ContentHash computes the content-addressed hash of an atom's content.
// Stable across restarts and encoders given equal content.
func ContentHash(content map[string]any) (string, error) {
	data, err := Marshal(content)
	if err != nil {
		return "", fmt.Errorf("content hash: %w", err)
	}
	return HashWithDomain(DomainAtom, data), nil
}

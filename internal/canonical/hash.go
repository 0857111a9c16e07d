package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity. The version suffix allows
// the algorithm to change without colliding with old digests.
const (
	DomainSweep  = "pfemrun/sweep/v1"
	DomainBundle = "pfemrun/bundle/v1"
	DomainInput  = "pfemrun/input/v1"
)

// hashWithDomain computes SHA256(domain || 0x00 || data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Digest returns the domain separated digest of v's canonical encoding.
func Digest(domain string, v any) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", fmt.Errorf("digest %s: %w", domain, err)
	}
	return hashWithDomain(domain, data), nil
}

// DigestBytes returns the domain separated digest of raw bytes, used for
// file contents.
func DigestBytes(domain string, data []byte) string {
	return hashWithDomain(domain, data)
}

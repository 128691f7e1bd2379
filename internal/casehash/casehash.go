// Package casehash derives one-way fingerprints of case identifiers.
//
// Case ids are low-entropy (sequential docket numbers), so an unsalted hash
// would fall to simple enumeration. The fingerprint is argon2id keyed by a
// deployment-wide salt: equal case ids map to equal fingerprints within one
// deployment, which keeps evidence groupable by case without the raw id
// ever being stored.
package casehash

import (
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/crypto/argon2"
)

// argon2id parameters, the library's recommended interactive defaults.
const (
	timeCost   = 1
	memoryCost = 64 * 1024 // KiB
	threads    = 4
	keyLen     = 32
)

// Fingerprint returns the hex argon2id fingerprint of caseID under salt.
// Deterministic for a fixed salt; different salts yield unrelated values.
func Fingerprint(caseID string, salt []byte) string {
	key := argon2.IDKey([]byte(caseID), salt, timeCost, memoryCost, threads, keyLen)
	return hex.EncodeToString(key)
}

// Salt derives a fixed-length salt from an operator-supplied secret string,
// so configuration can carry an arbitrary passphrase.
func Salt(secret string) []byte {
	sum := sha256.Sum256([]byte(secret))
	return sum[:16]
}

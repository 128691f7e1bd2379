// Package integrity implements the content-hash check that detects
// tampering of an evidence artifact.
//
// The check is three-valued: a stored artifact either matches the hash
// recorded at evidence creation (verified), differs from it (tampered), or
// cannot be checked because the hash or the artifact is absent
// (unavailable). "Cannot verify" must never read as "tampered".
package integrity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/evidlock/custodyledger/internal/artifact"
)

// Outcome classifies an integrity check.
type Outcome string

const (
	OutcomeVerified    Outcome = "verified"
	OutcomeTampered    Outcome = "tampered"
	OutcomeUnavailable Outcome = "unavailable"
)

// Digest returns the hex SHA-256 digest of data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Matches reports whether data hashes to recordedHash. Hex digests compare
// case-insensitively.
func Matches(recordedHash string, data []byte) bool {
	return strings.EqualFold(recordedHash, Digest(data))
}

// Report is the result of checking a stored artifact against the hash
// recorded on an evidence record.
type Report struct {
	Outcome      Outcome `json:"outcome"`
	RecordedHash string  `json:"recordedHash,omitempty"`
	ComputedHash string  `json:"computedHash,omitempty"`
	Detail       string  `json:"detail,omitempty"`
}

// Verifier checks stored artifacts against recorded hashes.
type Verifier struct {
	artifacts artifact.Store
}

// NewVerifier creates a Verifier reading from the given artifact store.
func NewVerifier(artifacts artifact.Store) *Verifier {
	return &Verifier{artifacts: artifacts}
}

// Verify fetches the artifact stored under key and compares its digest with
// recordedHash. A missing hash or missing artifact yields an unavailable
// report, not an error; errors are reserved for store failures.
func (v *Verifier) Verify(ctx context.Context, key, recordedHash string) (Report, error) {
	if recordedHash == "" {
		return Report{Outcome: OutcomeUnavailable, Detail: "no image hash recorded"}, nil
	}

	_, rc, err := v.artifacts.Get(ctx, key)
	if errors.Is(err, artifact.ErrNotFound) {
		return Report{
			Outcome:      OutcomeUnavailable,
			RecordedHash: recordedHash,
			Detail:       "artifact not held in local store",
		}, nil
	}
	if err != nil {
		return Report{}, fmt.Errorf("fetch artifact: %w", err)
	}
	defer rc.Close() //nolint:errcheck

	data, err := io.ReadAll(rc)
	if err != nil {
		return Report{}, fmt.Errorf("read artifact: %w", err)
	}

	report := Report{RecordedHash: recordedHash, ComputedHash: Digest(data)}
	if strings.EqualFold(report.RecordedHash, report.ComputedHash) {
		report.Outcome = OutcomeVerified
	} else {
		report.Outcome = OutcomeTampered
	}
	return report, nil
}

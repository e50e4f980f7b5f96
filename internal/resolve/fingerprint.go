package resolve

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/stacklok/content-mirror/internal/content"
)

// fingerprintDomain separates resolution fingerprints from any other hash of the same bytes
const fingerprintDomain = "content-mirror.resolve.v1"

// Fingerprint identifies an exact resolution input
type Fingerprint [sha256.Size]byte

func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// FingerprintOf hashes the canonical JSON encoding of records. Map keys are sorted by the
// encoder and slice order is kept, so any change to an identifier, a field value or the
// order of records yields a different fingerprint.
func FingerprintOf(records []content.Record) (Fingerprint, error) {
	h := sha256.New()
	h.Write([]byte(fingerprintDomain))
	h.Write([]byte{0})

	if records == nil {
		records = []content.Record{}
	}
	if err := json.NewEncoder(h).Encode(records); err != nil {
		return Fingerprint{}, err
	}

	var fp Fingerprint
	copy(fp[:], h.Sum(nil))
	return fp, nil
}

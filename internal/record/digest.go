package record

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// DigestDomain prefixes every record digest. The version suffix allows
// the algorithm to change without colliding with older digests.
const DigestDomain = "offstore/record/v1"

// Digest computes the content identity of rec.
//
// Format: hex(SHA256(DigestDomain + 0x00 + canonical(NFC(rec)))).
// Keys and string values are NFC-normalized before encoding, so
// canonically equivalent records share a digest. When two keys normalize
// to the same key, the one sorting last wins.
//
// Returns an error if rec cannot be canonically marshaled.
func Digest(rec Record) (string, error) {
	normalized := make(Record, len(rec))
	for _, k := range rec.SortedKeys() {
		v := rec[k]
		if s, ok := v.(String); ok {
			v = String(norm.NFC.String(string(s)))
		}
		normalized[norm.NFC.String(k)] = v
	}

	data, err := MarshalCanonical(normalized)
	if err != nil {
		return "", fmt.Errorf("digest: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(DigestDomain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}

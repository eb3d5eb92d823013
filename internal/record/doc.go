// Package record defines the values and rows that flow through offstore.
//
// A Record is a flat mapping from field name to a scalar Value. Only
// strings, integers, floats and booleans are representable; nested
// objects, arrays and null are rejected at the boundary so that every
// backend can persist and compare records the same way.
//
// # Canonical Encoding
//
// Records are serialized with MarshalCanonical:
//   - keys sorted by UTF-16 code units
//   - no HTML escaping
//   - strings kept byte for byte; invalid UTF-8 is rejected
//   - floats always carry a fraction or exponent so they decode as Float
//
// Equal records therefore encode to identical bytes, which is what the
// embedded backend relies on for exact-match index lookups. Distinct byte
// sequences stay distinct: "cafe\u0301" and "caf\u00e9" are different values.
//
// # Digests
//
// Digest is the content identity of a record. It hashes the NFC form of
// the canonical encoding, so records that differ only in Unicode
// normalization share a digest even though they are stored and matched
// as different values.
package record

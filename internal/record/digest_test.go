package record

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigest_Format(t *testing.T) {
	rec := Record{"species": String("grouper"), "uuid": String("id-000001")}
	got, err := Digest(rec)
	require.NoError(t, err)

	sum := sha256.Sum256([]byte(DigestDomain + "\x00" + `{"species":"grouper","uuid":"id-000001"}`))
	assert.Equal(t, hex.EncodeToString(sum[:]), got)
	assert.Len(t, got, 64)
}

func TestDigest_CanonicallyEquivalentRecordsMatch(t *testing.T) {
	decomposed, err := Digest(Record{"name": String("Jose\u0301"), "cafe\u0301": Int(1)})
	require.NoError(t, err)
	composed, err := Digest(Record{"name": String("Jos\u00e9"), "caf\u00e9": Int(1)})
	require.NoError(t, err)
	assert.Equal(t, composed, decomposed)
}

func TestDigest_SensitiveToTypeAndValue(t *testing.T) {
	a, err := Digest(Record{"n": Int(1)})
	require.NoError(t, err)
	b, err := Digest(Record{"n": Float(1)})
	require.NoError(t, err)
	c, err := Digest(Record{"n": String("1")})
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, b, c)
}

func TestDigest_DoesNotModifyRecord(t *testing.T) {
	rec := Record{"name": String("Jose\u0301")}
	_, err := Digest(rec)
	require.NoError(t, err)
	assert.Equal(t, String("Jose\u0301"), rec["name"])
}

func TestDigest_RejectsInvalidUTF8(t *testing.T) {
	_, err := Digest(Record{"name": String("bad\xff")})
	assert.ErrorIs(t, err, ErrInvalidUTF8)
}

package codec

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "SUPERSIX_SECURE_KEY_2025"

func TestEncodeIsInvolution(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	keys := []string{"k", "ab", testKey, "ключ"}
	for _, k := range keys {
		for n := 0; n < 200; n += 13 {
			data := make([]byte, n)
			rng.Read(data)
			enc := Encode(data, []byte(k))
			assert.Len(t, enc, len(data), "length must be preserved")
			assert.True(t, bytes.Equal(Decode(enc, []byte(k)), data), "key %q len %d", k, n)
		}
	}
}

func TestEncodeKnownVector(t *testing.T) {
	// 'A' ^ 'S' = 0x12, 'B' ^ 'U' = 0x17, 'C' ^ 'S' (key wraps) = 0x10
	got := Encode([]byte("ABC"), []byte("SU"))
	assert.Equal(t, []byte{0x12, 0x17, 0x10}, got)
}

func TestNewRejectsEmptyKey(t *testing.T) {
	_, err := New("")
	assert.ErrorIs(t, err, ErrEmptyKey)
}

func TestDecodeTextRoundTrip(t *testing.T) {
	c, err := New(testKey)
	require.NoError(t, err)

	text := "INSERT INTO preproff (text) VALUES ('Which nerve? – ü');"
	got, err := c.DecodeText("kmc J.enc", c.EncodeText(text))
	require.NoError(t, err)
	assert.Equal(t, text, got)
}

func TestDecodeTextReportsInvalidUTF8(t *testing.T) {
	c, err := New(testKey)
	require.NoError(t, err)

	plain := []byte("ok\xffbad")
	_, err = c.DecodeText("gmc M2.enc", c.Encode(plain))
	require.Error(t, err)

	var de *DecodeError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "gmc M2.enc", de.Path)
	assert.Equal(t, 2, de.Offset)
	assert.Contains(t, err.Error(), "gmc M2.enc")
}

func TestEncodeEmptyInput(t *testing.T) {
	assert.Empty(t, Encode(nil, []byte(testKey)))
}

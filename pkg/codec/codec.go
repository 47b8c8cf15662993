// Package codec implements the repeating-key XOR transform used by the
// question bank's .enc partition files.
//
// The transform is a storage format, not encryption: anyone holding the key
// (it ships inside the front-end bundle) can read the files.
package codec

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrEmptyKey is returned when a Codec is created with an empty key.
var ErrEmptyKey = errors.New("codec: key must be non-empty")

// DecodeError reports decoded bytes that are not valid UTF-8 text.
type DecodeError struct {
	Path   string // file the bytes came from, may be empty
	Offset int    // byte offset of the first invalid sequence
}

func (e *DecodeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("decoded data is not valid UTF-8 (offset %d)", e.Offset)
	}
	return fmt.Sprintf("%s: decoded data is not valid UTF-8 (offset %d)", e.Path, e.Offset)
}

// Encode XORs every byte of data with the key repeated cyclically.
// The output has the same length as data. Encode panics on an empty key;
// use New to validate keys coming from configuration.
func Encode(data []byte, key []byte) []byte {
	if len(key) == 0 {
		panic(ErrEmptyKey)
	}
	out := make([]byte, len(data))
	for i, b := range data {
		out[i] = b ^ key[i%len(key)]
	}
	return out
}

// Decode is Encode; the transform is its own inverse.
func Decode(data []byte, key []byte) []byte {
	return Encode(data, key)
}

// Codec binds the transform to a fixed key.
type Codec struct {
	key []byte
}

// New returns a Codec for key.
func New(key string) (*Codec, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	return &Codec{key: []byte(key)}, nil
}

// Encode obfuscates plaintext.
func (c *Codec) Encode(plaintext []byte) []byte { return Encode(plaintext, c.key) }

// Decode reverses Encode.
func (c *Codec) Decode(ciphertext []byte) []byte { return Decode(ciphertext, c.key) }

// EncodeText obfuscates a UTF-8 string.
func (c *Codec) EncodeText(text string) []byte { return Encode([]byte(text), c.key) }

// DecodeText decodes ciphertext and checks that the result is UTF-8.
// path is only used to label the error.
func (c *Codec) DecodeText(path string, ciphertext []byte) (string, error) {
	plain := c.Decode(ciphertext)
	if off, ok := firstInvalid(plain); !ok {
		return "", &DecodeError{Path: path, Offset: off}
	}
	return string(plain), nil
}

func firstInvalid(b []byte) (int, bool) {
	if utf8.Valid(b) {
		return 0, true
	}
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size <= 1 {
			return i, false
		}
		i += size
	}
	return 0, true
}

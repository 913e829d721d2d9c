package cryptoengine

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// pathDomain is the fixed associated-data string used
// for path segment encryption.
const pathDomain = "path"

// sivTagSize is the truncated synthetic-IV size, also used as the AES-CTR
// initial counter block. 16 bytes matches the AES block size.
const sivTagSize = 16

// EncryptSegment deterministically encrypts one plaintext path segment
// under the Engine's path subkeys, returning the URL-safe, unpadded
// base64 ciphertext segment.
//
// The construction is RFC 5297-style S2V+CTR, specialized to a single
// associated-data field (the fixed domain string) since path segments have
// no other header fields to mix in: a synthetic IV is computed as
// HMAC-SHA256(pathMACKey, domain || 0x00 || plaintext) truncated to one AES
// block, then the plaintext is encrypted with AES-CTR under pathCipherKey
// using that IV as the initial counter. The IV doubles as an authentication
// tag: decryption recomputes it from the recovered plaintext and rejects a
// mismatch.
func (e *Engine) EncryptSegment(plaintext string) (string, error) {
	if plaintext == "" {
		return "", fmt.Errorf("cryptoengine: empty segment")
	}

	siv := e.syntheticIV([]byte(plaintext))

	ciphertext, err := e.ctrXform(siv, []byte(plaintext))
	if err != nil {
		return "", err
	}

	blob := make([]byte, 0, len(siv)+len(ciphertext))
	blob = append(blob, siv...)
	blob = append(blob, ciphertext...)

	return base64.RawURLEncoding.EncodeToString(blob), nil
}

// DecryptSegment reverses EncryptSegment, verifying the synthetic IV
// against the recovered plaintext before returning it.
func (e *Engine) DecryptSegment(encoded string) (string, error) {
	blob, err := base64.RawURLEncoding.Strict().DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("cryptoengine: decoding segment: %w", err)
	}

	if len(blob) < sivTagSize {
		return "", fmt.Errorf("cryptoengine: segment ciphertext too short")
	}

	siv := blob[:sivTagSize]
	ciphertext := blob[sivTagSize:]

	plaintext, err := e.ctrXform(siv, ciphertext)
	if err != nil {
		return "", err
	}

	if len(plaintext) == 0 {
		return "", fmt.Errorf("cryptoengine: segment decrypts to empty plaintext")
	}

	expected := e.syntheticIV(plaintext)
	if subtle.ConstantTimeCompare(expected, siv) != 1 {
		return "", fmt.Errorf("cryptoengine: %w: path segment authentication failed", ErrIntegrity)
	}

	return string(plaintext), nil
}

func (e *Engine) syntheticIV(plaintext []byte) []byte {
	mac := hmac.New(sha256.New, e.pathMACKey[:])
	mac.Write([]byte(pathDomain))
	mac.Write([]byte{0})
	mac.Write(plaintext)

	return mac.Sum(nil)[:sivTagSize]
}

// ctrXform is its own inverse: AES-CTR encryption XORs the same way on
// both directions, keyed by pathCipherKey and the synthetic IV as the
// initial counter block.
func (e *Engine) ctrXform(iv, in []byte) ([]byte, error) {
	block, err := aes.NewCipher(e.pathCipherKey[:])
	if err != nil {
		return nil, fmt.Errorf("cryptoengine: constructing AES cipher: %w", err)
	}

	stream := cipher.NewCTR(block, iv)
	out := make([]byte, len(in))
	stream.XORKeyStream(out, in)

	return out, nil
}

// ErrIntegrity is returned (wrapped) by decryption failures across the
// crypto engine: bad AEAD tags, failed SIV verification, or content hash
// mismatches. Callers classify it as the Integrity error kind.
var ErrIntegrity = errIntegrity{}

type errIntegrity struct{}

func (errIntegrity) Error() string { return "integrity check failed" }

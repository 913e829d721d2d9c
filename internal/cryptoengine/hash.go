package cryptoengine

import (
	"fmt"
	"io"

	"lukechampine.com/blake3"
)

// ContentHashSize is the width of the content fingerprint: 32 bytes.
const ContentHashSize = 32

// ContentHash is the 32-byte keyed hash identifying a file body. It is the
// server-side chunk store key and the deduplication identifier.
type ContentHash [ContentHashSize]byte

// String renders the hash as URL-safe unpadded base64, the form used in
// RPC payloads and log lines.
func (h ContentHash) String() string {
	return b64(h[:])
}

// HashContent computes H(content) = keyed-hash(contentKey, plaintext), a
// single streaming pass over r. Two Engines derived from the same (master
// key, salt) produce identical hashes for identical content regardless of
// which client computes it, enabling dedup without revealing
// content to the server.
func (e *Engine) HashContent(r io.Reader) (ContentHash, error) {
	h := blake3.New(ContentHashSize, e.contentKey[:])

	if _, err := io.Copy(h, r); err != nil {
		return ContentHash{}, fmt.Errorf("cryptoengine: hashing content: %w", err)
	}

	var out ContentHash

	copy(out[:], h.Sum(nil))

	return out, nil
}

// ParseContentHash decodes the URL-safe unpadded base64 form back into a
// ContentHash.
func ParseContentHash(s string) (ContentHash, error) {
	raw, err := b64Decode(s)
	if err != nil {
		return ContentHash{}, fmt.Errorf("cryptoengine: parsing content hash: %w", err)
	}

	if len(raw) != ContentHashSize {
		return ContentHash{}, fmt.Errorf("cryptoengine: content hash must be %d bytes, got %d", ContentHashSize, len(raw))
	}

	var out ContentHash

	copy(out[:], raw)

	return out, nil
}

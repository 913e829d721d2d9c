// Package cryptoengine implements the three cryptographic primitives the
// archive depends on: deterministic authenticated encryption of path
// segments, streaming authenticated encryption of file content, and keyed
// content fingerprinting for deduplication.
package cryptoengine

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/hkdf"
)

// MasterKeySize is the required length of the master key (64 bytes,
// URL-safe base64 encoded on disk).
const MasterKeySize = 64

// MasterKey is the 64-byte secret every derived subkey traces back to.
type MasterKey [MasterKeySize]byte

// Domain-separation info strings for HKDF-Expand. Each subkey is derived
// independently so that compromising one purpose's key does not weaken
// another.
const (
	infoPathMAC    = "rammingen-path-mac-v1"
	infoPathCipher = "rammingen-path-cipher-v1"
	infoContentKey = "rammingen-content-hash-v1"
	infoStreamKey  = "rammingen-content-stream-v1"
)

const subkeySize = 32

// Engine holds the derived subkeys for one (master key, salt) pair.
// Construction is cheap enough to do once per process; all methods are
// safe for concurrent use since they hold no mutable state.
type Engine struct {
	pathMACKey    [subkeySize]byte
	pathCipherKey [subkeySize]byte
	contentKey    [subkeySize]byte
	streamKey     [subkeySize]byte
}

// New derives an Engine's subkeys from the master key and the per-install
// salt. salt need not be secret; it exists so two installs with the same
// master key (unlikely, but dedup keys off (key, salt)
// together) still produce comparable content hashes only when both match.
func New(key MasterKey, salt string) (*Engine, error) {
	e := &Engine{}

	if err := derive(key, salt, infoPathMAC, e.pathMACKey[:]); err != nil {
		return nil, err
	}

	if err := derive(key, salt, infoPathCipher, e.pathCipherKey[:]); err != nil {
		return nil, err
	}

	if err := derive(key, salt, infoContentKey, e.contentKey[:]); err != nil {
		return nil, err
	}

	if err := derive(key, salt, infoStreamKey, e.streamKey[:]); err != nil {
		return nil, err
	}

	return e, nil
}

func derive(key MasterKey, salt, info string, out []byte) error {
	r := hkdf.New(sha256.New, key[:], []byte(salt), []byte(info))
	if _, err := r.Read(out); err != nil {
		return fmt.Errorf("cryptoengine: deriving %s subkey: %w", info, err)
	}

	return nil
}

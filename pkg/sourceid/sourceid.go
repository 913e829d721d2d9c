// Package sourceid manages the per-client identity that distinguishes which client originated each
// archive Entry.
package sourceid

import (
	"encoding/base64"
	"fmt"
	"os"

	"github.com/google/uuid"
)

// ID is a client's stable identity, generated once and persisted
// alongside the shadow index.
type ID [16]byte

// New generates a fresh random identity.
func New() ID {
	var id ID

	copy(id[:], uuid.New()[:])

	return id
}

// String renders the identity as a UUID string for logs.
func (id ID) String() string {
	var u uuid.UUID

	copy(u[:], id[:])

	return u.String()
}

// Bytes returns the raw 16 bytes, as carried on the wire.
func (id ID) Bytes() [16]byte { return id }

// LoadOrCreate reads the persisted source ID from path, generating and
// writing a fresh one if the file does not exist. The file is mirrored
// next to the shadow index database so reinstalling the binary does not
// change a client's identity.
func LoadOrCreate(path string) (ID, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		raw, decErr := base64.RawURLEncoding.DecodeString(string(data))
		if decErr != nil || len(raw) != 16 {
			return ID{}, fmt.Errorf("sourceid: %s is corrupt", path)
		}

		var id ID

		copy(id[:], raw)

		return id, nil
	}

	if !os.IsNotExist(err) {
		return ID{}, fmt.Errorf("sourceid: reading %s: %w", path, err)
	}

	id := New()
	encoded := base64.RawURLEncoding.EncodeToString(id[:])

	if err := os.WriteFile(path, []byte(encoded), 0o600); err != nil {
		return ID{}, fmt.Errorf("sourceid: writing %s: %w", path, err)
	}

	return id, nil
}

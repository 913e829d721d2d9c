package cryptoengine

import (
	"encoding/base64"
	"fmt"
)

func b64(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

func b64Decode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}

// ParseMasterKey decodes a URL-safe, unpadded base64 string into a
// MasterKey, as stored under the config file's encryption_key field.
func ParseMasterKey(s string) (MasterKey, error) {
	raw, err := b64Decode(s)
	if err != nil {
		return MasterKey{}, fmt.Errorf("cryptoengine: parsing master key: %w", err)
	}

	if len(raw) != MasterKeySize {
		return MasterKey{}, fmt.Errorf("cryptoengine: master key must be %d bytes, got %d", MasterKeySize, len(raw))
	}

	var out MasterKey

	copy(out[:], raw)

	return out, nil
}

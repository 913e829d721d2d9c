package cryptoengine

import (
	"bufio"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// ChunkSize is the plaintext frame size content is split into before
// encryption.
const ChunkSize = 64 * 1024

// fileNonceSize is the random per-file header prepended to every
// encrypted content stream.
const fileNonceSize = chacha20poly1305.NonceSize // 12 bytes

// EncryptStream reads plaintext from r in ChunkSize frames, encrypts each
// with a fresh per-frame nonce derived from a random per-file nonce plus
// the frame index, and writes the file nonce header followed by the
// framed ciphertext to w. Content encryption is non-deterministic: a fresh
// file nonce is drawn from crypto/rand on every call. Exactly one frame —
// the true last one, even when the plaintext length is an exact multiple
// of ChunkSize — carries isLast=true in its AAD; DecryptStream refuses to
// finish without observing it.
func (e *Engine) EncryptStream(w io.Writer, r io.Reader) error {
	aead, err := chacha20poly1305.New(e.streamKey[:])
	if err != nil {
		return fmt.Errorf("cryptoengine: constructing stream AEAD: %w", err)
	}

	var fileNonce [fileNonceSize]byte
	if _, err := rand.Read(fileNonce[:]); err != nil {
		return fmt.Errorf("cryptoengine: generating file nonce: %w", err)
	}

	if _, err := w.Write(fileNonce[:]); err != nil {
		return fmt.Errorf("cryptoengine: writing file nonce header: %w", err)
	}

	br := bufio.NewReader(r)
	buf := make([]byte, ChunkSize)

	var frameIndex uint32

	for {
		n, readErr := io.ReadFull(br, buf)
		if readErr != nil && readErr != io.EOF && readErr != io.ErrUnexpectedEOF {
			return fmt.Errorf("cryptoengine: reading plaintext: %w", readErr)
		}

		// A short read (including n==0 on an empty input) is only ever
		// returned once the underlying reader is exhausted, so it is
		// unambiguously the last frame. A full read needs a one-byte
		// peek to tell whether more data follows, since ReadFull itself
		// can't distinguish "exactly ChunkSize bytes left" from "more
		// to come".
		isLast := n < ChunkSize
		if !isLast {
			if _, peekErr := br.Peek(1); peekErr == io.EOF {
				isLast = true
			}
		}

		sealed := aead.Seal(nil, frameNonce(fileNonce, frameIndex), buf[:n], frameAAD(frameIndex, isLast))
		if _, err := w.Write(sealed); err != nil {
			return fmt.Errorf("cryptoengine: writing encrypted frame %d: %w", frameIndex, err)
		}

		frameIndex++

		if isLast {
			return nil
		}
	}
}

// DecryptStream reverses EncryptStream, verifying authenticity of every
// frame before writing its plaintext to w. A single bit flip anywhere in
// the ciphertext causes an ErrIntegrity error and aborts the
// stream; no partial, unauthenticated plaintext is ever written for the
// failing frame. The stream must end with a frame whose AAD was sealed
// with isLast=true; ciphertext truncated right after a full, otherwise
// valid frame fails authentication instead of being accepted as complete,
// since the frame's sealed AAD still claims isLast=false.
func (e *Engine) DecryptStream(w io.Writer, r io.Reader) error {
	aead, err := chacha20poly1305.New(e.streamKey[:])
	if err != nil {
		return fmt.Errorf("cryptoengine: constructing stream AEAD: %w", err)
	}

	var fileNonce [fileNonceSize]byte
	if _, err := io.ReadFull(r, fileNonce[:]); err != nil {
		return fmt.Errorf("cryptoengine: reading file nonce header: %w", err)
	}

	br := bufio.NewReader(r)
	sealedFrameSize := ChunkSize + aead.Overhead()
	buf := make([]byte, sealedFrameSize)

	var frameIndex uint32

	for {
		n, readErr := io.ReadFull(br, buf)
		switch readErr {
		case nil, io.ErrUnexpectedEOF:
			// Mirrors EncryptStream's own isLast determination: a short
			// read is unambiguously final, a full read needs a peek.
			isLast := readErr == io.ErrUnexpectedEOF
			if !isLast {
				if _, peekErr := br.Peek(1); peekErr == io.EOF {
					isLast = true
				}
			}

			plain, err := aead.Open(nil, frameNonce(fileNonce, frameIndex), buf[:n], frameAAD(frameIndex, isLast))
			if err != nil {
				return fmt.Errorf("cryptoengine: %w: frame %d failed authentication", ErrIntegrity, frameIndex)
			}

			if _, err := w.Write(plain); err != nil {
				return fmt.Errorf("cryptoengine: writing decrypted frame %d: %w", frameIndex, err)
			}

			frameIndex++

			if isLast {
				return nil
			}
		case io.EOF:
			return fmt.Errorf("cryptoengine: %w: stream ended before a terminal frame was seen", ErrIntegrity)
		default:
			return fmt.Errorf("cryptoengine: reading ciphertext: %w", readErr)
		}
	}
}

// frameNonce derives a fresh 12-byte nonce per frame from the file nonce
// and the frame index: the low 4 bytes of the file nonce are
// XORed with the big-endian frame index.
func frameNonce(fileNonce [fileNonceSize]byte, frameIndex uint32) []byte {
	nonce := fileNonce

	var idx [4]byte

	binary.BigEndian.PutUint32(idx[:], frameIndex)

	for i := range idx {
		nonce[fileNonceSize-4+i] ^= idx[i]
	}

	return nonce[:]
}

func frameAAD(frameIndex uint32, isLast bool) []byte {
	aad := make([]byte, 5)
	binary.BigEndian.PutUint32(aad, frameIndex)

	if isLast {
		aad[4] = 1
	}

	return aad
}

package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const (
	keyInfo   = "huddle-room-v1"
	nonceSize = chacha20poly1305.NonceSize
	tagSize   = 16

	// KeySize is the room key length in bytes.
	KeySize = chacha20poly1305.KeySize

	minCiphertextLen = nonceSize + tagSize
)

// Error represents an encryption/decryption error. A failed Open means the
// ciphertext cannot be authenticated under the room key; the affected
// delivery is skipped, never retried.
type Error struct {
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// IsCryptoError reports whether err is a crypto Error.
func IsCryptoError(err error) bool {
	var ce *Error
	return errors.As(err, &ce)
}

// GenerateKey returns a fresh random room key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// DeriveRoomKey derives a room key from a master secret and the room ID
// using HKDF-SHA256. Derived keys are stable across restarts, so mirrored
// ciphertext history remains decryptable.
func DeriveRoomKey(master []byte, roomID string) ([]byte, error) {
	if len(master) != KeySize {
		return nil, &Error{Message: fmt.Sprintf("master secret must be %d bytes, got %d", KeySize, len(master))}
	}
	hkdfReader := hkdf.New(sha256.New, master, []byte(roomID), []byte(keyInfo))
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdfReader, key); err != nil {
		return nil, err
	}
	return key, nil
}

// RoomCipher encrypts and decrypts messages under a single room key.
// It is safe for concurrent use once created.
type RoomCipher struct {
	key []byte
}

// NewRoomCipher creates a cipher for the given room key.
func NewRoomCipher(key []byte) (*RoomCipher, error) {
	if len(key) != KeySize {
		return nil, &Error{Message: fmt.Sprintf("invalid key length: %d, expected %d", len(key), KeySize)}
	}
	k := make([]byte, KeySize)
	copy(k, key)
	return &RoomCipher{key: k}, nil
}

// Key returns the raw key material. Shared read-only by delivery paths.
func (c *RoomCipher) Key() []byte {
	return c.key
}

// KeyBase64 returns the URL-safe base64 encoding of the key, the form
// carried by the room_key event.
func (c *RoomCipher) KeyBase64() string {
	return base64.URLEncoding.EncodeToString(c.key)
}

// Encrypt seals plaintext with ChaCha20-Poly1305 and returns the
// base64-encoded wire format: nonce[12] + ciphertext[N+16].
func (c *RoomCipher) Encrypt(plaintext string) (string, error) {
	aead, err := chacha20poly1305.New(c.key)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	sealed := aead.Seal(nil, nonce, []byte(plaintext), nil)

	wire := make([]byte, 0, nonceSize+len(sealed))
	wire = append(wire, nonce...)
	wire = append(wire, sealed...)

	return base64.StdEncoding.EncodeToString(wire), nil
}

// Decrypt opens a base64 wire-format ciphertext and returns the plaintext.
func (c *RoomCipher) Decrypt(ciphertextB64 string) (string, error) {
	wire, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return "", &Error{Message: fmt.Sprintf("invalid base64 ciphertext: %v", err)}
	}

	if len(wire) < minCiphertextLen {
		return "", &Error{Message: fmt.Sprintf("ciphertext too short: %d bytes, minimum %d", len(wire), minCiphertextLen)}
	}

	nonce := wire[:nonceSize]
	sealed := wire[nonceSize:]

	aead, err := chacha20poly1305.New(c.key)
	if err != nil {
		return "", err
	}

	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", &Error{Message: "decryption failed: wrong key or tampered ciphertext"}
	}

	return string(plaintext), nil
}

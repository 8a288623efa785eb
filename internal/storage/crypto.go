// Adapted from a prior chacha20poly1305 AEAD envelope implementation, but
// keyed directly by the caller-supplied 32-byte secret instead of an
// argon2-derived passphrase key: the store accepts exactly a 32-byte key
// and rejects any other length outright.
package storage

import (
	"crypto/rand"
	"encoding/json"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/xmtp/libxmtp-sub002/pkg/xmtperr"
)

const (
	encEnvelopeVersion = 1
	encFilePrefix      = "XMTPSQLITE1\n"
)

// ErrAuthFailed mirrors securestore.ErrAuthFailed: the AEAD tag did not verify.
var ErrAuthFailed = errors.New("storage: encryption authentication failed")

// ErrInvalidEnvelope mirrors securestore.ErrInvalid.
var ErrInvalidEnvelope = errors.New("storage: encrypted envelope is malformed")

type encEnvelope struct {
	Version    int    `json:"version"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// ValidateKey enforces the exact-32-bytes boundary: 31- or 33-byte keys
// are rejected outright.
func ValidateKey(key []byte) error {
	if len(key) != chacha20poly1305.KeySize {
		return xmtperr.New(xmtperr.CategoryStorage, xmtperr.ScopeProcess, false, xmtperr.ErrWrongKeyLength)
	}
	return nil
}

// SealFile encrypts plaintext (the whole sqlite file's bytes) under key.
func SealFile(key, plaintext []byte) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	ciphertext := aead.Seal(nil, nonce, plaintext, nil)
	env := encEnvelope{Version: encEnvelopeVersion, Nonce: nonce, Ciphertext: ciphertext}
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	return append([]byte(encFilePrefix), raw...), nil
}

// OpenFile decrypts bytes produced by SealFile.
func OpenFile(key, sealed []byte) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	if len(sealed) < len(encFilePrefix) || string(sealed[:len(encFilePrefix)]) != encFilePrefix {
		return nil, ErrInvalidEnvelope
	}
	var env encEnvelope
	if err := json.Unmarshal(sealed[len(encFilePrefix):], &env); err != nil {
		return nil, ErrInvalidEnvelope
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	plaintext, err := aead.Open(nil, env.Nonce, env.Ciphertext, nil)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}

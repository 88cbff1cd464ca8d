package vault

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	envelopeVersionCurrent = 1
	envelopeHeaderLen      = 1 + chacha20poly1305.NonceSizeX
)

var (
	errEnvelopeEncoding = errors.New("envelope is not base64")
	errEnvelopeShort    = errors.New("envelope too short")
	errEnvelopeVersion  = errors.New("invalid envelope version")
)

// deriveAEAD hashes secret to a 32-byte key for XChaCha20-Poly1305.
func deriveAEAD(secret string) (cipher.AEAD, error) {
	key := sha256.Sum256([]byte(secret))
	return chacha20poly1305.NewX(key[:])
}

// seal encrypts plaintext and binds it to key as additional data.
func seal(aead cipher.AEAD, key string, plaintext []byte) (string, error) {
	buf := make([]byte, envelopeHeaderLen, envelopeHeaderLen+len(plaintext)+aead.Overhead())
	buf[0] = envelopeVersionCurrent

	nonce := buf[1:envelopeHeaderLen]
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	buf = aead.Seal(buf, nonce, plaintext, []byte(key))
	return base64.StdEncoding.EncodeToString(buf), nil
}

// open reverses seal. Any structural or authentication failure is an error.
func open(aead cipher.AEAD, key, text string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, errEnvelopeEncoding
	}
	if len(data) < envelopeHeaderLen+aead.Overhead() {
		return nil, errEnvelopeShort
	}
	if data[0] != envelopeVersionCurrent {
		return nil, errEnvelopeVersion
	}

	nonce := data[1:envelopeHeaderLen]
	return aead.Open(nil, nonce, data[envelopeHeaderLen:], []byte(key))
}

// Package crypto implements the symmetric protection applied to protocol
// payloads after registration. Both sides derive the same key from the
// peer's password; the central hands the derived key to the charging point
// inside the registration acknowledgement, so no further handshake is
// needed.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// ErrDecrypt reports ciphertext that could not be interpreted with the key
// on file: wrong key, truncated data or not ciphertext at all.
var ErrDecrypt = errors.New("crypto: decryption failure")

// Derivation parameters. Both ends must agree on them, so they are fixed.
const (
	kdfIterations = 4096
	keyBytes      = 32
)

var kdfSalt = []byte("evcharge-cp-key-v1")

// DeriveKey deterministically derives a symmetric key from a shared secret.
// The result is base64 so it can travel as a protocol field.
func DeriveKey(secret string) string {
	k := pbkdf2.Key([]byte(secret), kdfSalt, kdfIterations, keyBytes, sha256.New)
	return base64.StdEncoding.EncodeToString(k)
}

func gcmFor(key string) (cipher.AEAD, error) {
	raw, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		return nil, fmt.Errorf("%w: bad key encoding", ErrDecrypt)
	}
	block, err := aes.NewCipher(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return cipher.NewGCM(block)
}

// Encrypt seals plaintext with the derived key. The output is base64 of
// nonce||ciphertext so it survives the text framing of the wire protocol.
func Encrypt(plaintext, key string) (string, error) {
	aead, err := gcmFor(key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens base64 ciphertext produced by Encrypt.
func Decrypt(ciphertext, key string) (string, error) {
	aead, err := gcmFor(key)
	if err != nil {
		return "", err
	}
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: not base64", ErrDecrypt)
	}
	if len(raw) < aead.NonceSize() {
		return "", fmt.Errorf("%w: short ciphertext", ErrDecrypt)
	}
	plain, err := aead.Open(nil, raw[:aead.NonceSize()], raw[aead.NonceSize():], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecrypt, err)
	}
	return string(plain), nil
}

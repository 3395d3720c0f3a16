// Package crypt encrypts audit records at rest with AES-256-GCM. The key is
// derived from a passphrase; the random nonce is prepended to the ciphertext.
package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	iterations = 100_000
	keyLength  = 32
)

// salt is fixed so that the same passphrase always opens old records.
var salt = []byte("edirhub-verify-audit")

var ErrShortCiphertext = errors.New("ciphertext too short")

type Cipher struct {
	gcm cipher.AEAD
}

func New(passphrase string) (*Cipher, error) {
	if passphrase == "" {
		return nil, errors.New("passphrase must not be empty")
	}
	key := pbkdf2.Key([]byte(passphrase), salt, iterations, keyLength, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Cipher{gcm: gcm}, nil
}

func (c *Cipher) Encrypt(plain []byte) ([]byte, error) {
	nonce := make([]byte, c.gcm.NonceSize(), c.gcm.NonceSize()+len(plain)+c.gcm.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("unable to generate nonce: %w", err)
	}
	return c.gcm.Seal(nonce, nonce, plain, nil), nil
}

func (c *Cipher) Decrypt(data []byte) ([]byte, error) {
	n := c.gcm.NonceSize()
	if len(data) < n+c.gcm.Overhead() {
		return nil, ErrShortCiphertext
	}
	plain, err := c.gcm.Open(nil, data[:n], data[n:], nil)
	if err != nil {
		return nil, fmt.Errorf("unable to decrypt: %w", err)
	}
	return plain, nil
}

// DecryptReader reads all of r and decrypts it.
func (c *Cipher) DecryptReader(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return c.Decrypt(data)
}

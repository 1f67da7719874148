package session

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"
)

const (
	saltSize  = 16
	nonceSize = 24
	keySize   = 32
)

var (
	ErrSealed     = errors.New("stored token is sealed and no passphrase is configured")
	ErrWrongKey   = errors.New("stored token cannot be opened with the configured passphrase")
	ErrCorruptRow = errors.New("stored token is corrupt")
)

func deriveKey(passphrase, salt []byte) *[keySize]byte {
	var key [keySize]byte
	copy(key[:], argon2.IDKey(passphrase, salt, 2, 19*1024, 1, keySize))
	return &key
}

// sealToken encrypts token under passphrase. An empty passphrase stores the
// token as is, signalled by a nil salt.
func sealToken(passphrase, token []byte) (sealed, salt []byte, err error) {
	if len(passphrase) == 0 {
		return token, nil, nil
	}
	salt = make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed = secretbox.Seal(nonce[:], token, &nonce, deriveKey(passphrase, salt))
	return sealed, salt, nil
}

func openToken(passphrase, sealed, salt []byte) ([]byte, error) {
	if len(salt) == 0 {
		return sealed, nil
	}
	if len(passphrase) == 0 {
		return nil, ErrSealed
	}
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, ErrCorruptRow
	}
	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])
	token, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, deriveKey(passphrase, salt))
	if !ok {
		return nil, ErrWrongKey
	}
	return token, nil
}

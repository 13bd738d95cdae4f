package storage

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize         = 16
	keySize          = 32 // AES-256
	keyIterations    = 100000
	encryptionHeader = "MFA1" // archive format marker
)

// Encryptor seals archive payloads with AES-256-GCM. The key is derived
// from the passphrase with PBKDF2-SHA256 and a per-archive random salt;
// salt and nonce travel in the payload header.
type Encryptor struct {
	passphrase string
}

// NewEncryptor creates an encryptor over a passphrase.
func NewEncryptor(passphrase string) *Encryptor {
	return &Encryptor{passphrase: passphrase}
}

// Encrypt seals a payload.
func (e *Encryptor) Encrypt(data []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	gcm, err := e.cipher(salt)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, data, []byte(encryptionHeader))

	payload := make([]byte, 0, len(encryptionHeader)+saltSize+len(nonce)+len(sealed))
	payload = append(payload, encryptionHeader...)
	payload = append(payload, salt...)
	payload = append(payload, nonce...)
	payload = append(payload, sealed...)
	return payload, nil
}

// Decrypt opens a sealed payload.
func (e *Encryptor) Decrypt(data []byte) ([]byte, error) {
	if len(data) < len(encryptionHeader)+saltSize {
		return nil, fmt.Errorf("encrypted payload is truncated")
	}
	if string(data[:len(encryptionHeader)]) != encryptionHeader {
		return nil, fmt.Errorf("payload does not carry the archive encryption header")
	}
	data = data[len(encryptionHeader):]

	salt := data[:saltSize]
	data = data[saltSize:]

	gcm, err := e.cipher(salt)
	if err != nil {
		return nil, err
	}
	if len(data) < gcm.NonceSize() {
		return nil, fmt.Errorf("encrypted payload is truncated")
	}

	nonce := data[:gcm.NonceSize()]
	sealed := data[gcm.NonceSize():]

	plain, err := gcm.Open(nil, nonce, sealed, []byte(encryptionHeader))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt archive: %w", err)
	}
	return plain, nil
}

func (e *Encryptor) cipher(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(e.passphrase), salt, keyIterations, keySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM cipher: %w", err)
	}
	return gcm, nil
}

package session

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/pbkdf2"

	ocerrors "github.com/opencall/opencall/internal/errors"
)

const (
	pbkdf2Iterations = 100000
	saltSize         = 16
	keySize          = 32
)

// sealed is the on-disk form of an encrypted session.
type sealed struct {
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// EncryptedFileBackend wraps a FileBackend with AES-256-GCM. The key is
// derived from a passphrase with PBKDF2-SHA256 and a random per-file salt.
type EncryptedFileBackend struct {
	files      *FileBackend
	passphrase []byte

	mu   sync.Mutex
	salt []byte
	key  []byte
}

// NewEncryptedFileBackend creates an encrypted backend rooted at dir
func NewEncryptedFileBackend(dir, passphrase string) (*EncryptedFileBackend, error) {
	if passphrase == "" {
		return nil, ocerrors.NewConfigInvalidError("session.passphrase", "encrypted session backend requires a passphrase")
	}
	return &EncryptedFileBackend{
		files:      NewFileBackend(dir),
		passphrase: []byte(passphrase),
	}, nil
}

func (e *EncryptedFileBackend) Name() string { return "encrypted" }

// deriveKey returns the key for salt, reusing the last derivation.
func (e *EncryptedFileBackend) deriveKey(salt []byte) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.key != nil && bytes.Equal(e.salt, salt) {
		return e.key
	}
	e.salt = append([]byte(nil), salt...)
	e.key = pbkdf2.Key(e.passphrase, salt, pbkdf2Iterations, keySize, sha256.New)
	return e.key
}

func (e *EncryptedFileBackend) currentSalt() ([]byte, error) {
	e.mu.Lock()
	salt := e.salt
	e.mu.Unlock()
	if salt != nil {
		return salt, nil
	}

	salt = make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, err
	}
	return salt, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (e *EncryptedFileBackend) Load(ctx context.Context, key string) ([]byte, error) {
	raw, err := e.files.Load(ctx, key)
	if err != nil {
		return nil, err
	}

	var s sealed
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, ocerrors.NewStoreDecryptError(e.files.Path(key), err)
	}

	gcm, err := newGCM(e.deriveKey(s.Salt))
	if err != nil {
		return nil, err
	}
	if len(s.Nonce) != gcm.NonceSize() {
		return nil, ocerrors.NewStoreDecryptError(e.files.Path(key), fmt.Errorf("invalid nonce"))
	}

	plaintext, err := gcm.Open(nil, s.Nonce, s.Ciphertext, []byte(key))
	if err != nil {
		return nil, ocerrors.NewStoreDecryptError(e.files.Path(key), err)
	}
	return plaintext, nil
}

func (e *EncryptedFileBackend) Save(ctx context.Context, key string, data []byte) error {
	salt, err := e.currentSalt()
	if err != nil {
		return err
	}

	gcm, err := newGCM(e.deriveKey(salt))
	if err != nil {
		return err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return err
	}

	raw, err := json.Marshal(sealed{
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: gcm.Seal(nil, nonce, data, []byte(key)),
	})
	if err != nil {
		return err
	}
	return e.files.Save(ctx, key, raw)
}

func (e *EncryptedFileBackend) Delete(ctx context.Context, key string) error {
	return e.files.Delete(ctx, key)
}

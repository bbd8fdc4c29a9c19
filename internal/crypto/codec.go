// Package crypto encrypts message bodies at rest. Every message gets its own
// subkey derived from the master secret with a random salt, so leaking one
// derived key exposes exactly one message.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"

	"guildgate-backend/internal/apperr"
)

// Placeholder is surfaced instead of message content when decryption fails.
// The read path never raises ErrDecrypt to callers.
const Placeholder = "[unable to decrypt message]"

const (
	saltSize   = 16
	keySize    = 32
	iterations = 120000
)

type Codec struct {
	master []byte
}

func NewCodec(masterKey string) (*Codec, error) {
	if len(masterKey) < 16 {
		return nil, errors.New("encryption key must be at least 16 characters")
	}
	return &Codec{master: []byte(masterKey)}, nil
}

// payload is the self-describing stored form. A stored value that doesn't
// parse into this shape is legacy plaintext.
type payload struct {
	Ciphertext string `json:"ciphertext"`
	Nonce      string `json:"nonce"`
	AuthTag    string `json:"authTag"`
	Salt       string `json:"salt"`
}

func (c *Codec) aead(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(c.master, salt, iterations, keySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (c *Codec) Encode(plaintext string) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	gcm, err := c.aead(salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	tagStart := len(sealed) - gcm.Overhead()

	bytes, err := json.Marshal(payload{
		Ciphertext: base64.StdEncoding.EncodeToString(sealed[:tagStart]),
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		AuthTag:    base64.StdEncoding.EncodeToString(sealed[tagStart:]),
		Salt:       base64.StdEncoding.EncodeToString(salt),
	})
	if err != nil {
		return "", err
	}

	return string(bytes), nil
}

// Decode returns the plaintext for an encrypted stored value. Values that
// don't parse as an encrypted payload are returned unchanged (rows written
// before encryption was introduced). Authentication failure returns
// apperr.ErrDecrypt; callers substitute Placeholder, never propagate it.
func (c *Codec) Decode(stored string) (string, error) {
	p, ok := parse(stored)
	if !ok {
		return stored, nil
	}

	// past this point the value is an encrypted payload: any corruption is a
	// decrypt failure, never a fallthrough to plaintext
	ciphertext, err1 := base64.StdEncoding.DecodeString(p.Ciphertext)
	nonce, err2 := base64.StdEncoding.DecodeString(p.Nonce)
	tag, err3 := base64.StdEncoding.DecodeString(p.AuthTag)
	salt, err4 := base64.StdEncoding.DecodeString(p.Salt)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return "", fmt.Errorf("%w: field is not valid base64", apperr.ErrDecrypt)
	}

	gcm, err := c.aead(salt)
	if err != nil {
		return "", err
	}
	if len(nonce) != gcm.NonceSize() || len(tag) != gcm.Overhead() {
		return "", fmt.Errorf("%w: malformed nonce or tag", apperr.ErrDecrypt)
	}

	plaintext, err := gcm.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrDecrypt, err)
	}

	return string(plaintext), nil
}

// DecodeForDisplay is the live read path: decryption failures become the
// visible placeholder so one corrupt row can't break a whole page.
func (c *Codec) DecodeForDisplay(stored string) string {
	plaintext, err := c.Decode(stored)
	if err != nil {
		return Placeholder
	}
	return plaintext
}

// IsEncrypted reports whether a stored value parses as an encrypted payload.
// Only the offline migration job uses this check.
func IsEncrypted(stored string) bool {
	_, ok := parse(stored)
	return ok
}

func parse(stored string) (payload, bool) {
	var p payload
	if err := json.Unmarshal([]byte(stored), &p); err != nil {
		return payload{}, false
	}
	// Ciphertext alone may legitimately be empty (empty message body), the
	// other three are always present on an encrypted row.
	if p.Nonce == "" || p.AuthTag == "" || p.Salt == "" {
		return payload{}, false
	}
	return p, true
}

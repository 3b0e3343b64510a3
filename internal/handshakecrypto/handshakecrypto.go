// Package handshakecrypto implements the symmetric-key handshake primitives
// the CM protocol's transport layer depends on: session-key generation with
// an RSA wrap for the handshake response, and the AES-CBC / HMAC-SHA1 stream
// cipher installed on the transport once the handshake completes.
//
// This is the "crypto module" spec.md §1 treats as an external collaborator;
// it is implemented here with the standard library the same way the
// teacher's own pkg/authmanager/crypto.go reaches for crypto/aes and
// crypto/cipher directly rather than through a third-party crypto package.
package handshakecrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"fmt"
	"io"
)

// SessionKeyLength is the size, in bytes, of the AES-256 key negotiated per
// connection.
const SessionKeyLength = 32

// defaultPublicKey stands in for the vendor's published, well-known CM
// universe key (spec.md §1 treats the actual key material as external
// configuration). Generated once per process; override via
// cmclient.WithHandshakeKey when talking to a real node.
var defaultPublicKey *rsa.PublicKey

func init() {
	key, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		panic(fmt.Sprintf("handshakecrypto: generate default key: %v", err))
	}
	defaultPublicKey = &key.PublicKey
}

// DefaultPublicKey returns the process-wide placeholder handshake key.
func DefaultPublicKey() *rsa.PublicKey {
	return defaultPublicKey
}

const ivPrefixLength = 16

// SessionKey is the result of GenerateSessionKey: the plaintext key to keep
// locally, and the RSA-wrapped blob to send to the peer.
type SessionKey struct {
	Plain     [SessionKeyLength]byte
	Encrypted []byte
}

// GenerateSessionKey produces a fresh random AES-256 key and wraps it with
// the CM node's well-known RSA public key.
func GenerateSessionKey(pub *rsa.PublicKey) (*SessionKey, error) {
	var plain [SessionKeyLength]byte
	if _, err := io.ReadFull(rand.Reader, plain[:]); err != nil {
		return nil, fmt.Errorf("handshakecrypto: generate key: %w", err)
	}

	encrypted, err := rsa.EncryptPKCS1v15(rand.Reader, pub, plain[:])
	if err != nil {
		return nil, fmt.Errorf("handshakecrypto: rsa wrap: %w", err)
	}

	return &SessionKey{Plain: plain, Encrypted: encrypted}, nil
}

// Stream is the installed, ready-to-use symmetric cipher for a connection
// once the handshake succeeds. It encrypts/decrypts whole frame payloads in
// place, matching Transport's "payload passes through unchanged until a key
// is installed" contract.
type Stream struct {
	key [SessionKeyLength]byte
}

// NewStream wraps a negotiated session key for use by Transport.
func NewStream(key [SessionKeyLength]byte) *Stream {
	return &Stream{key: key}
}

// deriveIV produces the CBC initialization vector from a per-packet random
// prefix and the first 16 bytes of the session key, via HMAC-SHA1.
func (s *Stream) deriveIV(randomPrefix []byte) []byte {
	mac := hmac.New(sha1.New, s.key[:ivPrefixLength])
	mac.Write(randomPrefix)
	sum := mac.Sum(nil)
	return sum[:ivPrefixLength]
}

// Encrypt AES-CBC-encrypts plaintext under a fresh random IV, returning
// randomPrefix || ciphertext.
func (s *Stream) Encrypt(plaintext []byte) ([]byte, error) {
	randomPrefix := make([]byte, ivPrefixLength)
	if _, err := io.ReadFull(rand.Reader, randomPrefix); err != nil {
		return nil, fmt.Errorf("handshakecrypto: random iv: %w", err)
	}
	iv := s.deriveIV(randomPrefix)

	block, err := aes.NewCipher(s.key[:])
	if err != nil {
		return nil, fmt.Errorf("handshakecrypto: new cipher: %w", err)
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	out := make([]byte, 0, ivPrefixLength+len(ciphertext))
	out = append(out, randomPrefix...)
	out = append(out, ciphertext...)
	return out, nil
}

// Decrypt reverses Encrypt.
func (s *Stream) Decrypt(data []byte) ([]byte, error) {
	if len(data) < ivPrefixLength || (len(data)-ivPrefixLength)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("handshakecrypto: malformed ciphertext (%d bytes)", len(data))
	}

	randomPrefix, ciphertext := data[:ivPrefixLength], data[ivPrefixLength:]
	if len(ciphertext) == 0 {
		return nil, fmt.Errorf("handshakecrypto: empty ciphertext")
	}
	iv := s.deriveIV(randomPrefix)

	block, err := aes.NewCipher(s.key[:])
	if err != nil {
		return nil, fmt.Errorf("handshakecrypto: new cipher: %w", err)
	}

	plainPadded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plainPadded, ciphertext)

	return pkcs7Unpad(plainPadded)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("handshakecrypto: cannot unpad empty data")
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) {
		return nil, fmt.Errorf("handshakecrypto: invalid padding")
	}
	return data[:len(data)-padLen], nil
}

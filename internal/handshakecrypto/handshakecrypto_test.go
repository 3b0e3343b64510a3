package handshakecrypto

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"testing"
)

func TestGenerateSessionKeyWrapsUnderRSA(t *testing.T) {
	priv, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatalf("generate test rsa key: %v", err)
	}

	sk, err := GenerateSessionKey(&priv.PublicKey)
	if err != nil {
		t.Fatalf("GenerateSessionKey: %v", err)
	}
	if sk.Plain == ([SessionKeyLength]byte{}) {
		t.Fatalf("plain key must not be all-zero")
	}

	decrypted, err := rsa.DecryptPKCS1v15(nil, priv, sk.Encrypted)
	if err != nil {
		t.Fatalf("rsa decrypt: %v", err)
	}
	if !bytes.Equal(decrypted, sk.Plain[:]) {
		t.Fatalf("rsa-unwrapped key does not match the plaintext key")
	}
}

func TestDefaultPublicKeyIsStable(t *testing.T) {
	a := DefaultPublicKey()
	b := DefaultPublicKey()
	if a != b {
		t.Fatalf("DefaultPublicKey must return the same process-wide key every call")
	}
}

func TestStreamEncryptDecryptRoundTrip(t *testing.T) {
	var key [SessionKeyLength]byte
	copy(key[:], []byte("0123456789abcdef0123456789abcdef"))
	s := NewStream(key)

	cases := [][]byte{
		[]byte(""),
		[]byte("a"),
		[]byte("exactly-sixteen."),
		bytes.Repeat([]byte("x"), 1000),
	}

	for _, plaintext := range cases {
		enc, err := s.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("Encrypt(%d bytes): %v", len(plaintext), err)
		}
		dec, err := s.Decrypt(enc)
		if err != nil {
			t.Fatalf("Decrypt(%d bytes): %v", len(plaintext), err)
		}
		if !bytes.Equal(dec, plaintext) {
			t.Fatalf("round trip mismatch: got %q, want %q", dec, plaintext)
		}
	}
}

func TestStreamEncryptUsesRandomIVPerCall(t *testing.T) {
	var key [SessionKeyLength]byte
	s := NewStream(key)

	a, err := s.Encrypt([]byte("same plaintext"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	b, err := s.Encrypt([]byte("same plaintext"))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Fatalf("two encryptions of the same plaintext must not produce identical ciphertext")
	}
}

func TestStreamDecryptRejectsMalformedInput(t *testing.T) {
	var key [SessionKeyLength]byte
	s := NewStream(key)

	if _, err := s.Decrypt([]byte("too short")); err == nil {
		t.Fatalf("Decrypt must reject input shorter than the IV prefix")
	}
	if _, err := s.Decrypt(make([]byte, ivPrefixLength+3)); err == nil {
		t.Fatalf("Decrypt must reject a ciphertext that is not block-aligned")
	}
}

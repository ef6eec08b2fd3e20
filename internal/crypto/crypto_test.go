package crypto

import (
	"bytes"
	"errors"
	"testing"
)

func testPayload(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i*7 + 3)
	}
	return data
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		size int
	}{
		{"empty", 0},
		{"single byte", 1},
		{"small", 1000},
		{"one chunk exactly", ChunkSize},
		{"one chunk plus one byte", ChunkSize + 1},
		{"multiple chunks", 2*ChunkSize + 12345},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plaintext := testPayload(tt.size)

			var encrypted bytes.Buffer
			if err := Encrypt(&encrypted, bytes.NewReader(plaintext), "correct horse"); err != nil {
				t.Fatalf("Encrypt failed: %v", err)
			}

			if encrypted.Len() < SaltSize+NonceSize+tagSize {
				t.Fatalf("encrypted stream too short: %d bytes", encrypted.Len())
			}

			var decrypted bytes.Buffer
			if err := Decrypt(&decrypted, bytes.NewReader(encrypted.Bytes()), "correct horse"); err != nil {
				t.Fatalf("Decrypt failed: %v", err)
			}

			if !bytes.Equal(decrypted.Bytes(), plaintext) {
				t.Errorf("round trip mismatch: got %d bytes, want %d bytes", decrypted.Len(), len(plaintext))
			}
		})
	}
}

func TestDecryptWrongPassphrase(t *testing.T) {
	var encrypted bytes.Buffer
	if err := Encrypt(&encrypted, bytes.NewReader(testPayload(100)), "right"); err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	var out bytes.Buffer
	err := Decrypt(&out, bytes.NewReader(encrypted.Bytes()), "wrong")
	if !errors.Is(err, ErrAuthentication) {
		t.Errorf("expected ErrAuthentication, got %v", err)
	}
	if out.Len() != 0 {
		t.Errorf("plaintext emitted despite failed authentication: %d bytes", out.Len())
	}
}

func TestDecryptTamperedByte(t *testing.T) {
	// Small payload so every byte position, header included, can be flipped.
	plaintext := testPayload(16)
	var encrypted bytes.Buffer
	if err := Encrypt(&encrypted, bytes.NewReader(plaintext), "pass"); err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	stream := encrypted.Bytes()
	for i := range stream {
		tampered := make([]byte, len(stream))
		copy(tampered, stream)
		tampered[i] ^= 0x01

		var out bytes.Buffer
		err := Decrypt(&out, bytes.NewReader(tampered), "pass")
		if !errors.Is(err, ErrAuthentication) {
			t.Fatalf("byte %d: expected ErrAuthentication, got %v", i, err)
		}
		if out.Len() != 0 {
			t.Fatalf("byte %d: plaintext emitted from tampered stream", i)
		}
	}
}

func TestDecryptTamperedLaterChunk(t *testing.T) {
	var encrypted bytes.Buffer
	if err := Encrypt(&encrypted, bytes.NewReader(testPayload(2*ChunkSize+100)), "pass"); err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	stream := encrypted.Bytes()
	// A byte inside the second sealed chunk.
	pos := SaltSize + NonceSize + (ChunkSize + tagSize) + ChunkSize/2
	stream[pos] ^= 0xff

	var out bytes.Buffer
	err := Decrypt(&out, bytes.NewReader(stream), "pass")
	if !errors.Is(err, ErrAuthentication) {
		t.Errorf("expected ErrAuthentication, got %v", err)
	}
	// The first chunk verifies fine, so its plaintext may have been
	// emitted, but nothing at or after the tampered chunk may be.
	if out.Len() > ChunkSize {
		t.Errorf("plaintext emitted beyond the tampered chunk: %d bytes", out.Len())
	}
}

func TestDecryptTruncated(t *testing.T) {
	var encrypted bytes.Buffer
	if err := Encrypt(&encrypted, bytes.NewReader(testPayload(ChunkSize+500)), "pass"); err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	stream := encrypted.Bytes()

	tests := []struct {
		name string
		keep int
	}{
		{"empty stream", 0},
		{"partial header", SaltSize - 2},
		{"header only", SaltSize + NonceSize},
		{"mid first chunk", SaltSize + NonceSize + 100},
		{"final chunk dropped", SaltSize + NonceSize + ChunkSize + tagSize},
		{"one byte short", len(stream) - 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := Decrypt(&out, bytes.NewReader(stream[:tt.keep]), "pass")
			if !errors.Is(err, ErrAuthentication) {
				t.Errorf("expected ErrAuthentication, got %v", err)
			}
		})
	}
}

func TestDecryptTrailingGarbage(t *testing.T) {
	var encrypted bytes.Buffer
	if err := Encrypt(&encrypted, bytes.NewReader(testPayload(100)), "pass"); err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	stream := append(encrypted.Bytes(), 0xde, 0xad, 0xbe, 0xef)

	var out bytes.Buffer
	err := Decrypt(&out, bytes.NewReader(stream), "pass")
	if !errors.Is(err, ErrAuthentication) {
		t.Errorf("expected ErrAuthentication, got %v", err)
	}
}

func TestDeriveKey(t *testing.T) {
	salt := testPayload(SaltSize)

	key1 := DeriveKey("passphrase", salt)
	key2 := DeriveKey("passphrase", salt)
	if !bytes.Equal(key1, key2) {
		t.Error("same passphrase and salt produced different keys")
	}
	if len(key1) != KeySize {
		t.Errorf("key length = %d, want %d", len(key1), KeySize)
	}

	otherSalt := testPayload(SaltSize)
	otherSalt[0] ^= 0xff
	if bytes.Equal(key1, DeriveKey("passphrase", otherSalt)) {
		t.Error("different salts produced the same key")
	}
	if bytes.Equal(key1, DeriveKey("other passphrase", salt)) {
		t.Error("different passphrases produced the same key")
	}
}

func TestEncryptUniqueOutput(t *testing.T) {
	plaintext := testPayload(64)

	var first, second bytes.Buffer
	if err := Encrypt(&first, bytes.NewReader(plaintext), "pass"); err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if err := Encrypt(&second, bytes.NewReader(plaintext), "pass"); err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	// Fresh salt and nonce per artifact: identical input must not produce
	// identical ciphertext.
	if bytes.Equal(first.Bytes(), second.Bytes()) {
		t.Error("two encryptions of the same plaintext produced identical streams")
	}
}

func TestEncryptDecryptBytes(t *testing.T) {
	ciphertext, err := EncryptBytes([]byte("s3cret-db-password"), "master key")
	if err != nil {
		t.Fatalf("EncryptBytes failed: %v", err)
	}

	plaintext, err := DecryptBytes(ciphertext, "master key")
	if err != nil {
		t.Fatalf("DecryptBytes failed: %v", err)
	}
	if string(plaintext) != "s3cret-db-password" {
		t.Errorf("round trip mismatch: %q", plaintext)
	}

	if _, err := DecryptBytes(ciphertext, "not the key"); !errors.Is(err, ErrAuthentication) {
		t.Errorf("expected ErrAuthentication, got %v", err)
	}
}

func TestIsEncryptedName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"orders_20250102_031500.dump.enc", true},
		{"orders_20250102_031500.dump", false},
		{"x.enc", true},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsEncryptedName(tt.name); got != tt.want {
			t.Errorf("IsEncryptedName(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

// Package crypto implements authenticated encryption for backup artifacts.
//
// Artifacts are self-describing: the output stream is
//
//	[16-byte salt][12-byte base nonce][sealed chunks...]
//
// The key is derived from the passphrase with PBKDF2-HMAC-SHA256 and the
// embedded salt, so nothing besides the passphrase is needed to decrypt.
// Plaintext is processed in fixed-size chunks, each sealed independently
// with AES-256-GCM. The chunk counter and a final-chunk flag are bound as
// associated data, so reordering, duplication, or truncation of chunks
// fails authentication the same way a flipped ciphertext byte does.
package crypto

import (
	"bufio"
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// SaltSize is the length of the random per-artifact PBKDF2 salt.
	SaltSize = 16
	// NonceSize is the length of the AES-GCM nonce.
	NonceSize = 12
	// KeySize is the derived key length (AES-256).
	KeySize = 32
	// Iterations is the PBKDF2 iteration count.
	Iterations = 100000
	// ChunkSize is the plaintext chunk length for streaming operation.
	ChunkSize = 64 * 1024

	// EncryptedSuffix marks encrypted artifacts by file name, so restore
	// paths can detect encryption without a side-channel lookup.
	EncryptedSuffix = ".enc"

	headerSize = SaltSize + NonceSize
	tagSize    = 16
)

// ErrAuthentication reports a failed decryption: wrong passphrase or a
// corrupted/tampered artifact. Decrypt never produces plaintext from an
// unverified chunk.
var ErrAuthentication = errors.New("authentication failed: wrong passphrase or corrupted artifact")

// DeriveKey derives an AES-256 key from a passphrase and salt.
func DeriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, Iterations, KeySize, sha256.New)
}

// IsEncryptedName reports whether a file name carries the encrypted suffix.
func IsEncryptedName(name string) bool {
	return strings.HasSuffix(name, EncryptedSuffix)
}

// Encrypt reads plaintext from src and writes the self-describing encrypted
// stream to dst. Input of any size is handled in ChunkSize chunks; the whole
// plaintext is never held in memory.
func Encrypt(dst io.Writer, src io.Reader, passphrase string) error {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}
	baseNonce := make([]byte, NonceSize)
	if _, err := rand.Read(baseNonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	if _, err := dst.Write(salt); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if _, err := dst.Write(baseNonce); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return err
	}

	br := bufio.NewReader(src)
	buf := make([]byte, ChunkSize)
	var index uint64
	for {
		n, err := io.ReadFull(br, buf)
		last := false
		switch {
		case err == io.EOF:
			// Stream ended on a chunk boundary (or was empty). An empty
			// final chunk is still written so the stream authenticates.
			n = 0
			last = true
		case err == io.ErrUnexpectedEOF:
			last = true
		case err != nil:
			return fmt.Errorf("failed to read plaintext: %w", err)
		default:
			if _, perr := br.Peek(1); perr == io.EOF {
				last = true
			} else if perr != nil {
				return fmt.Errorf("failed to read plaintext: %w", perr)
			}
		}

		sealed := gcm.Seal(nil, chunkNonce(baseNonce, index), buf[:n], chunkAD(index, last))
		if _, werr := dst.Write(sealed); werr != nil {
			return fmt.Errorf("failed to write ciphertext: %w", werr)
		}
		if last {
			return nil
		}
		index++
	}
}

// Decrypt reads an encrypted stream from src, verifies it, and writes the
// plaintext to dst. Each chunk is verified before any of its plaintext is
// emitted; a wrong passphrase, a flipped byte, or a truncated stream yields
// ErrAuthentication.
func Decrypt(dst io.Writer, src io.Reader, passphrase string) error {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(src, header); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return fmt.Errorf("truncated artifact header: %w", ErrAuthentication)
		}
		return fmt.Errorf("failed to read header: %w", err)
	}
	salt := header[:SaltSize]
	baseNonce := header[SaltSize:]

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return err
	}

	br := bufio.NewReader(src)
	buf := make([]byte, ChunkSize+tagSize)
	var index uint64
	for {
		n, err := io.ReadFull(br, buf)
		last := false
		switch {
		case err == io.EOF:
			// A chunk was required here: either the final chunk is missing
			// or the stream carries no chunks at all.
			return fmt.Errorf("truncated artifact: %w", ErrAuthentication)
		case err == io.ErrUnexpectedEOF:
			if n < tagSize {
				return fmt.Errorf("truncated artifact: %w", ErrAuthentication)
			}
			last = true
		case err != nil:
			return fmt.Errorf("failed to read ciphertext: %w", err)
		default:
			if _, perr := br.Peek(1); perr == io.EOF {
				last = true
			} else if perr != nil {
				return fmt.Errorf("failed to read ciphertext: %w", perr)
			}
		}

		plain, oerr := gcm.Open(nil, chunkNonce(baseNonce, index), buf[:n], chunkAD(index, last))
		if oerr != nil {
			return ErrAuthentication
		}
		if _, werr := dst.Write(plain); werr != nil {
			return fmt.Errorf("failed to write plaintext: %w", werr)
		}
		if last {
			return nil
		}
		index++
	}
}

// EncryptBytes encrypts a small in-memory payload using the same stream
// format. Used for values stored encrypted at rest, like database passwords.
func EncryptBytes(plaintext []byte, passphrase string) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encrypt(&buf, bytes.NewReader(plaintext), passphrase); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecryptBytes is the in-memory counterpart of EncryptBytes.
func DecryptBytes(ciphertext []byte, passphrase string) ([]byte, error) {
	var buf bytes.Buffer
	if err := Decrypt(&buf, bytes.NewReader(ciphertext), passphrase); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(DeriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}
	return gcm, nil
}

// chunkNonce derives the nonce for chunk index by adding the index to the
// trailing 64 bits of the base nonce. The key is unique per artifact, so
// the sequence never repeats under one key.
func chunkNonce(base []byte, index uint64) []byte {
	nonce := make([]byte, NonceSize)
	copy(nonce, base)
	ctr := binary.BigEndian.Uint64(nonce[4:]) + index
	binary.BigEndian.PutUint64(nonce[4:], ctr)
	return nonce
}

// chunkAD binds the chunk position and finality, so chunks cannot be
// reordered, replayed, or dropped without failing authentication.
func chunkAD(index uint64, final bool) []byte {
	ad := make([]byte, 9)
	binary.BigEndian.PutUint64(ad, index)
	if final {
		ad[8] = 1
	}
	return ad
}

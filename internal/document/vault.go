package document

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"

	"filippo.io/age"
	"github.com/zeebo/blake3"
)

const headerSize = 5 // tag byte + uint32 length

// Errors returned by the vault.
var (
	ErrNotConfigured = errors.New("document vault: no age recipient configured")
	ErrNoIdentity    = errors.New("document vault: no age identity configured for decryption")
	ErrCorrupt       = errors.New("document vault: sealed content is corrupt")
	ErrTooLarge      = errors.New("document vault: content too large")
)

// hashDomain separates document content hashes from any other keyed hash
// derived from the same recipient.
const hashDomain = "smartdiet document content v1\x00"

// Options configures a Vault.
type Options struct {
	// Recipient is an age1... public key. Derived from Identity when empty.
	Recipient string
	// Identity is an AGE-SECRET-KEY-1... private key. Required for Open.
	Identity string
	// Compression is "none", "lz4" or "zstd".
	Compression string
}

// Vault seals and opens verification documents.
type Vault struct {
	recipient   age.Recipient
	identity    age.Identity
	compression Compression
	hashKey     [32]byte
}

// NewVault parses the configured keys.
func NewVault(opts Options) (*Vault, error) {
	compression, err := ParseCompression(opts.Compression)
	if err != nil {
		return nil, err
	}
	v := &Vault{compression: compression}

	var recipientString string
	if opts.Identity != "" {
		identity, err := age.ParseX25519Identity(opts.Identity)
		if err != nil {
			return nil, fmt.Errorf("parsing age identity: %w", err)
		}
		v.identity = identity
		v.recipient = identity.Recipient()
		recipientString = identity.Recipient().String()
	}
	if opts.Recipient != "" {
		recipient, err := age.ParseX25519Recipient(opts.Recipient)
		if err != nil {
			return nil, fmt.Errorf("parsing age recipient: %w", err)
		}
		v.recipient = recipient
		recipientString = recipient.String()
	}
	if v.recipient == nil {
		return nil, ErrNotConfigured
	}

	v.hashKey = blake3.Sum256([]byte(hashDomain + recipientString))
	return v, nil
}

// GenerateIdentity returns a fresh age X25519 identity string and its
// recipient. Used for ephemeral development vaults and by the operator CLI.
func GenerateIdentity() (identity, recipient string, err error) {
	id, err := age.GenerateX25519Identity()
	if err != nil {
		return "", "", fmt.Errorf("generating age identity: %w", err)
	}
	return id.String(), id.Recipient().String(), nil
}

// CanOpen reports whether the vault holds a decryption identity.
func (v *Vault) CanOpen() bool {
	return v.identity != nil
}

// Compression returns the configured compression.
func (v *Vault) Compression() Compression {
	return v.compression
}

// Hash returns the hex keyed BLAKE3 hash of content.
func (v *Vault) Hash(content []byte) string {
	hasher, err := blake3.NewKeyed(v.hashKey[:])
	if err != nil {
		panic("document: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(content)
	return hex.EncodeToString(hasher.Sum(nil))
}

// Seal compresses and encrypts content. It returns the sealed envelope and
// the compression actually applied.
func (v *Vault) Seal(content []byte) ([]byte, Compression, error) {
	if int64(len(content)) > math.MaxUint32 {
		return nil, 0, ErrTooLarge
	}
	payload, applied, err := compress(content, v.compression)
	if err != nil {
		return nil, 0, err
	}

	var header [headerSize]byte
	header[0] = byte(applied)
	binary.BigEndian.PutUint32(header[1:], uint32(len(content)))

	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, v.recipient)
	if err != nil {
		return nil, 0, fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := w.Write(header[:]); err != nil {
		return nil, 0, fmt.Errorf("writing header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return nil, 0, fmt.Errorf("writing payload: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, 0, fmt.Errorf("finalizing age encryption: %w", err)
	}
	return buf.Bytes(), applied, nil
}

// Open decrypts and decompresses a sealed envelope.
func (v *Vault) Open(sealed []byte) ([]byte, error) {
	if v.identity == nil {
		return nil, ErrNoIdentity
	}
	r, err := age.Decrypt(bytes.NewReader(sealed), v.identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted content: %w", err)
	}
	if len(plaintext) < headerSize {
		return nil, ErrCorrupt
	}

	tag := Compression(plaintext[0])
	size := int(binary.BigEndian.Uint32(plaintext[1:headerSize]))
	content, err := decompress(plaintext[headerSize:], tag, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return content, nil
}

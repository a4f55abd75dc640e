// Package keymaterial wraps the RSA key used for a job and advertises the
// block size that the active direction requires. Keys are loaded and
// generated as PEM-encoded PKCS#8 (private) and SubjectPublicKeyInfo
// (public), with CRLF line endings.
package keymaterial

import (
	"bytes"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"dircrypt/internal/errkind"
)

// Direction is a tagged sum over the two block-transform modes a key can
// drive. It is derived from which half of the key pair was loaded, never set
// independently by a caller.
type Direction uint8

const (
	Encrypt Direction = iota
	Decrypt
)

func (d Direction) String() string {
	if d == Encrypt {
		return "encrypt"
	}
	return "decrypt"
}

// KeyBits is the modulus size new keys are generated at, and the size every
// PEM file loaded by this package is expected to carry.
const KeyBits = 4096

// EncryptionMessageSize is the input block size for the encrypt direction.
// It is a fixed 256 bytes, below the OAEP maximum message length at 4096 bits
// with SHA-256 (modulus size minus twice the hash length minus two, 446).
const EncryptionMessageSize = 256

// DecryptionMessageSize is the input block size for the decrypt direction:
// exactly the modulus size in bytes.
const DecryptionMessageSize = 512

// Material is an immutable, read-only-shared wrapper around one half of an
// RSA key pair. Once constructed it never changes; many workers read it
// concurrently for the life of a job.
type Material struct {
	direction Direction
	public    *rsa.PublicKey
	private   *rsa.PrivateKey
}

// Direction reports which block transform this key material drives.
func (m *Material) Direction() Direction { return m.direction }

// BlockSize returns the size of a single input message block for this
// direction: 256 bytes when encrypting, 512 when decrypting, at the 4096-bit/
// OAEP-SHA256 parameters this package fixes.
func (m *Material) BlockSize() int {
	if m.direction == Encrypt {
		return EncryptionMessageSize
	}
	return DecryptionMessageSize
}

// Public returns the public key backing this material. It is nil when the
// material was loaded for decryption.
func (m *Material) Public() *rsa.PublicKey { return m.public }

// Private returns the private key backing this material. It is nil when the
// material was loaded for encryption.
func (m *Material) Private() *rsa.PrivateKey { return m.private }

// LoadPublic reads a SubjectPublicKeyInfo PEM file and wraps it for the
// encrypt direction.
func LoadPublic(path string) (*Material, error) {
	block, err := readPEMBlock(path)
	if err != nil {
		return nil, err
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, errkind.New(errkind.Key, path, fmt.Errorf("parsing public key: %w", err))
	}
	pub, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, errkind.New(errkind.Key, path, fmt.Errorf("key is not an RSA public key"))
	}
	return &Material{direction: Encrypt, public: pub}, nil
}

// LoadPrivate reads a PKCS#8 PEM file and wraps it for the decrypt direction.
func LoadPrivate(path string) (*Material, error) {
	block, err := readPEMBlock(path)
	if err != nil {
		return nil, err
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, errkind.New(errkind.Key, path, fmt.Errorf("parsing private key: %w", err))
	}
	priv, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, errkind.New(errkind.Key, path, fmt.Errorf("key is not an RSA private key"))
	}
	return &Material{direction: Decrypt, private: priv}, nil
}

func readPEMBlock(path string) (*pem.Block, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errkind.New(errkind.Key, path, err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errkind.New(errkind.Key, path, fmt.Errorf("no PEM block found"))
	}
	return block, nil
}

// GenerateKeyPair creates a fresh RSA key pair at KeyBits.
func GenerateKeyPair() (*rsa.PrivateKey, error) {
	return rsa.GenerateKey(rand.Reader, KeyBits)
}

// WritePrivatePEM serializes a private key as PKCS#8 PEM with CRLF line
// endings.
func WritePrivatePEM(key *rsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("marshaling private key: %w", err)
	}
	return encodeCRLF(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// WritePublicPEM serializes a public key as SubjectPublicKeyInfo PEM with
// CRLF line endings.
func WritePublicPEM(key *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return nil, fmt.Errorf("marshaling public key: %w", err)
	}
	return encodeCRLF(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// encodeCRLF encodes a PEM block and rewrites its LF line endings to CRLF.
// pem.Encode always emits "\n"; this format pins CRLF for all emitted keys.
func encodeCRLF(block *pem.Block) []byte {
	var buf bytes.Buffer
	_ = pem.Encode(&buf, block)
	return bytes.ReplaceAll(bytes.ReplaceAll(buf.Bytes(), []byte("\r\n"), []byte("\n")), []byte("\n"), []byte("\r\n"))
}

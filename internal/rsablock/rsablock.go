// Package rsablock applies the RSA-OAEP primitive to a single block. Hashes
// are pinned to SHA-256 for the OAEP label hash and SHA-1 for the MGF1 hash;
// changing either is a wire-format break, not a tunable.
//
// crypto/rsa's exported DecryptOAEP/EncryptOAEP only support a single hash
// shared between the OAEP label and MGF1; decryption can still reach the
// mixed-hash path via crypto.Decrypter's OAEPOptions (which plumbs Hash and
// MGFHash separately), but there is no public encrypt-side equivalent. The
// encrypt half below is a direct translation of crypto/rsa's own OAEP
// encoding algorithm (same mgf1XOR construction), generalized to take the
// MGF1 hash as a separate parameter.
package rsablock

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"fmt"
	"hash"
	"io"
	"math/big"

	"dircrypt/internal/errkind"
	"dircrypt/internal/keymaterial"
)

// Transform applies key's direction to input: OAEP-encrypts with the public
// key, or OAEP-decrypts with the private key. The caller is responsible for
// chunking input to key.BlockSize() ahead of time.
func Transform(key *keymaterial.Material, input []byte) ([]byte, error) {
	switch key.Direction() {
	case keymaterial.Encrypt:
		out, err := encryptOAEPMixedHash(sha256.New(), sha1.New(), rand.Reader, key.Public(), input, nil)
		if err != nil {
			return nil, errkind.New(errkind.Crypto, "", fmt.Errorf("encrypting block: %w", err))
		}
		return out, nil
	case keymaterial.Decrypt:
		opts := &rsa.OAEPOptions{Hash: crypto.SHA256, MGFHash: crypto.SHA1}
		out, err := key.Private().Decrypt(rand.Reader, input, opts)
		if err != nil {
			return nil, errkind.New(errkind.Crypto, "", fmt.Errorf("decrypting block: %w", err))
		}
		return out, nil
	default:
		return nil, errkind.New(errkind.Crypto, "", fmt.Errorf("key material has no direction"))
	}
}

func encryptOAEPMixedHash(labelHash, mgfHash hash.Hash, random io.Reader, pub *rsa.PublicKey, msg, label []byte) ([]byte, error) {
	k := (pub.N.BitLen() + 7) / 8

	labelHash.Reset()
	if len(msg) > k-2*labelHash.Size()-2 {
		return nil, rsa.ErrMessageTooLong
	}
	labelHash.Write(label)
	lHash := labelHash.Sum(nil)
	labelHash.Reset()

	em := make([]byte, k)
	seed := em[1 : 1+labelHash.Size()]
	db := em[1+labelHash.Size():]

	copy(db[0:labelHash.Size()], lHash)
	db[len(db)-len(msg)-1] = 1
	copy(db[len(db)-len(msg):], msg)

	if _, err := io.ReadFull(random, seed); err != nil {
		return nil, err
	}

	mgf1XOR(db, mgfHash, seed)
	mgf1XOR(seed, mgfHash, db)

	m := new(big.Int).SetBytes(em)
	e := big.NewInt(int64(pub.E))
	c := new(big.Int).Exp(m, e, pub.N)

	out := c.Bytes()
	if len(out) == k {
		return out, nil
	}
	padded := make([]byte, k)
	copy(padded[k-len(out):], out)
	return padded, nil
}

// mgf1XOR XORs out with a mask generated from seed via MGF1, as specified in
// PKCS#1 / RFC 8017 appendix B.2.1.
func mgf1XOR(out []byte, mgfHash hash.Hash, seed []byte) {
	var counter [4]byte
	var digest []byte

	done := 0
	for done < len(out) {
		mgfHash.Reset()
		mgfHash.Write(seed)
		mgfHash.Write(counter[:])
		digest = mgfHash.Sum(digest[:0])

		for i := 0; i < len(digest) && done < len(out); i++ {
			out[done] ^= digest[i]
			done++
		}
		incCounter(&counter)
	}
}

func incCounter(c *[4]byte) {
	if c[3]++; c[3] != 0 {
		return
	}
	if c[2]++; c[2] != 0 {
		return
	}
	if c[1]++; c[1] != 0 {
		return
	}
	c[0]++
}

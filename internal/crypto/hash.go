package crypto

import (
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

// HashSize is the size of a digest in bytes.
const HashSize = 32

type Hash [HashSize]byte

func (h Hash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// HashData hashes the input data using Blake2b-256.
func HashData(data []byte) Hash {
	return blake2b.Sum256(data)
}

// KeccakData hashes the input data using Keccak-256. This is the hash used
// by the cross-domain transport's addressing scheme, so anything that must
// name a message the way the transport does goes through here.
func KeccakData(data []byte) Hash {
	hash := sha3.NewLegacyKeccak256()
	hash.Write(data)
	hashed := hash.Sum(nil)

	var result Hash
	copy(result[:], hashed)
	return result
}

// HashFromBytes converts a byte slice to a Hash.
func HashFromBytes(b []byte) (Hash, error) {
	if len(b) != HashSize {
		return Hash{}, fmt.Errorf("invalid hash length %d", len(b))
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

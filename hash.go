// Hash algorithms for record identifiers and payload checksums.
//
// Every record carries a 16 hex character _id derived from the grid name
// (or from metaID for the file metadata record). Three algorithms are
// supported, selectable via Config.HashAlgorithm and recorded in the header
// so a reader always hashes the same way the writer did. Payload checksums
// are always xxHash3 regardless of the ID algorithm.
package densevdb

import (
	"fmt"
	"hash/fnv"

	"github.com/zeebo/xxh3"
	"golang.org/x/crypto/blake2b"
)

// Hash algorithm constants.
const (
	AlgXXHash3 = 1 // Default, fastest
	AlgFNV1a   = 2 // No external dependencies
	AlgBlake2b = 3 // Best distribution
)

// metaID is the name hashed to identify the file metadata record. It
// contains a character grid names cannot, so it never collides with one.
const metaID = "\x00meta"

// hash generates a 16 hex character ID from a name using the specified algorithm.
func hash(name string, alg int) string {
	switch alg {
	case AlgXXHash3:
		h := xxh3.HashString(name)
		return fmt.Sprintf("%016x", h)
	case AlgFNV1a:
		h := fnv.New64a()
		h.Write([]byte(name))
		return fmt.Sprintf("%016x", h.Sum64())
	case AlgBlake2b:
		h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
		h.Write([]byte(name))
		return fmt.Sprintf("%016x", h.Sum(nil))
	default:
		return ""
	}
}

// checksum returns the xxHash3 digest of raw payload bytes as 16 hex chars.
func checksum(data []byte) string {
	return fmt.Sprintf("%016x", xxh3.Hash(data))
}

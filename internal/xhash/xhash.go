// Package xhash provides the keyed hash used to bucket a journal file's
// data and field hash tables when the file declares the keyed-hash
// incompatible flag. The key is derived from the file's own file_id, so two
// journal files never collide on the same bucket layout even for identical
// payloads — closing off the hash-flooding attack the unkeyed Jenkins hash
// is vulnerable to.
package xhash

import "github.com/cespare/xxhash/v2"

// Keyer produces the 64-bit bucket hash for a payload, keyed by a file's id.
type Keyer struct {
	seed uint64
}

// NewKeyer derives a Keyer from a file's 16-byte file_id.
func NewKeyer(fileID [16]byte) Keyer {
	seed := uint64(0)
	for i := 0; i < 8; i++ {
		seed |= uint64(fileID[i]) << (8 * i)
	}
	return Keyer{seed: seed}
}

// Hash64 returns the keyed 64-bit hash of data.
func (k Keyer) Hash64(data []byte) uint64 {
	d := xxhash.NewWithSeed(k.seed)
	_, _ = d.Write(data)
	return d.Sum64()
}

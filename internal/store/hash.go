package store

import (
	"encoding/binary"
	"fmt"

	"github.com/minio/highwayhash"
)

var contentKey = []byte("passlens-snapshot-content-key-01")

// ContentHash computes a deterministic 64-bit hash over a snapshot's record
// texts. Each record is length-prefixed so ["ab","c"] and ["a","bc"] differ.
func ContentHash(texts []string) string {
	h, err := highwayhash.New64(contentKey)
	if err != nil {
		// Only returned for a key that is not 32 bytes.
		panic(fmt.Sprintf("store: highwayhash: %v", err))
	}
	var n [8]byte
	for _, t := range texts {
		binary.LittleEndian.PutUint64(n[:], uint64(len(t)))
		h.Write(n[:])
		h.Write([]byte(t))
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

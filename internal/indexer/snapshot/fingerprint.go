package snapshot

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Fingerprint hashes the ordered document texts with BLAKE3. Each text is
// length-prefixed, so moving a boundary between documents changes the hash.
func Fingerprint(texts []string) string {
	h := blake3.New()
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(texts)))
	h.Write(lenBuf[:n])
	for _, t := range texts {
		n = binary.PutUvarint(lenBuf[:], uint64(len(t)))
		h.Write(lenBuf[:n])
		h.Write([]byte(t))
	}
	return "blake3:" + hex.EncodeToString(h.Sum(nil))
}

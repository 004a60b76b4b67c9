package fractal

import (
	"encoding/binary"

	"github.com/zeebo/xxh3"
)

// Checksum hashes a pixel buffer in its big-endian wire order. Equal buffers
// give equal sums regardless of which workers produced them.
func Checksum(px []ARGB) uint64 {
	h := xxh3.New()
	var buf [4 * 1024]byte
	n := 0
	for _, c := range px {
		binary.BigEndian.PutUint32(buf[n:], uint32(c))
		n += 4
		if n == len(buf) {
			_, _ = h.Write(buf[:])
			n = 0
		}
	}
	_, _ = h.Write(buf[:n])
	return h.Sum64()
}

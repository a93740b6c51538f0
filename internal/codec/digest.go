package codec

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Digest is the hex BLAKE3-256 of data. It names encoded outputs and is
// used as the HTTP entity tag.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

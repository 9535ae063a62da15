package buildinfo

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
)

// HashContent computes xxHash64 over the stream followed by its length, returns hex string.
func HashContent(r io.Reader) (string, error) {
	h := xxhash.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", fmt.Errorf("failed to hash content: %w", err)
	}

	var size [8]byte
	binary.BigEndian.PutUint64(size[:], uint64(n))
	_, _ = h.Write(size[:])

	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashBytes computes the same digest as HashContent for an in-memory buffer.
func HashBytes(data []byte) string {
	h := xxhash.New()
	_, _ = h.Write(data)

	var size [8]byte
	binary.BigEndian.PutUint64(size[:], uint64(len(data)))
	_, _ = h.Write(size[:])

	return hex.EncodeToString(h.Sum(nil))
}

// SaltedID derives a path-qualified id from a content id.
func SaltedID(origin, contentID string) string {
	h := xxhash.New()
	_, _ = h.WriteString(origin)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(contentID)
	return hex.EncodeToString(h.Sum(nil))
}

package fs

import (
	"encoding/hex"
	"io"
	"os"

	"github.com/go-crypt/x/blake2b"
)

// hashSize is the digest size in bytes (256 bits).
const hashSize = 32

// HashContent returns the hex BLAKE2b-256 digest of content. It is the
// dedup key for uploads: identical bytes always produce the same digest.
func HashContent(content []byte) string {
	h, _ := blake2b.New(hashSize, nil)
	h.Write(content)
	return hex.EncodeToString(h.Sum(nil))
}

// HashFile streams a file through the same digest as HashContent.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h, err := blake2b.New(hashSize, nil)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

package persist

import (
	"crypto/sha256"
	"encoding/hex"
)

// maxHexName bounds hex-encoded entry names. File systems cap a name at
// 255 bytes and S3 caps a whole object key at 1024.
const maxHexName = 128

// entryName maps a key to a file or object name. Short keys are hex
// encoded; longer keys become "h" plus the SHA-256 of the key, which can
// never equal a hex name.
func entryName(key string) string {
	if len(key)*2 <= maxHexName {
		return hex.EncodeToString([]byte(key))
	}
	sum := sha256.Sum256([]byte(key))
	return "h" + hex.EncodeToString(sum[:])
}

package vault

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// maxHexName keeps names inside the tightest vault limit (Azure Key Vault
// allows 127 characters) with room for a prefix.
const maxHexName = 64

// encodeKey maps an arbitrary store key to [0-9a-f] for short keys, or to
// "h" plus the SHA-256 of the key for long ones. The two forms never
// collide.
func encodeKey(key string) string {
	if len(key)*2 <= maxHexName {
		return hex.EncodeToString([]byte(key))
	}
	sum := sha256.Sum256([]byte(key))
	return "h" + hex.EncodeToString(sum[:])
}

// itemName maps an arbitrary store key to a name every cloud vault accepts.
func itemName(prefix, key string) string {
	name := encodeKey(key)
	if prefix == "" {
		return name
	}
	return prefix + "-" + name
}

// parameterName is itemName for SSM, which uses slash-separated paths.
func parameterName(path, key string) string {
	path = "/" + strings.Trim(path, "/")
	if path == "/" {
		return path + encodeKey(key)
	}
	return path + "/" + encodeKey(key)
}

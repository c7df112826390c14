package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
)

// SHA256 returns the SHA256 hash of the data.
func SHA256(data []byte) []byte {
	hasher := sha256.New()
	hasher.Write(data)
	hash := hasher.Sum(nil)
	return hash
}

// SHA256Hex returns the lowercase hex encoding of the SHA256 hash of the
// data.
func SHA256Hex(data []byte) string {
	return hex.EncodeToString(SHA256(data))
}

// SHA256File returns the lowercase hex encoding of the SHA256 hash of a
// file's contents, streaming the file rather than loading it in memory.
func SHA256File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// ChainHash derives the rolling hash that links a mirrored artifact to all
// prior mirrors. It is the SHA256 of the concatenation of the previous
// chain hash and the artifact's own hash, both hex-encoded. The first entry
// of a chain uses an empty previous hash.
func ChainHash(prevChainHashHex, shaHex string) string {
	var hasher = sha256.New()
	hasher.Write([]byte(prevChainHashHex))
	hasher.Write([]byte(shaHex))
	return hex.EncodeToString(hasher.Sum(nil))
}

// HMAC returns the SHA256-based HMAC tag of the data under the given key.
func HMAC(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

// VerifyHMAC reports whether tag is a valid HMAC of the data under the given
// key, in constant time.
func VerifyHMAC(key, data, tag []byte) bool {
	return hmac.Equal(tag, HMAC(key, data))
}

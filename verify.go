package corebrew

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
)

// verifyDigest reports whether the file at path hashes to wantDigestHex,
// the same SHA-256-hex scheme buildengine.scanManifest uses to populate
// an InstalledRecord's manifest in the first place.
func verifyDigest(path, wantDigestHex string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return false, err
	}
	return hex.EncodeToString(h.Sum(nil)) == wantDigestHex, nil
}

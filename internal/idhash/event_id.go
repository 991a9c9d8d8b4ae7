package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeEventID computes a deterministic event id using SHA256.
// Formula: SHA256(name|signature|token|slot|index)
// Returns hex-encoded hash (64 characters).
//
// index distinguishes several events of the same kind produced from one
// transaction. Surge events carry no signature, their timestamp is passed
// in place of it so repeated surges at the same slot stay distinct.
func ComputeEventID(name, signature, token string, slot int64, index int) string {
	data := fmt.Sprintf("%s|%s|%s|%d|%d", name, signature, token, slot, index)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// Package identity derives stable identifiers for fetched messages.
// All functions are pure: identical inputs always produce identical
// output, which is what makes archival writes and index inserts
// idempotent across retries.
package identity

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
)

// shortHashLen is the number of hex characters kept for the archival
// filename disambiguation suffix.
const shortHashLen = 12

// IndexKey returns the globally unique index key for a message,
// derived from its account, folder, UID, and protocol message id.
// The message id may be empty; the UID still disambiguates within
// the folder.
func IndexKey(account, folder string, uid uint32, messageID string) string {
	base := fmt.Sprintf("%s:%s:%d:%s", account, folder, uid, messageID)
	return hashText(base)
}

// ShortHash returns the filename disambiguation suffix for a message.
// It prefers the protocol message id; messages without one fall back
// to hashing the raw payload.
func ShortHash(messageID string, raw []byte) string {
	if messageID != "" {
		return hashText(messageID)[:shortHashLen]
	}
	return hashBytes(raw)[:shortHashLen]
}

// Checksum returns the full content checksum of a raw message payload.
// It is stored as index metadata and is not part of message identity.
func Checksum(raw []byte) string {
	return hashBytes(raw)
}

func hashText(s string) string {
	return hashBytes([]byte(s))
}

func hashBytes(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}

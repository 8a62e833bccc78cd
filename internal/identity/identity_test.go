package identity

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexKeyDeterministic(t *testing.T) {
	a := IndexKey("alice", "INBOX", 42, "<x@y>")
	b := IndexKey("alice", "INBOX", 42, "<x@y>")
	assert.Equal(t, a, b)
	assert.Len(t, a, 40)
}

func TestIndexKeyInputSensitivity(t *testing.T) {
	base := IndexKey("alice", "INBOX", 42, "<x@y>")

	assert.NotEqual(t, base, IndexKey("bob", "INBOX", 42, "<x@y>"))
	assert.NotEqual(t, base, IndexKey("alice", "Sent", 42, "<x@y>"))
	assert.NotEqual(t, base, IndexKey("alice", "INBOX", 43, "<x@y>"))
	assert.NotEqual(t, base, IndexKey("alice", "INBOX", 42, "<z@y>"))
	assert.NotEqual(t, base, IndexKey("alice", "INBOX", 42, ""))
}

func TestIndexKeyNoCollisionsOverSample(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	seen := make(map[string]string, 20000)

	for i := 0; i < 20000; i++ {
		account := fmt.Sprintf("acct%d", rng.Intn(50))
		folder := fmt.Sprintf("folder%d", rng.Intn(20))
		uid := uint32(rng.Intn(100000))
		msgID := ""
		if rng.Intn(2) == 0 {
			msgID = fmt.Sprintf("<%d@example.org>", rng.Int63())
		}

		input := fmt.Sprintf("%s|%s|%d|%s", account, folder, uid, msgID)
		key := IndexKey(account, folder, uid, msgID)

		if prev, ok := seen[key]; ok {
			require.Equal(t, prev, input, "collision between distinct inputs")
		}
		seen[key] = input
	}
}

func TestShortHash(t *testing.T) {
	raw := []byte("raw message bytes")

	withID := ShortHash("<x@y>", raw)
	assert.Len(t, withID, 12)
	assert.Equal(t, withID, ShortHash("<x@y>", []byte("different bytes")),
		"message id takes precedence over payload")

	withoutID := ShortHash("", raw)
	assert.Len(t, withoutID, 12)
	assert.NotEqual(t, withoutID, ShortHash("", []byte("different bytes")))
}

func TestChecksum(t *testing.T) {
	raw := []byte("hello")
	assert.Equal(t, Checksum(raw), Checksum([]byte("hello")))
	assert.NotEqual(t, Checksum(raw), Checksum([]byte("hello!")))
	assert.Len(t, Checksum(raw), 40)
}

// Package idmint mints opaque, unique identifiers used across
// jcoded for messages, tool calls, and background tasks.
package idmint

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// Mint produces ids of the form <prefix><millis><tail>, where millis is
// the minting time in milliseconds modulo 1,000,000 (zero-padded to six
// digits). Millis alone is not collision-safe within the same
// millisecond, hence the tail: the first id of a millisecond gets a
// random base36 tail, and later ids in that millisecond carry the
// sequence number 1, 2, ... in hex, which keeps them distinct from one
// another (a random tail can, rarely, equal one of them). Ids are not
// ordered: a random tail can sort after the sequence tails that follow
// it, and the millis field wraps every 1,000 seconds.
type Mint struct {
	mu      sync.Mutex
	last    int64
	seq     int
	tailLen int
}

// New returns a Mint whose random tail is tailLen base36 characters long.
// The background-task id format in the wire schema uses tailLen=4.
func New(tailLen int) *Mint {
	if tailLen <= 0 {
		tailLen = 4
	}
	return &Mint{tailLen: tailLen}
}

// Next returns a new id prefixed with prefix (may be empty), formatted as
// <prefix><6-digit-millis><tail>. Within the same millisecond, the
// second and later calls produce distinct ids via an internal sequence
// number folded into the tail; see Mint for ordering.
func (m *Mint) Next(prefix string) string {
	m.mu.Lock()
	now := time.Now().UnixMilli()
	if now == m.last {
		m.seq++
	} else {
		m.last = now
		m.seq = 0
	}
	seq := m.seq
	m.mu.Unlock()

	millis := now % 1_000_000
	tail := randomTail(m.tailLen)
	if seq > 0 {
		// Fold the sequence number into the tail so same-millisecond ids
		// still compare distinctly without growing in length.
		tail = fmt.Sprintf("%0*x", m.tailLen, seq)
	}
	return fmt.Sprintf("%s%06d%s", prefix, millis, tail)
}

// randomTail draws its entropy from a freshly minted UUID (version 4,
// crypto/rand-backed under the hood) rather than reading crypto/rand
// directly, so the same well-tested entropy source backs every random
// tail in the process.
func randomTail(n int) string {
	id := uuid.New()
	buf := id[:]
	out := make([]byte, n)
	for i := range out {
		out[i] = base36Alphabet[int(buf[i%len(buf)])%len(base36Alphabet)]
	}
	return string(out)
}

// Default is a process-wide mint usable by callers that don't need an
// isolated counter (e.g. one-off message/tool-call ids).
var Default = New(4)

// NextID mints an id from Default with the given prefix.
func NextID(prefix string) string {
	return Default.Next(prefix)
}

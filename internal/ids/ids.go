package ids

import (
	mathrand "math/rand"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// RequestID returns a lexicographically sortable identifier for X-Request-ID.
func RequestID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// UUID returns a random RFC 4122 identifier, used by resources keyed on uuid.
func UUID() string {
	return uuid.NewString()
}

// Sequence hands out increasing integer identifiers, mirroring a database
// serial column. The zero value starts at 1.
type Sequence struct {
	n atomic.Int64
}

// Next returns the next identifier.
func (s *Sequence) Next() int64 {
	return s.n.Add(1)
}

// NextString returns the next identifier in decimal form.
func (s *Sequence) NextString() string {
	return strconv.FormatInt(s.Next(), 10)
}

// Observe advances the sequence so that it never hands out id or anything
// lower. Used when records are loaded from persistent storage.
func (s *Sequence) Observe(id int64) {
	for {
		cur := s.n.Load()
		if id <= cur || s.n.CompareAndSwap(cur, id) {
			return
		}
	}
}

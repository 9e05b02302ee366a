// Package ids mints identifiers for contracts, messages, payments and
// timeline events. ULIDs keep these keys sortable by creation time, which
// the timeline ordering leans on.
package ids

import (
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var mint = struct {
	sync.Mutex
	entropy *ulid.MonotonicEntropy
}{
	entropy: ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0),
}

// New returns a fresh ULID. Safe for concurrent use; IDs minted within the
// same millisecond still sort in mint order.
func New() string {
	mint.Lock()
	defer mint.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), mint.entropy).String()
}

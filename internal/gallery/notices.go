package gallery

import (
	"sync"
	"time"
)

// DefaultNoticeCapacity is how many notices are kept before the oldest is overwritten.
const DefaultNoticeCapacity = 64

type NoticeKind string

const (
	// KindStorageWrite reports a persistence effect that failed for good.
	// The in-memory change it belonged to is kept.
	KindStorageWrite NoticeKind = "storage_write_failure"
	// KindMigration reports that stored data could not be moved to the current layout.
	KindMigration NoticeKind = "migration"
)

// Notice is a short message for the owner, the service counterpart of a toast.
type Notice struct {
	Seq     uint64     `json:"seq"`
	Kind    NoticeKind `json:"kind"`
	Message string     `json:"message"`
	At      time.Time  `json:"at"`
}

// Notices is a bounded ring of notices with increasing sequence numbers.
type Notices struct {
	mu   sync.Mutex
	buf  []Notice
	head int // index of the oldest entry
	size int
	seq  uint64
	now  func() time.Time
}

func NewNotices(capacity int) *Notices {
	if capacity <= 0 {
		capacity = DefaultNoticeCapacity
	}
	return &Notices{buf: make([]Notice, capacity), now: time.Now}
}

// Push records a notice and returns it.
func (n *Notices) Push(kind NoticeKind, message string) Notice {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.seq++
	nt := Notice{Seq: n.seq, Kind: kind, Message: message, At: n.now()}

	idx := (n.head + n.size) % len(n.buf)
	n.buf[idx] = nt
	if n.size < len(n.buf) {
		n.size++
	} else {
		n.head = (n.head + 1) % len(n.buf)
	}
	return nt
}

// Since returns the retained notices with a sequence number greater than seq, oldest first.
func (n *Notices) Since(seq uint64) []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make([]Notice, 0, n.size)
	for i := 0; i < n.size; i++ {
		nt := n.buf[(n.head+i)%len(n.buf)]
		if nt.Seq > seq {
			out = append(out, nt)
		}
	}
	return out
}

// Last returns the sequence number of the newest notice, 0 when none was pushed.
func (n *Notices) Last() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.seq
}

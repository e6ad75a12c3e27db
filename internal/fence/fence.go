package fence

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// Invalid is the descriptor value of an absent fence.
const Invalid = -1

// ErrConsumed is returned when a fence that was already closed or released is
// used again. The OS descriptor is never touched in that case.
var ErrConsumed = errors.New("fence already consumed")

// Ops performs the descriptor syscalls behind a Tracker.
type Ops interface {
	Dup(fd int) (int, error)
	Close(fd int) error
}

type unixOps struct{}

func (unixOps) Dup(fd int) (int, error) {
	return unix.FcntlInt(uintptr(fd), unix.F_DUPFD_CLOEXEC, 0)
}

func (unixOps) Close(fd int) error {
	return unix.Close(fd)
}

// Stats counts how tracked fences ended.
type Stats struct {
	Adopted    int `json:"adopted"`
	Duplicated int `json:"duplicated"`
	Closed     int `json:"closed"`
	Released   int `json:"released"`
}

// Tracker owns every fence descriptor that enters the controller and
// records how each one was consumed.
type Tracker struct {
	ops Ops

	mu    sync.Mutex
	live  map[*Fence]struct{}
	stats Stats
}

// NewTracker returns a Tracker backed by real descriptor syscalls.
func NewTracker() *Tracker {
	return NewTrackerWithOps(unixOps{})
}

// NewTrackerWithOps returns a Tracker that routes syscalls through ops.
func NewTrackerWithOps(ops Ops) *Tracker {
	return &Tracker{
		ops:  ops,
		live: make(map[*Fence]struct{}),
	}
}

// Adopt takes ownership of fd. A negative fd yields nil (no fence).
func (t *Tracker) Adopt(fd int) *Fence {
	if fd < 0 {
		return nil
	}
	f := &Fence{fd: fd, t: t}

	t.mu.Lock()
	t.live[f] = struct{}{}
	t.stats.Adopted++
	t.mu.Unlock()
	return f
}

// Outstanding returns the number of fences still owned and unconsumed.
func (t *Tracker) Outstanding() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.live)
}

// Stats returns a copy of the consumption counters.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// CloseAll closes every fence that is still outstanding.
func (t *Tracker) CloseAll() error {
	t.mu.Lock()
	pending := make([]*Fence, 0, len(t.live))
	for f := range t.live {
		pending = append(pending, f)
	}
	t.mu.Unlock()

	var errs []error
	for _, f := range pending {
		if err := f.Close(); err != nil && !errors.Is(err, ErrConsumed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// consume marks f as finished. It reports false if f was already consumed.
func (t *Tracker) consume(f *Fence, released bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if f.done {
		return false
	}
	f.done = true
	delete(t.live, f)
	if released {
		t.stats.Released++
	} else {
		t.stats.Closed++
	}
	return true
}

// Fence is a move-only owned synchronization handle. A nil *Fence means
// "no fence" and every method is safe to call on it.
type Fence struct {
	fd   int
	t    *Tracker
	done bool
}

// FD returns the descriptor, or Invalid once consumed.
func (f *Fence) FD() int {
	if !f.Valid() {
		return Invalid
	}
	return f.fd
}

// Valid reports whether f still owns a descriptor.
func (f *Fence) Valid() bool {
	if f == nil || f.t == nil {
		return false
	}
	f.t.mu.Lock()
	defer f.t.mu.Unlock()
	return !f.done && f.fd >= 0
}

// Dup returns a new independently owned fence for the same sync point.
// f stays owned by the caller.
func (f *Fence) Dup() (*Fence, error) {
	if f == nil {
		return nil, nil
	}
	if !f.Valid() {
		return nil, ErrConsumed
	}
	nfd, err := f.t.ops.Dup(f.fd)
	if err != nil {
		return nil, fmt.Errorf("dup fence %d: %w", f.fd, err)
	}
	d := f.t.Adopt(nfd)

	f.t.mu.Lock()
	f.t.stats.Duplicated++
	f.t.mu.Unlock()
	return d, nil
}

// Close releases the descriptor without waiting on it.
func (f *Fence) Close() error {
	if f == nil {
		return nil
	}
	if !f.t.consume(f, false) {
		return ErrConsumed
	}
	if err := f.t.ops.Close(f.fd); err != nil {
		return fmt.Errorf("close fence %d: %w", f.fd, err)
	}
	return nil
}

// Release hands the descriptor to the caller, which becomes responsible for
// waiting on and closing it. Returns Invalid if f is absent or consumed.
func (f *Fence) Release() int {
	if f == nil {
		return Invalid
	}
	if !f.t.consume(f, true) {
		return Invalid
	}
	return f.fd
}

// Take moves the fence out of *slot, leaving nil behind.
func Take(slot **Fence) *Fence {
	f := *slot
	*slot = nil
	return f
}

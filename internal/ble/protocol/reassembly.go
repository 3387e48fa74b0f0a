package protocol

import "fmt"

// ReassemblyState is the state of a download in progress.
type ReassemblyState int

const (
	StateIdle ReassemblyState = iota
	StateAwaitingFirstFragment
	StateAccumulating
	StateComplete
	StateFailed
	StateTimedOut
)

func (s ReassemblyState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingFirstFragment:
		return "awaiting-first-fragment"
	case StateAccumulating:
		return "accumulating"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	case StateTimedOut:
		return "timed-out"
	}
	return fmt.Sprintf("ReassemblyState(%d)", int(s))
}

// Terminal reports whether no further fragments are accepted.
func (s ReassemblyState) Terminal() bool {
	return s == StateComplete || s == StateFailed || s == StateTimedOut
}

// Fragment is one pushed chunk of a learned IR code.
type Fragment struct {
	Index byte
	Total byte   // only meaningful for index 0
	Data  []byte // empty for index 0
}

// DecodeFragment parses a notification. ok is false for notifications that
// are not data fragments.
func DecodeFragment(b []byte) (f Fragment, ok bool) {
	if len(b) <= 4 || b[0] != Header || b[3] != StatusData {
		return Fragment{}, false
	}
	f.Index = b[4]
	if f.Index == 0 {
		if len(b) <= 5 {
			return Fragment{}, false
		}
		f.Total = b[5]
		return f, true
	}
	f.Data = append([]byte(nil), b[5:]...)
	return f, true
}

// Reassembler accumulates fragments in strict index order. Index 0 announces
// the total packet count (itself included); each later fragment must carry
// the index equal to the number of packets received so far.
type Reassembler struct {
	state    ReassemblyState
	expected int // -1 until index 0 arrives
	received int
	buf      []byte
}

// NewReassembler returns an idle reassembler.
func NewReassembler() *Reassembler {
	return &Reassembler{expected: -1}
}

// Start arms an idle reassembler once the device has entered learning mode.
func (r *Reassembler) Start() {
	if r.state == StateIdle {
		r.state = StateAwaitingFirstFragment
	}
}

// State returns the current state.
func (r *Reassembler) State() ReassemblyState { return r.state }

// Expected returns the announced packet count, or -1 if not yet known.
func (r *Reassembler) Expected() int { return r.expected }

// Received returns the number of packets accepted so far.
func (r *Reassembler) Received() int { return r.received }

// Bytes returns the reassembled payload. It is nil unless the state is
// StateComplete.
func (r *Reassembler) Bytes() []byte {
	if r.state != StateComplete {
		return nil
	}
	return r.buf
}

// Feed applies one fragment and returns the resulting state. Fragments fed
// before Start or after a terminal state are ignored. Index 0 always
// restarts accumulation; a header announcing zero packets fails, since the
// header itself is packet one.
func (r *Reassembler) Feed(f Fragment) ReassemblyState {
	if r.state.Terminal() || r.state == StateIdle {
		return r.state
	}

	switch {
	case f.Index == 0 && f.Total == 0:
		r.fail()
		return r.state
	case f.Index == 0:
		r.expected = int(f.Total)
		r.buf = []byte{}
		r.received = 1
		r.state = StateAccumulating
	case r.state == StateAccumulating && int(f.Index) == r.received:
		r.buf = append(r.buf, f.Data...)
		r.received++
	default:
		r.fail()
		return r.state
	}

	if r.received == r.expected {
		r.state = StateComplete
	}
	return r.state
}

// TimeOut moves a download that is still in progress to StateTimedOut.
func (r *Reassembler) TimeOut() {
	if !r.state.Terminal() {
		r.buf = nil
		r.state = StateTimedOut
	}
}

func (r *Reassembler) fail() {
	r.buf = nil
	r.expected = -1
	r.received = 0
	r.state = StateFailed
}

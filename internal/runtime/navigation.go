package runtime

import (
	"sort"
	"sync"
)

type QuestionStatus string

const (
	QuestionAnswered   QuestionStatus = "answered"
	QuestionFlagged    QuestionStatus = "flagged"
	QuestionUnanswered QuestionStatus = "unanswered"
)

// Navigator owns the current-question pointer and the review flag set. Flags
// are ephemeral in-session state; the sync snapshot carries them as a
// convenience, but losing them is not an error.
type Navigator struct {
	gate func() bool

	mu    sync.Mutex
	index int
	total int
	flags map[int]struct{}
}

func NewNavigator(gate func() bool) *Navigator {
	return &Navigator{
		gate:  gate,
		flags: make(map[int]struct{}),
	}
}

// Seed loads the persisted pointer and flags, bypassing the gate.
func (n *Navigator) Seed(index, total int, flags []int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.total = total
	if index < 0 || index >= total {
		index = 0
	}
	n.index = index
	n.flags = make(map[int]struct{}, len(flags))
	for _, f := range flags {
		if f >= 0 && f < total {
			n.flags[f] = struct{}{}
		}
	}
}

// Goto moves the pointer. Rejected (no state change) while not Active or when
// the index is out of range.
func (n *Navigator) Goto(index int) bool {
	if n.gate != nil && !n.gate() {
		return false
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if index < 0 || index >= n.total {
		return false
	}
	n.index = index
	return true
}

func (n *Navigator) Index() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.index
}

// ToggleFlag flips one question's review mark, gated like navigation.
func (n *Navigator) ToggleFlag(index int) bool {
	if n.gate != nil && !n.gate() {
		return false
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if index < 0 || index >= n.total {
		return false
	}
	if _, ok := n.flags[index]; ok {
		delete(n.flags, index)
	} else {
		n.flags[index] = struct{}{}
	}
	return true
}

func (n *Navigator) Flagged(index int) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.flags[index]
	return ok
}

// Flags returns the flagged indices in ascending order.
func (n *Navigator) Flags() []int {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]int, 0, len(n.flags))
	for f := range n.flags {
		out = append(out, f)
	}
	sort.Ints(out)
	return out
}

func (n *Navigator) FlagCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.flags)
}

// Reset clears the pointer and flags. Used when the candidate restarts fresh.
func (n *Navigator) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.index = 0
	n.flags = make(map[int]struct{})
}

package board

// trackState is the state of the stone/height automaton.
type trackState int

const (
	idle trackState = iota
	awaitingHeight
)

// heightTracker pairs every stone image with the height overlay that follows it.
//
//	state           input   next            violation
//	idle            stone   awaitingHeight  no
//	idle            height  idle            yes (height without stone)
//	awaitingHeight  stone   awaitingHeight  yes (previous stone got no height)
//	awaitingHeight  height  idle            no
//
// A height always completes the current cell, even after a violation.
type heightTracker struct {
	state trackState
}

// stone records a stone image and reports an ordering violation.
func (h *heightTracker) stone() bool {
	violation := h.state == awaitingHeight
	h.state = awaitingHeight
	return violation
}

// height records a height overlay and reports an ordering violation.
func (h *heightTracker) height() bool {
	violation := h.state == idle
	h.state = idle
	return violation
}

func (h *heightTracker) awaiting() bool {
	return h.state == awaitingHeight
}

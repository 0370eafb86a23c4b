// Package history implements browser-style back/forward navigation over
// visited articles.
package history

import "github.com/Tasour/wikipedia-graph/internal/models"

// Entry is a visited page and the optional section it was scrolled to.
type Entry = models.PageRef

// History holds two stacks. The top of back is the current page; forward is
// the redo buffer.
//
// History is not safe for concurrent use; the owning session serializes access.
type History struct {
	back    []Entry
	forward []Entry
}

// New creates an empty history.
func New() *History {
	return &History{}
}

// Visit pushes e as the current page. A fresh navigation passes
// clearForward=true; back/forward replays pass false.
func (h *History) Visit(e Entry, clearForward bool) {
	h.back = append(h.back, e)
	if clearForward {
		h.forward = h.forward[:0]
	}
}

// Back moves the current page onto the forward stack and pops the previous
// page, which the caller must navigate to again. It needs at least two
// entries; otherwise nothing changes.
func (h *History) Back() (Entry, bool) {
	if len(h.back) < 2 {
		return Entry{}, false
	}
	cur := h.back[len(h.back)-1]
	h.forward = append(h.forward, cur)
	dest := h.back[len(h.back)-2]
	h.back = h.back[:len(h.back)-2]
	return dest, true
}

// Forward pops the most recent forward entry for the caller to navigate to.
func (h *History) Forward() (Entry, bool) {
	if len(h.forward) == 0 {
		return Entry{}, false
	}
	dest := h.forward[len(h.forward)-1]
	h.forward = h.forward[:len(h.forward)-1]
	return dest, true
}

// DeleteCurrent pops the current page and returns its title.
func (h *History) DeleteCurrent() (string, bool) {
	e, ok := h.Pop()
	if !ok {
		return "", false
	}
	return e.Title, true
}

// Pop removes and returns the top of the back stack.
func (h *History) Pop() (Entry, bool) {
	if len(h.back) == 0 {
		return Entry{}, false
	}
	e := h.back[len(h.back)-1]
	h.back = h.back[:len(h.back)-1]
	return e, true
}

// Current returns the top of the back stack.
func (h *History) Current() (Entry, bool) {
	if len(h.back) == 0 {
		return Entry{}, false
	}
	return h.back[len(h.back)-1], true
}

// CanBack reports whether Back would move.
func (h *History) CanBack() bool { return len(h.back) >= 2 }

// CanForward reports whether Forward would move.
func (h *History) CanForward() bool { return len(h.forward) > 0 }

// CanDelete reports whether there is a current page to delete.
func (h *History) CanDelete() bool { return len(h.back) > 0 }

// BackEntries returns a copy of the back stack, oldest first.
func (h *History) BackEntries() []Entry {
	return append([]Entry(nil), h.back...)
}

// ForwardEntries returns a copy of the forward stack; the last element is
// the next Forward destination.
func (h *History) ForwardEntries() []Entry {
	return append([]Entry(nil), h.forward...)
}

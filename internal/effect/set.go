package effect

// Applied is one active effect together with the parameter it was applied with.
type Applied struct {
	ToolID string `json:"tool_id"`
	Param  string `json:"param,omitempty"`
}

// Set is the ordered collection of active effects for the current image.
// Each tool id appears at most once; insertion order is kept because it
// decides how the remote service layers the transformations.
// Set is not safe for concurrent use; its owner serializes access.
type Set struct {
	items []Applied
}

func NewSet(items ...Applied) *Set {
	s := &Set{}
	for _, it := range items {
		s.Add(it.ToolID, it.Param)
	}
	return s
}

// Has reports whether toolID is active.
func (s *Set) Has(toolID string) bool {
	return s.index(toolID) >= 0
}

// Add appends toolID if absent. It reports whether the set changed.
func (s *Set) Add(toolID, param string) bool {
	if s.Has(toolID) {
		return false
	}
	s.items = append(s.items, Applied{ToolID: toolID, Param: param})
	return true
}

// Remove drops toolID if present. It reports whether the set changed.
func (s *Set) Remove(toolID string) bool {
	i := s.index(toolID)
	if i < 0 {
		return false
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	return true
}

func (s *Set) Clear() { s.items = nil }

func (s *Set) Len() int { return len(s.items) }

// Items returns a copy of the active effects in insertion order.
func (s *Set) Items() []Applied {
	out := make([]Applied, len(s.items))
	copy(out, s.items)
	return out
}

func (s *Set) index(toolID string) int {
	for i, it := range s.items {
		if it.ToolID == toolID {
			return i
		}
	}
	return -1
}

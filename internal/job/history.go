package job

// History keeps the most recent completed jobs, newest first.
type History struct {
	entries  []Job
	capacity int
}

func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = defaultHistorySize
	}
	return &History{entries: make([]Job, 0, capacity), capacity: capacity}
}

// Push prepends j and evicts the oldest entry beyond capacity.
func (h *History) Push(j Job) {
	next := make([]Job, 0, h.capacity)
	next = append(next, j)
	for _, e := range h.entries {
		if len(next) == h.capacity {
			break
		}
		next = append(next, e)
	}
	h.entries = next
}

// Entries returns a copy, most recent first.
func (h *History) Entries() []Job {
	out := make([]Job, len(h.entries))
	copy(out, h.entries)
	return out
}

func (h *History) Len() int { return len(h.entries) }

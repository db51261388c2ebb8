package job

import "testing"

func TestHistoryEvictsOldest(t *testing.T) {
	h := NewHistory(3)
	for _, id := range []string{"a", "b", "c", "d"} {
		h.Push(Job{ID: id})
	}
	got := h.Entries()
	if len(got) != 3 || got[0].ID != "d" || got[1].ID != "c" || got[2].ID != "b" {
		t.Fatalf("unexpected history %+v", got)
	}
}

func TestHistoryDefaultCapacity(t *testing.T) {
	h := NewHistory(0)
	for i := 0; i < 5; i++ {
		h.Push(Job{})
	}
	if h.Len() != defaultHistorySize {
		t.Fatalf("expected %d entries, got %d", defaultHistorySize, h.Len())
	}
}

func TestTransitions(t *testing.T) {
	j := &Job{Status: StatusQueued}
	if err := transition(j, StatusCompleted); err == nil {
		t.Fatalf("queued -> completed must be refused")
	}
	if err := transition(j, StatusProcessing); err != nil {
		t.Fatalf("queued -> processing: %v", err)
	}
	if err := transition(j, StatusCompleted); err != nil {
		t.Fatalf("processing -> completed: %v", err)
	}
	if err := transition(j, StatusProcessing); err == nil {
		t.Fatalf("terminal states must not transition")
	}
	if !IsTerminal(StatusError) || IsActive(StatusCompleted) || !IsActive(StatusQueued) {
		t.Fatalf("status predicates wrong")
	}
}

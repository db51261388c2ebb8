package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"pixora/internal/catalog"
	"pixora/internal/job"
	"pixora/internal/poller"
)

type blockingPoller struct {
	started chan struct{}
}

func (b *blockingPoller) Poll(ctx context.Context, _ string, _ poller.Observer) poller.Result {
	b.started <- struct{}{}
	<-ctx.Done()
	return poller.Result{Outcome: poller.Cancelled}
}

type instantPoller struct{}

func (instantPoller) Poll(context.Context, string, poller.Observer) poller.Result {
	return poller.Result{Outcome: poller.Ready, Attempts: 1, Progress: 100}
}

func TestCreateAndGet(t *testing.T) {
	m := NewManager(catalog.Default(), instantPoller{}, Options{DataDir: t.TempDir()})
	s := m.Create("  ")
	if s.Account != defaultAccount {
		t.Fatalf("expected default account, got %q", s.Account)
	}
	got, ok := m.Get(s.ID)
	if !ok || got != s {
		t.Fatalf("session not registered")
	}
	if _, err := m.Lookup("missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if m.Len() != 1 {
		t.Fatalf("expected 1 session")
	}
}

func TestPersistAndReloadMarksInterruptedJobs(t *testing.T) {
	dataDir := t.TempDir()
	bp := &blockingPoller{started: make(chan struct{}, 1)}
	m := NewManager(catalog.Default(), bp, Options{DataDir: dataDir})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.SetBaseContext(ctx)

	s := m.Create("ada")
	if _, err := s.Editor.LoadImage(context.Background(), "img:abc"); err != nil {
		t.Fatalf("load image: %v", err)
	}
	if _, err := s.Editor.Toggle("upscale"); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	<-bp.started

	m2 := NewManager(catalog.Default(), instantPoller{}, Options{DataDir: dataDir})
	if err := m2.LoadFromDisk(); err != nil {
		t.Fatalf("load: %v", err)
	}
	restored, ok := m2.Get(s.ID)
	if !ok {
		t.Fatalf("session %s not restored", s.ID)
	}
	snap := restored.Editor.Snapshot()
	if snap.State != job.StatusError {
		t.Fatalf("expected interrupted job to be failed, got %s", snap.State)
	}
	if snap.BaseRef != "img:abc" || len(snap.Effects) != 1 || restored.Account != "ada" {
		t.Fatalf("unexpected restored state %+v", snap)
	}

	if _, err := restored.Editor.Toggle("retouch"); err != nil {
		t.Fatalf("restored session should accept activations: %v", err)
	}

	cancel()
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	if !m.WaitAll(waitCtx) || !m2.WaitAll(waitCtx) {
		t.Fatalf("expected poll loops to finish")
	}
}

func TestManagerWithoutDataDirKeepsMemoryOnly(t *testing.T) {
	m := NewManager(catalog.Default(), instantPoller{}, Options{})
	m.Create("ada")
	if err := m.LoadFromDisk(); err != nil {
		t.Fatalf("load: %v", err)
	}
}

package job

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pixora/internal/catalog"
	"pixora/internal/effect"
	"pixora/internal/events"
	"pixora/internal/poller"
	"pixora/internal/usage"
)

type stubPoller struct {
	results chan poller.Result
	started chan string
}

func (s *stubPoller) Poll(ctx context.Context, descriptor string, observe poller.Observer) poller.Result {
	if s.started != nil {
		s.started <- descriptor
	}
	if s.results == nil {
		return poller.Result{Outcome: poller.Ready, Attempts: 1, Progress: 100}
	}
	if observe != nil {
		observe(1, poller.Progress(1))
	}
	select {
	case r := <-s.results:
		return r
	case <-ctx.Done():
		return poller.Result{Outcome: poller.Cancelled, Attempts: 1}
	}
}

func gatedPoller() *stubPoller {
	return &stubPoller{results: make(chan poller.Result), started: make(chan string, 16)}
}

type stubGate struct {
	mu       sync.Mutex
	rec      usage.Record
	consumed int
}

func (g *stubGate) Check(context.Context, string) (usage.Record, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rec, nil
}

func (g *stubGate) Consume(context.Context, string) (usage.Record, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.consumed++
	g.rec.Count++
	g.rec.CanProceed = g.rec.Count < g.rec.Limit
	return g.rec, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) all() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.events...)
}

func newTestOrchestrator(t *testing.T, p Poller, opts Options) *Orchestrator {
	t.Helper()
	return New(catalog.Default(), p, opts)
}

func loadImage(t *testing.T, o *Orchestrator, ref string) {
	t.Helper()
	if _, err := o.LoadImage(context.Background(), ref); err != nil {
		t.Fatalf("load image: %v", err)
	}
}

func waitIdle(t *testing.T, o *Orchestrator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if !o.Wait(ctx) {
		t.Fatalf("timeout waiting for poll loops")
	}
}

func TestActivateToolCompletesWhenReady(t *testing.T) {
	probe := poller.ProbeFunc(func(_ context.Context, d string) error {
		if d == "img:abc?tr=e-crop-smart" {
			return nil
		}
		return poller.ErrNotReady
	})
	o := newTestOrchestrator(t, poller.New(probe, poller.Options{MaxAttempts: 3, Interval: time.Millisecond}), Options{})
	loadImage(t, o, "img:abc")

	res, err := o.Toggle("crop-smart")
	if err != nil || res != Started {
		t.Fatalf("toggle: res=%s err=%v", res, err)
	}
	if got := o.Snapshot().Displayed; got != "img:abc?tr=e-crop-smart" {
		t.Fatalf("display not updated optimistically: %q", got)
	}
	waitIdle(t, o)

	snap := o.Snapshot()
	if snap.State != StatusCompleted || snap.Job == nil {
		t.Fatalf("expected completed job, got %+v", snap)
	}
	if snap.Job.Progress != 100 || snap.Job.Result != "img:abc?tr=e-crop-smart" || snap.Job.Outcome != poller.Ready {
		t.Fatalf("unexpected job %+v", snap.Job)
	}
	if snap.Result != "img:abc?tr=e-crop-smart" {
		t.Fatalf("current result not set: %q", snap.Result)
	}
	if len(snap.History) != 1 || snap.History[0].ID != snap.Job.ID {
		t.Fatalf("expected job in history, got %+v", snap.History)
	}
}

func TestParameterizedToolWaitsForParameter(t *testing.T) {
	o := newTestOrchestrator(t, &stubPoller{}, Options{})
	loadImage(t, o, "img:abc")

	res, err := o.Toggle("edit")
	if err != nil || res != AwaitingParameter {
		t.Fatalf("expected awaiting parameter, got %s %v", res, err)
	}
	snap := o.Snapshot()
	if snap.Job != nil || len(snap.Effects) != 0 || snap.Pending != "edit" {
		t.Fatalf("pending tool must not mutate the set or open a job: %+v", snap)
	}

	if _, err := o.SubmitParameter("   "); !errors.Is(err, ErrEmptyParameter) {
		t.Fatalf("expected ErrEmptyParameter, got %v", err)
	}
	if o.Snapshot().Job != nil {
		t.Fatalf("blank parameter must not create a job")
	}

	if _, err := o.SubmitParameter("add a hat"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitIdle(t, o)
	snap = o.Snapshot()
	if snap.Displayed != "img:abc?tr=e-edit:add%20a%20hat" {
		t.Fatalf("unexpected descriptor %q", snap.Displayed)
	}
	if snap.Pending != "" || snap.State != StatusCompleted {
		t.Fatalf("unexpected state %+v", snap)
	}
}

func TestCancelParameter(t *testing.T) {
	o := newTestOrchestrator(t, &stubPoller{}, Options{})
	loadImage(t, o, "img:abc")
	_, _ = o.Toggle("genvar")
	if !o.CancelParameter() {
		t.Fatalf("expected pending request to be cancelled")
	}
	if _, err := o.SubmitParameter("cats"); !errors.Is(err, ErrNoPendingParameter) {
		t.Fatalf("expected ErrNoPendingParameter, got %v", err)
	}
}

func TestActivationRejectedWhileProcessing(t *testing.T) {
	p := gatedPoller()
	o := newTestOrchestrator(t, p, Options{})
	loadImage(t, o, "img:abc")

	if _, err := o.Toggle("upscale"); err != nil {
		t.Fatalf("toggle upscale: %v", err)
	}
	<-p.started
	p.results <- poller.Result{Outcome: poller.Ready, Attempts: 1, Progress: 100}
	waitIdle(t, o)

	if _, err := o.Toggle("retouch"); err != nil {
		t.Fatalf("toggle retouch: %v", err)
	}
	<-p.started
	if st := o.Snapshot().State; st != StatusProcessing {
		t.Fatalf("expected processing, got %s", st)
	}

	if _, err := o.Toggle("bgremove"); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy for second activation, got %v", err)
	}
	if _, err := o.Toggle("edit"); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy for parameterized activation, got %v", err)
	}
	if _, err := o.Toggle("retouch"); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy when removing the in-flight effect, got %v", err)
	}

	res, err := o.Toggle("upscale")
	if err != nil || res != Removed {
		t.Fatalf("deactivating a resolved effect should succeed, got %s %v", res, err)
	}
	if got := o.Snapshot().Displayed; got != "img:abc?tr=e-retouch" {
		t.Fatalf("unexpected display after removal %q", got)
	}

	p.results <- poller.Result{Outcome: poller.Ready, Attempts: 2, Progress: 100}
	waitIdle(t, o)
	snap := o.Snapshot()
	if snap.State != StatusCompleted {
		t.Fatalf("expected completed, got %s", snap.State)
	}
	if snap.Result != "img:abc?tr=e-retouch" {
		t.Fatalf("result should follow the display, got %q", snap.Result)
	}
}

func TestRemovalRecomposesWithoutResidue(t *testing.T) {
	o := newTestOrchestrator(t, &stubPoller{}, Options{})
	loadImage(t, o, "img:abc")
	for _, id := range []string{"bgremove", "dropshadow"} {
		if _, err := o.Toggle(id); err != nil {
			t.Fatalf("toggle %s: %v", id, err)
		}
		waitIdle(t, o)
	}
	if _, err := o.Toggle("bgremove"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if got := o.Snapshot().Displayed; got != "img:abc?tr=e-dropshadow" {
		t.Fatalf("unexpected descriptor %q", got)
	}
	if _, err := o.Toggle("dropshadow"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if got := o.Snapshot().Displayed; got != "img:abc" {
		t.Fatalf("empty set should show the bare base, got %q", got)
	}
}

func TestHistoryKeepsThreeMostRecent(t *testing.T) {
	o := newTestOrchestrator(t, &stubPoller{}, Options{})
	loadImage(t, o, "img:abc")
	tools := []string{"bgremove", "dropshadow", "retouch", "upscale"}
	for _, id := range tools {
		if _, err := o.Toggle(id); err != nil {
			t.Fatalf("toggle %s: %v", id, err)
		}
		waitIdle(t, o)
	}
	h := o.History()
	if len(h) != 3 {
		t.Fatalf("expected 3 history entries, got %d", len(h))
	}
	want := []string{"upscale", "retouch", "dropshadow"}
	for i, id := range want {
		if h[i].ToolID != id {
			t.Fatalf("history[%d]=%s want %s", i, h[i].ToolID, id)
		}
	}
}

func TestExhaustedPollStillCompletes(t *testing.T) {
	p := gatedPoller()
	pub := &recordingPublisher{}
	o := newTestOrchestrator(t, p, Options{SessionID: "s1", Publisher: pub})
	loadImage(t, o, "img:abc")
	if _, err := o.Toggle("upscale"); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	<-p.started
	p.results <- poller.Result{Outcome: poller.Exhausted, Attempts: 60, Progress: 100}
	waitIdle(t, o)

	snap := o.Snapshot()
	if snap.State != StatusCompleted || snap.Job.Outcome != poller.Exhausted || snap.Job.Progress != 100 {
		t.Fatalf("exhausted poll should complete optimistically: %+v", snap.Job)
	}
	evs := pub.all()
	if len(evs) != 1 || evs[0].Type != events.JobCompleted || evs[0].Outcome != string(poller.Exhausted) {
		t.Fatalf("unexpected events %+v", evs)
	}
}

func TestLoadImageSupersedesInflightJob(t *testing.T) {
	p := gatedPoller()
	o := newTestOrchestrator(t, p, Options{})
	loadImage(t, o, "img:abc")
	if _, err := o.Toggle("upscale"); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	<-p.started

	loadImage(t, o, "img:def")
	p.results <- poller.Result{Outcome: poller.Ready, Attempts: 1, Progress: 100}
	waitIdle(t, o)

	snap := o.Snapshot()
	if snap.State != StatusIdle || snap.Job != nil {
		t.Fatalf("stale poll must not revive a job: %+v", snap)
	}
	if len(snap.Effects) != 0 || snap.Displayed != "img:def" || snap.Result != "" {
		t.Fatalf("new image should reset the context: %+v", snap)
	}
	if len(snap.History) != 0 {
		t.Fatalf("stale job must not reach history: %+v", snap.History)
	}
	if snap.Epoch != 2 {
		t.Fatalf("expected epoch 2, got %d", snap.Epoch)
	}
}

func TestQuotaExceededBlocksUpload(t *testing.T) {
	gate := &stubGate{rec: usage.Record{Count: 3, Limit: 3, Plan: usage.PlanFree}}
	o := newTestOrchestrator(t, &stubPoller{}, Options{Gate: gate, Account: "ada"})

	rec, err := o.LoadImage(context.Background(), "img:abc")
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if rec.Plan != usage.PlanFree || rec.CanProceed {
		t.Fatalf("expected refusal record, got %+v", rec)
	}
	if gate.consumed != 0 {
		t.Fatalf("usage must not be consumed after a refused check")
	}
	if _, err := o.Toggle("upscale"); !errors.Is(err, ErrNoImage) {
		t.Fatalf("expected ErrNoImage, got %v", err)
	}
	if o.Snapshot().Job != nil {
		t.Fatalf("no job may be created after a refused upload")
	}
}

func TestLoadImageConsumesUsage(t *testing.T) {
	gate := &stubGate{rec: usage.Record{Count: 0, Limit: 3, Plan: usage.PlanFree, CanProceed: true}}
	o := newTestOrchestrator(t, &stubPoller{}, Options{Gate: gate, Account: "ada"})
	rec, err := o.LoadImage(context.Background(), "img:abc")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if gate.consumed != 1 || rec.Count != 1 {
		t.Fatalf("expected one unit consumed, got consumed=%d rec=%+v", gate.consumed, rec)
	}
}

func TestUnknownToolFailsJob(t *testing.T) {
	pub := &recordingPublisher{}
	o := newTestOrchestrator(t, &stubPoller{}, Options{Publisher: pub})
	loadImage(t, o, "img:abc")

	if _, err := o.Toggle("sparkle"); !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("expected ErrUnknownTool, got %v", err)
	}
	snap := o.Snapshot()
	if snap.State != StatusError || len(snap.Effects) != 0 || snap.Displayed != "img:abc" {
		t.Fatalf("unexpected state after unknown tool: %+v", snap)
	}
	if evs := pub.all(); len(evs) != 1 || evs[0].Type != events.JobFailed {
		t.Fatalf("expected a failure event, got %+v", evs)
	}
	if _, err := o.Toggle("upscale"); err != nil {
		t.Fatalf("an errored job must not block new activations: %v", err)
	}
	waitIdle(t, o)
}

func TestToggleWithoutImage(t *testing.T) {
	o := newTestOrchestrator(t, &stubPoller{}, Options{})
	if _, err := o.Toggle("upscale"); !errors.Is(err, ErrNoImage) {
		t.Fatalf("expected ErrNoImage, got %v", err)
	}
	if _, err := o.LoadImage(context.Background(), "  "); !errors.Is(err, ErrNoImage) {
		t.Fatalf("expected ErrNoImage for blank reference, got %v", err)
	}
}

func TestShutdownCancelsPolling(t *testing.T) {
	p := gatedPoller()
	o := newTestOrchestrator(t, p, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	o.SetBaseContext(ctx)
	loadImage(t, o, "img:abc")
	if _, err := o.Toggle("upscale"); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	<-p.started
	cancel()
	waitIdle(t, o)
	if st := o.Snapshot().State; st != StatusError {
		t.Fatalf("expected error after cancellation, got %s", st)
	}
}

func TestActivationsRefusedAfterShutdown(t *testing.T) {
	o := newTestOrchestrator(t, &stubPoller{}, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	o.SetBaseContext(ctx)
	loadImage(t, o, "img:abc")
	if _, err := o.Toggle("changebg"); err != nil {
		t.Fatalf("toggle before shutdown: %v", err)
	}
	cancel()

	if _, err := o.Toggle("upscale"); !errors.Is(err, ErrShuttingDown) {
		t.Fatalf("expected ErrShuttingDown, got %v", err)
	}
	if _, err := o.SubmitParameter("beach"); !errors.Is(err, ErrShuttingDown) {
		t.Fatalf("expected ErrShuttingDown for parameter, got %v", err)
	}
	snap := o.Snapshot()
	if snap.Job != nil || len(snap.Effects) != 0 || snap.Pending != "changebg" {
		t.Fatalf("refused activations must not change state: %+v", snap)
	}
	waitIdle(t, o)
}

func TestOnChangeReceivesSnapshots(t *testing.T) {
	var mu sync.Mutex
	var states []Status
	o := newTestOrchestrator(t, &stubPoller{}, Options{OnChange: func(s Snapshot) {
		mu.Lock()
		states = append(states, s.State)
		mu.Unlock()
	}})
	loadImage(t, o, "img:abc")
	if _, err := o.Toggle("upscale"); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	waitIdle(t, o)

	mu.Lock()
	defer mu.Unlock()
	if len(states) < 2 || states[0] != StatusIdle || states[len(states)-1] != StatusCompleted {
		t.Fatalf("unexpected snapshot sequence %v", states)
	}
}

func TestRestoreMarksInterruptedJobFailed(t *testing.T) {
	o := newTestOrchestrator(t, &stubPoller{}, Options{})
	o.Restore(Snapshot{
		BaseRef:   "img:abc",
		Displayed: "img:abc?tr=e-upscale,e-nope",
		Effects:   []effect.Applied{{ToolID: "upscale"}, {ToolID: "nope"}},
		Job:       &Job{ID: "j1", ToolID: "upscale", Status: StatusProcessing, Progress: 40},
		History:   []Job{{ID: "h2", Status: StatusCompleted}, {ID: "h1", Status: StatusCompleted}},
		Epoch:     4,
	})
	snap := o.Snapshot()
	if snap.State != StatusError || snap.Job.Error == "" {
		t.Fatalf("interrupted job should be failed: %+v", snap.Job)
	}
	if len(snap.Effects) != 1 || snap.Displayed != "img:abc?tr=e-upscale" {
		t.Fatalf("unknown effect should be dropped: %+v", snap)
	}
	if len(snap.History) != 2 || snap.History[0].ID != "h2" {
		t.Fatalf("history order not preserved: %+v", snap.History)
	}
	if snap.Epoch != 4 {
		t.Fatalf("epoch not restored")
	}
}

package job

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"pixora/internal/catalog"
	"pixora/internal/effect"
	"pixora/internal/events"
	"pixora/internal/poller"
	"pixora/internal/telemetry"
	"pixora/internal/usage"
)

// Poller resolves a descriptor to ready, exhausted or cancelled.
type Poller interface {
	Poll(ctx context.Context, descriptor string, observe poller.Observer) poller.Result
}

type Options struct {
	SessionID   string
	Account     string
	Gate        usage.Gate
	Publisher   events.Publisher
	Metrics     *telemetry.Metrics
	HistorySize int
	// OnChange receives a snapshot after every state change, in order.
	OnChange func(Snapshot)
}

// Orchestrator owns one editing session's effect set, current job and
// history. At most one job is queued or processing at a time; new
// activations are refused rather than queued.
type Orchestrator struct {
	mu        sync.Mutex
	notifyMu  sync.Mutex
	catalog   *catalog.Catalog
	poller    Poller
	gate      usage.Gate
	publisher events.Publisher
	metrics   *telemetry.Metrics
	sessionID string
	account   string
	onChange  func(Snapshot)

	baseRef   string
	effects   *effect.Set
	displayed string
	result    string
	current   *Job
	pending   string
	history   *History
	// epoch changes whenever a new base image supersedes the current context;
	// poll loops started under an older epoch are ignored when they resolve.
	epoch uint64

	baseCtx   context.Context
	workersWG sync.WaitGroup
}

func New(cat *catalog.Catalog, p Poller, opts Options) *Orchestrator {
	if opts.Gate == nil {
		opts.Gate = usage.Unlimited{}
	}
	if opts.Publisher == nil {
		opts.Publisher = events.LogPublisher{}
	}
	return &Orchestrator{
		catalog:   cat,
		poller:    p,
		gate:      opts.Gate,
		publisher: opts.Publisher,
		metrics:   opts.Metrics,
		sessionID: opts.SessionID,
		account:   opts.Account,
		onChange:  opts.OnChange,
		effects:   effect.NewSet(),
		history:   NewHistory(opts.HistorySize),
		baseCtx:   context.Background(),
	}
}

// SetBaseContext sets the context poll loops run under. Cancelling it stops
// in-flight polling and makes later activations fail with ErrShuttingDown.
func (o *Orchestrator) SetBaseContext(ctx context.Context) {
	o.mu.Lock()
	o.baseCtx = ctx
	o.mu.Unlock()
}

// LoadImage starts a new editing context for baseRef. The usage gate is
// checked first; a refusal returns ErrQuotaExceeded and leaves state untouched.
// On success the effect set is cleared and any in-flight job is superseded.
func (o *Orchestrator) LoadImage(ctx context.Context, baseRef string) (usage.Record, error) {
	baseRef = strings.TrimSpace(baseRef)
	if baseRef == "" {
		return usage.Record{}, ErrNoImage
	}

	rec, err := o.gate.Check(ctx, o.account)
	if err != nil {
		return rec, fmt.Errorf("check usage: %w", err)
	}
	if !rec.CanProceed {
		o.metrics.ObserveUsageDenied()
		log.Warn().Str("session_id", o.sessionID).Str("plan", rec.Plan).Int("usage_count", rec.Count).Int("usage_limit", rec.Limit).Msg("upload refused: usage limit reached")
		return rec, ErrQuotaExceeded
	}
	// Check and Consume are not atomic; Consume can still refuse.
	rec, err = o.gate.Consume(ctx, o.account)
	if err != nil {
		o.metrics.ObserveUsageDenied()
		return rec, fmt.Errorf("consume usage: %w", err)
	}

	o.mu.Lock()
	o.epoch++
	o.baseRef = baseRef
	o.effects.Clear()
	o.displayed = baseRef
	o.result = ""
	o.current = nil
	o.pending = ""
	epoch := o.epoch
	o.mu.Unlock()

	log.Info().Str("session_id", o.sessionID).Str("base_ref", baseRef).Uint64("epoch", epoch).Msg("base image loaded")
	o.notify()
	return rec, nil
}

// Toggle removes toolID if it is active, otherwise activates it. Tools that
// need free text only register as pending until SubmitParameter.
func (o *Orchestrator) Toggle(toolID string) (ToggleResult, error) {
	o.mu.Lock()
	if o.baseRef == "" {
		o.mu.Unlock()
		return "", ErrNoImage
	}
	busy := o.current != nil && IsActive(o.current.Status)

	if o.effects.Has(toolID) {
		if busy && o.current.ToolID == toolID {
			o.mu.Unlock()
			o.metrics.ObserveToggle("busy")
			return "", ErrBusy
		}
		err := o.removeLocked(toolID)
		o.mu.Unlock()
		if err != nil {
			return "", err
		}
		o.metrics.ObserveToggle(string(Removed))
		o.notify()
		return Removed, nil
	}

	if busy {
		o.mu.Unlock()
		o.metrics.ObserveToggle("busy")
		log.Debug().Str("session_id", o.sessionID).Str("tool", toolID).Msg("activation rejected: job in progress")
		return "", ErrBusy
	}

	if o.baseCtx.Err() != nil {
		o.mu.Unlock()
		return "", ErrShuttingDown
	}

	if tool, ok := o.catalog.Lookup(toolID); ok && tool.RequiresParameter {
		o.pending = toolID
		o.mu.Unlock()
		o.metrics.ObserveToggle(string(AwaitingParameter))
		o.notify()
		return AwaitingParameter, nil
	}

	ev, err := o.startLocked(toolID, "")
	o.mu.Unlock()
	return o.afterStart(ev, err)
}

// SubmitParameter activates the pending tool with text. Blank text is a no-op
// returning ErrEmptyParameter; the tool stays pending.
func (o *Orchestrator) SubmitParameter(text string) (ToggleResult, error) {
	text = strings.TrimSpace(text)
	o.mu.Lock()
	if o.pending == "" {
		o.mu.Unlock()
		return "", ErrNoPendingParameter
	}
	if text == "" {
		o.mu.Unlock()
		return "", ErrEmptyParameter
	}
	if o.current != nil && IsActive(o.current.Status) {
		o.mu.Unlock()
		return "", ErrBusy
	}
	if o.baseCtx.Err() != nil {
		o.mu.Unlock()
		return "", ErrShuttingDown
	}
	toolID := o.pending
	o.pending = ""
	ev, err := o.startLocked(toolID, text)
	o.mu.Unlock()
	return o.afterStart(ev, err)
}

// CancelParameter drops a pending parameter request. It reports whether one existed.
func (o *Orchestrator) CancelParameter() bool {
	o.mu.Lock()
	had := o.pending != ""
	o.pending = ""
	o.mu.Unlock()
	if had {
		o.notify()
	}
	return had
}

// Snapshot returns a consistent copy of the current state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := Snapshot{
		BaseRef:   o.baseRef,
		Displayed: o.displayed,
		Result:    o.result,
		Effects:   o.effects.Items(),
		Pending:   o.pending,
		State:     StatusIdle,
		History:   o.history.Entries(),
		Epoch:     o.epoch,
	}
	if o.current != nil {
		j := *o.current
		s.Job = &j
		s.State = j.Status
	}
	return s
}

// History returns completed jobs, most recent first.
func (o *Orchestrator) History() []Job {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.history.Entries()
}

// Wait blocks until background polling finishes or ctx is done.
// Cancel the base context first: activations are refused from then on, so no
// poll loop can start while Wait is blocked.
// Returns true if all poll loops finished.
func (o *Orchestrator) Wait(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		o.workersWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

// Restore replaces the state with a saved snapshot. A job that was still
// queued or processing is marked failed: its poll loop did not survive.
func (o *Orchestrator) Restore(s Snapshot) {
	o.mu.Lock()
	o.baseRef = s.BaseRef
	o.effects = effect.NewSet()
	for _, a := range s.Effects {
		if _, ok := o.catalog.Lookup(a.ToolID); !ok {
			log.Warn().Str("session_id", o.sessionID).Str("tool", a.ToolID).Msg("dropping restored effect missing from catalog")
			continue
		}
		o.effects.Add(a.ToolID, a.Param)
	}
	o.displayed = s.Displayed
	if o.baseRef != "" && o.effects.Len() != len(s.Effects) {
		if d, err := effect.Compose(o.catalog, o.baseRef, o.effects.Items()); err == nil {
			o.displayed = d
		}
	}
	o.result = s.Result
	o.pending = s.Pending
	o.epoch = s.Epoch
	o.history = NewHistory(o.history.capacity)
	for i := len(s.History) - 1; i >= 0; i-- {
		o.history.Push(s.History[i])
	}
	o.current = nil
	if s.Job != nil {
		j := *s.Job
		if IsActive(j.Status) {
			j.Status = StatusError
			j.Error = "interrupted before completion"
		}
		o.current = &j
	}
	o.mu.Unlock()
}

func (o *Orchestrator) removeLocked(toolID string) error {
	o.effects.Remove(toolID)
	descriptor, err := effect.Compose(o.catalog, o.baseRef, o.effects.Items())
	if err != nil {
		return fmt.Errorf("compose after removal: %w", err)
	}
	// the remaining subset was already displayed, so no polling is needed
	o.displayed = descriptor
	o.result = descriptor
	log.Info().Str("session_id", o.sessionID).Str("tool", toolID).Str("descriptor", descriptor).Msg("effect removed")
	return nil
}

// startLocked opens a job for toolID and launches its poll loop.
// A composition fault puts the job straight into the error state.
func (o *Orchestrator) startLocked(toolID, param string) (*events.Event, error) {
	j := &Job{
		ID:        uuid.NewString(),
		ToolID:    toolID,
		Status:    StatusQueued,
		Epoch:     o.epoch,
		CreatedAt: time.Now(),
	}
	o.current = j
	log.Info().Str("session_id", o.sessionID).Str("job_id", j.ID).Str("tool", toolID).Msg("job queued")

	o.setStatusLocked(j, StatusProcessing)
	j.Progress = poller.InitialProgress()

	o.effects.Add(toolID, param)
	descriptor, err := effect.Compose(o.catalog, o.baseRef, o.effects.Items())
	if err != nil {
		o.effects.Remove(toolID)
		ev := o.failLocked(j, err)
		return &ev, err
	}
	j.Descriptor = descriptor
	// shown optimistically; polling only reports when the service caught up
	o.displayed = descriptor

	o.workersWG.Add(1)
	go o.run(o.baseCtx, j, descriptor, o.epoch)
	return nil, nil
}

func (o *Orchestrator) afterStart(ev *events.Event, err error) (ToggleResult, error) {
	if ev != nil {
		o.publish(*ev)
	}
	o.notify()
	if err != nil {
		o.metrics.ObserveToggle("error")
		return "", err
	}
	o.metrics.ObserveToggle(string(Started))
	return Started, nil
}

func (o *Orchestrator) setStatusLocked(j *Job, to Status) {
	if err := transition(j, to); err != nil {
		log.Error().Str("session_id", o.sessionID).Str("job_id", j.ID).Err(err).Msg("job state machine violation")
	}
}

func (o *Orchestrator) failLocked(j *Job, cause error) events.Event {
	o.setStatusLocked(j, StatusError)
	j.Error = cause.Error()
	o.metrics.ObserveJob(string(StatusError))
	log.Warn().Str("session_id", o.sessionID).Str("job_id", j.ID).Str("tool", j.ToolID).Err(cause).Msg("job failed")
	return events.Event{
		Type:      events.JobFailed,
		SessionID: o.sessionID,
		JobID:     j.ID,
		Tool:      j.ToolID,
		Error:     j.Error,
		At:        time.Now(),
	}
}

func (o *Orchestrator) publish(ev events.Event) {
	if err := o.publisher.Publish(context.Background(), ev); err != nil {
		log.Warn().Str("session_id", ev.SessionID).Str("job_id", ev.JobID).Err(err).Msg("publish job event failed")
	}
}

// notify hands the latest snapshot to OnChange. notifyMu keeps successive
// snapshots ordered for the receiver.
func (o *Orchestrator) notify() {
	if o.onChange == nil {
		return
	}
	o.notifyMu.Lock()
	defer o.notifyMu.Unlock()
	o.onChange(o.Snapshot())
}

package job

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"pixora/internal/events"
	"pixora/internal/poller"
)

var errPollCancelled = errors.New("polling cancelled before completion")

// run polls the job's descriptor and finalizes the job. It runs outside the
// lock; every write back checks that the job's epoch is still current.
func (o *Orchestrator) run(ctx context.Context, j *Job, descriptor string, epoch uint64) {
	defer o.workersWG.Done()

	res := o.poller.Poll(ctx, descriptor, func(attempt, progress int) {
		o.mu.Lock()
		if o.epoch == epoch && o.current == j {
			j.Progress = progress
			j.Attempts = attempt
		}
		o.mu.Unlock()
	})
	o.metrics.ObservePoll(string(res.Outcome), res.Attempts)
	o.finish(j, epoch, res)
}

func (o *Orchestrator) finish(j *Job, epoch uint64, res poller.Result) {
	o.mu.Lock()
	if o.epoch != epoch || o.current != j {
		o.mu.Unlock()
		log.Debug().Str("session_id", o.sessionID).Str("job_id", j.ID).Uint64("epoch", epoch).Msg("discarding result of superseded job")
		return
	}

	var ev events.Event
	if res.Outcome == poller.Cancelled {
		j.Attempts = res.Attempts
		ev = o.failLocked(j, errPollCancelled)
	} else {
		o.setStatusLocked(j, StatusCompleted)
		j.Progress = res.Progress
		j.Result = j.Descriptor
		j.Outcome = res.Outcome
		j.Attempts = res.Attempts
		// a removal while polling already moved the display on
		if j.Descriptor == o.displayed {
			o.result = j.Descriptor
		}
		o.history.Push(*j)
		o.metrics.ObserveJob(string(StatusCompleted))

		evt := log.Info()
		if res.Outcome == poller.Exhausted {
			evt = log.Warn()
		}
		evt.Str("session_id", o.sessionID).
			Str("job_id", j.ID).
			Str("tool", j.ToolID).
			Str("outcome", string(res.Outcome)).
			Int("attempts", res.Attempts).
			Msg("job completed")

		ev = events.Event{
			Type:       events.JobCompleted,
			SessionID:  o.sessionID,
			JobID:      j.ID,
			Tool:       j.ToolID,
			Descriptor: j.Descriptor,
			Outcome:    string(res.Outcome),
			Attempts:   res.Attempts,
			At:         time.Now(),
		}
	}
	o.mu.Unlock()

	o.publish(ev)
	o.notify()
}

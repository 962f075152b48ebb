package scheduler

import (
	"context"
	"sync"
	"time"

	logx "caresentry/pkg/logx"
)

// Job is a live, cancellable daily timer.
//
// Cancel prevents any further fire, including one already armed for the near
// future. A fire that is currently executing runs to completion.
type Job struct {
	cancelOnce sync.Once
	cancel     context.CancelFunc
	done       chan struct{}
}

func (j *Job) Cancel() {
	j.cancelOnce.Do(j.cancel)
}

// Done is closed when the job goroutine has fully exited.
func (j *Job) Done() <-chan struct{} { return j.done }

// Trigger arms daily timers in a fixed timezone.
//
// Each armed job is one goroutine computing the next wall-clock occurrence
// explicitly; there is no cron-expression evaluation involved, because the
// only recurrence this system has is "once daily at HH:MM".
type Trigger struct {
	loc *time.Location
	log logx.Logger

	now func() time.Time // test hook
}

func NewTrigger(loc *time.Location, log logx.Logger) *Trigger {
	if loc == nil {
		loc = time.Local
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Trigger{loc: loc, log: log, now: time.Now}
}

func (tr *Trigger) Location() *time.Location { return tr.loc }

// Daily fires fn once every day at the given wall-clock time until the
// returned Job is cancelled or base is done.
//
// fn is invoked with base, not with the job's own context: cancelling a job
// must not abort a delivery that is already executing.
func (tr *Trigger) Daily(base context.Context, at TimeOfDay, fn func(ctx context.Context)) *Job {
	ctx, cancel := context.WithCancel(base)
	j := &Job{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(j.done)
		for {
			now := tr.now()
			next := at.Next(now, tr.loc)
			timer := time.NewTimer(next.Sub(now))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
				// A cancel that raced the timer still wins: no fire after Cancel().
				if ctx.Err() != nil {
					return
				}
				fn(base)
			}
		}
	}()
	return j
}

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"caresentry/internal/notify"
	"caresentry/internal/storage"
	logx "caresentry/pkg/logx"
)

// ConsumeRunOnDeliveryFailure: a fire that fails to deliver still consumes a
// run. Delivery is best-effort; the schedule always progresses toward
// exhaustion, so a dead channel cannot keep a job alive forever.
const ConsumeRunOnDeliveryFailure = true

// DefaultDurationDays is the lenient fallback when a create request carries a
// non-positive duration.
const DefaultDurationDays = 1

// Store is the slice of the persistence layer the coordinator needs.
type Store interface {
	CreateSchedule(ctx context.Context, sc *storage.Schedule) error
	ActiveSchedules(ctx context.Context) ([]storage.Schedule, error)
	ScheduleByID(ctx context.Context, id string) (*storage.Schedule, error)
	UpdateScheduleProgress(ctx context.Context, id string, remainingRuns int, active bool) error
	DeleteSchedule(ctx context.Context, id string) error
	AppendDelivery(ctx context.Context, d storage.Delivery) error
}

// CreateRequest is one schedule-creation call: a destination channel plus one
// or more reminder items. One Schedule record is created per item.
type CreateRequest struct {
	ChannelID string
	Owner     string // optional user id
	Items     []CreateItem
}

type CreateItem struct {
	Subject      string
	TimeOfDay    string // "HH:MM"
	DurationDays int
}

// ErrValidation wraps all create-request validation failures.
var ErrValidation = errors.New("invalid schedule request")

// Coordinator glues store, registry, trigger and notifier into the schedule
// lifecycle.
type Coordinator struct {
	store    Store
	notifier notify.Notifier
	reg      *Registry
	trig     *Trigger
	log      logx.Logger

	mu     sync.Mutex
	runCtx context.Context
	// Per-schedule critical sections so two near-simultaneous fires can never
	// both decrement from the same stale read.
	locks map[string]*sync.Mutex
}

func NewCoordinator(store Store, notifier notify.Notifier, trig *Trigger, log logx.Logger) *Coordinator {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Coordinator{
		store:    store,
		notifier: notifier,
		reg:      NewRegistry(),
		trig:     trig,
		log:      log,
		locks:    map[string]*sync.Mutex{},
	}
}

// Registry exposes the job registry (used by status endpoints and tests).
func (c *Coordinator) Registry() *Registry { return c.reg }

// Start binds the coordinator to its run context. Must be called before
// ReloadOnStartup or CreateAndStart.
func (c *Coordinator) Start(ctx context.Context) {
	c.mu.Lock()
	c.runCtx = ctx
	c.mu.Unlock()
}

// Stop cancels every live job. In-flight fire handlers run to completion.
func (c *Coordinator) Stop(ctx context.Context) {
	c.reg.StopAll()
	c.log.Info("scheduler stopped")
}

func (c *Coordinator) runContext() (context.Context, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.runCtx == nil {
		return nil, errors.New("scheduler not started")
	}
	return c.runCtx, nil
}

// ReloadOnStartup arms one job per active schedule in the store. The registry
// dedups by identity, so calling this twice cannot produce duplicate timers.
func (c *Coordinator) ReloadOnStartup(ctx context.Context) error {
	if _, err := c.runContext(); err != nil {
		return err
	}
	schedules, err := c.store.ActiveSchedules(ctx)
	if err != nil {
		return fmt.Errorf("load active schedules: %w", err)
	}
	for _, sc := range schedules {
		at, err := ParseTimeOfDay(sc.TimeOfDay)
		if err != nil {
			// Should be impossible (validated at creation); skip rather than crash.
			c.log.Warn("skipping schedule with bad time_of_day",
				logx.String("id", sc.ID), logx.String("time_of_day", sc.TimeOfDay))
			continue
		}
		c.armJob(sc.ID, at)
	}
	c.log.Info("schedules reloaded", logx.Int("count", len(schedules)))
	return nil
}

// ValidateCreate checks a request without touching the store.
// Durations are normalized leniently: anything non-positive becomes
// DefaultDurationDays, matching the tolerant behavior users already rely on.
func ValidateCreate(req *CreateRequest) error {
	if strings.TrimSpace(req.ChannelID) == "" {
		return fmt.Errorf("%w: chatId is required", ErrValidation)
	}
	if len(req.Items) == 0 {
		return fmt.Errorf("%w: schedules[] is required", ErrValidation)
	}
	for i := range req.Items {
		it := &req.Items[i]
		if strings.TrimSpace(it.Subject) == "" {
			it.Subject = "Medicine"
		}
		if _, err := ParseTimeOfDay(it.TimeOfDay); err != nil {
			return fmt.Errorf("%w: %s for %s", ErrValidation, err, it.Subject)
		}
		if it.DurationDays <= 0 {
			it.DurationDays = DefaultDurationDays
		}
	}
	return nil
}

// CreateAndStart validates, persists one schedule per item, and arms a job for
// each. Validation failures short-circuit before any persistence.
func (c *Coordinator) CreateAndStart(ctx context.Context, req CreateRequest) ([]storage.Schedule, error) {
	if _, err := c.runContext(); err != nil {
		return nil, err
	}
	if err := ValidateCreate(&req); err != nil {
		return nil, err
	}

	created := make([]storage.Schedule, 0, len(req.Items))
	for _, it := range req.Items {
		at, err := ParseTimeOfDay(it.TimeOfDay)
		if err != nil {
			return created, fmt.Errorf("%w: %s", ErrValidation, err)
		}
		sc := storage.Schedule{
			Owner:         req.Owner,
			ChannelID:     strings.TrimSpace(req.ChannelID),
			Subject:       it.Subject,
			TimeOfDay:     at.String(),
			RemainingRuns: it.DurationDays,
			Active:        true,
		}
		if err := c.store.CreateSchedule(ctx, &sc); err != nil {
			return created, fmt.Errorf("persist schedule: %w", err)
		}
		c.armJob(sc.ID, at)
		c.log.Info("schedule created",
			logx.String("id", sc.ID),
			logx.String("subject", sc.Subject),
			logx.String("at", sc.TimeOfDay),
			logx.Int("runs", sc.RemainingRuns))
		created = append(created, sc)
	}
	return created, nil
}

// Delete removes a schedule and synchronously cancels its job, so a deleted
// schedule can never fire again within this process.
func (c *Coordinator) Delete(ctx context.Context, id string) error {
	err := c.store.DeleteSchedule(ctx, id)
	// Stop regardless: a dangling timer for a missing record is just waste.
	c.reg.Stop(id)
	c.forgetLock(id)
	if err != nil {
		return err
	}
	c.log.Info("schedule deleted", logx.String("id", id))
	return nil
}

func (c *Coordinator) armJob(id string, at TimeOfDay) {
	ctx, err := c.runContext()
	if err != nil {
		return
	}
	c.reg.Start(id, func() *Job {
		return c.trig.Daily(ctx, at, func(fctx context.Context) {
			c.fire(fctx, id)
		})
	})
}

// fire is the per-occurrence handler: re-read fresh state, deliver, decrement,
// retire on exhaustion, persist.
func (c *Coordinator) fire(ctx context.Context, id string) {
	mu := c.lockFor(id)
	mu.Lock()
	defer mu.Unlock()

	sc, err := c.store.ScheduleByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		// Deleted since arming; nothing to do this tick.
		c.log.Debug("fire for missing schedule; skipping", logx.String("id", id))
		return
	}
	if err != nil {
		// Storage hiccup: leave state untouched, the next fire re-reads.
		c.log.Warn("fire read failed", logx.String("id", id), logx.Err(err))
		return
	}
	if !sc.Active {
		return
	}

	start := time.Now()
	sendErr := c.notifier.Send(ctx, sc.ChannelID, sc.Message())
	took := time.Since(start)
	if sendErr != nil {
		c.log.Warn("reminder delivery failed",
			logx.String("id", id), logx.String("channel", sc.ChannelID), logx.Err(sendErr))
	} else {
		c.log.Info("reminder sent",
			logx.String("id", id), logx.String("channel", sc.ChannelID), logx.Duration("took", took))
	}

	remaining := sc.RemainingRuns
	if sendErr == nil || ConsumeRunOnDeliveryFailure {
		remaining--
	}
	if remaining < 0 {
		remaining = 0
	}
	active := remaining > 0
	if err := c.store.UpdateScheduleProgress(ctx, id, remaining, active); err != nil {
		c.log.Warn("fire write-back failed", logx.String("id", id), logx.Err(err))
	}
	if !active {
		c.reg.Stop(id)
		c.forgetLock(id)
		c.log.Info("schedule exhausted", logx.String("id", id))
	}

	d := storage.Delivery{
		At:         start,
		ScheduleID: id,
		ChannelID:  sc.ChannelID,
		OK:         sendErr == nil,
		TookMS:     took.Milliseconds(),
	}
	if sendErr != nil {
		d.Error = sendErr.Error()
	}
	if err := c.store.AppendDelivery(ctx, d); err != nil {
		c.log.Debug("delivery log append failed", logx.String("id", id), logx.Err(err))
	}
}

func (c *Coordinator) lockFor(id string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.locks[id]
	if !ok {
		m = &sync.Mutex{}
		c.locks[id] = m
	}
	return m
}

func (c *Coordinator) forgetLock(id string) {
	c.mu.Lock()
	delete(c.locks, id)
	c.mu.Unlock()
}

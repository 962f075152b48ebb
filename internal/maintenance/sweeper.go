// Package maintenance runs the nightly retention sweep: exhausted schedules
// and old delivery-log rows are purged after a grace window.
package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	logx "caresentry/pkg/logx"
)

const (
	// DefaultSpec runs the sweep at 03:30 local time, when reminder traffic
	// is at its quietest.
	DefaultSpec = "30 3 * * *"
	// DefaultRetention keeps exhausted schedules and delivery rows for 30 days.
	DefaultRetention = 30 * 24 * time.Hour
)

// Store is the pruning surface of the persistence layer.
type Store interface {
	PruneExhaustedSchedules(ctx context.Context, before time.Time) (int64, error)
	PruneDeliveries(ctx context.Context, before time.Time) (int64, error)
}

type Config struct {
	Spec      string        // cron spec; empty means DefaultSpec
	Retention time.Duration // 0 means DefaultRetention
}

// Sweeper owns the cron runner.
type Sweeper struct {
	cfg   Config
	store Store
	log   logx.Logger
	loc   *time.Location
	cron  *cron.Cron
}

func NewSweeper(cfg Config, store Store, loc *time.Location, log logx.Logger) *Sweeper {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Spec == "" {
		cfg.Spec = DefaultSpec
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if loc == nil {
		loc = time.Local
	}
	return &Sweeper{cfg: cfg, store: store, log: log, loc: loc}
}

// Start schedules the sweep and begins the cron runner.
func (s *Sweeper) Start(ctx context.Context) error {
	c := cron.New(cron.WithLocation(s.loc))
	if _, err := c.AddFunc(s.cfg.Spec, func() { s.Sweep(ctx) }); err != nil {
		return err
	}
	s.cron = c
	c.Start()
	s.log.Info("retention sweep scheduled",
		logx.String("spec", s.cfg.Spec), logx.Duration("retention", s.cfg.Retention))
	return nil
}

// Stop halts the cron runner and waits for a running sweep to finish.
func (s *Sweeper) Stop(ctx context.Context) error {
	if s.cron == nil {
		return nil
	}
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sweep prunes everything older than the retention window. Exposed so an
// operator endpoint or a test can run it on demand.
func (s *Sweeper) Sweep(ctx context.Context) {
	cutoff := time.Now().Add(-s.cfg.Retention)

	nSchedules, err := s.store.PruneExhaustedSchedules(ctx, cutoff)
	if err != nil {
		s.log.Warn("schedule prune failed", logx.Err(err))
	}
	nDeliveries, err := s.store.PruneDeliveries(ctx, cutoff)
	if err != nil {
		s.log.Warn("delivery prune failed", logx.Err(err))
	}
	s.log.Info("retention sweep done",
		logx.Int64("schedules_removed", nSchedules),
		logx.Int64("deliveries_removed", nDeliveries))
}

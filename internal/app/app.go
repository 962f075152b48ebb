// Package app wires the components together and owns the start/stop order.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"caresentry/internal/auth"
	"caresentry/internal/config"
	"caresentry/internal/httpapi"
	"caresentry/internal/maintenance"
	"caresentry/internal/notify"
	"caresentry/internal/predict"
	"caresentry/internal/runtime/supervisor"
	"caresentry/internal/scheduler"
	"caresentry/internal/storage"
	logx "caresentry/pkg/logx"
)

const defaultTimezone = "Asia/Kolkata"

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	store    *storage.Store
	notifier *notify.Telegram
	coord    *scheduler.Coordinator
	api      *httpapi.Server
	sweeper  *maintenance.Sweeper
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	busyTimeout, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	ncfg, err := mapNotifyConfig(cfg)
	if err != nil {
		return nil, err
	}
	notifier, err := notify.NewTelegram(ncfg, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	loc, err := loadTimezone(cfg.Scheduler.Timezone)
	if err != nil {
		return nil, err
	}
	trig := scheduler.NewTrigger(loc, log.With(logx.String("comp", "trigger")))
	coord := scheduler.NewCoordinator(store, notifier, trig, log.With(logx.String("comp", "scheduler")))

	tokenTTL, err := config.ParseDurationOrDefault("auth.token_ttl", cfg.Auth.TokenTTL, auth.DefaultTokenTTL)
	if err != nil {
		return nil, err
	}
	authmgr, err := auth.NewManager(auth.Config{
		Secret:   cfg.Auth.JWTSecret,
		TokenTTL: tokenTTL,
	})
	if err != nil {
		return nil, err
	}

	var predictor httpapi.Predictor
	if strings.TrimSpace(cfg.Predict.BaseURL) != "" {
		predictTimeout, err := config.ParseDurationOrDefault("predict.timeout", cfg.Predict.Timeout, 10*time.Second)
		if err != nil {
			return nil, err
		}
		pc, err := predict.NewClient(predict.Config{
			BaseURL: cfg.Predict.BaseURL,
			Timeout: predictTimeout,
		})
		if err != nil {
			return nil, err
		}
		predictor = pc
	}

	apiOpts, err := mapServerOptions(cfg)
	if err != nil {
		return nil, err
	}
	api := httpapi.NewServer(apiOpts, store, coord, notifier, authmgr, predictor,
		log.With(logx.String("comp", "http")))

	var sweeper *maintenance.Sweeper
	if cfg.Maintenance != nil && cfg.Maintenance.Enabled {
		retention, err := config.ParseDurationOrDefault("maintenance.retention",
			cfg.Maintenance.Retention, maintenance.DefaultRetention)
		if err != nil {
			return nil, err
		}
		sweeper = maintenance.NewSweeper(maintenance.Config{
			Spec:      cfg.Maintenance.Spec,
			Retention: retention,
		}, store, loc, log.With(logx.String("comp", "maintenance")))
	}

	return &App{
		cfgPath:  cfgPath,
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		store:    store,
		notifier: notifier,
		coord:    coord,
		api:      api,
		sweeper:  sweeper,
	}, nil
}

// Done is closed when the app run context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(c context.Context, cfg *config.Config) error {
		return validateConfig(cfg)
	})

	runCtx := a.sup.Context()

	if err := a.notifier.Start(runCtx); err != nil {
		return err
	}

	a.coord.Start(runCtx)
	if err := a.coord.ReloadOnStartup(runCtx); err != nil {
		return fmt.Errorf("reload schedules: %w", err)
	}

	if err := a.api.Start(runCtx); err != nil {
		return err
	}
	if a.sweeper != nil {
		if err := a.sweeper.Start(runCtx); err != nil {
			return err
		}
	}

	// Hot reload: only logging applies live; everything else needs a restart.
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				a.logs.Apply(logx.Config{
					Level:   newCfg.Logging.Level,
					Console: newCfg.Logging.Console,
					File: logx.FileConfig{
						Enabled: newCfg.Logging.File.Enabled,
						Path:    newCfg.Logging.File.Path,
					},
				})
				a.log.Info("config reloaded")
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel the run context first so background loops start unwinding.
	a.sup.Cancel()

	// Each stop step gets an upper bound so one component cannot stall the rest.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		stepCtx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem < max {
					max = rem
				}
			}
			if max > 0 {
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}
		start := time.Now()
		if err := fn(stepCtx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}

	step("http", 3*time.Second, a.api.Stop)
	if a.sweeper != nil {
		step("maintenance", 2*time.Second, a.sweeper.Stop)
	}
	step("scheduler", 2*time.Second, func(c context.Context) error { a.coord.Stop(c); return nil })
	step("telegram", 2*time.Second, a.notifier.Stop)
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })
	step("supervisor", 2*time.Second, a.sup.Wait)

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

func mapNotifyConfig(cfg *config.Config) (notify.Config, error) {
	sendTimeout, err := config.ParseDurationOrDefault("telegram.send_timeout", cfg.Telegram.SendTimeout, 8*time.Second)
	if err != nil {
		return notify.Config{}, err
	}
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return notify.Config{}, err
	}
	return notify.Config{
		Token:       cfg.Telegram.Token,
		Polling:     cfg.Telegram.Polling,
		SendTimeout: sendTimeout,
		RatePerSec:  cfg.Telegram.RatePerSec,
		PollTimeout: pollTimeout,
	}, nil
}

func mapServerOptions(cfg *config.Config) (httpapi.Options, error) {
	readTimeout, err := config.ParseDurationOrDefault("server.read_timeout", cfg.Server.ReadTimeout, 10*time.Second)
	if err != nil {
		return httpapi.Options{}, err
	}
	writeTimeout, err := config.ParseDurationOrDefault("server.write_timeout", cfg.Server.WriteTimeout, 30*time.Second)
	if err != nil {
		return httpapi.Options{}, err
	}
	idleTimeout, err := config.ParseDurationOrDefault("server.idle_timeout", cfg.Server.IdleTimeout, time.Minute)
	if err != nil {
		return httpapi.Options{}, err
	}
	return httpapi.Options{
		Addr:          cfg.Server.Addr,
		ReadTimeout:   readTimeout,
		WriteTimeout:  writeTimeout,
		IdleTimeout:   idleTimeout,
		SecureCookies: cfg.Auth.SecureCookies,
	}, nil
}

func loadTimezone(tz string) (*time.Location, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err)
	}
	return loc, nil
}

// validateConfig rejects a bad hot-reload before it is committed.
func validateConfig(cfg *config.Config) error {
	if _, err := loadTimezone(cfg.Scheduler.Timezone); err != nil {
		return err
	}
	if _, err := mapNotifyConfig(cfg); err != nil {
		return err
	}
	if _, err := mapServerOptions(cfg); err != nil {
		return err
	}
	if _, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 0); err != nil {
		return err
	}
	if _, err := config.ParseDurationOrDefault("auth.token_ttl", cfg.Auth.TokenTTL, 0); err != nil {
		return err
	}
	if _, err := config.ParseDurationOrDefault("predict.timeout", cfg.Predict.Timeout, 0); err != nil {
		return err
	}
	if cfg.Maintenance != nil {
		if _, err := config.ParseDurationOrDefault("maintenance.retention", cfg.Maintenance.Retention, 0); err != nil {
			return err
		}
	}
	return nil
}

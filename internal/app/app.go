package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"pagewatch/internal/config"
	"pagewatch/internal/fetch"
	"pagewatch/internal/monitor"
	"pagewatch/internal/notify"
	rtsup "pagewatch/internal/runtime/supervisor"
	"pagewatch/internal/storage"
	"pagewatch/internal/task/scheduler"
	logx "pagewatch/pkg/logx"
)

// Options configures New.
type Options struct {
	ConfigPath string
	// AllowMissingConfig lets the environment supply every setting.
	AllowMissingConfig bool
	// Once builds the app for the one-shot diagnostic: no Telegram client is
	// created and telegram settings are optional.
	Once bool

	// Lookup replaces os.LookupEnv (tests).
	Lookup config.LookupFunc
	// Fetcher and Notifier replace the configured implementations (tests).
	Fetcher  fetch.Fetcher
	Notifier notify.Notifier
}

type App struct {
	opts Options

	cfgm *config.ConfigManager
	cfg  *config.Config
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service

	fetcher  fetch.Fetcher
	notifier notify.Notifier
	store    storage.Store

	mon   *monitor.Monitor
	sched *scheduler.Service
}

// New loads the configuration and wires every component. Nothing runs until
// Start (or RunOnce).
func New(ctx context.Context, opts Options) (_ *App, err error) {
	cfgm := config.NewConfigManager(opts.ConfigPath)
	cfgm.SetAllowMissing(opts.AllowMissingConfig)
	if opts.Lookup != nil {
		cfgm.SetLookup(opts.Lookup)
	}
	vopts := config.ValidateOptions{RequireTelegram: !opts.Once}
	cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return config.Validate(cfg, vopts)
	})
	cfg, err := cfgm.Load(ctx)
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLoggingConfig(cfg))
	a := &App{
		opts: opts,
		cfgm: cfgm,
		cfg:  cfg,
		log:  log.With(logx.String("comp", "app")),
		logs: logSvc,
	}
	defer func() {
		if err != nil {
			a.closeResources()
		}
	}()

	loc, err := mapLocation(cfg)
	if err != nil {
		return nil, err
	}
	channel, err := mapChannel(cfg)
	if err != nil {
		return nil, err
	}

	a.fetcher = opts.Fetcher
	if a.fetcher == nil {
		fc, err := mapFetchConfig(cfg)
		if err != nil {
			return nil, err
		}
		if a.fetcher, err = fetch.New(fc, log.With(logx.String("comp", "fetch"))); err != nil {
			return nil, err
		}
	}

	a.notifier = opts.Notifier
	if a.notifier == nil && !opts.Once {
		tc, err := mapTelegramConfig(cfg)
		if err != nil {
			return nil, err
		}
		tg, err := notify.NewTelegram(tc, log.With(logx.String("comp", "telegram")))
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		a.notifier = tg
	}

	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
		a.store = st
		a.log.Info("check history enabled", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	}

	var mopts []monitor.Option
	if a.store != nil {
		mopts = append(mopts, monitor.WithStore(a.store))
	}
	a.mon = monitor.New(monitor.Config{
		TargetURL:    cfg.Target.URL,
		SearchString: cfg.Target.SearchString,
		Channel:      channel,
		Location:     loc,
	}, a.fetcher, a.notifier, log.With(logx.String("comp", "monitor")), mopts...)

	if !opts.Once {
		a.sched, err = scheduler.New(scheduler.Config{
			Schedule: cfg.EffectiveSchedule(),
			Timezone: cfg.Timezone,
		}, "check", a.runCycle, log.With(logx.String("comp", "scheduler")))
		if err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *App) Logger() logx.Logger { return a.log }

func (a *App) Config() *config.Config { return a.cfg }

func (a *App) Monitor() *monitor.Monitor { return a.mon }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) runCycle(ctx context.Context) error {
	rep := a.mon.RunCycle(ctx)
	if rep.Cancelled {
		return ctx.Err()
	}
	a.sdNotify("STATUS=last check " + rep.At.Format(time.DateTime) + ": " + rep.Result.Kind.String())
	return nil
}

// Start begins the continuous check loop: one cycle now, then one per
// schedule trigger. It returns once everything is running.
func (a *App) Start(ctx context.Context) error {
	if a.sched == nil {
		return errors.New("app built for one-shot mode")
	}
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	a.sched.Start(a.sup.Context())

	sub := a.cfgm.Subscribe(4)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	if _, err := os.Stat(a.cfgm.Path()); err == nil {
		a.sup.Go("config.watch", a.cfgm.Watch)
	}
	a.sup.Go0("systemd.watchdog", a.watchdogLoop)

	a.sdNotify(daemon.SdNotifyReady)
	a.log.Info("app started",
		logx.String("url", a.cfg.Target.URL),
		logx.String("schedule", a.cfg.EffectiveSchedule()),
		logx.String("strategy", fetchStrategy(a.cfg)),
	)
	return nil
}

func fetchStrategy(cfg *config.Config) string {
	if s := strings.TrimSpace(cfg.Fetch.Strategy); s != "" {
		return strings.ToLower(s)
	}
	return fetch.StrategyHTTP
}

// reloadLoop applies hot-reloaded logging settings. Other sections are only
// reported; they take effect on restart.
func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			ch := config.Summarize(last, newCfg)
			last = newCfg
			if ch.Empty() {
				a.log.Info("config reloaded (no changes)")
				continue
			}
			a.logs.Apply(mapLoggingConfig(newCfg))

			fields := append([]logx.Field{logx.String("changed", strings.Join(ch.Sections, ","))}, ch.Attrs...)
			a.log.Info("config reloaded", fields...)
			if ch.RestartRequired {
				a.log.Warn("config changes outside logging take effect after restart")
			}
		}
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		a.closeResources()
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sdNotify(daemon.SdNotifyStopping)

	// Scheduler first so no new cycle starts while the rest shuts down.
	stepCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := a.sched.Stop(stepCtx); err != nil {
		a.log.Warn("scheduler stop", logx.Err(err))
	}
	cancel()

	stepCtx, cancel = context.WithTimeout(ctx, 2*time.Second)
	if err := a.sup.Stop(stepCtx); err != nil && !errors.Is(err, context.Canceled) {
		a.log.Warn("supervisor stop", logx.Err(err))
	}
	cancel()

	c := a.sup.Counters()
	a.log.Info("stopped",
		logx.Uint64("runs", a.sched.Snapshot().Runs),
		logx.Uint64("goroutines_started", c.Started),
		logx.Int64("goroutines_leaked", c.Active),
	)
	a.closeResources()
	return nil
}

func (a *App) closeResources() {
	if c, ok := a.fetcher.(io.Closer); ok && a.opts.Fetcher == nil {
		if err := c.Close(); err != nil {
			a.log.Warn("fetcher close", logx.Err(err))
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close", logx.Err(err))
		}
		a.store = nil
	}
	if a.logs != nil {
		_ = a.logs.Close()
	}
}

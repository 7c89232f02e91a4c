package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"matchwatch/internal/composer"
	"matchwatch/internal/config"
	"matchwatch/internal/delivery"
	"matchwatch/internal/scheduler"
	"matchwatch/internal/storage"
	logx "matchwatch/pkg/logx"
)

// StopReason tags why the daemon is shutting down; it only affects logging.
type StopReason string

const (
	ReasonSignal StopReason = "signal"
	ReasonError  StopReason = "error"
)

type App struct {
	cfgPath string
	cfgm    *config.Manager

	log  logx.Logger
	logs *logx.Service

	store storage.Store
	sink  delivery.Sink
	sched *scheduler.Service

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	// Bootstrap logging with the mirror disabled: the mirror target is the
	// delivery sink, which doesn't exist yet. Apply() the final config once
	// it does.
	logCfg := mapLoggingConfig(cfg)
	bootCfg := logCfg
	bootCfg.Mirror.Enabled = false
	logSvc, log := logx.New(bootCfg)
	log = log.With(logx.String("comp", "app"))

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("storage.driver: the notification ledger requires a store (set \"sqlite\")")
	}
	log.Info("storage ready", logx.String("driver", sc.Driver))

	dc, err := mapDeliveryConfig(cfg)
	if err != nil {
		return nil, err
	}
	sink, err := delivery.Open(dc, log.With(logx.String("comp", "delivery")))
	if err != nil {
		return nil, err
	}
	if sink == nil {
		log.Warn("delivery disabled; notifications will be composed and dropped")
	}

	if sink != nil && cfg.Logging.Mirror.Enabled {
		ch := mirrorChannel(cfg)
		logSvc.SetMirror(func(ctx context.Context, text string) error {
			return sink.Send(ctx, delivery.Message{Text: text, Channel: ch})
		})
		logSvc.Apply(logCfg)
	}

	gen, genTimeout, err := mapComposer(cfg)
	if err != nil {
		return nil, err
	}
	comp := composer.New(gen, genTimeout, log.With(logx.String("comp", "composer")))

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		return nil, err
	}
	sched := scheduler.New(schedCfg, scheduler.Deps{
		Source:   store,
		Ledger:   store,
		Composer: comp,
		Sink:     sink,
	}, log.With(logx.String("comp", "scheduler")))

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		store:   store,
		sink:    sink,
		sched:   sched,
	}, nil
}

// Store exposes the subject store for operational tooling.
func (a *App) Store() storage.Store { return a.store }

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	// Transactional reload: a config that fails mapping never replaces the
	// active one.
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		if _, err := mapSchedulerConfig(cfg); err != nil {
			return err
		}
		if _, _, err := mapComposer(cfg); err != nil {
			return err
		}
		if _, err := mapDeliveryConfig(cfg); err != nil {
			return err
		}
		return nil
	})

	if a.sched.Enabled() {
		if err := a.sched.Start(runCtx); err != nil {
			cancel()
			return err
		}
	}

	sub := a.cfgm.Subscribe(8)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(runCtx, sub)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		_ = a.cfgm.Watch(runCtx)
	}()

	a.log.Info("app started")
	return nil
}

// reloadLoop applies hot config changes to logging and the scheduler.
// Storage and delivery drivers are constructed once; changing them takes a
// restart.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config.
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					goto APPLY
				}
			}
		APPLY:
			sections, attrs := config.SummarizeChange(lastApplied, newCfg)
			lastApplied = newCfg
			if len(sections) == 0 {
				a.log.Debug("config reload received, but no effective changes detected")
				continue
			}
			fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
			a.log.Debug("config change summary", fields...)

			for _, s := range sections {
				switch s {
				case "storage", "delivery", "composer":
					a.log.Warn("section changed; restart required for changes to take effect",
						logx.String("section", s))
				case "logging":
					a.logs.Apply(mapLoggingConfig(newCfg))
				case "scheduler":
					// Validated before publish, so mapping cannot fail here.
					schedCfg, err := mapSchedulerConfig(newCfg)
					if err != nil {
						a.log.Warn("invalid scheduler config; keeping previous", logx.Err(err))
						continue
					}
					prevEnabled := a.sched.Enabled()
					a.sched.Apply(schedCfg)
					if prevEnabled && !schedCfg.Enabled {
						a.log.Info("scheduler disabled via config")
						stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
						a.sched.Stop(stopCtx)
						cancel()
					} else if !prevEnabled && schedCfg.Enabled {
						a.log.Info("scheduler enabled via config")
						if err := a.sched.Start(ctx); err != nil {
							a.log.Error("scheduler start failed", logx.Err(err))
						}
					}
				}
			}

			a.log.Info("config reloaded", logx.String("changed", strings.Join(sections, ",")))
		}
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.log.Info("stopping", logx.String("reason", string(reason)))

	if a.cancel != nil {
		a.cancel()
	}

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	a.sched.Stop(stopCtx)
	cancel()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.log.Warn("background loops did not stop in time", logx.Err(ctx.Err()))
	}

	if err := a.store.Close(); err != nil {
		a.log.Warn("storage close failed", logx.Err(err))
	}

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/abhisek/examdrill/internal/clock"
	"github.com/abhisek/examdrill/internal/config"
	"github.com/abhisek/examdrill/internal/examapi"
	"github.com/abhisek/examdrill/internal/metrics"
	"github.com/abhisek/examdrill/internal/notify"
	"github.com/abhisek/examdrill/internal/queue"
	"github.com/abhisek/examdrill/internal/recovery"
	"github.com/abhisek/examdrill/internal/session"
	"github.com/abhisek/examdrill/internal/spacedrep"
	"github.com/abhisek/examdrill/internal/store"
)

// deps holds everything a session command needs. Optional collaborators
// are nil when not configured.
type deps struct {
	store     *store.Store
	server    *examapi.Client
	publisher *notify.Publisher
	observer  *metrics.Observer
	recovery  *recovery.Store[session.Session]
	redis     *redis.Client
	metricsSr *http.Server
}

// openDeps opens the store and connects the configured collaborators.
func openDeps(cmd *cobra.Command) (*deps, error) {
	st, err := openStore(cmd)
	if err != nil {
		return nil, err
	}
	d := &deps{store: st}

	kv, err := d.recoveryKV(cfg.Recovery)
	if err != nil {
		d.close()
		return nil, err
	}
	d.recovery = recovery.New[session.Session](kv, clock.Real{}, logger)

	if cfg.API.BaseURL != "" {
		d.server, err = examapi.New(cfg.API, examapi.WithLogger(logger))
		if err != nil {
			d.close()
			return nil, err
		}
	}

	d.publisher, err = notify.Dial(cfg.AMQP, logger)
	if err != nil {
		// Notifications are best effort.
		logger.Warn("xp notifications unavailable", "error", err)
		d.publisher = nil
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	d.observer = metrics.New(reg)
	if cfg.Metrics.Addr != "" {
		d.serveMetrics(cfg.Metrics.Addr)
	}
	return d, nil
}

func (d *deps) recoveryKV(rc config.RecoveryConfig) (recovery.KV, error) {
	switch rc.Backend {
	case config.RecoveryFile:
		return recovery.NewFileKV(rc.Dir)
	case config.RecoveryRedis:
		d.redis = redis.NewClient(&redis.Options{
			Addr:     rc.RedisAddr,
			Password: rc.RedisPassword,
			DB:       rc.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := d.redis.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect to redis %s: %w", rc.RedisAddr, err)
		}
		return recovery.NewRedisKV(d.redis, rc.TTL), nil
	case config.RecoveryMemory:
		return recovery.NewMemoryKV(), nil
	default:
		return d.store.RecoveryKV(), nil
	}
}

func (d *deps) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", d.observer.Handler())
	d.metricsSr = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := d.metricsSr.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", "addr", addr, "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", addr)
}

// machine builds a session machine over the opened collaborators.
func (d *deps) machine() *session.Machine {
	md := session.Deps{
		Cards:     d.store.Cards(),
		Observers: []session.Observer{d.store.Events(), d.observer},
		Recovery:  d.recovery,
		Queue:     queue.NewBuilder(nil),
		Scheduler: spacedrep.NewScheduler(cfg.SRS.Scheduler()),
		Clock:     clock.Real{},
		Logger:    logger,
		Sync:      cfg.Sync.Policy(),
	}
	if d.server != nil {
		md.Server = d.server
	}
	if d.publisher != nil && d.publisher.Enabled() {
		md.Notifier = d.publisher
	}
	return session.NewMachine(md)
}

func (d *deps) close() {
	if d.metricsSr != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = d.metricsSr.Shutdown(ctx)
		cancel()
	}
	if d.publisher != nil {
		if err := d.publisher.Close(); err != nil {
			logger.Debug("close publisher", "error", err)
		}
	}
	if d.redis != nil {
		_ = d.redis.Close()
	}
	if d.store != nil {
		_ = d.store.Close()
	}
}

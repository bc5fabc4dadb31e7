// Package app wires configuration, logging, storage, the transport adapter,
// the target registry and the orchestrator into one runnable unit.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"crosspost/internal/bot"
	"crosspost/internal/config"
	"crosspost/internal/dispatch"
	"crosspost/internal/orchestrator"
	"crosspost/internal/publish"
	"crosspost/internal/storage"
	"crosspost/internal/transport"
	"crosspost/internal/transport/telegram"
	logx "crosspost/pkg/logx"
)

const updateBuffer = 64

type App struct {
	mgr    *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	store   storage.Store
	adapter *telegram.Adapter
	ctrl    *orchestrator.Controller
	bot     *bot.Bot
	cron    *cron.Cron

	tempDir string

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	updates chan transport.Update
}

func New(configPath string) (*App, error) {
	mgr := config.NewManager(configPath)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	// The log service can forward to a Telegram chat, but the adapter that
	// does the sending is built after logging. The sender binds late.
	sender := &chatSender{}
	logSvc, log := logx.New(logConfig(cfg), sender)

	a := &App{mgr: mgr, logSvc: logSvc, log: log}
	mgr.SetLogger(log.With(logx.String("component", "config")))
	mgr.OnReload(func(c *config.Config) {
		logSvc.Apply(logConfig(c))
	})

	if err := a.build(cfg, sender); err != nil {
		logSvc.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *config.Config, sender *chatSender) error {
	log := a.log

	var storeCfg storage.Config
	if cfg.Storage != nil {
		busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
		if err != nil {
			return err
		}
		storeCfg = storage.Config{Path: cfg.Storage.Path, BusyTimeout: busy}
	}
	store, err := storage.Open(storeCfg, log.With(logx.String("component", "storage")))
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	a.store = store

	pollTimeout, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	if err != nil {
		return err
	}
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("component", "telegram")))
	if err != nil {
		return fmt.Errorf("telegram adapter: %w", err)
	}
	a.adapter = adapter
	sender.bind(adapter, cfg.Telegram.LogChatID)

	httpTimeout, err := config.ParseDurationOrDefault("publisher.http_timeout", cfg.Publisher.HTTPTimeout, 90*time.Second)
	if err != nil {
		return err
	}
	client := &http.Client{Timeout: httpTimeout}
	reg := publish.NewRegistry(log.With(logx.String("component", "registry")),
		buildTargets(cfg, client, log)...)

	retryBase, err := config.ParseDurationField("publisher.retry_base", cfg.Publisher.RetryBase)
	if err != nil {
		return err
	}
	simDelay, err := config.ParseDurationField("publisher.simulated_delay", cfg.Publisher.SimulatedDelay)
	if err != nil {
		return err
	}
	eng := dispatch.New(dispatch.Config{
		MaxAttempts:    cfg.Publisher.MaxAttempts,
		RetryBase:      retryBase,
		SimulatedDelay: simDelay,
	}, log.With(logx.String("component", "dispatch")))

	a.ctrl = orchestrator.New(reg, eng, store, log.With(logx.String("component", "orchestrator")))

	a.tempDir = cfg.Media.TempDir
	if a.tempDir == "" {
		a.tempDir = "./tmp"
	}
	a.bot = bot.New(bot.Config{
		Owners:        cfg.Telegram.OwnerUserIDs,
		TempDir:       a.tempDir,
		MaxFileSizeMB: cfg.Media.MaxFileSizeMB,
		Formats:       cfg.Media.Formats,
	}, adapter, a.ctrl, reg, store, log.With(logx.String("component", "bot")))

	if cfg.Maintenance != nil && cfg.Maintenance.Enabled {
		if err := a.scheduleMaintenance(*cfg.Maintenance); err != nil {
			return err
		}
	}
	return nil
}

// buildTargets instantiates every known target from config. Targets with
// missing credentials are still registered; they report unavailable and the
// registry filters them out of dispatch.
func buildTargets(cfg *config.Config, client *http.Client, log logx.Logger) []publish.Target {
	t := cfg.Targets
	return []publish.Target{
		publish.NewTikTok(publish.TikTokCredentials{
			ClientKey:    t.TikTok.ClientKey,
			ClientSecret: t.TikTok.ClientSecret,
			AccessToken:  t.TikTok.AccessToken,
		}, log),
		publish.NewTwitter(publish.TwitterCredentials{
			AccessToken: t.Twitter.AccessToken,
		}, client, log),
		publish.NewFacebook(publish.FacebookCredentials{
			AccessToken: t.Facebook.AccessToken,
			PageID:      t.Facebook.PageID,
		}, client, log),
		publish.NewInstagram(publish.InstagramCredentials{
			AccessToken:       t.Instagram.AccessToken,
			BusinessAccountID: t.Instagram.BusinessAccountID,
		}, log),
		publish.NewLinkedIn(publish.LinkedInCredentials{
			ClientID:     t.LinkedIn.ClientID,
			ClientSecret: t.LinkedIn.ClientSecret,
			AccessToken:  t.LinkedIn.AccessToken,
		}, log),
		publish.NewYouTube(publish.YouTubeCredentials{
			ClientID:     t.YouTube.ClientID,
			ClientSecret: t.YouTube.ClientSecret,
			RefreshToken: t.YouTube.RefreshToken,
		}, log),
		publish.NewTumblr(publish.TumblrCredentials{
			AccessToken: t.Tumblr.AccessToken,
			BlogName:    t.Tumblr.BlogName,
		}, client, log),
		publish.NewTelegramChannel(publish.TelegramChannelCredentials{
			BotToken:  cfg.Telegram.Token,
			ChannelID: t.Channel.ChannelID,
		}, client, log),
	}
}

func (a *App) scheduleMaintenance(mc config.MaintenanceConfig) error {
	schedule := mc.Schedule
	if schedule == "" {
		schedule = "0 3 * * *"
	}

	log := a.log.With(logx.String("component", "maintenance"))
	a.cron = cron.New()
	_, err := a.cron.AddFunc(schedule, func() {
		// Retention windows come from the live config so an edited file
		// takes effect without a restart (the schedule itself does not).
		cur := mc
		if c := a.mgr.Get(); c != nil && c.Maintenance != nil {
			cur = *c.Maintenance
		}
		postDays := cur.PostRetentionDays
		if postDays <= 0 {
			postDays = 90
		}
		auditDays := cur.AuditRetentionDays
		if auditDays <= 0 {
			auditDays = 30
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		if a.store != nil {
			now := time.Now()
			removed, err := a.store.PruneOld(ctx,
				now.AddDate(0, 0, -postDays),
				now.AddDate(0, 0, -auditDays))
			if err != nil {
				log.Warn("prune failed", logx.Err(err))
			} else if removed > 0 {
				log.Info("pruned old records", logx.Int64("removed", removed))
			}
		}
		sweepOrphans(a.tempDir, 24*time.Hour, log)
	})
	if err != nil {
		return fmt.Errorf("maintenance schedule %q: %w", schedule, err)
	}
	return nil
}

// sweepOrphans removes downloaded assets older than maxAge. Assets are
// normally removed right after their session finishes; anything left behind
// belongs to a crashed run.
func sweepOrphans(dir string, maxAge time.Duration, log logx.Logger) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	cutoff := time.Now().Add(-maxAge)
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), "asset_") {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := os.Remove(path); err != nil {
			log.Warn("orphan sweep failed", logx.String("path", path), logx.Err(err))
		} else {
			log.Info("removed orphaned asset", logx.String("path", path))
		}
	}
}

// Start brings up the update pipeline and background workers. It returns
// once everything is running.
func (a *App) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	a.updates = make(chan transport.Update, updateBuffer)
	if err := a.adapter.Start(ctx, a.updates); err != nil {
		return fmt.Errorf("start adapter: %w", err)
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.bot.Run(ctx, a.updates)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.mgr.Watch(ctx); err != nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()

	if a.cron != nil {
		a.cron.Start()
	}

	a.log.Info("started")
	return nil
}

// Stop shuts the app down in dependency order: no new updates, then no new
// dispatches, then the sinks.
func (a *App) Stop() {
	if a.cancel != nil {
		a.cancel()
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.adapter.Stop(stopCtx); err != nil {
		a.log.Warn("adapter stop", logx.Err(err))
	}

	if a.cron != nil {
		<-a.cron.Stop().Done()
	}
	a.wg.Wait()

	a.ctrl.Shutdown()
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close", logx.Err(err))
		}
	}

	a.log.Info("stopped")
	a.logSvc.Close()
}

func logConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

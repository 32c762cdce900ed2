// Command alertwarden runs the alert rule evaluation and notification
// service: it evaluates metric rules, opens and escalates alerts, delivers
// notifications, and serves the management API.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"

	"github.com/alertwarden/alertwarden/internal/alerting"
	api "github.com/alertwarden/alertwarden/internal/api/v1"
	"github.com/alertwarden/alertwarden/internal/conf"
	"github.com/alertwarden/alertwarden/internal/datastore"
	"github.com/alertwarden/alertwarden/internal/datastore/repository"
	"github.com/alertwarden/alertwarden/internal/logger"
	"github.com/alertwarden/alertwarden/internal/metricsource"
	"github.com/alertwarden/alertwarden/internal/notification"
)

var version = "dev"

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "alertwarden",
		Short:         "Alert rule evaluation and notification service",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the evaluation engine and management API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := conf.Load(configPath)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), settings)
		},
	}
	root.AddCommand(serve)

	return root
}

// runnableSource is a metric source with a background collection loop.
type runnableSource interface {
	metricsource.MetricSource
	Start()
	Stop()
}

func buildSource(settings *conf.SourceSettings, log logger.Logger) (runnableSource, error) {
	switch settings.Type {
	case "system":
		return metricsource.NewSystemSource(settings.Interval.Std(), settings.DiskPath, log), nil
	case "prometheus":
		return metricsource.NewPrometheusSource(settings.Endpoint, settings.Interval.Std(), log), nil
	default:
		return nil, fmt.Errorf("unsupported metric source %q", settings.Type)
	}
}

func runServe(ctx context.Context, settings *conf.Settings) error {
	log := logger.NewSlogLogger(os.Stderr, logger.ParseLevel(settings.Logging.Level), nil)
	log.Info("starting alertwarden", logger.String("version", version))

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := datastore.Open(&settings.Database)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to access database handle: %w", err)
	}
	defer sqlDB.Close()
	log.Info("database ready", logger.String("driver", settings.Database.Driver))

	ruleRepo := repository.NewAlertRuleRepository(db)
	alertRepo := repository.NewAlertRepository(db)
	channelRepo := repository.NewChannelRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	if err := alerting.SeedDefaultRules(ctx, ruleRepo, "default", log); err != nil {
		return err
	}

	source, err := buildSource(&settings.Source, log)
	if err != nil {
		return err
	}
	source.Start()
	defer source.Stop()

	feed := alerting.NewChangeFeed()
	defer feed.Stop()

	dispatcher := notification.NewDispatcher(notificationRepo, notification.Config{
		MaxAttempts:    settings.Dispatcher.MaxAttempts,
		RetryBaseDelay: settings.Dispatcher.RetryBaseDelay.Std(),
		SendTimeout:    settings.Dispatcher.SendTimeout.Std(),
		SMTPURL:        settings.Dispatcher.SMTPURL,
		BaseURL:        settings.Server.PublicURL,
	}, log)

	lifecycle := alerting.NewLifecycleService(alertRepo, feed, nil, log)
	scheduler := alerting.NewEscalationScheduler(alertRepo, channelRepo, dispatcher, nil, log)
	lifecycle.SetEscalator(scheduler)
	defer scheduler.Stop()

	engine := alerting.NewEngine(ruleRepo, alertRepo, lifecycle, source, nil, alerting.EngineConfig{
		FetchTimeout: settings.Evaluator.FetchTimeout.Std(),
		MinFrequency: settings.Evaluator.MinFrequency.Std(),
	}, log)
	if err := engine.Start(ctx); err != nil {
		return err
	}
	defer engine.Stop()

	rules := alerting.NewRuleService(ruleRepo, alertRepo, feed, func() {
		if err := engine.Reload(context.Background()); err != nil {
			log.Error("failed to reload evaluation workers", logger.Error(err))
		}
	}, log)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	api.New(e, api.Options{
		Rules:         rules,
		Lifecycle:     lifecycle,
		Channels:      channelRepo,
		Notifications: notificationRepo,
		Feed:          feed,
		APIKey:        settings.Server.APIKey,
		Logger:        log,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.Start(settings.Server.Listen)
	}()
	log.Info("management api listening", logger.String("addr", settings.Server.Listen))

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Warn("http server shutdown incomplete", logger.Error(err))
	}
	return nil
}

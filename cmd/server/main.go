package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/hvolkman/stock-report/internal/camera"
	"github.com/hvolkman/stock-report/internal/clock"
	"github.com/hvolkman/stock-report/internal/command"
	"github.com/hvolkman/stock-report/internal/config"
	"github.com/hvolkman/stock-report/internal/export"
	"github.com/hvolkman/stock-report/internal/mailer"
	"github.com/hvolkman/stock-report/internal/monitor"
	"github.com/hvolkman/stock-report/internal/scheduler"
	"github.com/hvolkman/stock-report/internal/state"
	"github.com/hvolkman/stock-report/internal/storage"
	"github.com/hvolkman/stock-report/internal/workbook"
)

const historyRetention = 90 * 24 * time.Hour

func main() {
	// Initialize logger
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// Load configuration
	cfg, err := config.Load("./config")
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal("Failed to load time zone", zap.Error(err))
	}

	// Connect to the robot's NATS bus
	opts := []nats.Option{
		nats.Name(cfg.App.Name),
		nats.MaxReconnects(cfg.NATS.MaxReconnects),
		nats.ReconnectWait(cfg.NATS.ReconnectWait),
		nats.Timeout(cfg.NATS.ConnectTimeout),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}

	var nc *nats.Conn
	maxRetries := 5
	for i := 0; i < maxRetries; i++ {
		nc, err = nats.Connect(cfg.NATS.URL, opts...)
		if err == nil {
			break
		}
		logger.Warn("Failed to connect to NATS, retrying...",
			zap.Int("attempt", i+1),
			zap.Error(err))
		time.Sleep(time.Second * time.Duration(i+1))
	}
	if err != nil {
		logger.Fatal("Failed to connect to NATS after retries", zap.Error(err))
	}
	defer nc.Close()

	logger.Info("Connected to NATS", zap.String("url", nc.ConnectedUrl()))

	// Action history storage
	history, err := storage.NewSQLiteActionHistory(logger, cfg.Paths.HistoryDB)
	if err != nil {
		logger.Fatal("Failed to create action history storage", zap.Error(err))
	}
	defer history.Close()

	// Telemetry exporter
	exportClient := export.NewClient(logger, export.ClientConfig{
		BaseURL:  cfg.DataSource.BaseURL,
		APIKeyID: cfg.DataSource.APIKeyID,
		APIKey:   cfg.DataSource.APIKey,
		OrgID:    cfg.DataSource.OrgID,
	})
	exporter := export.NewExporter(logger, exportClient, cfg.DataSource.ResourceName, export.Options{
		BucketPeriod: cfg.DataSource.BucketPeriod,
		BucketMethod: cfg.DataSource.BucketMethod,
		IncludeKeys:  cfg.DataSource.IncludeKeys,
		Timezone:     loc,
	})

	// Workbook processor
	processor := workbook.NewProcessor(logger, workbook.Config{
		WorkDir:      filepath.Join(cfg.Paths.OutputDir, "workbooks"),
		TemplatePath: cfg.Paths.TemplatePath,
		Location:     cfg.Report.Location,
		Loc:          loc,
		StoreHours:   cfg.StoreHours,
	}, exporter)

	// Camera capture, when enabled
	var capturer *camera.Capturer
	var images mailer.ImageLister
	if cfg.Camera.IncludeImages {
		capturer = camera.NewCapturer(logger, cfg.Camera.SnapshotURL,
			filepath.Join(cfg.Paths.OutputDir, "images"), cfg.App.Name)
		images = capturer
	}

	// Report mailer
	reportMailer := mailer.New(logger, mailer.Config{
		Host:       cfg.Email.Host,
		Port:       cfg.Email.Port,
		Username:   cfg.Email.Username,
		Password:   cfg.Email.Password,
		From:       cfg.Email.From,
		SenderName: cfg.Email.SenderName,
		Recipients: cfg.Email.Recipients,
	}, cfg.Report.Location, cfg.Report.TeleopURL, images)

	// Persisted schedule state
	store := state.NewStore(logger, filepath.Join(cfg.Paths.OutputDir, "state.json"))

	// Daily scheduler
	var schedCapturer scheduler.Capturer
	if capturer != nil {
		schedCapturer = capturer
	}
	sched, err := scheduler.New(logger, scheduler.Config{
		Location:            cfg.Report.Location,
		ProcessTime:         cfg.Schedule.ProcessTime,
		SendTime:            cfg.Schedule.SendTime,
		Loc:                 loc,
		IncludeImages:       cfg.Camera.IncludeImages,
		CaptureTimesWeekday: cfg.Camera.CaptureTimesWeekday,
		CaptureTimesWeekend: cfg.Camera.CaptureTimesWeekend,
	}, store, processor, reportMailer, schedCapturer, history, clock.Real{})
	if err != nil {
		logger.Fatal("Failed to create scheduler", zap.Error(err))
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	// Manual command surface
	cmdServer := command.NewServer(logger, nc, sched, monitor.NewCollector(logger))
	if err := cmdServer.Start(ctx); err != nil {
		logger.Fatal("Failed to start command server", zap.Error(err))
	}
	defer cmdServer.Stop()

	// Start the tick loop
	if err := sched.Start(ctx); err != nil {
		logger.Fatal("Failed to start scheduler", zap.Error(err))
	}

	// Cleanup old action history daily
	go func() {
		cleanupTicker := time.NewTicker(24 * time.Hour)
		defer cleanupTicker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-cleanupTicker.C:
				cutoff := time.Now().Add(-historyRetention)
				if err := history.DeleteBefore(ctx, cutoff); err != nil {
					logger.Error("Failed to cleanup old action history", zap.Error(err))
				}
			}
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()

	sched.Stop()
	logger.Info("Server shutting down gracefully")
}

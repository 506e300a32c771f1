package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"marketfeed/config"
	"marketfeed/internal/binance"
	"marketfeed/internal/channel"
	"marketfeed/internal/handlers"
	"marketfeed/internal/poll"
	"marketfeed/internal/processor"
	"marketfeed/internal/status"
	"marketfeed/internal/stream"
	"marketfeed/logger"
	"marketfeed/models"
)

const shutdownTimeout = 30 * time.Second

// logNotifier writes alerts to the structured log. Deployments that need
// outbound delivery swap in their own Notifier implementation.
type logNotifier struct {
	log *logger.Entry
}

func (n *logNotifier) Notify(ctx context.Context, message string) error {
	n.log.WithFields(logger.Fields{"alert": message}).Info("Alert")
	return nil
}

func main() {
	_ = godotenv.Load()

	configFlag := flag.String("config", "", "path to config file")
	flag.Parse()

	log := logger.GetLogger()

	configPath, err := config.ResolveConfigPath(*configFlag)
	if err != nil {
		log.WithError(err).Fatal("Failed to locate config file")
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}

	logOutput := cfg.Logging.Output
	if logOutput == "file" {
		dir, err := config.LogDir("")
		if err != nil {
			log.WithError(err).Fatal("Failed to prepare log directory")
		}
		logOutput = filepath.Join(dir, "marketfeed.log")
	}
	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, logOutput, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Fatal("Failed to configure logging")
	}

	if cfg.Metrics.Region != "" {
		logger.InitCloudWatch(cfg.Metrics.Region, cfg.Metrics.Namespace, cfg.Metrics.Dashboard)
	}

	log.WithComponent("main").WithFields(logger.Fields{
		"name":    cfg.Marketfeed.Name,
		"version": cfg.Marketfeed.Version,
		"env":     config.CurrentEnvironment(),
		"symbols": len(cfg.Streams.Symbols),
	}).Info("Starting marketfeed")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := binance.NewClient(cfg.Binance, log)
	market := binance.NewMarket(client)

	channels := channel.NewChannels(cfg.Channels.EventBuffer)

	notifier := &logNotifier{log: log.WithComponent("notifier")}

	proc := processor.NewProcessor(channels, candleLogger(log), notifier, log)
	tickerWatcher := handlers.NewTickerWatcher(0.02, proc, log)
	fundingWatcher := handlers.NewFundingWatcher(0.001, proc, log)

	dispatcher := processor.NewDispatcher(channels, tickerWatcher.Handle, fundingWatcher.Handle, log)
	handler := dispatcher.Handler(ctx)

	scheduler := stream.NewScheduler(cfg.Streams, cfg.Binance.WsURL, handler, log)
	poller := poll.NewFundingPoller(cfg.Poll, cfg.Streams.Symbols, market, handler, log)
	statusServer := status.NewServer(cfg.Status, cfg.Marketfeed, scheduler, channels, log)

	if err := proc.Start(ctx); err != nil {
		log.WithError(err).Fatal("Failed to start event processor")
	}
	if err := scheduler.Start(ctx); err != nil {
		log.WithError(err).Fatal("Failed to start stream groups")
	}
	poller.Start(ctx)

	if statusServer != nil {
		if err := statusServer.Start(ctx); err != nil {
			log.WithError(err).Warn("Status server failed to start")
			statusServer = nil
		}
	}

	logger.StartReport(ctx, log, time.Minute)

	waitForShutdown(log)

	log.WithComponent("main").Info("Shutdown requested, stopping components")
	cancel()

	done := make(chan struct{})
	go func() {
		stops := []func(){scheduler.Stop, poller.Stop, proc.Stop}
		if statusServer != nil {
			stops = append(stops, statusServer.Stop)
		}
		var wg sync.WaitGroup
		for _, stop := range stops {
			wg.Add(1)
			go func(stop func()) {
				defer wg.Done()
				stop()
			}(stop)
		}
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.WithComponent("main").Info("Marketfeed stopped cleanly")
	case <-time.After(shutdownTimeout):
		log.WithComponent("main").Warn("Shutdown timed out, exiting anyway")
	}
}

// candleLogger is the default closed-candle consumer: it records the
// candle so downstream jobs can tail structured output.
func candleLogger(log *logger.Log) processor.CandleHandler {
	entry := log.WithComponent("candles")
	return func(ctx context.Context, event models.BinanceKlineEvent) error {
		entry.WithFields(logger.Fields{
			"symbol":   event.Symbol,
			"interval": event.Kline.Interval,
			"open":     event.Kline.Open,
			"close":    event.Kline.Close,
			"high":     event.Kline.High,
			"low":      event.Kline.Low,
			"volume":   event.Kline.Volume,
		}).Info("Candle closed")
		return nil
	}
}

func waitForShutdown(log *logger.Log) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	sig := <-sigs
	log.WithComponent("main").WithFields(logger.Fields{
		"signal": sig.String(),
	}).Info("Signal received")
}

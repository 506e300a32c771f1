package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"marketfeed/internal/channel"
	"marketfeed/logger"
	"marketfeed/models"
)

// CandleHandler consumes one closed candle. Handlers run on the single
// processor goroutine, so they observe events in arrival order.
type CandleHandler func(ctx context.Context, event models.BinanceKlineEvent) error

// Notifier delivers user-facing alerts. Delivery runs on a separate
// goroutine so a slow notification channel never stalls event processing.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Processor drains the ingestion queue with exactly one consumer. One
// consumer is the ordering guarantee: events for every symbol are handled
// in the order they were enqueued.
type Processor struct {
	channels *channel.Channels
	handler  CandleHandler
	notifier Notifier

	notifications chan string
	mu            sync.Mutex
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	running       bool
	log           *logger.Entry
}

func NewProcessor(channels *channel.Channels, handler CandleHandler, notifier Notifier, log *logger.Log) *Processor {
	return &Processor{
		channels:      channels,
		handler:       handler,
		notifier:      notifier,
		notifications: make(chan string, 64),
		log:           log.WithComponent("event-processor"),
	}
}

func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return fmt.Errorf("processor already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true

	p.wg.Add(1)
	go p.consume(runCtx)

	if p.notifier != nil {
		p.wg.Add(1)
		go p.deliverNotifications(runCtx)
	}

	p.wg.Add(1)
	go p.metricsReporter(runCtx)

	p.log.Info("Event processor started")
	return nil
}

func (p *Processor) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.running = false
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	p.wg.Wait()
	p.log.Info("Event processor stopped")
}

// consume is the single queue consumer.
func (p *Processor) consume(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-p.channels.Events:
			if !ok {
				return
			}
			p.handleEvent(ctx, event)
		}
	}
}

// handleEvent processes one event, containing any handler error or panic
// so a bad event never stops the consumer.
func (p *Processor) handleEvent(ctx context.Context, event models.IngestionEvent) {
	defer func() {
		if r := recover(); r != nil {
			p.log.WithFields(logger.Fields{
				"event_id": event.ID,
				"symbol":   event.Symbol,
				"panic":    fmt.Sprintf("%v", r),
			}).Error("Handler panicked on event")
		}
	}()
	defer p.channels.IncrementEventsConsumed()

	switch event.Type {
	case models.EventCandleClose:
		var klineEvent models.BinanceKlineEvent
		if err := json.Unmarshal(event.Payload, &klineEvent); err != nil {
			p.log.WithError(err).WithFields(logger.Fields{
				"event_id": event.ID,
			}).Error("Failed to decode candle event")
			return
		}
		start := time.Now()
		if err := p.handler(ctx, klineEvent); err != nil {
			p.log.WithError(err).WithFields(logger.Fields{
				"event_id": event.ID,
				"symbol":   event.Symbol,
			}).Error("Candle handler failed")
			return
		}
		logger.LogPerformanceEntry(p.log, "event-processor", "candle_handler", time.Since(start), logger.Fields{
			"symbol": klineEvent.Symbol,
		})
		logger.IncrementEventProcessed(len(event.Payload))
		p.QueueNotification(fmt.Sprintf("%s %s candle closed at %s",
			klineEvent.Symbol, klineEvent.Kline.Interval, klineEvent.Kline.Close))
	default:
		p.log.WithFields(logger.Fields{
			"event_id": event.ID,
			"type":     string(event.Type),
		}).Warn("Unexpected event type in queue")
	}
}

// QueueNotification hands a message to the async delivery goroutine. When
// the buffer is full the message is dropped rather than blocking the
// consumer.
func (p *Processor) QueueNotification(message string) {
	if p.notifier == nil {
		return
	}
	select {
	case p.notifications <- message:
	default:
		p.log.Warn("Notification buffer full, message dropped")
	}
}

func (p *Processor) deliverNotifications(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case message := <-p.notifications:
			if err := p.notifier.Notify(ctx, message); err != nil {
				p.log.WithError(err).Warn("Notification delivery failed")
			}
		}
	}
}

func (p *Processor) metricsReporter(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := p.channels.GetStats()
			length, capacity := p.channels.Depth()
			logger.RecordChannelMessage("event_queue", length)
			logger.LogDataFlowEntry(p.log, "event_queue", "candle_handler", int(stats.EventsConsumed), "ingestion_event")
			p.log.WithFields(logger.Fields{
				"sent":      stats.EventsSent,
				"consumed":  stats.EventsConsumed,
				"aborted":   stats.SendAborted,
				"queue_len": length,
				"queue_cap": capacity,
			}).Info("Queue statistics")
		}
	}
}

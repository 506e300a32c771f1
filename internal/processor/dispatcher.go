package processor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"marketfeed/internal/channel"
	"marketfeed/internal/stream"
	"marketfeed/logger"
	"marketfeed/models"
)

// TickerHandler consumes a ticker update synchronously, on the stream's
// read goroutine.
type TickerHandler func(event models.BinanceTickerEvent) error

// FundingHandler consumes a funding-rate entry synchronously.
type FundingHandler func(entry models.BinanceFundingEntry) error

// Dispatcher classifies incoming frames. Closed candles are enqueued for
// the processor; ticker and funding updates go straight to their handlers.
// Websocket frames and REST poll results arrive through the same path.
type Dispatcher struct {
	channels *channel.Channels
	ticker   TickerHandler
	funding  FundingHandler
	log      *logger.Entry
}

func NewDispatcher(channels *channel.Channels, ticker TickerHandler, funding FundingHandler, log *logger.Log) *Dispatcher {
	return &Dispatcher{
		channels: channels,
		ticker:   ticker,
		funding:  funding,
		log:      log.WithComponent("dispatcher"),
	}
}

// Handler returns the stream handler bound to ctx. The context gates only
// the enqueue: once it is cancelled no further events enter the queue.
func (d *Dispatcher) Handler(ctx context.Context) stream.Handler {
	return func(msg models.RawStreamMessage) error {
		return d.dispatch(ctx, msg)
	}
}

// payloadProbe reads just enough of a frame to classify it.
type payloadProbe struct {
	Event       string               `json:"e"`
	Kline       *models.BinanceKline `json:"k"`
	FundingRate string               `json:"fundingRate"`
	WSRate      string               `json:"r"`
	LastPrice   string               `json:"lastPrice"`
}

func (d *Dispatcher) dispatch(ctx context.Context, msg models.RawStreamMessage) error {
	var probe payloadProbe
	if err := json.Unmarshal(msg.Data, &probe); err != nil {
		d.log.WithError(err).WithFields(logger.Fields{
			"stream": msg.Stream,
		}).Warn("Unparseable payload dropped")
		return nil
	}

	switch {
	case probe.Kline != nil:
		return d.dispatchKline(ctx, msg, *probe.Kline)
	case probe.Event == "24hrTicker" || probe.LastPrice != "":
		return d.dispatchTicker(msg)
	case probe.FundingRate != "" || probe.WSRate != "" || probe.Event == "markPriceUpdate":
		return d.dispatchFunding(msg)
	default:
		d.log.WithFields(logger.Fields{
			"stream": msg.Stream,
			"event":  probe.Event,
		}).Debug("Unclassified payload ignored")
		return nil
	}
}

// dispatchKline enqueues closed candles in arrival order. In-progress
// candles are intermediate snapshots and are skipped.
func (d *Dispatcher) dispatchKline(ctx context.Context, msg models.RawStreamMessage, kline models.BinanceKline) error {
	if !kline.IsClosed {
		return nil
	}

	event := models.IngestionEvent{
		ID:        uuid.New().String(),
		Symbol:    kline.Symbol,
		Type:      models.EventCandleClose,
		Payload:   msg.Data,
		Timestamp: arrivalTime(msg),
	}
	if !d.channels.SendEvent(ctx, event) {
		d.log.WithFields(logger.Fields{
			"symbol": kline.Symbol,
		}).Warn("Candle close dropped during shutdown")
	}
	return nil
}

func (d *Dispatcher) dispatchTicker(msg models.RawStreamMessage) error {
	if d.ticker == nil {
		return nil
	}
	var event models.BinanceTickerEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		return err
	}
	return d.ticker(event)
}

func (d *Dispatcher) dispatchFunding(msg models.RawStreamMessage) error {
	if d.funding == nil {
		return nil
	}
	var entry models.BinanceFundingEntry
	if err := json.Unmarshal(msg.Data, &entry); err != nil {
		return err
	}
	return d.funding(entry)
}

func arrivalTime(msg models.RawStreamMessage) time.Time {
	if !msg.Timestamp.IsZero() {
		return msg.Timestamp
	}
	return time.Now()
}

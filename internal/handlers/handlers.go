package handlers

import (
	"fmt"
	"math"
	"strconv"
	"sync"

	"marketfeed/logger"
	"marketfeed/models"
)

// Alerter receives formatted alert messages. The processor's notification
// queue satisfies this.
type Alerter interface {
	QueueNotification(message string)
}

// TickerWatcher tracks last prices per symbol and raises an alert when a
// price moves by more than the configured fraction since the previous
// observation.
type TickerWatcher struct {
	threshold float64
	alerter   Alerter

	mu   sync.Mutex
	last map[string]float64
	log  *logger.Entry
}

func NewTickerWatcher(threshold float64, alerter Alerter, log *logger.Log) *TickerWatcher {
	if threshold <= 0 {
		threshold = 0.01
	}
	return &TickerWatcher{
		threshold: threshold,
		alerter:   alerter,
		last:      make(map[string]float64),
		log:       log.WithComponent("ticker-watcher"),
	}
}

// Handle consumes one ticker update.
func (w *TickerWatcher) Handle(event models.BinanceTickerEvent) error {
	symbol := event.Symbol
	priceStr := event.LastPrice
	if symbol == "" {
		symbol = event.RESTSymbol
		priceStr = event.RESTLastPrice
	}
	if symbol == "" || priceStr == "" {
		return nil
	}

	price, err := strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return fmt.Errorf("bad price %q for %s: %w", priceStr, symbol, err)
	}

	w.mu.Lock()
	prev, seen := w.last[symbol]
	w.last[symbol] = price
	w.mu.Unlock()

	if !seen || prev == 0 {
		return nil
	}

	change := (price - prev) / prev
	if math.Abs(change) >= w.threshold {
		w.alerter.QueueNotification(fmt.Sprintf("%s moved %.2f%% to %s", symbol, change*100, priceStr))
		w.log.WithFields(logger.Fields{
			"symbol": symbol,
			"change": change,
		}).Info("Price move alert raised")
	}
	return nil
}

// LastPrice returns the most recent price seen for symbol.
func (w *TickerWatcher) LastPrice(symbol string) (float64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	price, ok := w.last[symbol]
	return price, ok
}

// FundingWatcher raises an alert when a funding rate's magnitude crosses
// the configured threshold, once per crossing rather than on every poll.
type FundingWatcher struct {
	threshold float64
	alerter   Alerter

	mu       sync.Mutex
	elevated map[string]bool
	log      *logger.Entry
}

func NewFundingWatcher(threshold float64, alerter Alerter, log *logger.Log) *FundingWatcher {
	if threshold <= 0 {
		threshold = 0.0005
	}
	return &FundingWatcher{
		threshold: threshold,
		alerter:   alerter,
		elevated:  make(map[string]bool),
		log:       log.WithComponent("funding-watcher"),
	}
}

// Handle consumes one funding entry, from either the websocket or REST
// poll format.
func (w *FundingWatcher) Handle(entry models.BinanceFundingEntry) error {
	symbol := entry.NormalizedSymbol()
	rateStr := entry.NormalizedRate()
	if symbol == "" || rateStr == "" {
		return nil
	}

	rate, err := strconv.ParseFloat(rateStr, 64)
	if err != nil {
		return fmt.Errorf("bad funding rate %q for %s: %w", rateStr, symbol, err)
	}

	above := math.Abs(rate) >= w.threshold

	w.mu.Lock()
	wasAbove := w.elevated[symbol]
	w.elevated[symbol] = above
	w.mu.Unlock()

	if above && !wasAbove {
		w.alerter.QueueNotification(fmt.Sprintf("%s funding rate at %s", symbol, rateStr))
		w.log.WithFields(logger.Fields{
			"symbol": symbol,
			"rate":   rate,
		}).Info("Funding rate alert raised")
	}
	return nil
}

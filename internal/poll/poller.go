package poll

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"marketfeed/config"
	"marketfeed/internal/binance"
	"marketfeed/internal/stream"
	"marketfeed/logger"
	"marketfeed/models"
)

// FundingPoller fetches funding rates over REST on a fixed interval and
// feeds the results through the same handler the websocket streams use,
// so downstream code sees one dispatch path regardless of origin.
type FundingPoller struct {
	config  config.PollConfig
	symbols []string
	market  *binance.Market
	handler stream.Handler
	limiter *rate.Limiter

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	log     *logger.Entry
	running bool
}

func NewFundingPoller(cfg config.PollConfig, symbols []string, market *binance.Market, handler stream.Handler, log *logger.Log) *FundingPoller {
	interval := cfg.RateLimit
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	return &FundingPoller{
		config:  cfg,
		symbols: symbols,
		market:  market,
		handler: handler,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		log:     log.WithComponent("funding-poller"),
	}
}

// Start launches the poll loop. The first sweep runs immediately, then
// every FundingInterval until the context is cancelled.
func (p *FundingPoller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true

	p.wg.Add(1)
	go p.run(runCtx)
}

func (p *FundingPoller) Stop() {
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
}

func (p *FundingPoller) run(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.config.FundingInterval)
	defer ticker.Stop()

	p.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

// sweep polls every configured symbol once. A failure on one symbol is
// logged and the sweep moves on; it never aborts the remaining symbols.
func (p *FundingPoller) sweep(ctx context.Context) {
	for _, symbol := range p.symbols {
		if err := p.limiter.Wait(ctx); err != nil {
			return
		}

		entry, err := p.market.FundingRate(ctx, symbol)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log.WithError(err).WithFields(logger.Fields{
				"symbol": symbol,
			}).Warn("Funding rate fetch failed")
			continue
		}

		p.emit(symbol, entry)
	}
}

func (p *FundingPoller) emit(symbol string, entry *models.BinanceFundingEntry) {
	payload, err := json.Marshal(entry)
	if err != nil {
		p.log.WithError(err).Error("Failed to encode funding entry")
		return
	}

	msg := models.RawStreamMessage{
		Stream:    "funding@rest",
		Data:      payload,
		Timestamp: time.Now(),
	}
	if err := p.handler(msg); err != nil {
		p.log.WithError(err).WithFields(logger.Fields{
			"symbol": symbol,
		}).Warn("Funding entry rejected by handler")
	}
}

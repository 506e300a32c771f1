package poll

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"marketfeed/config"
	"marketfeed/internal/binance"
	"marketfeed/logger"
	"marketfeed/models"
)

func newTestMarket(serverURL string) *binance.Market {
	cfg := config.BinanceConfig{
		RestURL:           serverURL,
		FapiURL:           serverURL,
		Concurrency:       4,
		RequestsPerSecond: 1000,
		Timeout:           2 * time.Second,
		Retry: config.RetryConfig{
			MaxAttempts: 1,
			BaseDelay:   time.Millisecond,
			MaxDelay:    time.Millisecond,
		},
	}
	return binance.NewMarket(binance.NewClient(cfg, logger.GetLogger()))
}

func pollConfig() config.PollConfig {
	return config.PollConfig{
		FundingInterval: 50 * time.Millisecond,
		RateLimit:       time.Millisecond,
	}
}

func TestPollerEmitsFundingEntries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		symbol := r.URL.Query().Get("symbol")
		w.Write([]byte(`[{"symbol":"` + symbol + `","fundingRate":"0.0001","fundingTime":1700000000000}]`))
	}))
	defer server.Close()

	var mu sync.Mutex
	var seen []string
	done := make(chan struct{}, 1)

	handler := func(msg models.RawStreamMessage) error {
		if msg.Stream != "funding@rest" {
			t.Errorf("unexpected stream tag %q", msg.Stream)
		}
		mu.Lock()
		seen = append(seen, string(msg.Data))
		if len(seen) == 2 {
			select {
			case done <- struct{}{}:
			default:
			}
		}
		mu.Unlock()
		return nil
	}

	poller := NewFundingPoller(pollConfig(), []string{"BTCUSDT", "ETHUSDT"}, newTestMarket(server.URL), handler, logger.GetLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller.Start(ctx)
	defer poller.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for funding entries")
	}

	mu.Lock()
	defer mu.Unlock()
	joined := strings.Join(seen, " ")
	if !strings.Contains(joined, "BTCUSDT") || !strings.Contains(joined, "ETHUSDT") {
		t.Errorf("missing symbols in emitted entries: %v", seen)
	}
}

func TestPollerIsolatesPerSymbolFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") == "BADUSDT" {
			http.Error(w, `{"code":-1121,"msg":"Invalid symbol."}`, http.StatusBadRequest)
			return
		}
		w.Write([]byte(`[{"symbol":"ETHUSDT","fundingRate":"0.0002","fundingTime":1700000000000}]`))
	}))
	defer server.Close()

	got := make(chan string, 8)
	handler := func(msg models.RawStreamMessage) error {
		got <- string(msg.Data)
		return nil
	}

	// The failing symbol comes first; the sweep must still reach the second.
	poller := NewFundingPoller(pollConfig(), []string{"BADUSDT", "ETHUSDT"}, newTestMarket(server.URL), handler, logger.GetLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller.Start(ctx)
	defer poller.Stop()

	select {
	case data := <-got:
		if !strings.Contains(data, "ETHUSDT") {
			t.Errorf("unexpected entry: %s", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("healthy symbol never emitted; per-symbol failure leaked into the sweep")
	}
}

func TestPollerRepeatsSweeps(t *testing.T) {
	var polls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&polls, 1)
		w.Write([]byte(`[{"symbol":"BTCUSDT","fundingRate":"0.0001","fundingTime":1700000000000}]`))
	}))
	defer server.Close()

	handler := func(msg models.RawStreamMessage) error { return nil }
	poller := NewFundingPoller(pollConfig(), []string{"BTCUSDT"}, newTestMarket(server.URL), handler, logger.GetLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	poller.Start(ctx)

	time.Sleep(200 * time.Millisecond)
	poller.Stop()

	if got := atomic.LoadInt32(&polls); got < 2 {
		t.Errorf("expected repeated sweeps, saw %d polls", got)
	}
}

func TestPollerStopBeforeStart(t *testing.T) {
	poller := NewFundingPoller(pollConfig(), nil, nil, nil, logger.GetLogger())
	poller.Stop()
}

package processor

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"marketfeed/internal/channel"
	"marketfeed/logger"
	"marketfeed/models"
)

func klineFrame(symbol string, closed bool) []byte {
	payload := map[string]interface{}{
		"e": "kline",
		"E": 1700000000000,
		"s": symbol,
		"k": map[string]interface{}{
			"t": 1700000000000,
			"T": 1700003599999,
			"s": symbol,
			"i": "1h",
			"o": "50000.0",
			"c": "50050.0",
			"h": "50100.0",
			"l": "49900.0",
			"v": "12.5",
			"x": closed,
		},
	}
	data, _ := json.Marshal(payload)
	return data
}

func TestDispatchEnqueuesClosedKlines(t *testing.T) {
	channels := channel.NewChannels(8)
	defer channels.Close()

	d := NewDispatcher(channels, nil, nil, logger.GetLogger())
	handler := d.Handler(context.Background())

	if err := handler(models.RawStreamMessage{
		Stream:    "btcusdt@kline_1h",
		Data:      klineFrame("BTCUSDT", true),
		Timestamp: time.Now(),
	}); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}

	select {
	case event := <-channels.Events:
		if event.Type != models.EventCandleClose {
			t.Errorf("expected candle_close, got %s", event.Type)
		}
		if event.Symbol != "BTCUSDT" {
			t.Errorf("expected BTCUSDT, got %s", event.Symbol)
		}
		if event.ID == "" {
			t.Error("event must carry a generated ID")
		}
	default:
		t.Fatal("closed kline was not enqueued")
	}
}

func TestDispatchSkipsOpenKlines(t *testing.T) {
	channels := channel.NewChannels(8)
	defer channels.Close()

	d := NewDispatcher(channels, nil, nil, logger.GetLogger())
	handler := d.Handler(context.Background())

	if err := handler(models.RawStreamMessage{
		Stream: "btcusdt@kline_1h",
		Data:   klineFrame("BTCUSDT", false),
	}); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}

	select {
	case event := <-channels.Events:
		t.Fatalf("open kline must not be enqueued, got %+v", event)
	default:
	}
}

func TestDispatchRoutesTicker(t *testing.T) {
	channels := channel.NewChannels(8)
	defer channels.Close()

	got := make(chan models.BinanceTickerEvent, 1)
	d := NewDispatcher(channels, func(event models.BinanceTickerEvent) error {
		got <- event
		return nil
	}, nil, logger.GetLogger())
	handler := d.Handler(context.Background())

	if err := handler(models.RawStreamMessage{
		Stream: "ethusdt@ticker",
		Data:   []byte(`{"e":"24hrTicker","s":"ETHUSDT","c":"3000.0","v":"100.0"}`),
	}); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}

	select {
	case event := <-got:
		if event.Symbol != "ETHUSDT" || event.LastPrice != "3000.0" {
			t.Errorf("unexpected ticker event: %+v", event)
		}
	default:
		t.Fatal("ticker handler never invoked")
	}
}

func TestDispatchRoutesFundingBothFormats(t *testing.T) {
	channels := channel.NewChannels(8)
	defer channels.Close()

	got := make(chan models.BinanceFundingEntry, 2)
	d := NewDispatcher(channels, nil, func(entry models.BinanceFundingEntry) error {
		got <- entry
		return nil
	}, logger.GetLogger())
	handler := d.Handler(context.Background())

	// REST form from the poll path.
	if err := handler(models.RawStreamMessage{
		Stream: "funding@rest",
		Data:   []byte(`{"symbol":"BTCUSDT","fundingRate":"0.0001","fundingTime":1700000000000}`),
	}); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}

	// Websocket mark-price form.
	if err := handler(models.RawStreamMessage{
		Stream: "btcusdt@markPrice",
		Data:   []byte(`{"e":"markPriceUpdate","s":"BTCUSDT","r":"0.0002","T":1700028800000}`),
	}); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}

	for i, wantRate := range []string{"0.0001", "0.0002"} {
		select {
		case entry := <-got:
			if entry.NormalizedSymbol() != "BTCUSDT" {
				t.Errorf("entry %d: unexpected symbol %s", i, entry.NormalizedSymbol())
			}
			if entry.NormalizedRate() != wantRate {
				t.Errorf("entry %d: rate = %s, want %s", i, entry.NormalizedRate(), wantRate)
			}
		default:
			t.Fatalf("funding handler missing invocation %d", i)
		}
	}
}

func TestDispatchIgnoresUnknownPayloads(t *testing.T) {
	channels := channel.NewChannels(8)
	defer channels.Close()

	d := NewDispatcher(channels, nil, nil, logger.GetLogger())
	handler := d.Handler(context.Background())

	if err := handler(models.RawStreamMessage{
		Stream: "btcusdt@depth",
		Data:   []byte(`{"e":"depthUpdate","b":[],"a":[]}`),
	}); err != nil {
		t.Fatalf("unknown payload should be ignored, got: %v", err)
	}
	if err := handler(models.RawStreamMessage{Data: []byte(`not json`)}); err != nil {
		t.Fatalf("unparseable payload should be ignored, got: %v", err)
	}

	select {
	case event := <-channels.Events:
		t.Fatalf("nothing should be enqueued, got %+v", event)
	default:
	}
}

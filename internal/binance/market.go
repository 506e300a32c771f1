package binance

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"marketfeed/models"
)

// Market exposes the REST endpoints the feed consumes: exchange metadata,
// prices, klines, recent trades and futures funding rates, plus the signed
// account surface. Only slow-changing endpoints (exchange info, historical
// klines) use the configured cache TTL; snapshot endpoints like prices and
// funding rates always hit the network so polls never replay stale data.
type Market struct {
	client   *Client
	rest     string
	fapi     string
	cacheTTL time.Duration
}

func NewMarket(client *Client) *Market {
	return &Market{
		client:   client,
		rest:     client.config.RestURL,
		fapi:     client.config.FapiURL,
		cacheTTL: client.config.CacheTTL,
	}
}

// ExchangeInfo fetches trading rules and symbol metadata. The response is
// large and changes rarely, so it benefits most from the response cache.
func (m *Market) ExchangeInfo(ctx context.Context) (*models.BinanceExchangeInfo, error) {
	var info models.BinanceExchangeInfo
	if err := m.client.Get(ctx, m.rest, "/exchangeInfo", url.Values{}, m.cacheTTL, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Price fetches the latest trade price for one symbol.
func (m *Market) Price(ctx context.Context, symbol string) (*models.BinancePriceTicker, error) {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))

	var ticker models.BinancePriceTicker
	if err := m.client.Get(ctx, m.rest, "/ticker/price", params, 0, &ticker); err != nil {
		return nil, err
	}
	return &ticker, nil
}

// Ticker24h fetches the rolling 24h statistics for one symbol.
func (m *Market) Ticker24h(ctx context.Context, symbol string) (*models.BinanceTickerEvent, error) {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))

	var ticker models.BinanceTickerEvent
	if err := m.client.Get(ctx, m.rest, "/ticker/24hr", params, 0, &ticker); err != nil {
		return nil, err
	}
	return &ticker, nil
}

// Ticker24hAll fetches rolling 24h statistics for every trading symbol.
func (m *Market) Ticker24hAll(ctx context.Context) ([]models.BinanceTickerEvent, error) {
	var tickers []models.BinanceTickerEvent
	if err := m.client.Get(ctx, m.rest, "/ticker/24hr", url.Values{}, 0, &tickers); err != nil {
		return nil, err
	}
	return tickers, nil
}

// Depth fetches the order book for symbol, up to limit levels per side.
func (m *Market) Depth(ctx context.Context, symbol string, limit int) (*models.BinanceDepth, error) {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var depth models.BinanceDepth
	if err := m.client.Get(ctx, m.rest, "/depth", params, 0, &depth); err != nil {
		return nil, err
	}
	return &depth, nil
}

// OpenInterest fetches the current futures open interest for symbol.
func (m *Market) OpenInterest(ctx context.Context, symbol string) (*models.BinanceOpenInterest, error) {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))

	var oi models.BinanceOpenInterest
	if err := m.client.Get(ctx, m.fapi, "/fapi/v1/openInterest", params, 0, &oi); err != nil {
		return nil, err
	}
	return &oi, nil
}

// Klines fetches up to limit candles for symbol at interval. Binance
// returns positional arrays, which are mapped onto the kline model here.
func (m *Market) Klines(ctx context.Context, symbol, interval string, limit int) ([]models.BinanceKline, error) {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))
	params.Set("interval", interval)
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var raw [][]json.RawMessage
	if err := m.client.Get(ctx, m.rest, "/klines", params, m.cacheTTL, &raw); err != nil {
		return nil, err
	}

	klines := make([]models.BinanceKline, 0, len(raw))
	for _, row := range raw {
		kline, err := parseKlineRow(symbol, interval, row)
		if err != nil {
			return nil, &DecodeError{URL: m.rest + "/klines", Err: err}
		}
		klines = append(klines, kline)
	}
	return klines, nil
}

// KlinesMulti fetches klines for several symbols concurrently. Failures
// are reported per symbol so one bad symbol never voids the whole batch.
func (m *Market) KlinesMulti(ctx context.Context, symbols []string, interval string, limit int) (map[string][]models.BinanceKline, map[string]error) {
	type result struct {
		symbol string
		klines []models.BinanceKline
		err    error
	}

	results := make(chan result, len(symbols))
	for _, symbol := range symbols {
		go func(symbol string) {
			klines, err := m.Klines(ctx, symbol, interval, limit)
			results <- result{symbol: symbol, klines: klines, err: err}
		}(symbol)
	}

	out := make(map[string][]models.BinanceKline, len(symbols))
	errs := make(map[string]error)
	for range symbols {
		r := <-results
		if r.err != nil {
			errs[r.symbol] = r.err
			continue
		}
		out[r.symbol] = r.klines
	}
	return out, errs
}

// RecentTrades fetches the latest public trades for symbol.
func (m *Market) RecentTrades(ctx context.Context, symbol string, limit int) ([]models.BinanceTrade, error) {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var trades []models.BinanceTrade
	if err := m.client.Get(ctx, m.rest, "/trades", params, 0, &trades); err != nil {
		return nil, err
	}
	return trades, nil
}

// FundingRate fetches the most recent funding-rate entry for one futures
// symbol. This feeds the periodic funding poll.
func (m *Market) FundingRate(ctx context.Context, symbol string) (*models.BinanceFundingEntry, error) {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))
	params.Set("limit", "1")

	var entries []models.BinanceFundingEntry
	if err := m.client.Get(ctx, m.fapi, "/fapi/v1/fundingRate", params, 0, &entries); err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, &DecodeError{URL: m.fapi + "/fapi/v1/fundingRate", Err: errNoFundingEntry}
	}
	return &entries[len(entries)-1], nil
}

// FundingRateHistory fetches up to limit historical funding entries.
func (m *Market) FundingRateHistory(ctx context.Context, symbol string, limit int) ([]models.BinanceFundingEntry, error) {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var entries []models.BinanceFundingEntry
	if err := m.client.Get(ctx, m.fapi, "/fapi/v1/fundingRate", params, 0, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// Account fetches balances and permissions for the configured credentials.
func (m *Market) Account(ctx context.Context) (*models.BinanceAccount, error) {
	var account models.BinanceAccount
	if err := m.client.Signed(ctx, http.MethodGet, m.rest, "/account", url.Values{}, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// FuturesAccount fetches futures balances using the FAPI credentials.
func (m *Market) FuturesAccount(ctx context.Context) ([]models.BinanceFuturesBalance, error) {
	var balances []models.BinanceFuturesBalance
	if err := m.client.Signed(ctx, http.MethodGet, m.fapi, "/fapi/v2/balance", url.Values{}, &balances); err != nil {
		return nil, err
	}
	return balances, nil
}

// PlaceOrder submits a new order. Quantity and price are passed through as
// strings so callers keep full control of precision.
func (m *Market) PlaceOrder(ctx context.Context, order models.OrderRequest) (*models.BinanceOrderResponse, error) {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(order.Symbol))
	params.Set("side", order.Side)
	params.Set("type", order.Type)
	if order.Quantity != "" {
		params.Set("quantity", order.Quantity)
	}
	if order.Price != "" {
		params.Set("price", order.Price)
		params.Set("timeInForce", "GTC")
	}

	var resp models.BinanceOrderResponse
	if err := m.client.Signed(ctx, http.MethodPost, m.rest, "/order", params, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CancelOrder cancels an open order by exchange order ID.
func (m *Market) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	params := url.Values{}
	params.Set("symbol", strings.ToUpper(symbol))
	params.Set("orderId", strconv.FormatInt(orderID, 10))

	return m.client.Signed(ctx, http.MethodDelete, m.rest, "/order", params, nil)
}

// OpenOrders lists open orders, for all symbols when symbol is empty.
func (m *Market) OpenOrders(ctx context.Context, symbol string) ([]models.BinanceOrderResponse, error) {
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", strings.ToUpper(symbol))
	}

	var orders []models.BinanceOrderResponse
	if err := m.client.Signed(ctx, http.MethodGet, m.rest, "/openOrders", params, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// parseKlineRow maps one positional kline array onto the struct shape the
// websocket feed uses, so downstream code handles both identically.
func parseKlineRow(symbol, interval string, row []json.RawMessage) (models.BinanceKline, error) {
	var kline models.BinanceKline
	if len(row) < 9 {
		return kline, errShortKlineRow
	}

	fields := []struct {
		idx  int
		dest interface{}
	}{
		{0, &kline.StartTime},
		{1, &kline.Open},
		{2, &kline.High},
		{3, &kline.Low},
		{4, &kline.Close},
		{5, &kline.Volume},
		{6, &kline.CloseTime},
		{7, &kline.QuoteVolume},
		{8, &kline.TradeCount},
	}
	for _, f := range fields {
		if err := json.Unmarshal(row[f.idx], f.dest); err != nil {
			return kline, err
		}
	}

	kline.Symbol = strings.ToUpper(symbol)
	kline.Interval = interval
	// Historical rows describe completed candles.
	kline.IsClosed = true
	return kline, nil
}

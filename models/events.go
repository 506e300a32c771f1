package models

import (
	"encoding/json"
	"time"
)

/////////////////////////////////////////////////////////////////////////////
///////////////////////////////// GENERAL ///////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// EventType classifies a decoded market-data message.
type EventType string

const (
	// EventCandleClose marks a kline whose aggregation interval has finished.
	EventCandleClose EventType = "candle_close"
	// EventTicker marks a 24h rolling ticker update.
	EventTicker EventType = "ticker"
	// EventFunding marks a funding-rate entry, from websocket or REST polling.
	EventFunding EventType = "funding"
	// EventRaw marks a payload that matched no known shape.
	EventRaw EventType = "raw"
)

// RawStreamMessage wraps a single frame received from a combined websocket
// stream before classification.
type RawStreamMessage struct {
	Stream    string          `json:"stream"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"-"`
}

// IngestionEvent is the unit handed from the dispatcher to the processor.
// Created once per decoded message, consumed exactly once, then discarded.
type IngestionEvent struct {
	ID        string          `json:"id"`
	Symbol    string          `json:"symbol"`
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

/////////////////////////////////////////////////////////////////////////////
///////////////////////////////// BINANCE ///////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// BinanceKline mirrors the "k" object of Binance's kline websocket event.
type BinanceKline struct {
	StartTime   int64  `json:"t"`
	CloseTime   int64  `json:"T"`
	Symbol      string `json:"s"`
	Interval    string `json:"i"`
	Open        string `json:"o"`
	Close       string `json:"c"`
	High        string `json:"h"`
	Low         string `json:"l"`
	Volume      string `json:"v"`
	QuoteVolume string `json:"q"`
	TradeCount  int64  `json:"n"`
	IsClosed    bool   `json:"x"`
}

// BinanceKlineEvent mirrors Binance's kline websocket event structure.
type BinanceKlineEvent struct {
	Event     string       `json:"e"`
	EventTime int64        `json:"E"`
	Symbol    string       `json:"s"`
	Kline     BinanceKline `json:"k"`
}

// BinanceTickerEvent mirrors the fields of Binance's 24hr ticker websocket
// event that downstream handlers consume. REST aliases are filled when the
// payload originated from /ticker/24hr instead of the push channel.
type BinanceTickerEvent struct {
	Event         string `json:"e"`
	EventTime     int64  `json:"E"`
	Symbol        string `json:"s"`
	LastPrice     string `json:"c"`
	Volume        string `json:"v"`
	QuoteVolume   string `json:"q"`
	RESTSymbol    string `json:"symbol"`
	RESTLastPrice string `json:"lastPrice"`
	RESTVolume    string `json:"volume"`
}

// BinanceFundingEntry carries a funding-rate record in either the websocket
// short form (s/r/T) or the REST form (symbol/fundingRate/fundingTime).
type BinanceFundingEntry struct {
	Symbol          string `json:"symbol"`
	FundingRate     string `json:"fundingRate"`
	FundingTime     int64  `json:"fundingTime"`
	WSSymbol        string `json:"s"`
	WSFundingRate   string `json:"r"`
	WSNextFundingAt int64  `json:"T"`
}

// NormalizedSymbol returns the symbol regardless of payload origin.
func (f BinanceFundingEntry) NormalizedSymbol() string {
	if f.Symbol != "" {
		return f.Symbol
	}
	return f.WSSymbol
}

// NormalizedRate returns the funding rate string regardless of payload origin.
func (f BinanceFundingEntry) NormalizedRate() string {
	if f.FundingRate != "" {
		return f.FundingRate
	}
	return f.WSFundingRate
}

// BinanceExchangeInfo mirrors the subset of /exchangeInfo used to enumerate
// tradable symbols.
type BinanceExchangeInfo struct {
	Symbols []BinanceSymbolInfo `json:"symbols"`
}

// BinanceSymbolInfo describes one symbol entry of /exchangeInfo.
type BinanceSymbolInfo struct {
	Symbol     string `json:"symbol"`
	Status     string `json:"status"`
	BaseAsset  string `json:"baseAsset"`
	QuoteAsset string `json:"quoteAsset"`
}

// BinancePriceTicker mirrors /ticker/price responses.
type BinancePriceTicker struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// BinanceDepth mirrors /depth responses. Levels are [price, quantity]
// string pairs, kept as strings to preserve precision.
type BinanceDepth struct {
	LastUpdateID int64       `json:"lastUpdateId"`
	Bids         [][2]string `json:"bids"`
	Asks         [][2]string `json:"asks"`
}

// BinanceOpenInterest mirrors /fapi/v1/openInterest responses.
type BinanceOpenInterest struct {
	Symbol       string `json:"symbol"`
	OpenInterest string `json:"openInterest"`
	Time         int64  `json:"time"`
}

// BinanceFuturesBalance mirrors one entry of the signed /fapi/v2/balance
// endpoint.
type BinanceFuturesBalance struct {
	Asset            string `json:"asset"`
	Balance          string `json:"balance"`
	AvailableBalance string `json:"availableBalance"`
	UpdateTime       int64  `json:"updateTime"`
}

// BinanceAccount mirrors the balances section of the signed /account
// endpoint.
type BinanceAccount struct {
	CanTrade    bool             `json:"canTrade"`
	CanWithdraw bool             `json:"canWithdraw"`
	CanDeposit  bool             `json:"canDeposit"`
	UpdateTime  int64            `json:"updateTime"`
	Balances    []BinanceBalance `json:"balances"`
}

// BinanceBalance is one asset balance of a Binance account.
type BinanceBalance struct {
	Asset  string `json:"asset"`
	Free   string `json:"free"`
	Locked string `json:"locked"`
}

// OrderRequest carries the parameters of a new order. Quantity and price
// stay strings so precision is never lost to float conversion.
type OrderRequest struct {
	Symbol   string
	Side     string
	Type     string
	Quantity string
	Price    string
}

// BinanceOrderResponse mirrors the ack returned for order placement and
// the entries of /openOrders.
type BinanceOrderResponse struct {
	Symbol        string `json:"symbol"`
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Status        string `json:"status"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	Price         string `json:"price"`
	OrigQty       string `json:"origQty"`
	ExecutedQty   string `json:"executedQty"`
	TransactTime  int64  `json:"transactTime"`
}

// BinanceTrade mirrors one entry of /trades and /aggTrades responses.
type BinanceTrade struct {
	Price        string `json:"price"`
	Quantity     string `json:"qty"`
	QuoteQty     string `json:"quoteQty"`
	Time         int64  `json:"time"`
	IsBuyerMaker bool   `json:"isBuyerMaker"`
}

package model

import "time"

// -----------------------------------------------------------------------------
// Instruments
// -----------------------------------------------------------------------------

// InstrumentKind is a closed classification of tradeable instruments.
type InstrumentKind int

const (
	KindSpot   InstrumentKind = iota // underlying equity or index
	KindFuture                       // futures contract
	KindCall                         // call option (CE)
	KindPut                          // put option (PE)
)

// String returns the broker's instrument_type code for the kind.
func (k InstrumentKind) String() string {
	switch k {
	case KindSpot:
		return "EQ"
	case KindFuture:
		return "FUT"
	case KindCall:
		return "CE"
	case KindPut:
		return "PE"
	}
	return "UNKNOWN"
}

// HasExpiry reports whether instruments of this kind carry an expiry date.
func (k InstrumentKind) HasExpiry() bool {
	return k != KindSpot
}

// IsOption reports whether the kind is a call or put.
func (k InstrumentKind) IsOption() bool {
	return k == KindCall || k == KindPut
}

// ParseKind maps the broker's instrument_type column to an InstrumentKind.
func ParseKind(s string) (InstrumentKind, bool) {
	switch s {
	case "EQ":
		return KindSpot, true
	case "FUT":
		return KindFuture, true
	case "CE":
		return KindCall, true
	case "PE":
		return KindPut, true
	}
	return 0, false
}

// Instrument is one row of the broker's daily instrument master.
// Immutable once loaded for a trading day.
type Instrument struct {
	Token         uint32         // broker instrument token (subscription key)
	ExchangeToken uint32         // exchange-level token (Token >> 8)
	TradingSymbol string         // e.g. "NIFTY24AUG24000CE"
	Name          string         // underlying name, e.g. "NIFTY"
	Kind          InstrumentKind // spot / future / call / put
	Expiry        time.Time      // zero for spot
	Strike        float64        // 0 for spot and futures
	Exchange      string         // e.g. "NFO", "NSE"
	Segment       string         // e.g. "NFO-OPT", "INDICES"
	LotSize       int
	TickSize      float64
	LastPrice     float64 // last price at dump time, informational only
}

// SubscriptionSet is the ordered list of instruments assigned to one
// socket session. Order is the subscription order sent on the wire.
type SubscriptionSet []Instrument

// Tokens returns the instrument tokens in set order.
func (s SubscriptionSet) Tokens() []uint32 {
	tokens := make([]uint32, len(s))
	for i, inst := range s {
		tokens[i] = inst.Token
	}
	return tokens
}

// -----------------------------------------------------------------------------
// Ticks
// -----------------------------------------------------------------------------

// Feed modes, in increasing payload size.
const (
	ModeLTP   = "ltp"
	ModeQuote = "quote"
	ModeFull  = "full"
)

// OHLC is the day's open/high/low/close for an instrument.
type OHLC struct {
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// DepthLevel is one price level of the order book.
type DepthLevel struct {
	Price    float64 `json:"price"`
	Quantity uint32  `json:"quantity"`
	Orders   uint32  `json:"orders"`
}

// Depth is a snapshot of the top order-book levels, best first.
type Depth struct {
	Buy  []DepthLevel `json:"buy"`
	Sell []DepthLevel `json:"sell"`
}

// Tick is one market update for an instrument. Produced by a socket
// session, serialized as JSON into the queue, and stored by the receiver.
// Zero-valued fields mean the feed mode did not carry them.
type Tick struct {
	InstrumentToken   uint32    `json:"instrument_token"`
	TradingSymbol     string    `json:"tradingsymbol,omitempty"`
	Name              string    `json:"name,omitempty"` // underlying, e.g. "NIFTY"
	Mode              string    `json:"mode"`
	Tradable          bool      `json:"tradable"`
	LastPrice         float64   `json:"last_price"`
	LastQuantity      uint32    `json:"last_traded_quantity,omitempty"`
	AveragePrice      float64   `json:"average_traded_price,omitempty"`
	Volume            uint32    `json:"volume_traded,omitempty"`
	TotalBuyQuantity  uint32    `json:"total_buy_quantity,omitempty"`
	TotalSellQuantity uint32    `json:"total_sell_quantity,omitempty"`
	OHLC              OHLC      `json:"ohlc"`
	NetChange         float64   `json:"change"`
	OI                uint32    `json:"oi,omitempty"`
	OIDayHigh         uint32    `json:"oi_day_high,omitempty"`
	OIDayLow          uint32    `json:"oi_day_low,omitempty"`
	ExchangeTimestamp time.Time `json:"exchange_timestamp"`
	LastTradeTime     time.Time `json:"last_trade_time"`
	ReceivedAt        time.Time `json:"received_at"`
	Depth             *Depth    `json:"depth,omitempty"`
}

// Timestamp returns the best-known event time for the tick: the exchange
// timestamp when present, otherwise the local receive time.
func (t *Tick) Timestamp() time.Time {
	if !t.ExchangeTimestamp.IsZero() {
		return t.ExchangeTimestamp
	}
	return t.ReceivedAt
}

package instrument

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hariprasath93/zerodha-liquidity-analysis/internal/auth"
	"github.com/hariprasath93/zerodha-liquidity-analysis/internal/model"
)

// ErrEmptyDump reports an instrument download that parsed to zero rows.
var ErrEmptyDump = errors.New("empty instrument dump")

// Client fetches the instrument master and spot quotes from the broker REST API.
type Client struct {
	baseURL    string
	apiKey     string
	tokens     *auth.TokenSource
	httpClient *http.Client
	logger     *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates an instrument-master client.
func NewClient(baseURL, apiKey string, tokens *auth.TokenSource, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// Instruments downloads and parses the instrument dump for one exchange.
// Individually malformed rows are skipped and counted; a dump that yields
// no instruments at all is an error.
func (c *Client) Instruments(ctx context.Context, exchange string) ([]model.Instrument, error) {
	endpoint := c.baseURL + "/instruments/" + url.PathEscape(exchange)

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("fetch instruments %s: %w", exchange, err)
	}
	defer body.Close()

	instruments, skipped, err := parseDump(body)
	if err != nil {
		return nil, fmt.Errorf("parse instruments %s: %w", exchange, err)
	}
	if len(instruments) == 0 {
		return nil, fmt.Errorf("instruments %s: %w", exchange, ErrEmptyDump)
	}

	c.logger.Info("instrument dump loaded",
		"exchange", exchange,
		"count", len(instruments),
		"skipped", skipped,
	)
	return instruments, nil
}

// LTP fetches last traded prices for instruments named as "EXCHANGE:SYMBOL".
func (c *Client) LTP(ctx context.Context, names ...string) (map[string]float64, error) {
	if len(names) == 0 {
		return map[string]float64{}, nil
	}

	q := url.Values{}
	for _, name := range names {
		q.Add("i", name)
	}

	body, err := c.get(ctx, c.baseURL+"/quote/ltp?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("fetch ltp: %w", err)
	}
	defer body.Close()

	raw, err := io.ReadAll(io.LimitReader(body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read ltp response: %w", err)
	}

	var env struct {
		Status string `json:"status"`
		Data   map[string]struct {
			InstrumentToken uint32  `json:"instrument_token"`
			LastPrice       float64 `json:"last_price"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("parse ltp response: %w", err)
	}
	if env.Status != "success" {
		return nil, fmt.Errorf("ltp request failed: status %q", env.Status)
	}

	prices := make(map[string]float64, len(env.Data))
	for name, quote := range env.Data {
		prices[name] = quote.LastPrice
	}
	return prices, nil
}

func (c *Client) get(ctx context.Context, endpoint string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Kite-Version", "3")
	req.Header.Set("Authorization", "token "+c.apiKey+":"+c.tokens.Token())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return resp.Body, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		resp.Body.Close()
		return nil, fmt.Errorf("status %d: %w", resp.StatusCode, auth.ErrAuthRejected)
	default:
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
}

// dump columns, by header name
const (
	colToken         = "instrument_token"
	colExchangeToken = "exchange_token"
	colSymbol        = "tradingsymbol"
	colName          = "name"
	colLastPrice     = "last_price"
	colExpiry        = "expiry"
	colStrike        = "strike"
	colTickSize      = "tick_size"
	colLotSize       = "lot_size"
	colType          = "instrument_type"
	colSegment       = "segment"
	colExchange      = "exchange"
)

func parseDump(r io.Reader) ([]model.Instrument, int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{colToken, colSymbol, colType, colExchange} {
		if _, ok := cols[required]; !ok {
			return nil, 0, fmt.Errorf("dump missing column %q", required)
		}
	}

	field := func(rec []string, name string) string {
		idx, ok := cols[name]
		if !ok || idx >= len(rec) {
			return ""
		}
		return rec[idx]
	}

	var (
		instruments []model.Instrument
		skipped     int
	)
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			skipped++
			continue
		}

		token, err := strconv.ParseUint(field(rec, colToken), 10, 32)
		if err != nil {
			skipped++
			continue
		}
		kind, ok := model.ParseKind(field(rec, colType))
		if !ok {
			skipped++
			continue
		}

		inst := model.Instrument{
			Token:         uint32(token),
			TradingSymbol: field(rec, colSymbol),
			Name:          field(rec, colName),
			Kind:          kind,
			Exchange:      field(rec, colExchange),
			Segment:       field(rec, colSegment),
		}
		if v, err := strconv.ParseUint(field(rec, colExchangeToken), 10, 32); err == nil {
			inst.ExchangeToken = uint32(v)
		}
		if v, err := strconv.ParseFloat(field(rec, colStrike), 64); err == nil {
			inst.Strike = v
		}
		if v, err := strconv.ParseFloat(field(rec, colTickSize), 64); err == nil {
			inst.TickSize = v
		}
		if v, err := strconv.ParseFloat(field(rec, colLastPrice), 64); err == nil {
			inst.LastPrice = v
		}
		if v, err := strconv.Atoi(field(rec, colLotSize)); err == nil {
			inst.LotSize = v
		}
		if s := field(rec, colExpiry); s != "" {
			expiry, err := time.ParseInLocation("2006-01-02", s, model.IST())
			if err != nil {
				skipped++
				continue
			}
			inst.Expiry = expiry
		}

		instruments = append(instruments, inst)
	}

	return instruments, skipped, nil
}

// FindSpot locates the underlying spot instrument by exchange and trading
// symbol, for subscribing the index/equity itself alongside its derivatives.
func FindSpot(universe []model.Instrument, exchange, tradingSymbol string) (model.Instrument, bool) {
	for _, inst := range universe {
		if inst.Exchange == exchange && inst.TradingSymbol == tradingSymbol {
			return inst, true
		}
	}
	return model.Instrument{}, false
}

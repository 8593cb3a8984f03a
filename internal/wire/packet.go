package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/hariprasath93/zerodha-liquidity-analysis/internal/model"
)

// Packet sizes by mode. Index instruments have no traded quantities or
// depth, so their quote and full layouts are shorter.
const (
	sizeLTP        = 8
	sizeIndexQuote = 28
	sizeIndexFull  = 32
	sizeQuote      = 44
	sizeFull       = 184

	depthOffset    = 64
	depthEntrySize = 12
	depthLevels    = 5
)

// Exchange segment is the low byte of the instrument token. Currency
// derivative segments quote prices with extra precision.
const (
	segmentNSECD   = 3
	segmentBSECD   = 6
	segmentIndices = 9
)

var (
	// ErrTruncated reports a frame that ends before its declared packets do.
	ErrTruncated = errors.New("truncated frame")

	// ErrBadPacket reports a packet whose size matches no known layout.
	ErrBadPacket = errors.New("bad packet")
)

// IsHeartbeat reports whether a binary frame is the broker's keepalive.
// Heartbeats are single-byte frames carrying no packets.
func IsHeartbeat(frame []byte) bool {
	return len(frame) < 2
}

// ParseFrame decodes a binary frame into ticks. A frame holds a big-endian
// int16 packet count followed by length-prefixed packets. Ticks decoded
// before an error are returned alongside it so a torn frame still yields
// its intact packets.
func ParseFrame(frame []byte, received time.Time) ([]model.Tick, error) {
	if IsHeartbeat(frame) {
		return nil, nil
	}

	count := int(binary.BigEndian.Uint16(frame[0:2]))
	ticks := make([]model.Tick, 0, count)
	offset := 2

	for i := 0; i < count; i++ {
		if offset+2 > len(frame) {
			return ticks, fmt.Errorf("%w: %d of %d packets, frame %d bytes", ErrTruncated, i, count, len(frame))
		}
		size := int(binary.BigEndian.Uint16(frame[offset : offset+2]))
		offset += 2

		if offset+size > len(frame) {
			return ticks, fmt.Errorf("%w: packet %d wants %d bytes, %d left", ErrTruncated, i, size, len(frame)-offset)
		}

		tick, err := parsePacket(frame[offset:offset+size], received)
		if err != nil {
			return ticks, err
		}
		ticks = append(ticks, tick)
		offset += size
	}

	return ticks, nil
}

func parsePacket(p []byte, received time.Time) (model.Tick, error) {
	if len(p) < sizeLTP {
		return model.Tick{}, fmt.Errorf("%w: %d bytes", ErrBadPacket, len(p))
	}

	token := binary.BigEndian.Uint32(p[0:4])
	segment := byte(token & 0xFF)
	div := priceDivisor(segment)

	tick := model.Tick{
		InstrumentToken: token,
		Tradable:        segment != segmentIndices,
		LastPrice:       price(p, 4, div),
		ReceivedAt:      received,
	}

	if segment == segmentIndices {
		return parseIndexPacket(p, tick, div)
	}

	switch len(p) {
	case sizeLTP:
		tick.Mode = model.ModeLTP
		return tick, nil
	case sizeQuote:
		tick.Mode = model.ModeQuote
	case sizeFull:
		tick.Mode = model.ModeFull
	default:
		return model.Tick{}, fmt.Errorf("%w: %d bytes for token %d", ErrBadPacket, len(p), token)
	}

	tick.LastQuantity = binary.BigEndian.Uint32(p[8:12])
	tick.AveragePrice = price(p, 12, div)
	tick.Volume = binary.BigEndian.Uint32(p[16:20])
	tick.TotalBuyQuantity = binary.BigEndian.Uint32(p[20:24])
	tick.TotalSellQuantity = binary.BigEndian.Uint32(p[24:28])
	tick.OHLC = model.OHLC{
		Open:  price(p, 28, div),
		High:  price(p, 32, div),
		Low:   price(p, 36, div),
		Close: price(p, 40, div),
	}
	tick.NetChange = percentChange(tick.LastPrice, tick.OHLC.Close)

	if tick.Mode == model.ModeFull {
		tick.LastTradeTime = epochTime(p, 44)
		tick.OI = binary.BigEndian.Uint32(p[48:52])
		tick.OIDayHigh = binary.BigEndian.Uint32(p[52:56])
		tick.OIDayLow = binary.BigEndian.Uint32(p[56:60])
		tick.ExchangeTimestamp = epochTime(p, 60)
		tick.Depth = parseDepth(p[depthOffset:], div)
	}

	return tick, nil
}

// parseIndexPacket handles the 28 and 32 byte index layouts. The wire
// carries an absolute change field after close; it is ignored in favour of
// the percent change computed from close, matching the quote layouts.
func parseIndexPacket(p []byte, tick model.Tick, div float64) (model.Tick, error) {
	switch len(p) {
	case sizeLTP:
		tick.Mode = model.ModeLTP
		return tick, nil
	case sizeIndexQuote:
		tick.Mode = model.ModeQuote
	case sizeIndexFull:
		tick.Mode = model.ModeFull
	default:
		return model.Tick{}, fmt.Errorf("%w: %d bytes for index token %d", ErrBadPacket, len(p), tick.InstrumentToken)
	}

	tick.OHLC = model.OHLC{
		High:  price(p, 8, div),
		Low:   price(p, 12, div),
		Open:  price(p, 16, div),
		Close: price(p, 20, div),
	}
	tick.NetChange = percentChange(tick.LastPrice, tick.OHLC.Close)

	if tick.Mode == model.ModeFull {
		tick.ExchangeTimestamp = epochTime(p, 28)
	}

	return tick, nil
}

func parseDepth(p []byte, div float64) *model.Depth {
	depth := &model.Depth{}
	for i := 0; i < 2*depthLevels; i++ {
		off := i * depthEntrySize
		level := model.DepthLevel{
			Quantity: binary.BigEndian.Uint32(p[off : off+4]),
			Price:    price(p, off+4, div),
			Orders:   uint32(binary.BigEndian.Uint16(p[off+8 : off+10])),
		}
		if i < depthLevels {
			depth.Buy = append(depth.Buy, level)
		} else {
			depth.Sell = append(depth.Sell, level)
		}
	}
	return depth
}

func priceDivisor(segment byte) float64 {
	switch segment {
	case segmentNSECD:
		return 1e7
	case segmentBSECD:
		return 1e4
	default:
		return 100
	}
}

func price(p []byte, offset int, div float64) float64 {
	return float64(int32(binary.BigEndian.Uint32(p[offset:offset+4]))) / div
}

func percentChange(last, close float64) float64 {
	if close == 0 {
		return 0
	}
	return (last - close) * 100 / close
}

func epochTime(p []byte, offset int) time.Time {
	sec := binary.BigEndian.Uint32(p[offset : offset+4])
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(int64(sec), 0).In(model.IST())
}

// Package wire implements the ticker socket's framing: binary market data
// in, JSON control messages out.
//
// Binary frames carry a big-endian int16 packet count, then length-prefixed
// packets. Packet size encodes the feed mode: 8 bytes for LTP, 44 for quote,
// 184 for full with five depth levels per side; index instruments use the
// shorter 28/32 byte layouts and carry no depth. Prices arrive as integer
// paise and are scaled to rupees here (currency-derivative segments use
// larger divisors). A one-byte frame is the broker's heartbeat.
package wire

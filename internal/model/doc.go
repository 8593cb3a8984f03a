// Package model defines shared data types used across the tick pipeline.
//
// Conventions:
//   - Prices: float64 rupees (the wire carries paise; the codec divides by 100)
//   - Quantities and open interest: uint32, as sent by the exchange
//   - Timestamps: time.Time; exchange timestamps are IST wall-clock instants
//   - Instrument tokens: uint32, the broker's numeric instrument identifier
//
// Tick and its nested types carry JSON tags because a serialized Tick is the
// queue entry payload between the connector and receiver processes. Field
// names follow the broker's own tick dictionary so stored entries stay
// readable next to the broker documentation.
package model

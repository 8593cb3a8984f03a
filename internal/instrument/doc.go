// Package instrument loads the broker's instrument master and turns it into
// per-connection subscription sets.
//
// Pipeline at connector startup:
//  1. Client.Instruments downloads the daily CSV dump for one exchange.
//  2. Select keeps the contracts matching the expiry policy, kind set and
//     optional strike window around the underlying spot price.
//  3. Partition splits the filtered universe across the socket connections,
//     balanced and deterministic, refusing oversized universes outright.
//
// The same universe, policy and clock always produce the same partitioning,
// so a restarted connector resubscribes identically.
package instrument

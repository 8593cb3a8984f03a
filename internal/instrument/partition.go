package instrument

import (
	"errors"
	"fmt"
	"sort"

	"github.com/hariprasath93/zerodha-liquidity-analysis/internal/model"
)

// ErrCapacityExceeded reports a filtered universe larger than the combined
// subscription ceiling. The universe must be narrowed; nothing is truncated.
var ErrCapacityExceeded = errors.New("subscription capacity exceeded")

// Partition assigns the filtered universe to socket connections. Instruments
// are ordered by token and dealt round-robin, which keeps set sizes within
// one of each other and makes the assignment reproducible across restarts.
// Only as many connections as the universe needs are used, capped at
// maxConnections.
func Partition(filtered []model.Instrument, maxConnections, maxPerConnection int) ([]model.SubscriptionSet, error) {
	if maxConnections < 1 || maxPerConnection < 1 {
		return nil, fmt.Errorf("invalid limits: %d connections x %d subscriptions", maxConnections, maxPerConnection)
	}
	if len(filtered) == 0 {
		return nil, nil
	}
	if len(filtered) > maxConnections*maxPerConnection {
		return nil, fmt.Errorf("%w: %d instruments > %d connections x %d per connection",
			ErrCapacityExceeded, len(filtered), maxConnections, maxPerConnection)
	}

	ordered := make([]model.Instrument, len(filtered))
	copy(ordered, filtered)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Token < ordered[j].Token
	})

	count := (len(ordered) + maxPerConnection - 1) / maxPerConnection
	if count > maxConnections {
		count = maxConnections
	}

	sets := make([]model.SubscriptionSet, count)
	for i, inst := range ordered {
		sets[i%count] = append(sets[i%count], inst)
	}
	return sets, nil
}

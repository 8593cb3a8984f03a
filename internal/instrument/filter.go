package instrument

import (
	"math"
	"sort"
	"time"

	"github.com/hariprasath93/zerodha-liquidity-analysis/internal/model"
)

// ExpiryPolicy selects which contract expiries stay in scope.
type ExpiryPolicy struct {
	WeeklyCount  int // nearest distinct expiries to keep (current + next weekly)
	MonthlyCount int // months whose month-end contract to keep (current + next monthly)
}

// Selection configures universe filtering for Select.
type Selection struct {
	Underlyings     []string
	Kinds           []model.InstrumentKind
	Policy          ExpiryPolicy
	StrikeWindowPct float64            // options-only band around spot, 0 disables
	SpotPrices      map[string]float64 // underlying -> spot, consulted by the strike window
}

// Select filters the universe down to the instruments the connector should
// subscribe: per underlying, the expiry-policy contracts of the configured
// kinds, options optionally narrowed to a strike band around spot. Input
// order is preserved within each underlying.
func Select(universe []model.Instrument, sel Selection, now time.Time) []model.Instrument {
	kinds := make(map[model.InstrumentKind]bool, len(sel.Kinds))
	for _, k := range sel.Kinds {
		kinds[k] = true
	}

	var out []model.Instrument
	for _, underlying := range sel.Underlyings {
		var expiries []time.Time
		for _, inst := range universe {
			if inst.Name == underlying && inst.Kind.HasExpiry() {
				expiries = append(expiries, inst.Expiry)
			}
		}

		target := make(map[int]bool)
		for _, e := range TargetExpiries(expiries, sel.Policy, now) {
			target[dateKey(e)] = true
		}

		spot := sel.SpotPrices[underlying]
		band := spot * sel.StrikeWindowPct / 100

		for _, inst := range universe {
			if inst.Name != underlying || !kinds[inst.Kind] {
				continue
			}
			if inst.Kind.HasExpiry() && !target[dateKey(inst.Expiry)] {
				continue
			}
			if inst.Kind.IsOption() && sel.StrikeWindowPct > 0 && spot > 0 {
				if math.Abs(inst.Strike-spot) > band {
					continue
				}
			}
			out = append(out, inst)
		}
	}
	return out
}

// TargetExpiries applies the expiry policy to a set of contract expiries:
// the WeeklyCount nearest distinct future expiries, plus the last expiry
// inside each of the MonthlyCount months starting from the current one.
// Past expiries are ignored. The result is sorted and de-duplicated.
func TargetExpiries(expiries []time.Time, policy ExpiryPolicy, now time.Time) []time.Time {
	today := dateKey(now)

	// distinct future expiries, ascending
	seen := make(map[int]time.Time)
	for _, e := range expiries {
		if key := dateKey(e); key >= today {
			seen[key] = e
		}
	}
	keys := make([]int, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Ints(keys)

	selected := make(map[int]time.Time)
	for i := 0; i < len(keys) && i < policy.WeeklyCount; i++ {
		selected[keys[i]] = seen[keys[i]]
	}

	for k := 0; k < policy.MonthlyCount; k++ {
		year, month := monthAfter(now, k)
		last := 0
		for _, key := range keys {
			if key/10000 == year && (key/100)%100 == int(month) && key > last {
				last = key
			}
		}
		if last != 0 {
			selected[last] = seen[last]
		}
	}

	out := make([]time.Time, 0, len(selected))
	outKeys := make([]int, 0, len(selected))
	for key := range selected {
		outKeys = append(outKeys, key)
	}
	sort.Ints(outKeys)
	for _, key := range outKeys {
		out = append(out, selected[key])
	}
	return out
}

// dateKey collapses a time to a comparable yyyymmdd integer, sidestepping
// time-of-day and zone differences between parsed expiries and the clock.
func dateKey(t time.Time) int {
	year, month, day := t.Date()
	return year*10000 + int(month)*100 + day
}

// monthAfter returns the calendar month k months after t, without the
// day-of-month normalization surprises of AddDate.
func monthAfter(t time.Time, k int) (int, time.Month) {
	months := (t.Year()*12 + int(t.Month()) - 1) + k
	return months / 12, time.Month(months%12 + 1)
}

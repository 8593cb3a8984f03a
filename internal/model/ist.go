package model

import (
	"sync"
	"time"
)

var (
	istOnce sync.Once
	ist     *time.Location
)

// IST returns the exchange's time zone. Falls back to a fixed +05:30 zone
// on hosts without tzdata.
func IST() *time.Location {
	istOnce.Do(func() {
		loc, err := time.LoadLocation("Asia/Kolkata")
		if err != nil {
			loc = time.FixedZone("IST", 5*3600+30*60)
		}
		ist = loc
	})
	return ist
}

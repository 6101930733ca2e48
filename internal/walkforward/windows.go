package walkforward

import (
	"time"
)

// span is the time layout of one window.
type span struct {
	start, split, end time.Time
}

// buildWindows lays out full windows of months length inside [from, to].
// Each window starts half a window after the previous one and is split at
// start + duration*ratio.
func buildWindows(from, to time.Time, months int, ratio float64) []span {
	var out []span
	start := from
	for {
		end := start.AddDate(0, months, 0)
		if end.After(to) {
			return out
		}
		d := end.Sub(start)
		out = append(out, span{
			start: start,
			split: start.Add(time.Duration(float64(d) * ratio)),
			end:   end,
		})
		start = start.Add(time.Duration(float64(d) * stepFraction))
	}
}

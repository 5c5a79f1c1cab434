package stage

import (
	"time"

	"github.com/gurukamath/silkworm/types"
)

// progressMeter tracks a monotonically increasing height and periodically
// logs its throughput since the last report.
type progressMeter struct {
	last     types.BlockNum
	lastAt   time.Time
	interval time.Duration
}

func newProgressMeter(start types.BlockNum, interval time.Duration) *progressMeter {
	return &progressMeter{last: start, interval: interval}
}

// report returns the delta and throughput in blocks/sec since the last
// report if interval has elapsed, and advances the meter; ok is false if
// it is too soon to report again.
func (p *progressMeter) report(now time.Time, height types.BlockNum) (delta types.BlockNum, perSec float64, ok bool) {
	if p.lastAt.IsZero() {
		p.lastAt = now
		p.last = height
		return 0, 0, false
	}
	if now.Sub(p.lastAt) < p.interval {
		return 0, 0, false
	}
	elapsed := now.Sub(p.lastAt).Seconds()
	delta = height - p.last
	if elapsed > 0 {
		perSec = float64(delta) / elapsed
	}
	p.last = height
	p.lastAt = now
	return delta, perSec, true
}

package connmgr

import "fmt"

// EncodeTimeout converts milliseconds into the (time_tick, ticks) pair used
// by the Connection Manager, where the timeout is ticks * 2^time_tick ms.
// The pair closest to ms wins; among exact pairs the coarsest tick is used.
func EncodeTimeout(ms int) (timeTick uint8, ticks uint8, err error) {
	if ms <= 0 {
		return 0, 0, fmt.Errorf("%w: timeout %d ms must be positive", ErrInvalidParameter, ms)
	}

	best := -1
	for tt := 0; tt <= 15; tt++ {
		unit := 1 << tt
		n := (ms + unit - 1) / unit
		if n < 1 || n > 0xFF {
			continue
		}
		diff := n*unit - ms
		if best < 0 || diff <= best {
			best = diff
			timeTick, ticks = uint8(tt), uint8(n)
		}
	}
	if best < 0 {
		return 0, 0, fmt.Errorf("%w: timeout %d ms cannot be encoded", ErrInvalidParameter, ms)
	}
	return timeTick, ticks, nil
}

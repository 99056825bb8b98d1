package capture

import "time"

// MissDelay is how long a reader waits after a read that returned no frame.
const MissDelay = 20 * time.Millisecond

// RetryDelay paces a reader loop after its misses-th consecutive empty read.
// A looping file gets one immediate retry after rewinding at end of file;
// any further miss means the source is broken and waits like a device.
func RetryDelay(looping bool, misses int) time.Duration {
	if looping && misses <= 1 {
		return 0
	}
	return MissDelay
}

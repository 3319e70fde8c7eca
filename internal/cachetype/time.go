package cachetype

import "time"

// windowsEpochDelta is the number of seconds between 1601-01-01 and 1970-01-01.
const windowsEpochDelta = 11644473600

// DefaultTickResolution is the duration of one timestamp tick.
const DefaultTickResolution = 100 * time.Nanosecond

// TicksToTime converts a tick count since 1601-01-01 UTC into a time.Time.
// A resolution that does not evenly divide one second falls back to
// DefaultTickResolution.
func TicksToTime(ticks uint64, resolution time.Duration) time.Time {
	if resolution <= 0 || time.Second%resolution != 0 {
		resolution = DefaultTickResolution
	}
	perSecond := uint64(time.Second / resolution)
	secs := int64(ticks / perSecond) //nolint:gosec // on-disk tick counts are far below 2^63 seconds
	rem := int64(ticks%perSecond) * int64(resolution) //nolint:gosec // bounded by one second
	return time.Unix(secs-windowsEpochDelta, rem).UTC()
}

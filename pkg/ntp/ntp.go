// Package ntp encodes and decodes timestamps in the 64-bit fixed-point NTP
// format RTCP sender reports carry, per RFC 3550 §4.
package ntp

import (
	"math"
	"time"
)

const ntpEpochOffsetSeconds = 2208988800

// Encode converts t to NTP 64-bit fixed-point format.
func Encode(t time.Time) uint64 {
	nanos := uint64(t.UnixNano()) + ntpEpochOffsetSeconds*1_000_000_000
	secs := nanos / 1_000_000_000
	fractional := uint64(math.Round(float64((nanos%1_000_000_000)*(1<<32)) / 1_000_000_000))
	return secs<<32 | fractional
}

// Decode converts v from NTP 64-bit fixed-point format.
func Decode(v uint64) time.Time {
	secs := int64((v >> 32) - ntpEpochOffsetSeconds)
	nanos := int64(math.Round(float64(((v & 0xFFFFFFFF) * 1_000_000_000) / (1 << 32))))
	return time.Unix(secs, nanos)
}

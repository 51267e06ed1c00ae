package packetizer

import (
	"testing"
	"time"

	"github.com/rtspond/rtspond/pkg/delayqueue"
)

// testQueue wraps a delayqueue.Queue with a fake clock so tests can
// deterministically fire the packetizer's next scheduled packet build.
type testQueue struct {
	*delayqueue.Queue
	clock *time.Time
}

func newQueue(t *testing.T) *testQueue {
	t.Helper()
	now := time.Unix(0, 0)
	tq := &testQueue{clock: &now}
	tq.Queue = delayqueue.New(func() time.Time { return *tq.clock })
	return tq
}

// fireNext advances the fake clock to the next due entry and fires it.
func (tq *testQueue) fireNext() {
	d := tq.TimeUntilNext()
	if d > 0 {
		*tq.clock = tq.clock.Add(d)
	}
	tq.HandleAlarm()
}

// fixedNow returns a now func anchored at offsetMicros microseconds past the
// Unix epoch, independent of the queue's own clock (the packetizer only
// calls now() to anchor next_send_time, not to age the queue).
func fixedNow(offsetMicros int64) func() time.Time {
	base := time.Unix(0, 0).Add(time.Duration(offsetMicros) * time.Microsecond)
	return func() time.Time { return base }
}

package outbuf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInsertExtractWordRoundTrip(t *testing.T) {
	b := New(1400, 1500, 1500)
	b.SkipBytes(12)
	b.InsertWord(0xdeadbeef, 4)
	require.Equal(t, uint32(0xdeadbeef), b.ExtractWord(4))
}

func TestEnqueueAdvancesCurOffset(t *testing.T) {
	b := New(1400, 1500, 1500)
	b.Enqueue([]byte{1, 2, 3})
	require.Equal(t, 3, b.CurPacketSize())
	require.Equal(t, []byte{1, 2, 3}, b.Packet())
}

func TestWouldOverflow(t *testing.T) {
	b := New(100, 200, 200)
	b.SkipBytes(190)
	require.True(t, b.WouldOverflow(20))
	require.False(t, b.WouldOverflow(10))
}

func TestIsPreferredSize(t *testing.T) {
	b := New(100, 200, 200)
	require.False(t, b.IsPreferredSize())
	b.SkipBytes(100)
	require.True(t, b.IsPreferredSize())
}

func TestNumOverflowFor(t *testing.T) {
	b := New(100, 200, 200)
	b.SkipBytes(190)
	require.Equal(t, 5, b.NumOverflowFor(15))
	require.Equal(t, 0, b.NumOverflowFor(5))
}

func TestOverflowCarriesOverToNextPacket(t *testing.T) {
	b := New(100, 200, 200)
	b.Enqueue([]byte("hello"))
	b.SetOverflow(0, 5, 1000, 2000)

	require.True(t, b.HaveOverflow())
	ov := b.OverflowData()
	require.Equal(t, 5, ov.Size)
	require.Equal(t, int64(1000), ov.PTSMicros)

	b.ResetOffset()
	n := b.UseOverflow()
	require.Equal(t, 5, n)
	require.Equal(t, []byte("hello"), b.Packet())
	require.False(t, b.HaveOverflow())
}

func TestCheapResetPreservesOverflowBytes(t *testing.T) {
	b := New(100, 200, 200)
	b.Enqueue([]byte("ABCDE"))
	b.SetOverflow(0, 5, 0, 0)

	// Cheap reset: move packetStart up to just before the overflow bytes
	// (here, trivially, by the amount already consumed before them: 0).
	b.AdjustPacketStart(0)
	b.ResetOffset()

	require.True(t, b.HaveOverflow())
	n := b.UseOverflow()
	require.Equal(t, 5, n)
	require.Equal(t, []byte("ABCDE"), b.Packet())
}

func TestFullResetMemmovesOverflowLeavingRoomForNextHeader(t *testing.T) {
	b := New(100, 200, 200)
	b.AdjustPacketStart(50) // simulate having cheap-reset once already
	b.Enqueue([]byte("XYZ"))
	b.SetOverflow(0, 3, 0, 0)

	const headerSize = 4
	b.ResetPacketStartKeepingOverflow(headerSize)
	b.ResetOffset()

	require.Equal(t, headerSize, b.overflowStartForTest())
	b.SkipBytes(headerSize) // the next packet's header occupies [0, headerSize)
	n := b.UseOverflow()
	require.Equal(t, 3, n)
	require.Equal(t, []byte("XYZ"), b.Packet()[headerSize:])
}

func (b *Buffer) overflowStartForTest() int { return b.overflow.SrcOffset }

func TestResetPacketStartDiscardsOverflow(t *testing.T) {
	b := New(100, 200, 200)
	b.Enqueue([]byte("XYZ"))
	b.SetOverflow(0, 3, 0, 0)

	b.ResetPacketStart()

	require.False(t, b.HaveOverflow())
}

func TestCurPtrReflectsWritePosition(t *testing.T) {
	b := New(100, 200, 200)
	b.Enqueue([]byte("AB"))
	before := len(b.CurPtr())
	b.SkipBytes(3)
	after := len(b.CurPtr())
	require.Equal(t, 3, before-after)
}

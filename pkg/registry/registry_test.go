package registry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/stretchr/testify/require"

	"github.com/rtspond/rtspond/pkg/delayqueue"
	"github.com/rtspond/rtspond/pkg/liberrors"
)

func writeTempFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, data, 0o644))
	return p
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	now := func() time.Time { return time.Unix(2000, 0) }
	return New(Config{
		PortBase:            19000,
		PreferredPacketSize: 1000,
		MaxPacketSize:       1400,
		CNAME:               "test-cname",
		Timers:              delayqueue.New(now),
		Now:                 now,
	})
}

func writeH264File(t *testing.T) string {
	t.Helper()
	enc, err := h264.AnnexBMarshal([][]byte{{0x65, 0x01, 0x02}})
	require.NoError(t, err)
	return writeTempFile(t, "stream.264", enc)
}

func TestLookupOrCreateMissingFileReturnsNotFound(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.LookupOrCreate(filepath.Join(t.TempDir(), "missing.264"))
	require.Error(t, err)
	require.IsType(t, liberrors.ErrSessionNotFound{}, err)
}

func TestLookupOrCreateBuildsAndCachesSession(t *testing.T) {
	r := newTestRegistry(t)
	path := writeH264File(t)

	sess, err := r.LookupOrCreate(path)
	require.NoError(t, err)
	require.Equal(t, path, sess.Name)
	require.Len(t, sess.Subsessions, 1)
	require.Equal(t, 1, r.Len())

	again, err := r.LookupOrCreate(path)
	require.NoError(t, err)
	require.Same(t, sess, again)
	require.Equal(t, 1, r.Len())
}

func TestLookupOrCreateEvictsCachedSessionWhenFileRemoved(t *testing.T) {
	r := newTestRegistry(t)
	path := writeH264File(t)

	_, err := r.LookupOrCreate(path)
	require.NoError(t, err)
	require.Equal(t, 1, r.Len())

	require.NoError(t, os.Remove(path))

	_, err = r.LookupOrCreate(path)
	require.Error(t, err)
	require.IsType(t, liberrors.ErrSessionNotFound{}, err)
	require.Equal(t, 0, r.Len())
}

func TestLookupOrCreateUnknownExtensionReturnsError(t *testing.T) {
	r := newTestRegistry(t)
	path := writeTempFile(t, "clip.mpg", []byte("not really mpeg"))

	_, err := r.LookupOrCreate(path)
	require.Error(t, err)
	require.IsType(t, liberrors.ErrUnknownExtension{}, err)
	require.Equal(t, 0, r.Len())
}

func TestLookupOrCreateUnregisteredExtensionReturnsError(t *testing.T) {
	r := newTestRegistry(t)
	path := writeTempFile(t, "clip.xyz", []byte("data"))

	_, err := r.LookupOrCreate(path)
	require.Error(t, err)
	require.IsType(t, liberrors.ErrUnknownExtension{}, err)
}

func TestReapOnceEvictsOnlyIdleUnusedSessions(t *testing.T) {
	r := newTestRegistry(t)
	path := writeH264File(t)

	sess, err := r.LookupOrCreate(path)
	require.NoError(t, err)
	require.NotNil(t, sess)

	// Not idle yet: last access was "now".
	r.ReapIdleSessions(time.Hour)
	require.Equal(t, 1, r.Len())

	// Force staleness by rewinding lastAccess directly.
	r.sessions[path].lastAccess = r.cfg.Now().Add(-2 * time.Hour)
	r.ReapIdleSessions(time.Hour)
	require.Equal(t, 0, r.Len())
}

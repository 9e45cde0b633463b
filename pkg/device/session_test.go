package device

import (
	"context"
	"testing"
	"time"

	"github.com/james-see/bbs1ctl/pkg/sysex"
	"github.com/james-see/bbs1ctl/pkg/tempo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func bar(t *testing.T, beats, value, repeats, bpm100 int) tempo.Bar {
	t.Helper()
	b, err := tempo.NewBar(beats, value, repeats, bpm100)
	require.NoError(t, err)
	return b
}

func servedFile(t *testing.T) *tempo.File {
	t.Helper()
	intro, err := tempo.NewMap("Intro", false, 1, []tempo.Bar{
		bar(t, 4, 4, 4, 10000),
		bar(t, 6, 8, 2, 13250),
	})
	require.NoError(t, err)
	outro, err := tempo.NewMap("Outro", true, 0, []tempo.Bar{bar(t, 5, 4, 0, 9000)})
	require.NoError(t, err)
	f, err := tempo.NewFile(intro, outro)
	require.NoError(t, err)
	return f
}

func newTestSession(t *testing.T, sim *Simulator, opts ...Option) *Session {
	t.Helper()
	opts = append([]Option{WithTimeout(50 * time.Millisecond)}, opts...)
	s := NewSession(sim, opts...)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSessionInfo(t *testing.T) {
	sim := NewSimulator(nil, WithVersions([3]byte{1, 0, 2}, [3]byte{2, 3, 45}))
	s := newTestSession(t, sim)

	info, err := s.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &Info{
		Connected: true,
		Mode:      "normal",
		Hardware:  "1.00.02",
		Firmware:  "2.03.45",
	}, info)
}

func TestSessionMode(t *testing.T) {
	for _, mode := range []sysex.Mode{sysex.ModeNormal, sysex.ModeFirmware, sysex.ModeUnknown} {
		s := newTestSession(t, NewSimulator(nil, WithMode(mode)))
		got, err := s.Mode(context.Background())
		require.NoError(t, err)
		assert.Equal(t, mode, got)
	}
}

func TestFetchTempoMaps(t *testing.T) {
	for _, size := range []int{7, tempo.DefaultPageSize, 4096} {
		served := servedFile(t)
		sim := NewSimulator(served, WithPageSize(size))
		s := newTestSession(t, sim, WithPageOrderCheck())

		f, frames, err := s.FetchTempoMaps(context.Background())
		require.NoError(t, err, "page size %d", size)
		assert.True(t, served.Equal(f), "page size %d", size)

		pages, err := served.Pages(size)
		require.NoError(t, err)
		assert.Len(t, frames, len(pages))
	}
}

func TestFetchEmptyDevice(t *testing.T) {
	s := newTestSession(t, NewSimulator(nil))

	f, frames, err := s.FetchTempoMaps(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, f.MapsCount())
	assert.Len(t, frames, 1)
}

func TestFetchSkipsNoise(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	served := servedFile(t)
	sim := NewSimulator(served, WithNoise())
	s := newTestSession(t, sim, WithLogger(zap.New(core)))

	present, err := s.Present(context.Background())
	require.NoError(t, err)
	assert.True(t, present)

	f, _, err := s.FetchTempoMaps(context.Background())
	require.NoError(t, err)
	assert.True(t, served.Equal(f))
	assert.NotZero(t, logs.FilterMessage("dropping frame").Len())
}

func TestFetchTooManyPages(t *testing.T) {
	sim := NewSimulator(servedFile(t), WithPageSize(4))
	s := newTestSession(t, sim, WithMaxPages(3))

	_, _, err := s.FetchTempoMaps(context.Background())
	assert.ErrorIs(t, err, ErrTooManyPages)
}

func TestTimeoutThenRetry(t *testing.T) {
	sim := NewSimulator(nil)
	s := newTestSession(t, sim)

	sim.DropNext(1)
	_, err := s.Present(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)

	present, err := s.Present(context.Background())
	require.NoError(t, err)
	assert.True(t, present)
}

func TestFetchRetryAfterTimeout(t *testing.T) {
	served := servedFile(t)
	sim := NewSimulator(served, WithPageSize(8))
	s := newTestSession(t, sim)

	sim.DropNext(1)
	_, _, err := s.FetchTempoMaps(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)

	f, _, err := s.FetchTempoMaps(context.Background())
	require.NoError(t, err)
	assert.True(t, served.Equal(f))
}

func TestDeleteTempoMaps(t *testing.T) {
	sim := NewSimulator(servedFile(t))
	s := newTestSession(t, sim)

	require.NoError(t, s.DeleteTempoMaps(context.Background()))
	assert.Equal(t, 0, sim.File().MapsCount())

	f, _, err := s.FetchTempoMaps(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, f.MapsCount())
}

func TestCanceledContext(t *testing.T) {
	sim := NewSimulator(nil)
	s := newTestSession(t, sim)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sim.DropNext(1)

	_, err := s.Present(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSessionClose(t *testing.T) {
	sim := NewSimulator(nil)
	s := NewSession(sim)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err := s.Present(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

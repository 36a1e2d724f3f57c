package rtconsole

import (
	"bytes"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// countingSink is a thread-safe playback sink for tests.
type countingSink struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *countingSink) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *countingSink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Len()
}

func TestPlayer_InterruptIdle(t *testing.T) {
	p := newPlayerWithSink(&countingSink{}, nil)
	defer p.Close()

	_, ok := p.Interrupt()
	require.False(t, ok)
}

func TestPlayer_PlaysInArrivalOrder(t *testing.T) {
	sink := &countingSink{}
	p := newPlayerWithSink(sink, nil)
	defer p.Close()

	p.Enqueue([]byte{1, 0, 2, 0}, "a")
	p.Enqueue([]byte{3, 0, 4, 0}, "b")
	p.Enqueue([]byte{5, 0, 6, 0}, "a")

	require.Eventually(t, func() bool { return sink.Len() == 12 }, time.Second, 5*time.Millisecond)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Equal(t, []byte{1, 0, 2, 0, 3, 0, 4, 0, 5, 0, 6, 0}, sink.buf.Bytes())

	require.Equal(t, 4, p.Played("a"))
	require.Equal(t, 2, p.Played("b"))
}

// slowSink blocks each write until released so a track is reliably
// mid-playback when the test interrupts it.
type slowSink struct {
	release chan struct{}
}

func (s *slowSink) Write(p []byte) (int, error) {
	<-s.release
	return len(p), nil
}

func TestPlayer_InterruptMidPlayback(t *testing.T) {
	sink := &slowSink{release: make(chan struct{})}
	p := newPlayerWithSink(sink, nil)
	defer p.Close()

	chunk := make([]byte, 480) // 240 samples
	p.Enqueue(chunk, "track_1")
	p.Enqueue(chunk, "track_1")

	// First chunk delivered, second still queued.
	sink.release <- struct{}{}
	require.Eventually(t, func() bool { return p.Played("track_1") == 240 }, time.Second, time.Millisecond)

	track, ok := p.Interrupt()
	require.True(t, ok)
	require.Equal(t, "track_1", track.ItemID)
	require.LessOrEqual(t, track.SampleOffset, 480)
	require.Equal(t, 240, track.SampleOffset)

	// Interrupt again with nothing left.
	close(sink.release)
	require.Eventually(t, func() bool {
		_, ok := p.Interrupt()
		return !ok
	}, time.Second, 5*time.Millisecond)
}

// shortSink takes half of every chunk and fails.
type shortSink struct{}

func (shortSink) Write(p []byte) (int, error) {
	return len(p) / 2, io.ErrShortWrite
}

func TestPlayer_ShortWriteCountsDeliveredSamples(t *testing.T) {
	p := newPlayerWithSink(shortSink{}, nil)
	defer p.Close()

	p.Enqueue(make([]byte, 480), "track_1") // 240 samples, sink takes 120
	require.Eventually(t, func() bool { return p.Played("track_1") == 120 }, time.Second, time.Millisecond)

	// The count settles at what was delivered, never the full chunk.
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, 120, p.Played("track_1"))
}

// fakeInput is an InputDevice producing an endless PCM stream.
type fakeInput struct {
	fail bool
}

func (f fakeInput) Open(sampleRate int) (io.ReadCloser, error) {
	if f.fail {
		return nil, io.ErrUnexpectedEOF
	}
	return io.NopCloser(&endlessReader{}), nil
}

type endlessReader struct{ n byte }

func (r *endlessReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = r.n
		r.n++
	}
	// Pace the stream so tests are not flooded.
	time.Sleep(time.Millisecond)
	return len(p), nil
}

func TestRecorder_DeviceUnavailable(t *testing.T) {
	r := NewRecorder(fakeInput{fail: true}, 10*time.Millisecond, nil)
	err := r.BeginCapture()
	require.ErrorIs(t, err, ErrDeviceUnavailable)
}

func TestRecorder_StartPause(t *testing.T) {
	r := NewRecorder(fakeInput{}, 10*time.Millisecond, nil)
	require.NoError(t, r.BeginCapture())
	defer r.Close()

	var mu sync.Mutex
	frames := 0
	require.NoError(t, r.StartRecording(func(frame []byte) {
		mu.Lock()
		frames++
		mu.Unlock()
	}))
	require.ErrorIs(t, r.StartRecording(func([]byte) {}), ErrRecordingActive)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return frames > 0
	}, time.Second, time.Millisecond)

	r.PauseRecording()
	mu.Lock()
	after := frames
	mu.Unlock()

	// No frame may be delivered once PauseRecording has returned.
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	require.Equal(t, after, frames)
	mu.Unlock()

	require.False(t, r.Recording())
	require.NoError(t, r.StartRecording(func([]byte) {}))
}

func TestRecorder_StartBeforeCapture(t *testing.T) {
	r := NewRecorder(fakeInput{}, 10*time.Millisecond, nil)
	err := r.StartRecording(func([]byte) {})
	require.ErrorIs(t, err, ErrDeviceUnavailable)
}

func TestFixedChunkReader(t *testing.T) {
	src := bytes.NewReader([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10})
	r := NewFixedChunkReader(src, 4)

	buf := make([]byte, 4)

	n, err := r.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	require.Equal(t, []byte{1, 2, 3, 4}, buf[:n])

	n, err = r.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 4, n)

	// Short tail is emitted as a partial chunk, then EOF.
	n, err = r.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, []byte{9, 10}, buf[:n])

	_, err = r.Read(buf)
	require.Equal(t, io.EOF, err)
}

func TestFixedChunkReader_SmallBuffer(t *testing.T) {
	r := NewFixedChunkReader(bytes.NewReader(nil), 8)
	_, err := r.Read(make([]byte, 4))
	require.Error(t, err)
}

func TestSpectrum(t *testing.T) {
	require.Nil(t, spectrum(nil))

	// A constant (DC) signal concentrates all energy in bin zero.
	frame := make([]byte, 128)
	for i := 0; i < len(frame); i += 2 {
		frame[i] = 0x00
		frame[i+1] = 0x40 // 16384
	}

	mags := spectrum(frame)
	require.Len(t, mags, 32)
	for i := 1; i < len(mags); i++ {
		require.Less(t, mags[i], mags[0])
	}
}

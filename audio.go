package rtconsole

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/mjibson/go-dsp/fft"
	"github.com/smallnest/ringbuffer"
)

// SampleRate is the fixed rate of the conversation audio path. Devices
// running at other rates are resampled at the edge.
const SampleRate = 24_000

const bytesPerSample = 2 // 16-bit mono PCM

// InputDevice opens a stream of PCM16 mono frames at the given sample rate.
type InputDevice interface {
	Open(sampleRate int) (io.ReadCloser, error)
}

// OutputDevice opens a PCM16 mono sink at the given sample rate.
type OutputDevice interface {
	Open(sampleRate int) (io.WriteCloser, error)
}

// FrameFunc receives one captured PCM16 chunk.
type FrameFunc func(pcm16 []byte)

// Recorder owns the capture side of the audio channel. A single pump
// goroutine drains the device continuously once the device is acquired;
// StartRecording/PauseRecording only gate frame delivery. Delivery happens
// under the recorder mutex, so PauseRecording returning guarantees that no
// further frame callback runs.
type Recorder struct {
	dev     InputDevice
	latency time.Duration
	logger  *slog.Logger

	mu        sync.Mutex
	src       io.ReadCloser
	recording bool
	onFrame   FrameFunc
	lastFrame []byte
	closed    bool
}

func NewRecorder(dev InputDevice, latency time.Duration, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Recorder{
		dev:     dev,
		latency: latency,
		logger:  logger,
	}
}

// BeginCapture acquires the input device and starts the pump. Frames are
// discarded until StartRecording is called.
func (r *Recorder) BeginCapture() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.src != nil {
		return nil
	}

	src, err := r.dev.Open(SampleRate)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	r.src = src
	r.closed = false

	go r.pump(NewFixedAudioChunkReader(src, SampleRate, r.latency, bytesPerSample, 1))

	return nil
}

func (r *Recorder) pump(src *FixedChunkReader) {
	buf := make([]byte, getChunkSize(SampleRate, r.latency, bytesPerSample, 1))
	for {
		n, err := src.Read(buf)
		if err != nil {
			if err != io.EOF {
				r.logger.Error("capture read failed", slog.Any("err", err))
			}
			return
		}

		frame := make([]byte, n)
		copy(frame, buf[:n])

		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return
		}
		r.lastFrame = frame
		if r.recording && r.onFrame != nil {
			r.onFrame(frame)
		}
		r.mu.Unlock()
	}
}

// StartRecording begins delivering captured frames to onFrame. Only one
// recording session may be active at a time.
func (r *Recorder) StartRecording(onFrame FrameFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.src == nil {
		return fmt.Errorf("%w: capture not started", ErrDeviceUnavailable)
	}
	if r.recording {
		return ErrRecordingActive
	}
	r.recording = true
	r.onFrame = onFrame

	return nil
}

// PauseRecording stops frame delivery. When it returns, onFrame will not be
// invoked again until the next StartRecording.
func (r *Recorder) PauseRecording() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recording = false
	r.onFrame = nil
}

func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// Close releases the device.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.recording = false
	r.onFrame = nil
	r.closed = true
	if r.src != nil {
		err := r.src.Close()
		r.src = nil
		return err
	}
	return nil
}

// FrequencyData returns the magnitude spectrum of the most recent captured
// frame. Consumed by the visualization layer; never read by the core.
func (r *Recorder) FrequencyData() []float64 {
	r.mu.Lock()
	frame := r.lastFrame
	r.mu.Unlock()
	return spectrum(frame)
}

type playChunk struct {
	itemID string
	pcm    []byte
}

// Track identifies interrupted playback: which item was cut off and how many
// samples of it had been delivered. The offset is what the cancellation
// request reports to the agent as "heard so far".
type Track struct {
	ItemID       string
	SampleOffset int
}

// Player owns the playback side. Chunks are queued per Enqueue call and
// written to the sink strictly in arrival order; chunks of different items
// interleave only at chunk boundaries.
type Player struct {
	sink   io.Writer
	ring   *ringbuffer.RingBuffer
	logger *slog.Logger

	mu        sync.Mutex
	queue     []playChunk
	played    map[string]int // samples delivered per item
	current   string
	lastFrame []byte
	closed    bool
	wake      chan struct{}
}

// NewPlayer opens the output device and starts the playback pumps. Audio
// flows Enqueue → queue → ring buffer → device, so an interrupt can drop
// both the queue and the buffered-but-unheard tail at once.
func NewPlayer(dev OutputDevice, latency time.Duration, logger *slog.Logger) (*Player, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	out, err := dev.Open(SampleRate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	ring := ringbuffer.New(getChunkSize(SampleRate, latency, bytesPerSample, 1) * 4).SetBlocking(true)

	p := &Player{
		sink:   ring,
		ring:   ring,
		logger: logger,
		played: make(map[string]int),
		wake:   make(chan struct{}, 1),
	}

	go p.pump()
	go p.drain(out)

	return p, nil
}

// drain copies the ring buffer to the device. A Reset from Interrupt makes a
// blocked read fail once; that is expected and the loop carries on.
func (p *Player) drain(out io.WriteCloser) {
	defer out.Close()

	buf := make([]byte, 4096)
	for {
		n, err := p.ring.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				p.logger.Debug("playback device write failed", slog.Any("err", werr))
				return
			}
		}
		if err != nil {
			if err == io.EOF {
				return
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// newPlayerWithSink is the device-less constructor used by tests and by
// callers that already own the output plumbing.
func newPlayerWithSink(sink io.Writer, logger *slog.Logger) *Player {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	p := &Player{
		sink:   sink,
		logger: logger,
		played: make(map[string]int),
		wake:   make(chan struct{}, 1),
	}
	go p.pump()
	return p
}

func (p *Player) pump() {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return
		}
		if len(p.queue) == 0 {
			p.current = ""
			p.mu.Unlock()
			if _, ok := <-p.wake; !ok {
				return
			}
			continue
		}
		head := p.queue[0]
		p.queue = p.queue[1:]
		p.current = head.itemID
		p.lastFrame = head.pcm
		p.mu.Unlock()

		n, err := p.sink.Write(head.pcm)
		if err != nil {
			p.logger.Debug("playback write failed", slog.Any("err", err))
		}

		// Only what the sink actually took counts as heard.
		p.mu.Lock()
		p.played[head.itemID] += n / bytesPerSample
		p.mu.Unlock()
	}
}

// Enqueue appends a PCM16 chunk for the given item.
func (p *Player) Enqueue(pcm16 []byte, itemID string) {
	if len(pcm16) == 0 {
		return
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.queue = append(p.queue, playChunk{itemID: itemID, pcm: pcm16})
	select {
	case p.wake <- struct{}{}:
	default:
	}
	p.mu.Unlock()
}

// Interrupt stops output immediately and reports the track that was cut off.
// ok is false when nothing was playing.
func (p *Player) Interrupt() (track Track, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.current
	if id == "" && len(p.queue) > 0 {
		id = p.queue[0].itemID
	}
	p.queue = nil
	p.current = ""
	if p.ring != nil {
		p.ring.Reset()
	}
	if id == "" {
		return Track{}, false
	}

	return Track{ItemID: id, SampleOffset: p.played[id]}, true
}

// Played reports how many samples of the given item have been delivered.
func (p *Player) Played(itemID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.played[itemID]
}

func (p *Player) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.queue = nil
	close(p.wake)
	p.mu.Unlock()

	if p.ring != nil {
		p.ring.CloseWriter()
	}
	return nil
}

// FrequencyData returns the magnitude spectrum of the most recent chunk
// handed to the sink.
func (p *Player) FrequencyData() []float64 {
	p.mu.Lock()
	frame := p.lastFrame
	p.mu.Unlock()
	return spectrum(frame)
}

// spectrum computes FFT magnitudes over a PCM16 frame, normalized to 0..1.
func spectrum(frame []byte) []float64 {
	if len(frame) < bytesPerSample*2 {
		return nil
	}

	samples := make([]float64, len(frame)/bytesPerSample)
	for i := range samples {
		samples[i] = float64(int16(uint16(frame[i*2])|uint16(frame[i*2+1])<<8)) / 32768.0
	}

	coeffs := fft.FFTReal(samples)
	mags := make([]float64, len(coeffs)/2)
	for i := range mags {
		mags[i] = 2 * math.Hypot(real(coeffs[i]), imag(coeffs[i])) / float64(len(samples))
	}

	return mags
}

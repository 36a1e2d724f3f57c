package main

import (
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/MarkKremer/microphone/v2"
	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/speaker"
)

const (
	bytesPerSample = 2 // 16-bit mono PCM
	playLatency    = 200 * time.Millisecond
	captureFrames  = 1024
	playChanSize   = 48_000
)

// MicDevice opens the default microphone as a PCM16 mono stream.
type MicDevice struct{}

func (MicDevice) Open(sampleRate int) (io.ReadCloser, error) {
	sr := beep.SampleRate(sampleRate)

	mic, _, err := microphone.OpenDefaultStream(sr, 1)
	if err != nil {
		return nil, err
	}
	if err := mic.Start(); err != nil {
		return nil, err
	}

	m := &micStream{mic: mic}
	go m.captureLoop()
	return m, nil
}

type micStream struct {
	mic *microphone.Streamer

	mu     sync.Mutex
	buf    []byte
	closed bool
}

func (m *micStream) captureLoop() {
	frames := make([][2]float64, captureFrames)
	for {
		n, ok := m.mic.Stream(frames)
		if !ok {
			return
		}
		mono := samplesToPCM16Mono(frames[:n])

		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return
		}
		m.buf = append(m.buf, mono...)
		m.mu.Unlock()
	}
}

func (m *micStream) Read(p []byte) (int, error) {
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return 0, io.EOF
		}
		if len(m.buf) > 0 {
			n := copy(p, m.buf)
			m.buf = m.buf[n:]
			m.mu.Unlock()
			return n, nil
		}
		m.mu.Unlock()
		time.Sleep(3 * time.Millisecond)
	}
}

func (m *micStream) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return m.mic.Close()
}

// SpeakerDevice opens the default speaker as a PCM16 mono sink.
type SpeakerDevice struct{}

func (SpeakerDevice) Open(sampleRate int) (io.WriteCloser, error) {
	sr := beep.SampleRate(sampleRate)
	if err := speaker.Init(sr, sr.N(playLatency)); err != nil {
		return nil, err
	}

	ch := make(chan [2]float64, playChanSize)
	speaker.Play(newChanStreamer(ch))

	return &speakerSink{ch: ch}, nil
}

type speakerSink struct {
	mu     sync.Mutex
	ch     chan [2]float64
	closed bool
}

func (s *speakerSink) Write(b []byte) (int, error) {
	if len(b)%bytesPerSample != 0 {
		return 0, errors.New("speaker: Write expects 16-bit mono PCM")
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	s.mu.Unlock()

	for i := 0; i < len(b); i += bytesPerSample {
		v := int16(binary.LittleEndian.Uint16(b[i:]))
		f := float64(v) / 32768.0
		s.ch <- [2]float64{f, f}
	}
	return len(b), nil
}

func (s *speakerSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// chanStreamer pulls samples from a channel and plays silence while the
// channel is empty, avoiding glitches between chunks.
type chanStreamer struct {
	ch <-chan [2]float64
}

func newChanStreamer(ch <-chan [2]float64) *chanStreamer { return &chanStreamer{ch: ch} }

func (c *chanStreamer) Stream(buf [][2]float64) (int, bool) {
	for i := range buf {
		select {
		case smp := <-c.ch:
			buf[i] = smp
		default:
			buf[i] = [2]float64{}
		}
	}
	return len(buf), true
}

func (c *chanStreamer) Err() error { return nil }

func samplesToPCM16Mono(s [][2]float64) []byte {
	b := make([]byte, len(s)*bytesPerSample)
	for i, v := range s {
		m := int16(clamp(v[0]) * 32767)
		binary.LittleEndian.PutUint16(b[i*2:], uint16(m))
	}
	return b
}

func clamp(f float64) float64 {
	switch {
	case f > 1:
		return 1
	case f < -1:
		return -1
	default:
		return f
	}
}

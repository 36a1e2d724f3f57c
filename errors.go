package rtconsole

import "errors"

var (
	// ErrDeviceUnavailable is returned when a capture or playback device
	// cannot be opened. The session can still run text-only.
	ErrDeviceUnavailable = errors.New("audio device unavailable")

	// ErrNotConnected is returned when an event is sent while the transport
	// is closed. Late tool results hitting this are dropped, not fatal.
	ErrNotConnected = errors.New("transport not connected")

	// ErrRecordingActive is returned when a second recording session is
	// started before the first one was paused.
	ErrRecordingActive = errors.New("recording already active")
)

// Package audio provides microphone capture and playback-sink abstractions
// for realtime voice sessions.
//
// Capture is expressed as a small Context/CaptureDevice interface pair so
// that sessions can be tested with an in-process fake device. The default
// implementation is backed by miniaudio via malgo.
package audio

// Defaults for realtime voice capture. The remote voice endpoint expects
// 16-bit little-endian PCM, mono, at 24kHz.
const (
	DefaultSampleRate = 24000
	DefaultChannels   = 1
)

// DataCallback receives raw PCM capture data (16-bit LE) as it arrives.
type DataCallback func(pcm []byte, frameCount uint32)

// CaptureConfig describes the requested capture stream.
type CaptureConfig struct {
	// SampleRate in Hz. Zero means DefaultSampleRate.
	SampleRate uint32

	// Channels is the channel count. Zero means DefaultChannels (mono).
	Channels uint32

	// EchoCancellation requests acoustic echo cancellation where the
	// backend supports it.
	EchoCancellation bool

	// NoiseSuppression requests noise suppression where the backend
	// supports it.
	NoiseSuppression bool
}

// withDefaults fills in zero fields.
func (c CaptureConfig) withDefaults() CaptureConfig {
	if c.SampleRate == 0 {
		c.SampleRate = DefaultSampleRate
	}
	if c.Channels == 0 {
		c.Channels = DefaultChannels
	}
	return c
}

// DeviceInfo identifies a capture device.
type DeviceInfo struct {
	ID   string // opaque platform-specific identifier
	Name string
}

// Context enumerates capture devices and opens capture streams.
type Context interface {
	// Devices lists available capture devices.
	Devices() ([]DeviceInfo, error)

	// NewCapture opens a capture stream on the given device (nil for the
	// system default). The callback is invoked from the audio thread with
	// raw PCM data; it must not block.
	NewCapture(device *DeviceInfo, config CaptureConfig, callback DataCallback) (CaptureDevice, error)

	// Close releases the context.
	Close()
}

// CaptureDevice is an open capture stream.
type CaptureDevice interface {
	Start() error
	Stop()
	Close()
}

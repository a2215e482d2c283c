package audio

import (
	"errors"
	"sync"
	"time"
)

// ErrDenied is returned by DeniedContext to simulate a refused capture
// permission.
var ErrDenied = errors.New("audio: capture device access denied")

// FakeContext is an in-process Context that feeds canned PCM data to the
// capture callback. It is intended for tests and offline runs.
type FakeContext struct {
	pcm      []byte
	interval time.Duration
	chunk    int
}

// NewFakeContext creates a fake context that replays pcm through any capture
// device it opens. If interval is zero the whole buffer is delivered in one
// callback on Start.
func NewFakeContext(pcm []byte, interval time.Duration) *FakeContext {
	return &FakeContext{pcm: pcm, interval: interval, chunk: 960 * 2}
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake", Name: "fake"}}, nil
}

func (f *FakeContext) NewCapture(_ *DeviceInfo, config CaptureConfig, callback DataCallback) (CaptureDevice, error) {
	config = config.withDefaults()
	return &fakeCapture{
		pcm:      f.pcm,
		interval: f.interval,
		chunk:    f.chunk,
		channels: config.Channels,
		callback: callback,
	}, nil
}

func (f *FakeContext) Close() {}

type fakeCapture struct {
	pcm      []byte
	interval time.Duration
	chunk    int
	channels uint32
	callback DataCallback

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
}

func (c *fakeCapture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return nil
	}
	c.started = true
	c.stopCh = make(chan struct{})

	if c.interval <= 0 {
		if len(c.pcm) > 0 && c.callback != nil {
			c.callback(c.pcm, uint32(len(c.pcm)/(2*int(c.channels))))
		}
		return nil
	}

	go c.feed(c.stopCh)
	return nil
}

func (c *fakeCapture) feed(stop chan struct{}) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	pos := 0
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if pos >= len(c.pcm) {
				return
			}
			end := min(pos+c.chunk, len(c.pcm))
			if c.callback != nil {
				c.callback(c.pcm[pos:end], uint32((end-pos)/(2*int(c.channels))))
			}
			pos = end
		}
	}
}

func (c *fakeCapture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return
	}
	c.started = false
	close(c.stopCh)
}

func (c *fakeCapture) Close() {
	c.Stop()
}

// DeniedContext is a Context whose NewCapture always fails with ErrDenied.
// It simulates the user refusing microphone permission.
type DeniedContext struct{}

func (DeniedContext) Devices() ([]DeviceInfo, error) { return nil, nil }

func (DeniedContext) NewCapture(*DeviceInfo, CaptureConfig, DataCallback) (CaptureDevice, error) {
	return nil, ErrDenied
}

func (DeniedContext) Close() {}

package audio

// Sink consumes remote audio frames. Frames are Opus packets as carried in
// RTP payloads from the remote media track.
type Sink interface {
	// WriteFrame writes a single Opus packet.
	WriteFrame(opus []byte) error

	// Close finalizes the sink.
	Close() error
}

// Discard is a Sink that drops all frames.
var Discard Sink = discardSink{}

type discardSink struct{}

func (discardSink) WriteFrame([]byte) error { return nil }
func (discardSink) Close() error            { return nil }

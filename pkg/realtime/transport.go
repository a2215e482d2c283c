package realtime

import (
	"context"

	"github.com/voxlate/voxlate/pkg/audio"
)

// Channel is an established auxiliary control channel.
type Channel interface {
	// Send writes a single control message.
	Send(data []byte) error

	// Close tears down the channel and any media path behind it.
	Close() error
}

// DialOptions carry the session callbacks a transport must wire up.
// Callbacks are invoked sequentially in delivery order.
type DialOptions struct {
	// Model is the remote model identifier.
	Model string

	// OnOpen fires once when the control channel is ready for writes,
	// delivering the channel in case Dial has not yet returned it.
	OnOpen func(Channel)

	// OnMessage delivers each inbound control message.
	OnMessage func(data []byte)

	// OnClose fires when the channel closes from the remote side.
	OnClose func()

	// Sink receives remote audio frames. May be nil.
	Sink audio.Sink
}

// Transport establishes the media connection and auxiliary channel.
type Transport interface {
	Dial(ctx context.Context, opts DialOptions) (Channel, error)
}

// Signaler exchanges session descriptions with the remote service on the
// client's behalf.
type Signaler interface {
	// Exchange sends the local offer SDP for the given model and returns
	// the remote answer SDP.
	Exchange(ctx context.Context, offerSDP, model string) (string, error)
}

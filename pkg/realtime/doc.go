// Package realtime implements the voice session at the heart of voxlate.
//
// A Session owns a live audio exchange with a remote voice endpoint: a
// WebRTC peer connection carrying the media, and an auxiliary data channel
// carrying JSON control messages. The session negotiates its connection
// through a signaling relay, configures the remote side on channel open,
// and mediates a small tool-invocation protocol: function calls arriving on
// the channel are dispatched against a local registry and their results sent
// back, each followed by a response trigger so the remote generation
// resumes.
//
// # Lifecycle
//
// A session moves through idle → connecting → active → closed. Closed is
// terminal; create a new Session to reconnect.
//
//	sess := realtime.New(realtime.Config{
//	    Transport:    &realtime.WebRTCTransport{Signaler: relayClient},
//	    Audio:        audioCtx,
//	    Instructions: "You are a live interpreter.",
//	    Tools:        registry,
//	    Hooks: realtime.Hooks{
//	        OnError: func(err error) { slog.Error("session", "error", err) },
//	    },
//	})
//	if err := sess.Start(ctx); err != nil {
//	    return err
//	}
//	defer sess.Stop()
//
// All failures after Start returns are reported through Hooks rather than
// returned; protocol errors on individual messages never terminate the
// session.
package realtime

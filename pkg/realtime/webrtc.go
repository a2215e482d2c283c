package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"

	"github.com/voxlate/voxlate/pkg/audio"
)

// dataChannelLabel is the auxiliary channel label expected by the remote
// voice endpoint.
const dataChannelLabel = "oai-events"

// WebRTCTransport dials the remote voice endpoint over a WebRTC peer
// connection, exchanging session descriptions through a Signaler.
type WebRTCTransport struct {
	// Signaler exchanges the SDP offer/answer. Required.
	Signaler Signaler

	// ICEServers overrides the default STUN server set.
	ICEServers []webrtc.ICEServer
}

var _ Transport = (*WebRTCTransport)(nil)

// Dial establishes the peer connection and auxiliary data channel. It
// returns once the remote answer has been applied; the data channel opens
// asynchronously and fires opts.OnOpen.
func (t *WebRTCTransport) Dial(ctx context.Context, opts DialOptions) (Channel, error) {
	if t.Signaler == nil {
		return nil, errors.New("realtime: webrtc transport requires a signaler")
	}

	iceServers := t.ICEServers
	if len(iceServers) == 0 {
		iceServers = []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		}
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	_, err = pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	})
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("add audio transceiver: %w", err)
	}

	dc, err := pc.CreateDataChannel(dataChannelLabel, nil)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("create data channel: %w", err)
	}

	channel := &webrtcChannel{pc: pc, dc: dc}

	dc.OnOpen(func() {
		slog.Debug("data channel opened")
		if opts.OnOpen != nil {
			opts.OnOpen(channel)
		}
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if opts.OnMessage != nil {
			opts.OnMessage(msg.Data)
		}
	})
	dc.OnClose(func() {
		slog.Debug("data channel closed")
		if opts.OnClose != nil {
			opts.OnClose()
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		slog.Debug("received remote track", "kind", track.Kind(), "codec", track.Codec().MimeType)
		if track.Kind() == webrtc.RTPCodecTypeAudio && opts.Sink != nil {
			go forwardTrack(track, opts.Sink)
		}
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		pc.Close()
		return nil, fmt.Errorf("set local description: %w", err)
	}

	// Wait for ICE gathering so the offer carries all candidates.
	<-webrtc.GatheringCompletePromise(pc)

	answer, err := t.Signaler.Exchange(ctx, pc.LocalDescription().SDP, opts.Model)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("exchange offer: %w", err)
	}

	err = pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer,
	})
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("set remote description: %w", err)
	}

	return channel, nil
}

// forwardTrack reads RTP packets from the remote audio track and feeds
// their payloads to the sink until the track ends.
func forwardTrack(track *webrtc.TrackRemote, sink audio.Sink) {
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			slog.Debug("remote track ended", "error", err)
			return
		}
		if err := writePacket(sink, pkt); err != nil {
			slog.Debug("sink write failed", "error", err)
			return
		}
	}
}

func writePacket(sink audio.Sink, pkt *rtp.Packet) error {
	if len(pkt.Payload) == 0 {
		return nil
	}
	return sink.WriteFrame(pkt.Payload)
}

// webrtcChannel is the auxiliary channel over a WebRTC data channel.
type webrtcChannel struct {
	pc *webrtc.PeerConnection
	dc *webrtc.DataChannel

	closeOnce sync.Once
}

func (c *webrtcChannel) Send(data []byte) error {
	if c.dc.ReadyState() != webrtc.DataChannelStateOpen {
		return errors.New("realtime: data channel not open")
	}
	return c.dc.Send(data)
}

func (c *webrtcChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		dcErr := c.dc.Close()
		pcErr := c.pc.Close()
		err = errors.Join(dcErr, pcErr)
	})
	return err
}

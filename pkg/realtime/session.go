package realtime

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/voxlate/voxlate/pkg/audio"
)

// DefaultModel is the remote realtime model used when Config.Model is empty.
const DefaultModel = "gpt-4o-realtime-preview"

// Hooks are the signals a Session emits to its embedding application.
// All fields are optional; nil hooks are skipped.
type Hooks struct {
	// OnDebug receives free-text diagnostics for each session phase.
	OnDebug func(msg string)

	// OnError receives every failure. Errors never propagate any other
	// way once Start has returned.
	OnError func(err error)

	// OnRecordingStarted fires once when the session becomes active.
	OnRecordingStarted func()

	// OnRecordingStopped fires once when an active session is torn down.
	OnRecordingStopped func()
}

// Config configures a Session.
type Config struct {
	// Transport establishes the connection. Required.
	Transport Transport

	// Audio provides the capture device. Required.
	Audio audio.Context

	// Capture describes the requested capture stream. Zero values mean
	// mono 24kHz with echo cancellation and noise suppression.
	Capture audio.CaptureConfig

	// Sink receives remote audio. Defaults to audio.Discard.
	Sink audio.Sink

	// Model is the remote model identifier. Defaults to DefaultModel.
	Model string

	// Instructions is the system prompt sent in the session-configure
	// handshake.
	Instructions string

	// Voice selects the remote voice.
	Voice string

	// Tools is the fixed tool registry. May be nil.
	Tools *Registry

	// Hooks are the emitted signals.
	Hooks Hooks
}

// Session is one end-to-end realtime voice exchange. At most one Session
// may be active per client; a closed Session cannot be restarted.
type Session struct {
	cfg Config

	mu      sync.Mutex
	state   State
	channel Channel
	capture audio.CaptureDevice
	sink    audio.Sink
}

// New creates an idle Session.
func New(cfg Config) *Session {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Sink == nil {
		cfg.Sink = audio.Discard
	}
	zero := audio.CaptureConfig{}
	if cfg.Capture == zero {
		cfg.Capture = audio.CaptureConfig{
			EchoCancellation: true,
			NoiseSuppression: true,
		}
	}
	return &Session{cfg: cfg}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// errStopped is returned by Start when Stop ran concurrently during setup.
var errStopped = errors.New("realtime: session stopped during start")

// Start acquires the capture device, establishes the connection through the
// transport, starts capture, and marks the session active. It fails if the
// session is not idle. Any setup failure runs full teardown and leaves the
// session closed. A concurrent Stop wins: Start then releases whatever it
// just acquired and returns an error, and the session stays closed.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("realtime: cannot start session in state %s", state)
	}
	s.state = StateConnecting
	s.mu.Unlock()

	s.debug("acquiring capture device")
	capture, err := s.cfg.Audio.NewCapture(nil, s.cfg.Capture, s.onCaptureData)
	if err != nil {
		err = fmt.Errorf("acquire capture device: %w", err)
		s.emitError(err)
		s.teardown()
		return err
	}

	s.mu.Lock()
	if s.state != StateConnecting {
		s.mu.Unlock()
		capture.Close()
		return errStopped
	}
	s.capture = capture
	s.sink = s.cfg.Sink
	s.mu.Unlock()

	s.debug("connecting")
	channel, err := s.cfg.Transport.Dial(ctx, DialOptions{
		Model:     s.cfg.Model,
		OnOpen:    s.handleOpen,
		OnMessage: s.handleMessage,
		OnClose:   func() { s.debug("control channel closed") },
		Sink:      s.cfg.Sink,
	})
	if err != nil {
		err = fmt.Errorf("connect: %w", err)
		s.emitError(err)
		s.teardown()
		return err
	}

	s.mu.Lock()
	if s.state != StateConnecting {
		// Stopped while dialing; teardown already released the capture
		// device, the channel is ours to close.
		s.mu.Unlock()
		channel.Close()
		return errStopped
	}
	if s.channel == nil {
		s.channel = channel
	}
	s.mu.Unlock()

	if err := capture.Start(); err != nil {
		err = fmt.Errorf("start capture: %w", err)
		s.emitError(err)
		s.teardown()
		return err
	}

	s.mu.Lock()
	if s.state != StateConnecting {
		s.mu.Unlock()
		capture.Stop()
		return errStopped
	}
	s.state = StateActive
	s.mu.Unlock()

	s.debug("session active")
	if s.cfg.Hooks.OnRecordingStarted != nil {
		s.cfg.Hooks.OnRecordingStarted()
	}
	return nil
}

// Stop tears the session down. It is idempotent and safe to call in any
// state, including mid-connect. Every teardown step is attempted even if an
// earlier one fails; failures are reported as error signals. Internal
// handles are reset regardless.
func (s *Session) Stop() {
	wasActive := s.teardown()
	if wasActive && s.cfg.Hooks.OnRecordingStopped != nil {
		s.cfg.Hooks.OnRecordingStopped()
	}
}

// teardown releases every held resource and moves the session to closed.
// It reports whether the session was active when called.
func (s *Session) teardown() bool {
	s.mu.Lock()
	if s.state == StateIdle || s.state == StateClosed {
		s.mu.Unlock()
		return false
	}
	wasActive := s.state == StateActive
	s.state = StateClosed
	channel, capture, sink := s.channel, s.capture, s.sink
	s.channel, s.capture, s.sink = nil, nil, nil
	s.mu.Unlock()

	if channel != nil {
		s.closeStep("close channel", channel.Close)
	}
	if capture != nil {
		s.closeStep("stop capture", func() error {
			capture.Stop()
			capture.Close()
			return nil
		})
	}
	if sink != nil && sink != audio.Discard {
		s.closeStep("detach sink", sink.Close)
	}

	s.debug("session closed")
	return wasActive
}

// closeStep runs one teardown step, converting both errors and panics into
// error signals so the remaining steps always run.
func (s *Session) closeStep(name string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			s.emitError(fmt.Errorf("%s: panic: %v", name, r))
		}
	}()
	if err := fn(); err != nil {
		s.emitError(fmt.Errorf("%s: %w", name, err))
	}
}

// handleOpen sends the session-configure handshake as soon as the control
// channel opens. The channel is delivered with the callback because open
// may fire before Dial has returned it to Start. Open events arriving after
// teardown are ignored.
func (s *Session) handleOpen(channel Channel) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	if s.channel == nil {
		s.channel = channel
	}
	s.mu.Unlock()

	s.debug("control channel open")
	err := s.send(EventTypeSessionUpdate, map[string]any{
		"session": SessionConfig{
			Modalities:        []string{"text", "audio"},
			Instructions:      s.cfg.Instructions,
			Voice:             s.cfg.Voice,
			InputAudioFormat:  "pcm16",
			OutputAudioFormat: "pcm16",
			Tools:             s.cfg.Tools.Declarations(),
		},
	})
	if err != nil {
		s.emitError(fmt.Errorf("configure session: %w", err))
	}
}

// handleMessage processes one inbound control message. A failure here is
// reported as an error signal and never terminates the session; the next
// message is processed normally.
func (s *Session) handleMessage(data []byte) {
	defer func() {
		if r := recover(); r != nil {
			s.emitError(fmt.Errorf("handle message: panic: %v", r))
		}
	}()

	event, err := parseEvent(data)
	if err != nil {
		s.emitError(err)
		return
	}

	if call, isCall, err := event.FunctionCall(); isCall {
		if err != nil {
			s.emitError(err)
			return
		}
		s.dispatchTool(call)
		return
	}

	switch event.Type {
	case EventTypeSessionCreated, EventTypeSessionUpdated:
		s.debug("session " + event.Type)
	case EventTypeResponseDone:
		s.handleResponseDone(event)
	case EventTypeError:
		if event.Err != nil {
			s.emitError(event.Err.ToError())
		} else {
			s.emitError(errors.New("realtime: remote error"))
		}
	}
}

// dispatchTool runs a tool invocation and sends its result followed by a
// response trigger. Execution happens inside the message callback, so
// results are always sent in request order.
func (s *Session) dispatchTool(call *FunctionCall) {
	s.debug("tool call: " + call.Name)

	result := s.cfg.Tools.Dispatch(context.Background(), call.Name, call.Arguments)
	output, err := json.Marshal(result)
	if err != nil {
		s.emitError(fmt.Errorf("encode tool result: %w", err))
		return
	}

	err = s.send(EventTypeConversationItemCreate, map[string]any{
		"item": map[string]any{
			"type":    ItemTypeFunctionCallOutput,
			"call_id": call.CallID,
			"output":  string(output),
		},
	})
	if err != nil {
		s.emitError(fmt.Errorf("send tool result: %w", err))
		return
	}
	if err := s.send(EventTypeResponseCreate, nil); err != nil {
		s.emitError(fmt.Errorf("trigger response: %w", err))
	}
}

// handleResponseDone surfaces remote generation failures.
func (s *Session) handleResponseDone(event *ServerEvent) {
	resp := event.Response
	if resp == nil || resp.Status != ResponseStatusFailed {
		return
	}
	if resp.StatusDetails != nil && resp.StatusDetails.Error != nil {
		s.emitError(resp.StatusDetails.Error.ToError())
		return
	}
	s.emitError(errors.New("realtime: response generation failed"))
}

// onCaptureData forwards captured PCM to the input audio buffer. Frames
// arriving before the channel is up are dropped.
func (s *Session) onCaptureData(pcm []byte, _ uint32) {
	s.mu.Lock()
	channel := s.channel
	s.mu.Unlock()
	if channel == nil {
		return
	}

	err := s.send(EventTypeInputAudioBufferAppend, map[string]any{
		"audio": base64.StdEncoding.EncodeToString(pcm),
	})
	if err != nil {
		s.emitError(fmt.Errorf("append audio: %w", err))
	}
}

// send writes a client event to the auxiliary channel.
func (s *Session) send(typ string, fields map[string]any) error {
	s.mu.Lock()
	channel := s.channel
	s.mu.Unlock()
	if channel == nil {
		return errors.New("realtime: channel not ready")
	}

	event := map[string]any{
		"event_id": generateEventID(),
		"type":     typ,
	}
	for k, v := range fields {
		event[k] = v
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if typ != EventTypeInputAudioBufferAppend && slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		slog.Debug("sending event", "content", truncate(string(data), 500))
	}

	return channel.Send(data)
}

func (s *Session) debug(msg string) {
	slog.Debug("realtime session", "msg", msg)
	if s.cfg.Hooks.OnDebug != nil {
		s.cfg.Hooks.OnDebug(msg)
	}
}

func (s *Session) emitError(err error) {
	slog.Debug("realtime session error", "error", err)
	if s.cfg.Hooks.OnError != nil {
		s.cfg.Hooks.OnError(err)
	}
}

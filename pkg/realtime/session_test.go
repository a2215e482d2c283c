package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/voxlate/voxlate/pkg/audio"
)

// fakeChannel records sent messages.
type fakeChannel struct {
	mu       sync.Mutex
	sent     [][]byte
	closed   int
	sendErr  error
	closeErr error
}

func (c *fakeChannel) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	c.sent = append(c.sent, cp)
	return nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return c.closeErr
}

func (c *fakeChannel) messages(t *testing.T) []map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []map[string]any
	for _, raw := range c.sent {
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			t.Fatalf("sent message is not JSON: %v", err)
		}
		out = append(out, m)
	}
	return out
}

// fakeTransport hands the session a fakeChannel and keeps the dial options
// so tests can inject inbound messages.
type fakeTransport struct {
	channel *fakeChannel
	dialErr error
	opts    DialOptions
}

func (tr *fakeTransport) Dial(_ context.Context, opts DialOptions) (Channel, error) {
	tr.opts = opts
	if tr.dialErr != nil {
		return nil, tr.dialErr
	}
	if opts.OnOpen != nil {
		opts.OnOpen(tr.channel)
	}
	return tr.channel, nil
}

// recorder collects emitted signals.
type recorder struct {
	mu      sync.Mutex
	debugs  []string
	errs    []error
	started int
	stopped int
}

func (r *recorder) hooks() Hooks {
	return Hooks{
		OnDebug: func(msg string) {
			r.mu.Lock()
			r.debugs = append(r.debugs, msg)
			r.mu.Unlock()
		},
		OnError: func(err error) {
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
		},
		OnRecordingStarted: func() {
			r.mu.Lock()
			r.started++
			r.mu.Unlock()
		},
		OnRecordingStopped: func() {
			r.mu.Lock()
			r.stopped++
			r.mu.Unlock()
		},
	}
}

func (r *recorder) errorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs)
}

func newTestSession(tr *fakeTransport, rec *recorder, tools *Registry) *Session {
	return New(Config{
		Transport:    tr,
		Audio:        audio.NewFakeContext(nil, 0),
		Instructions: "You are a live interpreter.",
		Tools:        tools,
		Hooks:        rec.hooks(),
	})
}

func TestSessionStart_Success(t *testing.T) {
	tr := &fakeTransport{channel: &fakeChannel{}}
	rec := &recorder{}
	sess := newTestSession(tr, rec, NewRegistry(echoTool()))

	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if got := sess.State(); got != StateActive {
		t.Errorf("state = %v; want active", got)
	}
	if rec.started != 1 {
		t.Errorf("recordingStarted emitted %d times; want 1", rec.started)
	}

	msgs := tr.channel.messages(t)
	if len(msgs) == 0 {
		t.Fatal("no messages sent")
	}
	first := msgs[0]
	if first["type"] != EventTypeSessionUpdate {
		t.Fatalf("first message type = %v; want %v", first["type"], EventTypeSessionUpdate)
	}
	session, _ := first["session"].(map[string]any)
	if session["instructions"] != "You are a live interpreter." {
		t.Errorf("instructions = %v", session["instructions"])
	}
	tools, _ := session["tools"].([]any)
	if len(tools) != 1 {
		t.Fatalf("declared %d tools; want 1", len(tools))
	}
}

func TestSessionStart_DeviceDenied(t *testing.T) {
	tr := &fakeTransport{channel: &fakeChannel{}}
	rec := &recorder{}
	sess := New(Config{
		Transport: tr,
		Audio:     audio.DeniedContext{},
		Hooks:     rec.hooks(),
	})

	err := sess.Start(context.Background())
	if !errors.Is(err, audio.ErrDenied) {
		t.Fatalf("Start error = %v; want ErrDenied", err)
	}
	if got := sess.State(); got != StateClosed {
		t.Errorf("state = %v; want closed", got)
	}
	if rec.started != 0 {
		t.Error("recordingStarted emitted after denied acquisition")
	}
	if rec.stopped != 0 {
		t.Error("recordingStopped emitted for session that never became active")
	}
	found := false
	for _, e := range rec.errs {
		if errors.Is(e, audio.ErrDenied) {
			found = true
		}
	}
	if !found {
		t.Error("no error signal carrying the denial reason")
	}
}

func TestSessionStart_DialFailure(t *testing.T) {
	tr := &fakeTransport{dialErr: errors.New("relay returned 502")}
	rec := &recorder{}
	sess := newTestSession(tr, rec, nil)

	err := sess.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "relay returned 502") {
		t.Fatalf("Start error = %v", err)
	}
	if got := sess.State(); got != StateClosed {
		t.Errorf("state = %v; want closed", got)
	}
	if rec.started != 0 || rec.stopped != 0 {
		t.Errorf("lifecycle signals emitted: started=%d stopped=%d", rec.started, rec.stopped)
	}
	if rec.errorCount() == 0 {
		t.Error("no error signal emitted")
	}
}

func TestSessionStart_NotIdle(t *testing.T) {
	tr := &fakeTransport{channel: &fakeChannel{}}
	rec := &recorder{}
	sess := newTestSession(tr, rec, nil)

	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := sess.Start(context.Background()); err == nil {
		t.Error("second Start on active session did not fail")
	}

	sess.Stop()
	if err := sess.Start(context.Background()); err == nil {
		t.Error("Start on closed session did not fail")
	}
}

func TestSessionStop_Idempotent(t *testing.T) {
	tr := &fakeTransport{channel: &fakeChannel{}}
	rec := &recorder{}
	sess := newTestSession(tr, rec, nil)

	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	sess.Stop()
	sess.Stop()

	if rec.stopped != 1 {
		t.Errorf("recordingStopped emitted %d times; want 1", rec.stopped)
	}
	if tr.channel.closed != 1 {
		t.Errorf("channel closed %d times; want 1", tr.channel.closed)
	}
	if got := sess.State(); got != StateClosed {
		t.Errorf("state = %v; want closed", got)
	}
}

func TestSessionStop_WhileIdle(t *testing.T) {
	tr := &fakeTransport{channel: &fakeChannel{}}
	rec := &recorder{}
	sess := newTestSession(tr, rec, nil)

	sess.Stop()

	if rec.stopped != 0 {
		t.Error("recordingStopped emitted for idle session")
	}
	if tr.channel.closed != 0 {
		t.Error("teardown side effects for idle session")
	}
	if got := sess.State(); got != StateIdle {
		t.Errorf("state = %v; want idle", got)
	}
}

// panicCaptureContext returns a device whose Stop panics, to exercise the
// best-effort teardown path.
type panicCaptureContext struct{}

func (panicCaptureContext) Devices() ([]audio.DeviceInfo, error) { return nil, nil }
func (panicCaptureContext) Close()                               {}

func (panicCaptureContext) NewCapture(*audio.DeviceInfo, audio.CaptureConfig, audio.DataCallback) (audio.CaptureDevice, error) {
	return panicCaptureDevice{}, nil
}

type panicCaptureDevice struct{}

func (panicCaptureDevice) Start() error { return nil }
func (panicCaptureDevice) Stop()        { panic("device wedged") }
func (panicCaptureDevice) Close()       {}

type failingSink struct{ closed int }

func (s *failingSink) WriteFrame([]byte) error { return nil }
func (s *failingSink) Close() error            { s.closed++; return errors.New("sink stuck") }

func TestSessionStop_TeardownFailuresDoNotShortCircuit(t *testing.T) {
	sink := &failingSink{}
	tr := &fakeTransport{channel: &fakeChannel{closeErr: errors.New("channel stuck")}}
	rec := &recorder{}
	sess := New(Config{
		Transport: tr,
		Audio:     panicCaptureContext{},
		Sink:      sink,
		Hooks:     rec.hooks(),
	})

	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	sess.Stop()

	// Every step ran despite each one failing.
	if tr.channel.closed != 1 {
		t.Error("channel close not attempted")
	}
	if sink.closed != 1 {
		t.Error("sink close not attempted")
	}
	if rec.errorCount() != 3 {
		t.Errorf("error signals = %d; want 3 (channel, capture, sink)", rec.errorCount())
	}
	if rec.stopped != 1 {
		t.Errorf("recordingStopped emitted %d times; want 1", rec.stopped)
	}
	if got := sess.State(); got != StateClosed {
		t.Errorf("state = %v; want closed", got)
	}
}

// blockingTransport parks Dial until released, so tests can interleave Stop
// with an in-flight connection attempt.
type blockingTransport struct {
	channel *fakeChannel
	dialed  chan struct{}
	release chan struct{}
}

func newBlockingTransport() *blockingTransport {
	return &blockingTransport{
		channel: &fakeChannel{},
		dialed:  make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (tr *blockingTransport) Dial(context.Context, DialOptions) (Channel, error) {
	close(tr.dialed)
	<-tr.release
	return tr.channel, nil
}

func TestSessionStop_MidConnect(t *testing.T) {
	tr := newBlockingTransport()
	rec := &recorder{}
	sess := New(Config{
		Transport: tr,
		Audio:     audio.NewFakeContext(nil, 0),
		Hooks:     rec.hooks(),
	})

	errCh := make(chan error, 1)
	go func() { errCh <- sess.Start(context.Background()) }()

	<-tr.dialed
	sess.Stop()
	close(tr.release)

	if err := <-errCh; err == nil {
		t.Fatal("Start returned nil after a mid-connect Stop")
	}
	if got := sess.State(); got != StateClosed {
		t.Errorf("state = %v; want closed", got)
	}
	if rec.started != 0 {
		t.Error("recordingStarted emitted for a stopped session")
	}
	if rec.stopped != 0 {
		t.Error("recordingStopped emitted for a session that never became active")
	}

	tr.channel.mu.Lock()
	closed := tr.channel.closed
	tr.channel.mu.Unlock()
	if closed != 1 {
		t.Errorf("dialed channel closed %d times; want 1", closed)
	}

	// Closed is terminal: a later Start must not revive the session.
	if err := sess.Start(context.Background()); err == nil {
		t.Error("Start on closed session did not fail")
	}
}

// failingStartContext returns a device whose Start always fails.
type failingStartContext struct{}

func (failingStartContext) Devices() ([]audio.DeviceInfo, error) { return nil, nil }
func (failingStartContext) Close()                               {}

func (failingStartContext) NewCapture(*audio.DeviceInfo, audio.CaptureConfig, audio.DataCallback) (audio.CaptureDevice, error) {
	return failingStartDevice{}, nil
}

type failingStartDevice struct{}

func (failingStartDevice) Start() error { return errors.New("device busy") }
func (failingStartDevice) Stop()        {}
func (failingStartDevice) Close()       {}

func TestSessionStart_CaptureStartFailure(t *testing.T) {
	tr := &fakeTransport{channel: &fakeChannel{}}
	rec := &recorder{}
	sess := New(Config{
		Transport: tr,
		Audio:     failingStartContext{},
		Hooks:     rec.hooks(),
	})

	err := sess.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "device busy") {
		t.Fatalf("Start error = %v", err)
	}
	if got := sess.State(); got != StateClosed {
		t.Errorf("state = %v; want closed", got)
	}
	if rec.started != 0 {
		t.Error("recordingStarted emitted though capture never started")
	}
	if rec.stopped != 0 {
		t.Error("recordingStopped emitted without a matching recordingStarted")
	}
	if rec.errorCount() == 0 {
		t.Error("no error signal emitted")
	}
	if tr.channel.closed != 1 {
		t.Errorf("channel closed %d times; want 1", tr.channel.closed)
	}
}

func startedSession(t *testing.T, tools *Registry) (*Session, *fakeTransport, *recorder) {
	t.Helper()
	tr := &fakeTransport{channel: &fakeChannel{}}
	rec := &recorder{}
	sess := newTestSession(tr, rec, tools)
	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	tr.channel.mu.Lock()
	tr.channel.sent = nil // drop the handshake, tests inspect what follows
	tr.channel.mu.Unlock()
	return sess, tr, rec
}

func TestSession_ToolInvocation(t *testing.T) {
	sess, tr, rec := startedSession(t, NewRegistry(echoTool()))
	defer sess.Stop()

	tr.opts.OnMessage([]byte(`{"type":"response.function_call_arguments.done","name":"generic_tool","arguments":"{\"input\":\"hi\"}","call_id":"abc"}`))

	msgs := tr.channel.messages(t)
	if len(msgs) != 2 {
		t.Fatalf("sent %d messages; want result + trigger", len(msgs))
	}

	result := msgs[0]
	if result["type"] != EventTypeConversationItemCreate {
		t.Fatalf("first message type = %v", result["type"])
	}
	item, _ := result["item"].(map[string]any)
	if item["type"] != ItemTypeFunctionCallOutput {
		t.Errorf("item type = %v", item["type"])
	}
	if item["call_id"] != "abc" {
		t.Errorf("call_id = %v; want abc", item["call_id"])
	}
	var output map[string]any
	if err := json.Unmarshal([]byte(item["output"].(string)), &output); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if output["success"] != true || output["result"] != "You sent: hi" {
		t.Errorf("output = %v", output)
	}

	if msgs[1]["type"] != EventTypeResponseCreate {
		t.Errorf("second message type = %v; want response trigger", msgs[1]["type"])
	}
	if rec.errorCount() != 0 {
		t.Errorf("unexpected error signals: %v", rec.errs)
	}
}

func TestSession_ToolInvocation_ItemCreatedShape(t *testing.T) {
	sess, tr, _ := startedSession(t, NewRegistry(echoTool()))
	defer sess.Stop()

	tr.opts.OnMessage([]byte(`{"type":"conversation.item.created","item":{"type":"function_call","name":"generic_tool","call_id":"xyz","arguments":{"input":"yo"}}}`))

	msgs := tr.channel.messages(t)
	if len(msgs) != 2 {
		t.Fatalf("sent %d messages; want 2", len(msgs))
	}
	item, _ := msgs[0]["item"].(map[string]any)
	if item["call_id"] != "xyz" {
		t.Errorf("call_id = %v; want xyz", item["call_id"])
	}
	var output map[string]any
	json.Unmarshal([]byte(item["output"].(string)), &output)
	if output["result"] != "You sent: yo" {
		t.Errorf("output = %v", output)
	}
}

func TestSession_UnknownTool(t *testing.T) {
	sess, tr, _ := startedSession(t, NewRegistry(echoTool()))
	defer sess.Stop()

	tr.opts.OnMessage([]byte(`{"type":"response.function_call_arguments.done","name":"no_such_tool","arguments":"{}","call_id":"c1"}`))

	msgs := tr.channel.messages(t)
	if len(msgs) != 2 {
		t.Fatalf("sent %d messages; want failed result + trigger", len(msgs))
	}
	item, _ := msgs[0]["item"].(map[string]any)
	var output map[string]any
	if err := json.Unmarshal([]byte(item["output"].(string)), &output); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if output["success"] != false {
		t.Errorf("success = %v; want false", output["success"])
	}
	if output["error"] == nil || output["error"] == "" {
		t.Error("missing error field in failed invocation payload")
	}
	if msgs[1]["type"] != EventTypeResponseCreate {
		t.Errorf("no response trigger after failed invocation")
	}
}

func TestSession_MalformedMessageDoesNotKillSession(t *testing.T) {
	sess, tr, rec := startedSession(t, NewRegistry(echoTool()))
	defer sess.Stop()

	tr.opts.OnMessage([]byte("{not json"))

	if rec.errorCount() != 1 {
		t.Fatalf("error signals = %d; want 1", rec.errorCount())
	}
	if got := sess.State(); got != StateActive {
		t.Fatalf("state = %v; want active after parse failure", got)
	}

	// A subsequent well-formed message is still processed.
	tr.opts.OnMessage([]byte(`{"type":"response.function_call_arguments.done","name":"generic_tool","arguments":"{\"input\":\"ok\"}","call_id":"c2"}`))
	msgs := tr.channel.messages(t)
	if len(msgs) != 2 {
		t.Errorf("follow-up message not processed: sent %d messages", len(msgs))
	}
}

func TestSession_ResponseFailure(t *testing.T) {
	sess, tr, rec := startedSession(t, nil)
	defer sess.Stop()

	tr.opts.OnMessage([]byte(`{"type":"response.done","response":{"status":"failed","status_details":{"error":{"message":"rate limited"}}}}`))

	if rec.errorCount() != 1 {
		t.Fatalf("error signals = %d; want 1", rec.errorCount())
	}
	if !strings.Contains(rec.errs[0].Error(), "rate limited") {
		t.Errorf("error = %v; want remote detail", rec.errs[0])
	}
	if got := sess.State(); got != StateActive {
		t.Errorf("state = %v; remote failure must not tear down the session", got)
	}
}

func TestSession_ResponseFailure_NoDetail(t *testing.T) {
	sess, tr, rec := startedSession(t, nil)
	defer sess.Stop()

	tr.opts.OnMessage([]byte(`{"type":"response.done","response":{"status":"failed"}}`))

	if rec.errorCount() != 1 {
		t.Fatalf("error signals = %d; want 1", rec.errorCount())
	}

	// Completed responses are not errors.
	tr.opts.OnMessage([]byte(`{"type":"response.done","response":{"status":"completed"}}`))
	if rec.errorCount() != 1 {
		t.Error("completed response reported as error")
	}
}

func TestSession_RemoteErrorEvent(t *testing.T) {
	sess, tr, rec := startedSession(t, nil)
	defer sess.Stop()

	tr.opts.OnMessage([]byte(`{"type":"error","error":{"code":"session_expired","message":"session expired"}}`))

	if rec.errorCount() != 1 {
		t.Fatalf("error signals = %d; want 1", rec.errorCount())
	}
	var rtErr *Error
	if !errors.As(rec.errs[0], &rtErr) {
		t.Fatalf("error signal type = %T; want *Error", rec.errs[0])
	}
	if rtErr.Code != "session_expired" {
		t.Errorf("code = %q", rtErr.Code)
	}
}

func TestSession_CaptureDataForwarded(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	tr := &fakeTransport{channel: &fakeChannel{}}
	rec := &recorder{}
	sess := New(Config{
		Transport: tr,
		Audio:     audio.NewFakeContext(pcm, 0),
		Hooks:     rec.hooks(),
	})

	if err := sess.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sess.Stop()

	var appended bool
	for _, m := range tr.channel.messages(t) {
		if m["type"] == EventTypeInputAudioBufferAppend {
			appended = true
			if m["audio"] != "AQIDBA==" {
				t.Errorf("audio = %v; want base64 of PCM", m["audio"])
			}
		}
	}
	if !appended {
		t.Error("captured PCM never appended to input buffer")
	}
}

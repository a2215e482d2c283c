package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// DefaultWebSocketURL is the default WebSocket endpoint of the remote voice
// service.
const DefaultWebSocketURL = "wss://api.openai.com/v1/realtime"

// WebSocketTransport dials the remote voice endpoint over a WebSocket.
// There is no media path: audio flows base64-encoded over the control
// channel in both directions, which suits server-side use where no
// peer-to-peer connection is possible.
type WebSocketTransport struct {
	// URL is the WebSocket endpoint. Defaults to DefaultWebSocketURL.
	URL string

	// APIKey authenticates the connection. Required.
	APIKey string

	// Header carries extra handshake headers.
	Header http.Header
}

var _ Transport = (*WebSocketTransport)(nil)

// Dial connects the WebSocket and starts the read loop.
func (t *WebSocketTransport) Dial(ctx context.Context, opts DialOptions) (Channel, error) {
	if t.APIKey == "" {
		return nil, errors.New("realtime: websocket transport requires an API key")
	}

	endpoint := t.URL
	if endpoint == "" {
		endpoint = DefaultWebSocketURL
	}
	url := fmt.Sprintf("%s?model=%s", endpoint, opts.Model)

	headers := http.Header{}
	for k, v := range t.Header {
		headers[k] = v
	}
	headers.Set("Authorization", "Bearer "+t.APIKey)
	headers.Set("OpenAI-Beta", "realtime=v1")

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, headers)
	if err != nil {
		if resp != nil {
			return nil, &Error{
				Code:       "connection_failed",
				Message:    fmt.Sprintf("failed to connect: %v", err),
				HTTPStatus: resp.StatusCode,
			}
		}
		return nil, fmt.Errorf("connect websocket: %w", err)
	}

	channel := &websocketChannel{conn: conn, closeCh: make(chan struct{})}

	go channel.readLoop(opts)

	return channel, nil
}

// websocketChannel is the auxiliary channel over a WebSocket connection.
type websocketChannel struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	closeOnce sync.Once
	closeCh   chan struct{}
}

func (c *websocketChannel) Send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *websocketChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		err = c.conn.Close()
	})
	return err
}

func (c *websocketChannel) readLoop(opts DialOptions) {
	// The socket is writable as soon as the dial returns.
	if opts.OnOpen != nil {
		opts.OnOpen(c)
	}

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closeCh:
			default:
				if opts.OnClose != nil {
					opts.OnClose()
				}
			}
			return
		}
		if opts.OnMessage != nil {
			opts.OnMessage(message)
		}
	}
}

// Package relay exchanges WebRTC session descriptions with the remote voice
// endpoint on behalf of clients, so the upstream API key never leaves the
// server.
//
// The package has two halves: Client posts an SDP offer and returns the
// answer, satisfying the signaling interface of package realtime; Handler is
// the server side that accepts offers from browsers and forwards them
// upstream with credentials attached.
package relay

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/voxlate/voxlate/pkg/realtime"
)

// DefaultUpstreamURL is the remote signaling endpoint used when no other
// upstream is configured.
const DefaultUpstreamURL = "https://api.openai.com/v1/realtime"

// Client posts SDP offers to a signaling endpoint and returns the answers.
// The endpoint may be the upstream API directly (with APIKey set) or a
// Handler-backed relay (APIKey empty).
type Client struct {
	// URL is the signaling endpoint. Defaults to DefaultUpstreamURL.
	URL string

	// APIKey, when non-empty, is sent as a bearer token.
	APIKey string

	// HTTPClient is the client used for the exchange. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client
}

// Exchange posts offerSDP for the given model and returns the answer SDP.
func (c *Client) Exchange(ctx context.Context, offerSDP, model string) (string, error) {
	endpoint := c.URL
	if endpoint == "" {
		endpoint = DefaultUpstreamURL
	}
	endpoint += "?model=" + url.QueryEscape(model)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader([]byte(offerSDP)))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/sdp")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", &realtime.Error{
			Code:    "sdp_exchange_failed",
			Message: fmt.Sprintf("failed to exchange SDP: %v", err),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", &realtime.Error{
			Code:       "sdp_exchange_failed",
			Message:    fmt.Sprintf("failed to exchange SDP: %s", string(body)),
			HTTPStatus: resp.StatusCode,
		}
	}

	answer, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(answer), nil
}

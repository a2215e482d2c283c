package relay

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/url"
)

// maxOfferSize bounds the accepted offer body. SDP offers are a few KB;
// anything larger is not a session description.
const maxOfferSize = 256 << 10

// Handler accepts SDP offers over HTTP and forwards them to the upstream
// signaling endpoint with server-side credentials. The upstream answer (or
// error) is passed back to the caller unchanged.
type Handler struct {
	// Upstream is the remote signaling endpoint. Defaults to
	// DefaultUpstreamURL.
	Upstream string

	// APIKey authenticates the forwarded request. Required.
	APIKey string

	// Model is the default model when the request names none.
	Model string

	// HTTPClient is the client used upstream. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client

	// Logger receives request diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	offer, err := io.ReadAll(io.LimitReader(r.Body, maxOfferSize))
	if err != nil {
		http.Error(w, "read offer: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(offer) == 0 {
		http.Error(w, "empty offer", http.StatusBadRequest)
		return
	}

	model := r.URL.Query().Get("model")
	if model == "" {
		model = h.Model
	}

	upstream := h.Upstream
	if upstream == "" {
		upstream = DefaultUpstreamURL
	}
	upstream += "?model=" + url.QueryEscape(model)

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, upstream, bytes.NewReader(offer))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	req.Header.Set("Content-Type", "application/sdp")
	req.Header.Set("Authorization", "Bearer "+h.APIKey)

	client := h.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		h.logger().Error("signaling upstream unreachable", "error", err)
		http.Error(w, "upstream unreachable", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	h.logger().Debug("forwarded SDP offer",
		"model", model,
		"offer_bytes", len(offer),
		"status", resp.StatusCode)

	w.Header().Set("Content-Type", "application/sdp")
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		h.logger().Error("relay answer", "error", err)
	}
}

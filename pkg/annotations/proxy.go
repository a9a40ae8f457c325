package annotations

import (
	"bytes"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/shelfmark/shelfmark/pkg/config"
	"github.com/shelfmark/shelfmark/pkg/errcodes"
)

// connectionSpecificHeaders are hop-by-hop response headers that must not be
// copied back to the device, since the relayed body is re-framed locally.
var connectionSpecificHeaders = []string{
	"Connection",
	"Content-Encoding",
	"Content-Length",
	"Transfer-Encoding",
}

// Proxy relays requests this server doesn't handle locally to the real
// reading services API, so devices keep full store functionality.
type Proxy struct {
	client  *http.Client
	baseURL string
}

func NewProxy(cfg *config.Config) *Proxy {
	return &Proxy{
		client: &http.Client{
			Timeout: cfg.UpstreamTimeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		baseURL: strings.TrimSuffix(cfg.UpstreamURL, "/"),
	}
}

// Relay forwards the request as-is, streaming the device's body upstream.
func (p *Proxy) Relay(c echo.Context) error {
	return p.relay(c, c.Request().Body)
}

// RelayBody forwards the request with a replacement body. Used when an
// endpoint answers part of a request locally and relays the rest.
func (p *Proxy) RelayBody(c echo.Context, body []byte) error {
	return p.relay(c, bytes.NewReader(body))
}

func (p *Proxy) relay(c echo.Context, body io.Reader) error {
	req := c.Request()
	log := logger.FromContext(req.Context())

	targetURL := p.baseURL + StripServicePrefix(req.URL.Path)
	if req.URL.RawQuery != "" {
		targetURL += "?" + req.URL.RawQuery
	}

	proxyReq, err := http.NewRequestWithContext(req.Context(), req.Method, targetURL, body)
	if err != nil {
		return errors.WithStack(err)
	}

	// Forward all device headers except the ones that belong to the local
	// connection. The session cookie means nothing upstream.
	for k, vals := range req.Header {
		switch http.CanonicalHeaderKey(k) {
		case "Host", "Cookie", "Content-Length":
			continue
		}
		for _, v := range vals {
			proxyReq.Header.Add(k, v)
		}
	}

	resp, err := p.client.Do(proxyReq)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			log.Err(err).Error("upstream relay timeout")
			return errcodes.GatewayTimeout()
		}
		log.Err(err).Error("upstream relay failed")
		return errcodes.BadGateway()
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		log.Warn("upstream relay error response", logger.Data{
			"status": resp.StatusCode,
			"path":   StripServicePrefix(req.URL.Path),
		})
	}

	header := c.Response().Header()
	for k, vals := range resp.Header {
		if isConnectionSpecific(k) {
			continue
		}
		for _, v := range vals {
			header.Add(k, v)
		}
	}

	c.Response().WriteHeader(resp.StatusCode)
	_, err = io.Copy(c.Response().Writer, resp.Body)
	return errors.WithStack(err)
}

func isConnectionSpecific(key string) bool {
	canonical := http.CanonicalHeaderKey(key)
	for _, h := range connectionSpecificHeaders {
		if canonical == h {
			return true
		}
	}
	return false
}

// StripServicePrefix strips the /readingservices/:token prefix so the relayed
// path starts at /api/, which is what the upstream expects. For example,
// "/readingservices/tok123/api/v3/deals" becomes "/api/v3/deals".
func StripServicePrefix(path string) string {
	if idx := strings.Index(path, "/api/"); idx != -1 {
		return path[idx:]
	}
	return path
}

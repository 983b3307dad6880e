// Package transport builds the HTTP clients shared by the API-based
// providers.
package transport

import (
	"net"
	"net/http"
	"time"
)

// Default limits for a single provider call.
const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultTimeout        = 20 * time.Second
)

// NewHTTPClient returns a client whose dials give up after connectTimeout
// and whose requests give up after timeout. Zero values select the defaults.
func NewHTTPClient(connectTimeout, timeout time.Duration) *http.Client {
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	base := http.DefaultTransport.(*http.Transport).Clone()
	base.DialContext = (&net.Dialer{
		Timeout:   connectTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	base.TLSHandshakeTimeout = connectTimeout
	base.ResponseHeaderTimeout = timeout

	return &http.Client{
		Transport: base,
		Timeout:   timeout,
	}
}

// Package transport builds the HTTP clients the AlgoSec API clients share.
package transport

import (
	"crypto/tls"
	"net"
	"net/http"
	"net/http/cookiejar"
	"time"
)

// ConnectTimeout bounds connection establishment so calls to an
// unreachable server fail instead of hanging. Reads are unbounded; some
// AlgoSec operations (draft apply, large queries) are legitimately slow.
const ConnectTimeout = 5 * time.Second

// NewHTTPClient returns an HTTP client configured for AlgoSec servers.
// The client carries a cookie jar: BusinessFlow authenticates once per
// session and tracks it with a session cookie.
func NewHTTPClient(verifySSL bool) *http.Client {
	jar, _ := cookiejar.New(nil)
	return &http.Client{
		Jar:       jar,
		Transport: NewTransport(verifySSL),
	}
}

// NewTransport returns an http.RoundTripper with the AlgoSec connect
// timeout applied and certificate verification controlled by verifySSL.
// AlgoSec appliances commonly serve self-signed certificates.
func NewTransport(verifySSL bool) http.RoundTripper {
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: ConnectTimeout,
		}).DialContext,
		TLSHandshakeTimeout: ConnectTimeout,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: !verifySSL,
		},
	}
}

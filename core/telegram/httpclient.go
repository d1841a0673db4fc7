package telegram

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/m3rciful/marketbot/core/telegram/netutil"

	"github.com/sethvargo/go-retry"
)

// Timeouts for Bot API requests. Long polling adds its poll duration on
// top of the response and client timeouts.
const (
	dialTimeout     = 5 * time.Second
	tlsTimeout      = 5 * time.Second
	headerTimeout   = 5 * time.Second
	clientTimeout   = 30 * time.Second
	idleConnTimeout = 30 * time.Second
	keepAlive       = 30 * time.Second

	transportRetries = 3
	transportBackoff = time.Second
)

// BuildHTTPClient returns the client telebot uses. Transient network
// failures are retried below telebot with exponential backoff.
func BuildHTTPClient(longPoll time.Duration) *http.Client {
	longPoll = max(longPoll, 0)
	base := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: dialTimeout, KeepAlive: keepAlive}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       idleConnTimeout,
		TLSHandshakeTimeout:   tlsTimeout,
		ResponseHeaderTimeout: headerTimeout + longPoll,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{
		Timeout:   clientTimeout + longPoll,
		Transport: &retryTransport{base: base, maxRetries: transportRetries, backoff: transportBackoff},
	}
}

// retryTransport replays requests that failed before any response arrived.
// Requests whose body cannot be rewound are tried once.
type retryTransport struct {
	base       http.RoundTripper
	maxRetries int
	backoff    time.Duration
}

func (t *retryTransport) policy() retry.Backoff {
	base := max(t.backoff, time.Millisecond)
	return retry.WithMaxRetries(uint64(max(t.maxRetries, 0)), retry.NewExponential(base))
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}
	replayable := req.Body == nil || req.Body == http.NoBody || req.GetBody != nil

	var (
		resp  *http.Response
		tries int
	)
	err := retry.Do(req.Context(), t.policy(), func(context.Context) error {
		tries++
		attempt := req
		if tries > 1 {
			var err error
			if attempt, err = rewind(req); err != nil {
				return err
			}
		}
		r, err := base.RoundTrip(attempt)
		if err != nil {
			if replayable && netutil.ShouldRetry(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func rewind(req *http.Request) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		clone.Body = body
	}
	return clone, nil
}

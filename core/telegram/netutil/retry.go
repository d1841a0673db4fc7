// Package netutil decides which Bot API failures are worth another attempt.
package netutil

import (
	"errors"
	"net"
	"net/url"

	tele "gopkg.in/telebot.v4"
)

// ShouldRetry reports whether err looks transient: a timeout, a failed
// dial or a flood-control reply. API errors such as "chat not found" are
// final.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	var (
		flood  tele.FloodError
		opErr  *net.OpError
		urlErr *url.Error
		netErr net.Error
	)
	switch {
	case errors.As(err, &flood):
		return true
	case errors.As(err, &opErr) && opErr.Op == "dial":
		return true
	case errors.As(err, &urlErr) && urlErr.Err != nil && !errors.Is(urlErr.Err, err) && ShouldRetry(urlErr.Err):
		return true
	case errors.As(err, &netErr):
		return netErr.Timeout()
	}
	return false
}

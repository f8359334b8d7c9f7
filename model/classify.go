package model

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"syscall"

	"github.com/hupe1980/medguard/core"
)

// Classify maps an arbitrary provider error into a *core.TransportError.
// Errors that are already classified are returned unchanged. Caller
// cancellation is returned as-is so it is never retried.
func Classify(provider string, err error) error {
	if err == nil {
		return nil
	}
	var te *core.TransportError
	if errors.As(err, &te) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return core.NewTransportError(provider, core.TransportTimeout, err)
	}
	if errors.Is(err, ErrEmptyCompletion) {
		return core.NewTransportError(provider, core.TransportServer, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return core.NewTransportError(provider, core.TransportTimeout, err)
	}
	if errors.As(err, &netErr) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) {
		return core.NewTransportError(provider, core.TransportNetwork, err)
	}
	// Unknown failures are treated as provider-side so they get the benefit
	// of a retry; client mistakes are only recognised through a status code.
	return core.NewTransportError(provider, core.TransportServer, err)
}

// ClassifyStatus maps an HTTP status code returned by a provider API.
func ClassifyStatus(provider string, status int, err error) error {
	switch {
	case status == http.StatusTooManyRequests:
		return core.NewTransportError(provider, core.TransportRateLimit, err)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return core.NewTransportError(provider, core.TransportTimeout, err)
	case status >= 500:
		return core.NewTransportError(provider, core.TransportServer, err)
	case status >= 400:
		return core.NewTransportError(provider, core.TransportClient, err)
	default:
		return Classify(provider, err)
	}
}

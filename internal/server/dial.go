package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// DialOption configures Dial.
type DialOption func(*dialOptions)

type dialOptions struct {
	header     http.Header
	maxRetries uint64
	maxElapsed time.Duration
	dialer     *websocket.Dialer
	connOpts   []ConnOption
}

// WithHeader sets request headers sent with the opening handshake.
func WithHeader(h http.Header) DialOption {
	return func(o *dialOptions) {
		o.header = h.Clone()
	}
}

// WithMaxRetries bounds the number of retries after the first attempt.
// Zero disables retrying.
func WithMaxRetries(n uint64) DialOption {
	return func(o *dialOptions) {
		o.maxRetries = n
	}
}

// WithMaxElapsed bounds the total time spent retrying.
func WithMaxElapsed(d time.Duration) DialOption {
	return func(o *dialOptions) {
		o.maxElapsed = d
	}
}

// WithDialer replaces websocket.DefaultDialer.
func WithDialer(d *websocket.Dialer) DialOption {
	return func(o *dialOptions) {
		if d != nil {
			o.dialer = d
		}
	}
}

// WithConnOptions applies opts to the Conn returned by Dial.
func WithConnOptions(opts ...ConnOption) DialOption {
	return func(o *dialOptions) {
		o.connOpts = append(o.connOpts, opts...)
	}
}

// Dial opens a client connection to url, retrying failed handshakes with
// exponential backoff until it succeeds, the retries run out, or ctx is
// done. A handshake rejected with a 4xx status is not retried.
func Dial(ctx context.Context, url string, opts ...DialOption) (*Conn, error) {
	o := dialOptions{
		maxRetries: 5,
		maxElapsed: 30 * time.Second,
		dialer:     websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(&o)
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 100 * time.Millisecond
	eb.MaxInterval = 5 * time.Second
	eb.MaxElapsedTime = o.maxElapsed
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, o.maxRetries), ctx)

	lg := zap.L().With(zap.String("url", url))
	var ws *websocket.Conn
	attempt := func() error {
		conn, resp, err := o.dialer.DialContext(ctx, url, o.header)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return backoff.Permanent(fmt.Errorf("handshake rejected with %s: %w", resp.Status, err))
			}
			return err
		}
		ws = conn
		return nil
	}
	notify := func(err error, wait time.Duration) {
		lg.Debug("Dial failed; retrying", zap.Error(err), zap.Duration("backoff", wait))
	}

	if err := backoff.RetryNotify(attempt, policy, notify); err != nil {
		return nil, &Error{Code: CodeTransport, Op: "dial", Key: url, Err: err}
	}

	connOpts := append([]ConnOption{WithRemoteAddr(ws.RemoteAddr().String())}, o.connOpts...)
	return NewConn(ws, connOpts...), nil
}

// Package stream provides a thin CCOS-specific wrapper around Pulse streams,
// adapted from goa-ai's features/stream/pulse/clients/pulse client: callers
// build a Redis client, pass it to New, and receive a typed interface
// exposing only the operations the Stream provider executor needs.
package stream

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"goa.design/pulse/streaming"
	streamopts "goa.design/pulse/streaming/options"
)

type (
	// Options configures the Pulse client.
	Options struct {
		// Redis is the Redis connection backing Pulse streams. Required.
		Redis *redis.Client
		// StreamMaxLen bounds the number of entries kept per stream. Zero uses
		// Pulse defaults.
		StreamMaxLen int
		// OperationTimeout bounds individual Add operations. Zero means no timeout.
		OperationTimeout time.Duration
	}

	// Client exposes the subset of Pulse APIs required by the Stream provider
	// executor.
	Client interface {
		Stream(name string, opts ...streamopts.Stream) (Stream, error)
		Close(ctx context.Context) error
	}

	// Stream exposes the operations needed to publish capability-call events
	// and create sinks (consumer groups) for reading results.
	Stream interface {
		Add(ctx context.Context, event string, payload []byte) (string, error)
		NewSink(ctx context.Context, name string, opts ...streamopts.Sink) (Sink, error)
		Destroy(ctx context.Context) error
	}

	// Sink mirrors the subset of goa.design/pulse streaming sinks required by
	// the subscriber.
	Sink interface {
		Subscribe() <-chan *streaming.Event
		Ack(context.Context, *streaming.Event) error
		Close(context.Context)
	}
)

type client struct {
	redis   *redis.Client
	maxLen  int
	timeout time.Duration
}

// New constructs a Pulse client backed by the provided Redis connection.
func New(opts Options) (Client, error) {
	if opts.Redis == nil {
		return nil, errors.New("stream: redis client is required")
	}
	return &client{redis: opts.Redis, maxLen: opts.StreamMaxLen, timeout: opts.OperationTimeout}, nil
}

func (c *client) Stream(name string, opts ...streamopts.Stream) (Stream, error) {
	if c.maxLen > 0 {
		opts = append(opts, streamopts.WithStreamMaxLen(c.maxLen))
	}
	s, err := streaming.NewStream(name, c.redis, opts...)
	if err != nil {
		return nil, fmt.Errorf("stream: open %q: %w", name, err)
	}
	return &pulseStream{stream: s, timeout: c.timeout}, nil
}

func (c *client) Close(context.Context) error { return nil }

type pulseStream struct {
	stream  *streaming.Stream
	timeout time.Duration
}

func (s *pulseStream) Add(ctx context.Context, event string, payload []byte) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return s.stream.Add(ctx, event, payload)
}

func (s *pulseStream) NewSink(ctx context.Context, name string, opts ...streamopts.Sink) (Sink, error) {
	sink, err := s.stream.NewSink(ctx, name, opts...)
	if err != nil {
		return nil, err
	}
	return sink, nil
}

func (s *pulseStream) Destroy(ctx context.Context) error {
	return s.stream.Destroy(ctx)
}

// CallStreamID returns the deterministic Pulse stream identifier used for
// publishing a capability-call request for the given capability id.
func CallStreamID(capabilityID string) string {
	return fmt.Sprintf("capability:%s:calls", capabilityID)
}

// ResultStreamID returns the deterministic Pulse stream identifier used for
// publishing a single capability-call result keyed by its call id.
func ResultStreamID(callID string) string {
	return fmt.Sprintf("capability-result:%s", callID)
}

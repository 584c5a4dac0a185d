// Package queue provides the broker transport between the alert
// generator and the incident coordinator. It wraps a NATS connection
// with a bounded connect/publish retry policy and JSON message framing.
// Delivery is at-least-once from the consumer's point of view;
// consumers must be idempotent with respect to message identity.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"github.com/linnemanlabs/go-core/log"
)

// Config holds transport configuration. Attempts and backoff form the
// explicit retry policy: a fixed number of tries at a fixed interval,
// then definitive failure.
type Config struct {
	// URL of the broker. Empty starts an embedded in-process server,
	// mirroring the in-memory store fallback for the database.
	URL  string
	Name string

	ConnectAttempts uint
	ConnectBackoff  time.Duration

	PublishAttempts uint
	PublishBackoff  time.Duration
}

// dialFunc matches nats.Connect so tests can count and fail attempts.
type dialFunc func(url string, opts ...nats.Option) (*nats.Conn, error)

// Client is a connected transport.
type Client struct {
	conn   *nats.Conn
	srv    *server.Server
	cfg    Config
	logger log.Logger

	mu   sync.Mutex
	subs []*nats.Subscription
}

// Connect establishes the broker connection under the configured retry
// policy. If every attempt fails the error is definitive: the caller is
// expected to treat it as a fatal startup failure.
func Connect(ctx context.Context, cfg Config, logger log.Logger) (*Client, error) {
	return connect(ctx, cfg, logger, nats.Connect)
}

func connect(ctx context.Context, cfg Config, logger log.Logger, dial dialFunc) (*Client, error) {
	if logger == nil {
		logger = log.Nop()
	}
	if cfg.ConnectAttempts == 0 {
		cfg.ConnectAttempts = 5
	}
	if cfg.ConnectBackoff <= 0 {
		cfg.ConnectBackoff = 5 * time.Second
	}
	if cfg.PublishAttempts == 0 {
		cfg.PublishAttempts = 3
	}
	if cfg.PublishBackoff <= 0 {
		cfg.PublishBackoff = 500 * time.Millisecond
	}

	c := &Client{cfg: cfg, logger: logger}

	url := cfg.URL
	if url == "" {
		srv, err := startEmbedded()
		if err != nil {
			return nil, err
		}
		c.srv = srv
		url = srv.ClientURL()
		logger.Info(ctx, "using embedded broker (no broker-url configured)", "url", url)
	}

	attempt := 0
	conn, err := backoff.Retry(ctx, func() (*nats.Conn, error) {
		attempt++
		nc, err := dial(url,
			nats.Name(cfg.Name),
			nats.Timeout(cfg.ConnectBackoff),
			// reconnects after a successful start are handled by the
			// nats client itself, without an attempt cap
			nats.MaxReconnects(-1),
			nats.ReconnectWait(cfg.ConnectBackoff),
		)
		if err != nil {
			logger.Warn(ctx, "broker connect failed",
				"attempt", attempt,
				"max_attempts", cfg.ConnectAttempts,
				"backoff", cfg.ConnectBackoff.String(),
				"error", err,
			)
			return nil, err
		}
		return nc, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(cfg.ConnectBackoff)),
		backoff.WithMaxTries(cfg.ConnectAttempts),
	)
	if err != nil {
		c.shutdownEmbedded()
		return nil, fmt.Errorf("broker connect after %d attempts: %w", attempt, err)
	}

	c.conn = conn
	logger.Info(ctx, "broker connected", "url", url, "attempts", attempt)
	return c, nil
}

func startEmbedded() (*server.Server, error) {
	srv, err := server.NewServer(&server.Options{Port: -1})
	if err != nil {
		return nil, fmt.Errorf("embedded broker init: %w", err)
	}
	go srv.Start()
	if !srv.ReadyForConnections(4 * time.Second) {
		srv.Shutdown()
		return nil, fmt.Errorf("embedded broker failed to start")
	}
	return srv, nil
}

func (c *Client) shutdownEmbedded() {
	if c.srv != nil {
		c.srv.Shutdown()
		c.srv = nil
	}
}

// Publish JSON-encodes v and publishes it to subject, retrying under
// the publish budget. The error returned after budget exhaustion is
// final; the caller decides whether to drop the message.
func (c *Client) Publish(ctx context.Context, subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", subject, err)
	}

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		if err := c.conn.Publish(subject, data); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(c.cfg.PublishBackoff)),
		backoff.WithMaxTries(c.cfg.PublishAttempts),
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe registers handler for subject within a queue group, so
// horizontally scaled consumers share a single delivery. Messages from
// one publisher arrive in publish order for a given subscription. A
// handler error is logged; the message is not redelivered on handler
// failure (consumers dedupe by message identity instead).
func (c *Client) Subscribe(subject, queueGroup string, handler func(ctx context.Context, data []byte) error) error {
	sub, err := c.conn.QueueSubscribe(subject, queueGroup, func(m *nats.Msg) {
		ctx := context.Background()
		if err := handler(ctx, m.Data); err != nil {
			c.logger.Error(ctx, err, "message handler failed", "subject", subject)
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return nil
}

// Close drains subscriptions and the connection, then stops the
// embedded server if one was started. Calling it again is a no-op.
func (c *Client) Close() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, sub := range subs {
		_ = sub.Drain()
	}
	// conn stays non-nil so late publishers get ErrConnectionClosed
	// instead of a nil dereference.
	if c.conn != nil {
		_ = c.conn.Drain()
		c.conn.Close()
	}
	c.shutdownEmbedded()
}

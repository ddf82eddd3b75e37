// Package bus connects the gateway to the message bus over NATS.
//
// Messages travel on subjects of the form <prefix>.<class>.<name>, so
// ground and datalink commands can be routed independently of telemetry.
package bus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"frc/internal/log"
	"frc/internal/pprz"
)

// DefaultPrefix is the subject prefix used when none is configured.
const DefaultPrefix = "pprz"

var (
	// ErrInvalidSubject reports a class or message name that cannot be used
	// as a subject token.
	ErrInvalidSubject = errors.New("invalid subject token")

	// ErrNotConnected is returned by Publish while the bus is unreachable.
	ErrNotConnected = errors.New("bus not connected")
)

// Config holds the bus connection settings.
type Config struct {
	URL    string
	Prefix string
	Name   string // Connection name reported to the server.
	Codec  pprz.Codec
}

// Client publishes commands and receives telemetry.
type Client struct {
	nc     *nats.Conn
	prefix string
	codec  pprz.Codec
	logger *log.Logger
	sub    *nats.Subscription
}

// Connect dials the bus. An unreachable server is not an error: the client
// keeps retrying in the background and Publish fails until it connects.
// Reconnects are unlimited.
func Connect(cfg Config, logger *log.Logger) (*Client, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.Codec == nil {
		cfg.Codec = pprz.JSONCodec{}
	}
	if err := validToken(cfg.Prefix); err != nil {
		return nil, fmt.Errorf("prefix: %w", err)
	}

	logger = logger.With("component", "bus")
	nc, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		// Commands are not queued for delivery after a reconnect.
		nats.ReconnectBufSize(-1),
		nats.ConnectHandler(func(nc *nats.Conn) {
			logger.Info("connected", "url", nc.ConnectedUrl(), "codec", cfg.Codec.Name())
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(*nats.Conn) {
			logger.Debug("connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.URL, err)
	}
	if !nc.IsConnected() {
		logger.Warn("bus not reachable, retrying in background", "url", cfg.URL)
	}

	return &Client{nc: nc, prefix: cfg.Prefix, codec: cfg.Codec, logger: logger}, nil
}

// Subject returns the subject a message of class and name is sent on.
func Subject(prefix, class, name string) (string, error) {
	for _, tok := range []string{prefix, class, name} {
		if err := validToken(tok); err != nil {
			return "", err
		}
	}
	return prefix + "." + class + "." + name, nil
}

// TelemetrySubject returns the wildcard subject matching every telemetry
// message under prefix.
func TelemetrySubject(prefix string) string {
	return prefix + "." + pprz.ClassTelemetry + ".>"
}

func validToken(tok string) error {
	if tok == "" || strings.ContainsAny(tok, ".*> \t\r\n") {
		return fmt.Errorf("%w: %q", ErrInvalidSubject, tok)
	}
	return nil
}

// Publish sends m without waiting for any acknowledgement.
func (c *Client) Publish(ctx context.Context, m *pprz.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !c.nc.IsConnected() {
		return ErrNotConnected
	}
	subj, err := Subject(c.prefix, m.Class, m.Name)
	if err != nil {
		return err
	}
	data, err := c.codec.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode %s: %w", m.Name, err)
	}
	if err := c.nc.Publish(subj, data); err != nil {
		return fmt.Errorf("publish %s: %w", subj, err)
	}
	return nil
}

// Subscribe delivers the payload of every telemetry message to handler.
// The handler runs on the connection's dispatch goroutine and must not
// block.
func (c *Client) Subscribe(handler func(data []byte)) error {
	subj := TelemetrySubject(c.prefix)
	sub, err := c.nc.Subscribe(subj, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", subj, err)
	}
	c.sub = sub
	c.logger.Info("subscribed", "subject", subj)
	return nil
}

// Codec returns the codec used on the wire.
func (c *Client) Codec() pprz.Codec {
	return c.codec
}

// Close drains pending messages and closes the connection.
func (c *Client) Close() error {
	if c == nil || c.nc == nil {
		return nil
	}
	if !c.nc.IsConnected() {
		c.nc.Close()
		return nil
	}
	if err := c.nc.Drain(); err != nil {
		c.nc.Close()
		return err
	}
	return nil
}

package mixnet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"privmsg/internal/crypto"
	"privmsg/internal/metrics"
)

const (
	DefaultInitTimeout = 20 * time.Second
	DefaultSendTimeout = 10 * time.Second
)

// Config configures a Client.
type Config struct {
	Enabled       bool
	DefinitionURL string
	InitTimeout   time.Duration
	SendTimeout   time.Duration

	HTTPClient *http.Client
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
	Now        func() time.Time
}

// Client owns one mix-network connection.
type Client struct {
	cfg       Config
	transport Transport
	log       *slog.Logger

	// initMu serialises bring-up; mu guards the fields below.
	initMu  sync.Mutex
	mu      sync.Mutex
	state   State
	def     NetworkDefinition
	lastErr error
}

// NewClient returns an uninitialized client using transport.
func NewClient(cfg Config, transport Transport) *Client {
	if cfg.InitTimeout <= 0 {
		cfg.InitTimeout = DefaultInitTimeout
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if transport == nil {
		transport = NopTransport{}
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	c := &Client{cfg: cfg, transport: transport, log: log.With("component", "mixnet")}
	c.cfg.Metrics.SetMixnetState(int(StateUninitialized))
	return c
}

// Enabled reports whether the mixnet is configured on.
func (c *Client) Enabled() bool { return c.cfg.Enabled }

// State returns the current state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether messages can be sent.
func (c *Client) IsConnected() bool { return c.State() == StateConnected }

// LastError returns the cause of the most recent transition to StateError.
func (c *Client) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Definition returns the network definition of the current connection.
func (c *Client) Definition() (NetworkDefinition, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.def, c.state == StateConnected
}

// Initialize fetches the network definition and connects the transport. Any
// failure leaves the client in StateError and returns an error wrapping
// ErrUnavailable. Calling it while connected is a no-op; calling it from
// StateError closes the transport and performs a full bring-up again.
func (c *Client) Initialize(ctx context.Context) error {
	if !c.cfg.Enabled {
		return ErrDisabled
	}
	c.initMu.Lock()
	defer c.initMu.Unlock()
	if c.IsConnected() {
		return nil
	}
	if c.State() == StateError {
		if err := c.transport.Close(); err != nil {
			c.log.Debug("mixnet close before reconnect", "err", err)
		}
	}
	c.setState(StateConnecting, nil)

	ctx, cancel := context.WithTimeout(ctx, c.cfg.InitTimeout)
	defer cancel()

	def, err := FetchNetworkDefinition(ctx, c.cfg.HTTPClient, c.cfg.DefinitionURL, c.cfg.Now())
	if err == nil {
		err = c.transport.Connect(ctx, def)
	}
	if err != nil {
		c.setState(StateError, err)
		c.log.Warn("mixnet bring-up failed", "err", err)
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	c.mu.Lock()
	c.def = def
	c.mu.Unlock()
	c.setState(StateConnected, nil)
	c.log.Info("mixnet connected", "network", def.Network, "gateways", len(def.Gateways))
	return nil
}

// Send relays msg. It fails with ErrNotConnected unless connected. A
// transport failure other than a timeout moves the client to StateError.
func (c *Client) Send(ctx context.Context, msg Message) error {
	if msg.Payload().IsZero() {
		return ErrPlaintextContent
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.SendTimeout)
	defer cancel()

	if err := c.transport.Send(ctx, msg); err != nil {
		if !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			c.setState(StateError, err)
		}
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

// Disconnect closes the transport and returns to StateUninitialized. It is
// safe to call repeatedly and from cleanup paths. A bring-up in progress is
// allowed to finish first.
func (c *Client) Disconnect() {
	c.initMu.Lock()
	defer c.initMu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("mixnet transport panicked on close", "panic", r)
			c.setState(StateUninitialized, nil)
		}
	}()
	if err := c.transport.Close(); err != nil {
		c.log.Debug("mixnet close", "err", err)
	}
	c.mu.Lock()
	c.def = NetworkDefinition{}
	c.mu.Unlock()
	c.setState(StateUninitialized, nil)
}

// AnonymizedReference returns a random base58 reference for local
// bookkeeping. It is never derived from user or message identities.
func (c *Client) AnonymizedReference() string { return crypto.RandomReference() }

func (c *Client) setState(s State, cause error) {
	c.mu.Lock()
	c.state = s
	if s == StateError {
		c.lastErr = cause
	}
	c.mu.Unlock()
	c.cfg.Metrics.SetMixnetState(int(s))
}

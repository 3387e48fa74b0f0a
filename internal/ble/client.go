package ble

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/meishild/mzbtir/internal/ble/protocol"
)

// MinUpdateFloor is the shortest interval between two sensor round trips.
const MinUpdateFloor = 60 * time.Second

// ClientOptions configures the BLE client behavior.
type ClientOptions struct {
	MinUpdateInterval time.Duration // throttle for Update(false), floored at MinUpdateFloor
	ConnectTimeout    time.Duration // bound on Adapter.Connect
	ReceiveTimeout    time.Duration // default wait per IR fragment
	NotifyQueueSize   int           // buffered notifications during Receive
}

// DefaultClientOptions returns sensible defaults.
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		MinUpdateInterval: 300 * time.Second,
		ConnectTimeout:    10 * time.Second,
		ReceiveTimeout:    15 * time.Second,
		NotifyQueueSize:   32,
	}
}

// Readings are the last sensor values read from the device.
type Readings struct {
	Temperature float64 // °C
	Humidity    float64 // %RH
	Battery     int     // percent
}

// Client is the session for one btir device. Operations are serialized: at
// most one of Update, Send, or Receive holds a connection at a time.
// Independent clients share nothing and run in parallel.
type Client struct {
	adapter Adapter
	address string
	opts    ClientOptions
	now     func() time.Time

	// mu is held for the whole of every device operation.
	mu  sync.Mutex
	seq protocol.Sequence

	// cacheMu guards readings and lastUpdate so they stay readable while
	// a long Receive holds mu.
	cacheMu    sync.RWMutex
	readings   Readings
	lastUpdate time.Time
}

// NewClient creates a client for the device at address.
func NewClient(adapter Adapter, address string, opts ClientOptions) (*Client, error) {
	if adapter == nil {
		return nil, fmt.Errorf("ble: nil adapter")
	}
	if address == "" {
		return nil, fmt.Errorf("ble: empty device address")
	}
	if opts.MinUpdateInterval < MinUpdateFloor {
		opts.MinUpdateInterval = MinUpdateFloor
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	if opts.ReceiveTimeout <= 0 {
		opts.ReceiveTimeout = 15 * time.Second
	}
	if opts.NotifyQueueSize <= 0 {
		opts.NotifyQueueSize = 32
	}
	return &Client{
		adapter: adapter,
		address: address,
		opts:    opts,
		now:     time.Now,
	}, nil
}

// Address returns the device address the client connects to.
func (c *Client) Address() string { return c.address }

// Readings returns the cached sensor values and when they were read.
// The time is zero until the first successful Update.
func (c *Client) Readings() (Readings, time.Time) {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	return c.readings, c.lastUpdate
}

// session is one open connection with the control characteristic located.
type session struct {
	conn Connection
	char Characteristic
}

// withSession connects, runs fn, and disconnects on every path.
// The caller must hold mu.
func (c *Client) withSession(ctx context.Context, fn func(s *session) error) error {
	s, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.conn.Disconnect(); err != nil {
			slog.Warn("[BLE] disconnect failed", "address", c.address, "error", err)
		}
	}()
	return fn(s)
}

func (c *Client) open(ctx context.Context) (*session, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()

	conn, err := c.adapter.Connect(ctx, c.address)
	if err != nil {
		return nil, fmt.Errorf("ble: connect to %s: %w: %w", c.address, ErrConnection, err)
	}

	chars, err := conn.Characteristics()
	if err != nil {
		_ = conn.Disconnect()
		return nil, fmt.Errorf("ble: discover characteristics on %s: %w: %w", c.address, ErrConnection, err)
	}
	for _, ch := range chars {
		if strings.EqualFold(ch.UUID(), ControlCharUUID) {
			slog.Debug("[BLE] connected", "address", c.address)
			return &session{conn: conn, char: ch}, nil
		}
	}
	_ = conn.Disconnect()
	return nil, fmt.Errorf("ble: characteristic %s not found on %s: %w", ControlCharUUID, c.address, ErrConnection)
}

// write sends one frame and waits for the write acknowledgement.
func (s *session) write(op protocol.Opcode, seq byte, payload []byte) error {
	frame, err := protocol.EncodeFrame(op, seq, payload)
	if err != nil {
		return err
	}
	if err := s.char.Write(frame, true); err != nil {
		return fmt.Errorf("ble: write opcode 0x%02x: %w", byte(op), err)
	}
	return nil
}

// exchange writes one frame and reads the device's response.
func (s *session) exchange(op protocol.Opcode, seq byte, payload []byte) ([]byte, error) {
	if err := s.write(op, seq, payload); err != nil {
		return nil, err
	}
	resp, err := s.char.Read()
	if err != nil {
		return nil, fmt.Errorf("ble: read response to opcode 0x%02x: %w", byte(op), err)
	}
	return resp, nil
}

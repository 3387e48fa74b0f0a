package ble

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/meishild/mzbtir/internal/ble/protocol"
)

// Receive puts the device into learning mode and returns the IR code it
// captures. timeout bounds the wait for each fragment; zero selects the
// client's ReceiveTimeout. A timed-out attempt returns ErrReceiveTimeout and
// an out-of-order fragment returns ErrReassembly; in both cases the device
// is still taken out of learning mode and the caller may call Receive again.
func (c *Client) Receive(ctx context.Context, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = c.opts.ReceiveTimeout
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var code []byte
	err := c.withSession(ctx, func(s *session) error {
		notifications := make(chan []byte, c.opts.NotifyQueueSize)
		if err := s.char.Subscribe(func(data []byte) {
			buf := append([]byte(nil), data...)
			select {
			case notifications <- buf:
			default:
				slog.Warn("[BLE] notification queue full, dropping", "address", c.address)
			}
		}); err != nil {
			return fmt.Errorf("ble: subscribe to notifications: %w", err)
		}

		seq := c.seq.Next()
		resp, err := s.exchange(protocol.OpCaptureStart, seq, nil)
		if err != nil {
			return err
		}
		ok, err := protocol.IsCaptureStarted(resp)
		if err != nil {
			return fmt.Errorf("ble: capture start response: %w", err)
		}
		if !ok {
			return fmt.Errorf("ble: capture start response %x: %w", resp, ErrCaptureRejected)
		}
		defer c.endCapture(s, seq)

		r := protocol.NewReassembler()
		r.Start()
		state := awaitFragments(r, notifications, timeout)

		slog.Debug("[BLE] capture finished", "address", c.address, "state", state,
			"received", r.Received(), "expected", r.Expected())
		switch state {
		case protocol.StateComplete:
			if len(r.Bytes()) == 0 {
				return fmt.Errorf("ble: device announced an IR code without data: %w", ErrProtocol)
			}
			code = r.Bytes()
			return nil
		case protocol.StateFailed:
			return ErrReassembly
		default:
			return ErrReceiveTimeout
		}
	})
	if err != nil {
		return nil, err
	}
	return code, nil
}

// awaitFragments feeds notifications to r until it reaches a terminal state
// or nothing arrives for timeout.
func awaitFragments(r *protocol.Reassembler, notifications <-chan []byte, timeout time.Duration) protocol.ReassemblyState {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for !r.State().Terminal() {
		select {
		case data := <-notifications:
			if f, ok := protocol.DecodeFragment(data); ok {
				r.Feed(f)
			}
			timer.Reset(timeout)
		case <-timer.C:
			r.TimeOut()
		}
	}
	return r.State()
}

// endCapture takes the device out of learning mode. Failures are logged
// only; the capture outcome is already decided.
func (c *Client) endCapture(s *session, seq byte) {
	if err := s.write(protocol.OpCaptureStop, seq, nil); err != nil {
		slog.Warn("[BLE] capture stop failed", "address", c.address, "error", err)
	}
	if err := s.write(protocol.OpCaptureAck, seq, nil); err != nil {
		slog.Warn("[BLE] capture ack failed", "address", c.address, "error", err)
	}
}

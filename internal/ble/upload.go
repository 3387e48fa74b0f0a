package ble

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/meishild/mzbtir/internal/ble/protocol"
)

// Send makes the device emit the IR code identified by key. key and code are
// hex strings. The key is announced first; if the device already holds the
// code no fragments follow. Otherwise the code goes out in fragments of at
// most 30 hex digits, and the first failed write aborts the transfer.
// A nil error means every write was acknowledged; nothing is read after the
// last fragment. There are no retries.
func (c *Client) Send(ctx context.Context, key, code string) error {
	keyBytes, err := hex.DecodeString(key)
	if err != nil {
		return fmt.Errorf("%w: key %q: %w", ErrInvalidHex, key, err)
	}
	if _, err := hex.DecodeString(code); err != nil {
		return fmt.Errorf("%w: IR code: %w", ErrInvalidHex, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.withSession(ctx, func(s *session) error {
		seq := c.seq.Next()
		resp, err := s.exchange(protocol.OpPrepare, seq, keyBytes)
		if err != nil {
			return err
		}
		known, err := protocol.IsSendAccepted(resp)
		if err != nil {
			return fmt.Errorf("ble: prepare response: %w", err)
		}
		if known {
			slog.Debug("[BLE] device already holds code", "address", c.address, "key", key)
			return nil
		}

		frames, err := protocol.UploadFrames(seq, key, code)
		if err != nil {
			return err
		}
		for i, frame := range frames {
			if err := s.char.Write(frame, true); err != nil {
				return fmt.Errorf("ble: write packet %d/%d: %w", i, len(frames), err)
			}
		}
		slog.Debug("[BLE] IR code sent", "address", c.address, "key", key, "packets", len(frames))
		return nil
	})
}

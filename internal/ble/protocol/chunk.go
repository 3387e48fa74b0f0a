package protocol

import (
	"encoding/hex"
	"fmt"
)

// MaxFragmentDigits is the number of hex digits carried by one upload
// fragment (15 raw bytes).
const MaxFragmentDigits = 30

// SplitHex splits a hex-encoded IR code into fragments of at most
// MaxFragmentDigits digits. Returns nil for an empty code.
func SplitHex(code string) []string {
	var fragments []string
	for len(code) > 0 {
		n := min(len(code), MaxFragmentDigits)
		fragments = append(fragments, code[:n])
		code = code[n:]
	}
	return fragments
}

// PacketCount is the packet total announced in the upload header: the
// header itself (index 0) plus one packet per fragment.
func PacketCount(codeDigits int) int {
	return (codeDigits+MaxFragmentDigits-1)/MaxFragmentDigits + 1
}

// UploadFrames builds the header and data frames for sending code under key.
// Both are hex strings. Every frame carries seq.
func UploadFrames(seq byte, key, code string) ([][]byte, error) {
	keyBytes, err := hex.DecodeString(key)
	if err != nil {
		return nil, fmt.Errorf("protocol: decode key: %w", err)
	}
	fragments := SplitHex(code)
	total := PacketCount(len(code))
	if total > 0xff {
		return nil, fmt.Errorf("protocol: code needs %d packets: %w", total, ErrProtocol)
	}

	header, err := EncodeFrame(OpFragment, seq, append([]byte{0x00, byte(total)}, keyBytes...))
	if err != nil {
		return nil, err
	}
	frames := [][]byte{header}
	for i, fragment := range fragments {
		data, err := hex.DecodeString(fragment)
		if err != nil {
			return nil, fmt.Errorf("protocol: decode fragment %d: %w", i+1, err)
		}
		frame, err := EncodeFrame(OpFragment, seq, append([]byte{byte(i + 1)}, data...))
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

package ble

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/meishild/mzbtir/internal/ble/protocol"
)

const testReceiveTimeout = 50 * time.Millisecond

// cleanupOps returns the opcodes written after the capture start frame.
func cleanupOps(c *mockCharacteristic) []byte {
	ops := c.opcodes()
	for i, op := range ops {
		if protocol.Opcode(op) == protocol.OpCaptureStart {
			return ops[i+1:]
		}
	}
	return nil
}

func assertCleanup(t *testing.T, c *mockCharacteristic) {
	t.Helper()
	got := cleanupOps(c)
	want := []byte{byte(protocol.OpCaptureStop), byte(protocol.OpCaptureAck)}
	if !bytes.Equal(got, want) {
		t.Errorf("frames after capture start = %x, want %x", got, want)
	}
}

func TestReceiveReassemblesInOrder(t *testing.T) {
	adapter := newMockAdapter(nil)
	dev := newFakeDevice()
	dev.fragments = [][]byte{
		headerFragment(3),
		dataFragment(1, 0xde, 0xad),
		dataFragment(2, 0xbe, 0xef),
	}
	dev.install(adapter.control)
	client := newTestClient(t, adapter, DefaultClientOptions())

	code, err := client.Receive(context.Background(), testReceiveTimeout)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if !bytes.Equal(code, []byte{0xde, 0xad, 0xbe, 0xef}) {
		t.Errorf("Receive() = %x, want deadbeef", code)
	}
	assertCleanup(t, adapter.control)
}

func TestReceiveDelayedFragments(t *testing.T) {
	adapter := newMockAdapter(nil)
	dev := newFakeDevice()
	dev.pushDelay = 10 * time.Millisecond
	dev.fragments = [][]byte{headerFragment(2), dataFragment(1, 0x01, 0x02)}
	dev.install(adapter.control)
	client := newTestClient(t, adapter, DefaultClientOptions())

	code, err := client.Receive(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if !bytes.Equal(code, []byte{0x01, 0x02}) {
		t.Errorf("Receive() = %x, want 0102", code)
	}
}

func TestReceiveOutOfOrderFails(t *testing.T) {
	adapter := newMockAdapter(nil)
	dev := newFakeDevice()
	dev.fragments = [][]byte{
		headerFragment(3),
		dataFragment(2, 0xbe, 0xef),
		dataFragment(1, 0xde, 0xad),
	}
	dev.install(adapter.control)
	client := newTestClient(t, adapter, DefaultClientOptions())

	start := time.Now()
	code, err := client.Receive(context.Background(), time.Second)
	if !errors.Is(err, ErrReassembly) {
		t.Fatalf("Receive() error = %v, want ErrReassembly", err)
	}
	if code != nil {
		t.Errorf("Receive() = %x, want nil", code)
	}
	if elapsed := time.Since(start); elapsed >= time.Second {
		t.Errorf("Receive() waited %v; a failed attempt should end immediately", elapsed)
	}
	assertCleanup(t, adapter.control)
}

func TestReceiveZeroTotalHeaderFails(t *testing.T) {
	adapter := newMockAdapter(nil)
	dev := newFakeDevice()
	dev.fragments = [][]byte{headerFragment(0)}
	dev.install(adapter.control)
	client := newTestClient(t, adapter, DefaultClientOptions())

	code, err := client.Receive(context.Background(), time.Second)
	if !errors.Is(err, ErrReassembly) {
		t.Fatalf("Receive() error = %v, want ErrReassembly", err)
	}
	if code != nil {
		t.Errorf("Receive() = %x, want nil", code)
	}
	assertCleanup(t, adapter.control)
}

func TestReceiveHeaderWithoutDataFails(t *testing.T) {
	adapter := newMockAdapter(nil)
	dev := newFakeDevice()
	dev.fragments = [][]byte{headerFragment(1)}
	dev.install(adapter.control)
	client := newTestClient(t, adapter, DefaultClientOptions())

	code, err := client.Receive(context.Background(), time.Second)
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("Receive() error = %v, want ErrProtocol", err)
	}
	if code != nil {
		t.Errorf("Receive() = %x, want nil", code)
	}
	assertCleanup(t, adapter.control)
}

func TestReceiveTimesOut(t *testing.T) {
	adapter := newMockAdapter(nil)
	newFakeDevice().install(adapter.control)
	client := newTestClient(t, adapter, DefaultClientOptions())

	code, err := client.Receive(context.Background(), testReceiveTimeout)
	if !errors.Is(err, ErrReceiveTimeout) {
		t.Fatalf("Receive() error = %v, want ErrReceiveTimeout", err)
	}
	if code != nil {
		t.Errorf("Receive() = %x, want nil", code)
	}
	assertCleanup(t, adapter.control)

	// Cleanup frames reuse the capture start sequence.
	adapter.control.mu.Lock()
	defer adapter.control.mu.Unlock()
	for _, w := range adapter.control.writes {
		if w[2] != adapter.control.writes[0][2] {
			t.Errorf("frame %x has sequence %d, want %d", w, w[2], adapter.control.writes[0][2])
		}
	}
}

func TestReceiveTimesOutMidTransfer(t *testing.T) {
	adapter := newMockAdapter(nil)
	dev := newFakeDevice()
	dev.fragments = [][]byte{headerFragment(3), dataFragment(1, 0xaa)}
	dev.install(adapter.control)
	client := newTestClient(t, adapter, DefaultClientOptions())

	_, err := client.Receive(context.Background(), testReceiveTimeout)
	if !errors.Is(err, ErrReceiveTimeout) {
		t.Fatalf("Receive() error = %v, want ErrReceiveTimeout", err)
	}
	assertCleanup(t, adapter.control)
}

func TestReceiveIgnoresNonDataNotifications(t *testing.T) {
	adapter := newMockAdapter(nil)
	dev := newFakeDevice()
	dev.fragments = [][]byte{
		{0x55, 0x03, 0x00, 0x07},
		headerFragment(2),
		{0x55, 0x05, 0x00, 0x0a, 0x05, 0x00},
		dataFragment(1, 0x42),
	}
	dev.install(adapter.control)
	client := newTestClient(t, adapter, DefaultClientOptions())

	code, err := client.Receive(context.Background(), testReceiveTimeout)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if !bytes.Equal(code, []byte{0x42}) {
		t.Errorf("Receive() = %x, want 42", code)
	}
}

func TestReceiveCaptureRejected(t *testing.T) {
	adapter := newMockAdapter(nil)
	dev := newFakeDevice()
	dev.rejectCapture = true
	dev.install(adapter.control)
	client := newTestClient(t, adapter, DefaultClientOptions())

	_, err := client.Receive(context.Background(), testReceiveTimeout)
	if !errors.Is(err, ErrCaptureRejected) {
		t.Fatalf("Receive() error = %v, want ErrCaptureRejected", err)
	}
	if ops := cleanupOps(adapter.control); len(ops) != 0 {
		t.Errorf("frames after rejected capture = %x, want none", ops)
	}
	if _, active, _ := adapter.stats(); active != 0 {
		t.Errorf("active connections = %d, want 0", active)
	}
}

func TestReceiveCorruptCaptureResponse(t *testing.T) {
	adapter := newMockAdapter(nil)
	dev := newFakeDevice()
	dev.corruptOpcode = int(protocol.OpCaptureStart)
	dev.install(adapter.control)
	client := newTestClient(t, adapter, DefaultClientOptions())

	_, err := client.Receive(context.Background(), testReceiveTimeout)
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("Receive() error = %v, want ErrProtocol", err)
	}
	if ops := cleanupOps(adapter.control); len(ops) != 0 {
		t.Errorf("frames after unacknowledged capture = %x, want none", ops)
	}
}

func TestReceiveRetryAfterFailure(t *testing.T) {
	adapter := newMockAdapter(nil)
	dev := newFakeDevice()
	dev.fragments = [][]byte{headerFragment(2), dataFragment(2, 0x01)}
	dev.install(adapter.control)
	client := newTestClient(t, adapter, DefaultClientOptions())
	ctx := context.Background()

	if _, err := client.Receive(ctx, testReceiveTimeout); !errors.Is(err, ErrReassembly) {
		t.Fatalf("first Receive() error = %v, want ErrReassembly", err)
	}

	dev.fragments = [][]byte{headerFragment(2), dataFragment(1, 0x01)}
	code, err := client.Receive(ctx, testReceiveTimeout)
	if err != nil {
		t.Fatalf("second Receive() error = %v", err)
	}
	if !bytes.Equal(code, []byte{0x01}) {
		t.Errorf("Receive() = %x, want 01", code)
	}
}

func TestConcurrentReceivesDoNotInterleave(t *testing.T) {
	adapter := newMockAdapter(nil)
	dev := newFakeDevice()
	dev.pushDelay = 20 * time.Millisecond
	dev.fragments = [][]byte{headerFragment(2), dataFragment(1, 0x99)}
	dev.install(adapter.control)
	client := newTestClient(t, adapter, DefaultClientOptions())

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = client.Receive(context.Background(), time.Second)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("Receive() #%d error = %v", i, err)
		}
	}
	connects, active, maxActive := adapter.stats()
	if connects != 2 || active != 0 {
		t.Errorf("connects = %d, active = %d; want 2 and 0", connects, active)
	}
	if maxActive != 1 {
		t.Errorf("max concurrent connections = %d, want 1", maxActive)
	}

	// Each capture runs start, stop, ack before the next one begins.
	want := []byte{0x05, 0x0b, 0x06, 0x05, 0x0b, 0x06}
	if got := adapter.control.opcodes(); !bytes.Equal(got, want) {
		t.Errorf("opcodes = %x, want %x", got, want)
	}
}

package btusb

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/busy-tag/busytag-usb-driver/driver"
)

// createTest registers a monitor on a fresh virtual bus with a fast poll.
func createTest(r *Registry) (Handle, *driver.MockDriver) {
	mock := driver.NewMock()
	h := r.Create(mock)
	if m := r.lookup(h); m != nil {
		m.PollInterval = testPoll
	}
	return h, mock
}

func TestRegistryInvalidHandleDefaults(t *testing.T) {
	r := NewRegistry()

	for _, h := range []Handle{InvalidHandle, Handle(12345)} {
		r.StartMonitoring(h)
		r.StopMonitoring(h)
		r.Destroy(h)
		r.SetDataCallback(h, func([]byte) {})
		r.SetConnectionCallback(h, func(bool) {})
		r.SetLogCallback(h, func(string) {})

		if r.IsConnected(h) {
			t.Fatalf("IsConnected(%#x) = true for invalid handle", h)
		}
		if r.IsDevicePresent(h) {
			t.Fatalf("IsDevicePresent(%#x) = true for invalid handle", h)
		}
		if _, err := r.Send(h, []byte{0x01}); !errors.As(err, &InvalidHandleError{}) {
			t.Fatalf("Send(%#x): got %v, want InvalidHandleError", h, err)
		}
		if _, err := r.SendString(h, "x"); StatusOf(err) != StatusInvalidHandle {
			t.Fatalf("SendString(%#x): status %d, want %d", h, StatusOf(err), StatusInvalidHandle)
		}
	}
}

func TestRegistryDestroyTwice(t *testing.T) {
	r := NewRegistry()
	h, _ := createTest(r)

	r.Destroy(h)
	r.Destroy(h) // must be a no-op
}

func TestRegistryDestroyedHandleNeverResolves(t *testing.T) {
	r := NewRegistry()
	h, mock := createTest(r)

	r.StartMonitoring(h)
	mock.Plug(testInfo)
	r.Destroy(h)

	// Identical to a handle that never existed.
	r.StartMonitoring(h)
	if r.IsConnected(h) || r.IsDevicePresent(h) {
		t.Fatal("destroyed handle still resolves to a live monitor")
	}
	if _, err := r.Send(h, []byte{0x01}); !errors.As(err, &InvalidHandleError{}) {
		t.Fatalf("Send on destroyed handle: got %v, want InvalidHandleError", err)
	}
}

func TestRegistryHandlesNeverReused(t *testing.T) {
	r := NewRegistry()
	h1, _ := createTest(r)
	r.Destroy(h1)
	h2, _ := createTest(r)
	if h1 == h2 {
		t.Fatalf("handle %#x was reused after destroy", h1)
	}
}

// Full lifecycle: create, monitor, plug, talk, unplug, destroy.
func TestRegistryLifecycle(t *testing.T) {
	r := NewRegistry()
	h, mock := createTest(r)

	conn := make(chan bool, 16)
	r.SetConnectionCallback(h, func(connected bool) { conn <- connected })

	r.StartMonitoring(h)
	mock.Plug(testInfo)
	expectTransitionOn(t, conn, true)

	if !r.IsDevicePresent(h) || !r.IsConnected(h) {
		t.Fatal("present/connected should both be true after attach")
	}

	if n, err := r.Send(h, []byte{0xDE, 0xAD}); err != nil || n != 2 {
		t.Fatalf("Send = (%d, %v), want (2, nil)", n, err)
	}

	mock.Unplug(testInfo.Path)
	expectTransitionOn(t, conn, false)

	if r.IsConnected(h) || r.IsDevicePresent(h) {
		t.Fatal("present/connected should both be false after unplug")
	}
	if _, err := r.Send(h, []byte{0x01}); !errors.As(err, &NoSessionError{}) {
		t.Fatalf("Send after unplug: got %v, want NoSessionError", err)
	}

	r.Destroy(h)
	if r.IsConnected(h) || r.IsDevicePresent(h) {
		t.Fatal("queries on a destroyed handle must return defaults")
	}
}

func expectTransitionOn(t *testing.T, ch <-chan bool, want bool) {
	t.Helper()
	select {
	case got := <-ch:
		if got != want {
			t.Fatalf("connection callback fired with connected=%v, want %v", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for connection callback connected=%v", want)
	}
}

// Destroy must block until a callback already executing has returned.
func TestRegistryDestroyDrainsInFlightCallbacks(t *testing.T) {
	r := NewRegistry()
	h, mock := createTest(r)

	conn := make(chan bool, 16)
	r.SetConnectionCallback(h, func(connected bool) { conn <- connected })

	started := make(chan struct{})
	var finished atomic.Bool
	r.SetDataCallback(h, func(data []byte) {
		close(started)
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
	})

	r.StartMonitoring(h)
	mock.Plug(testInfo)
	expectTransitionOn(t, conn, true)

	mock.EmitData(testInfo.Path, []byte{0x01})
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("data callback never started")
	}

	r.Destroy(h)
	if !finished.Load() {
		t.Fatal("Destroy returned while a callback was still executing")
	}
}

func TestRegistryMonitorsAreIndependent(t *testing.T) {
	r := NewRegistry()
	h1, mock1 := createTest(r)
	h2, mock2 := createTest(r)

	conn2 := make(chan bool, 16)
	r.SetConnectionCallback(h2, func(connected bool) { conn2 <- connected })

	r.StartMonitoring(h1)
	r.StartMonitoring(h2)
	mock1.Plug(testInfo)
	mock2.Plug(testInfo)
	expectTransitionOn(t, conn2, true)

	r.Destroy(h1)

	if !r.IsConnected(h2) {
		t.Fatal("destroying one handle disturbed another")
	}
	if n, err := r.Send(h2, []byte{0x01}); err != nil || n != 1 {
		t.Fatalf("Send on surviving handle = (%d, %v)", n, err)
	}
	r.Destroy(h2)
}

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		want int32
	}{
		{nil, 0},
		{InvalidHandleError{}, StatusInvalidHandle},
		{NoSessionError{}, StatusNoSession},
		{InvalidLengthError{}, StatusInvalidLength},
		{TransferError{}, StatusTransferFailed},
		{errors.New("anything else"), StatusInternal},
	}
	for _, c := range cases {
		if got := StatusOf(c.err); got != c.want {
			t.Errorf("StatusOf(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}

package btusb

import (
	"sync"

	"github.com/busy-tag/busytag-usb-driver/driver"
)

// Handle is the opaque token the caller holds for one monitor. Handles are
// never reused within a registry.
type Handle uintptr

// InvalidHandle is the sentinel returned when a monitor cannot be created.
const InvalidHandle Handle = 0

// Registry maps opaque handles to live monitors. Its lock is held only for
// lookup, insert and remove — never across a transfer or a callback — so
// unrelated handles never contend.
type Registry struct {
	mu       sync.Mutex
	next     Handle
	monitors map[Handle]*Monitor
}

func NewRegistry() *Registry {
	return &Registry{monitors: make(map[Handle]*Monitor)}
}

// Create registers a new idle monitor on drv and returns its handle.
func (r *Registry) Create(drv driver.Driver) Handle {
	m := NewMonitor(drv)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	h := r.next
	r.monitors[h] = m
	return h
}

// lookup resolves a handle; nil for unknown or destroyed ones.
func (r *Registry) lookup(h Handle) *Monitor {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.monitors[h]
}

// Destroy stops monitoring, tears down any session, waits for in-flight
// callbacks to return and invalidates the handle. The mapping is removed
// first, so no new operation can reach the monitor while it drains.
// Destroying an unknown or already destroyed handle is a no-op.
func (r *Registry) Destroy(h Handle) {
	r.mu.Lock()
	m := r.monitors[h]
	delete(r.monitors, h)
	r.mu.Unlock()

	if m != nil {
		m.destroy()
	}
}

// StartMonitoring begins hot-plug monitoring for h. Invalid handles are
// ignored.
func (r *Registry) StartMonitoring(h Handle) {
	if m := r.lookup(h); m != nil {
		m.StartMonitoring()
	}
}

// StopMonitoring ends hot-plug monitoring for h. Invalid handles are
// ignored.
func (r *Registry) StopMonitoring(h Handle) {
	if m := r.lookup(h); m != nil {
		m.StopMonitoring()
	}
}

// IsConnected reports whether h has an open, healthy session. Invalid
// handles report false.
func (r *Registry) IsConnected(h Handle) bool {
	m := r.lookup(h)
	return m != nil && m.IsConnected()
}

// IsDevicePresent reports whether a matching device is physically present
// for h. Invalid handles report false.
func (r *Registry) IsDevicePresent(h Handle) bool {
	m := r.lookup(h)
	return m != nil && m.DevicePresent()
}

// Send submits p through h's active session.
func (r *Registry) Send(h Handle, p []byte) (int, error) {
	m := r.lookup(h)
	if m == nil {
		return 0, InvalidHandleError{}
	}
	return m.Send(p)
}

// SendString submits the UTF-8 bytes of str through h's active session.
func (r *Registry) SendString(h Handle, str string) (int, error) {
	m := r.lookup(h)
	if m == nil {
		return 0, InvalidHandleError{}
	}
	return m.SendString(str)
}

// SetDataCallback replaces h's data callback. Invalid handles are ignored.
func (r *Registry) SetDataCallback(h Handle, fn DataFunc) {
	if m := r.lookup(h); m != nil {
		m.disp.SetData(fn)
	}
}

// SetConnectionCallback replaces h's connection callback. Invalid handles
// are ignored.
func (r *Registry) SetConnectionCallback(h Handle, fn ConnectionFunc) {
	if m := r.lookup(h); m != nil {
		m.disp.SetConnection(fn)
	}
}

// SetLogCallback replaces h's log callback. Invalid handles are ignored.
func (r *Registry) SetLogCallback(h Handle, fn LogFunc) {
	if m := r.lookup(h); m != nil {
		m.disp.SetLog(fn)
	}
}

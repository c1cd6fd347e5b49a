package btusb

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Callback slots. The C layer bakes the caller's function pointer and
// context pointer into one closure, so replacing a registration is a single
// pointer swap and an invocation can never observe a torn pair.
type (
	// DataFunc receives bytes read from the device. The slice is only
	// valid for the duration of the call.
	DataFunc func(data []byte)
	// ConnectionFunc receives session open/close transitions.
	ConnectionFunc func(connected bool)
	// LogFunc receives driver diagnostics.
	LogFunc func(message string)
)

// Dispatcher holds the three callback registrations for one monitor and
// invokes them from driver-owned goroutines. An unset slot drops its events
// silently. No dispatcher lock is held while a callback runs, so callbacks
// may call back into the public API.
type Dispatcher struct {
	data       atomic.Pointer[DataFunc]
	connection atomic.Pointer[ConnectionFunc]
	log        atomic.Pointer[LogFunc]

	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// SetData replaces the data callback. A nil fn clears the slot.
func (d *Dispatcher) SetData(fn DataFunc) {
	if fn == nil {
		d.data.Store(nil)
		return
	}
	d.data.Store(&fn)
}

// SetConnection replaces the connection callback. A nil fn clears the slot.
func (d *Dispatcher) SetConnection(fn ConnectionFunc) {
	if fn == nil {
		d.connection.Store(nil)
		return
	}
	d.connection.Store(&fn)
}

// SetLog replaces the log callback. A nil fn clears the slot.
func (d *Dispatcher) SetLog(fn LogFunc) {
	if fn == nil {
		d.log.Store(nil)
		return
	}
	d.log.Store(&fn)
}

// Data forwards one received buffer to the data callback.
func (d *Dispatcher) Data(buf []byte) {
	fn := d.data.Load()
	if fn == nil || !d.enter() {
		return
	}
	defer d.leave()
	(*fn)(buf)
}

// Connection reports a session transition to the connection callback.
func (d *Dispatcher) Connection(connected bool) {
	fn := d.connection.Load()
	if fn == nil || !d.enter() {
		return
	}
	defer d.leave()
	(*fn)(connected)
}

// Log delivers a diagnostic message to the log callback.
func (d *Dispatcher) Log(message string) {
	fn := d.log.Load()
	if fn == nil || !d.enter() {
		return
	}
	defer d.leave()
	(*fn)(message)
}

// Logf formats and delivers a diagnostic message.
func (d *Dispatcher) Logf(format string, args ...any) {
	if d.log.Load() == nil {
		return
	}
	d.Log(fmt.Sprintf(format, args...))
}

// enter registers one in-flight invocation. It fails once Close has begun,
// which is what guarantees no callback fires after destroy returns.
func (d *Dispatcher) enter() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return false
	}
	d.wg.Add(1)
	return true
}

func (d *Dispatcher) leave() {
	d.wg.Done()
}

// Close stops all future invocations and blocks until every in-flight
// callback has returned. Safe to call more than once.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()

	d.data.Store(nil)
	d.connection.Store(nil)
	d.log.Store(nil)
}

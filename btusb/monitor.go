package btusb

import (
	"context"
	"sync"
	"time"

	"github.com/busy-tag/busytag-usb-driver/driver"
)

// Buffered hot-plug events between the watcher and the run loop.
const eventQueueSize = 16

// Monitor is one driver instance: it watches the bus for the target device
// while monitoring is active and owns zero or one session to it. All session
// lifecycle transitions and every connection callback happen on the run-loop
// goroutine, which is what makes connected=1/connected=0 strictly ordered.
type Monitor struct {
	drv  driver.Driver
	sig  driver.Signature
	disp *Dispatcher

	// PollInterval is the watcher rescan period. Set before StartMonitoring;
	// zero selects driver.DefaultPollInterval.
	PollInterval time.Duration

	// lifecycleMu serializes StartMonitoring, StopMonitoring and destroy.
	// It is held across the goroutine join, so a start can never overlap a
	// stop that is still draining and a stop never returns while the
	// watcher or run loop is in flight.
	lifecycleMu sync.Mutex
	monitoring  bool // guarded by lifecycleMu
	destroyed   bool // guarded by lifecycleMu
	cancel      context.CancelFunc
	wg          sync.WaitGroup // watcher + run loop

	mu      sync.Mutex // guards the fields below, never held across I/O or callbacks
	session *Session
	broken  chan *Session
}

// NewMonitor creates an idle monitor for the BusyTag signature on drv.
func NewMonitor(drv driver.Driver) *Monitor {
	return NewMonitorFor(drv, driver.BusyTagSignature)
}

// NewMonitorFor creates an idle monitor for an explicit signature.
func NewMonitorFor(drv driver.Driver, sig driver.Signature) *Monitor {
	return &Monitor{
		drv:  drv,
		sig:  sig,
		disp: NewDispatcher(),
	}
}

// Dispatcher exposes the callback registry for this monitor.
func (m *Monitor) Dispatcher() *Dispatcher {
	return m.disp
}

// StartMonitoring subscribes to hot-plug transitions for the target
// signature. A device already present connects immediately. No-op while
// already monitoring.
func (m *Monitor) StartMonitoring() {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()
	if m.monitoring || m.destroyed {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	events := make(chan driver.Event, eventQueueSize)
	broken := make(chan *Session, 1)

	m.mu.Lock()
	m.broken = broken
	m.mu.Unlock()

	m.cancel = cancel
	m.monitoring = true

	w := driver.NewWatcher(m.drv, m.sig, m.PollInterval)
	m.wg.Add(2)
	go func() {
		defer m.wg.Done()
		w.Run(ctx, events)
	}()
	go func() {
		defer m.wg.Done()
		m.run(ctx, events, broken)
	}()
}

// StopMonitoring unsubscribes and tears down any active session, reporting
// connected=0 if one was open. It returns only after both the watcher and
// the run loop have exited. No-op while idle.
func (m *Monitor) StopMonitoring() {
	m.lifecycleMu.Lock()
	defer m.lifecycleMu.Unlock()
	m.stopLocked()
}

func (m *Monitor) stopLocked() {
	if !m.monitoring {
		return
	}
	m.monitoring = false
	m.cancel()
	m.cancel = nil
	m.wg.Wait()
}

// run is the single consumer of hot-plug events and broken-pipe notices.
func (m *Monitor) run(ctx context.Context, events <-chan driver.Event, broken <-chan *Session) {
	for {
		select {
		case <-ctx.Done():
			m.closeSession()
			return
		case ev := <-events:
			if ev.Attach {
				m.handleAttach(ev.Info)
			} else {
				m.handleDetach(ev.Info)
			}
		case s := <-broken:
			m.handleBroken(s)
		}
	}
}

// handleAttach opens a session to the newly present device. First match
// wins: further matches while a session is active are ignored. An open
// failure is logged and left for the next attach or poll event to retry.
func (m *Monitor) handleAttach(info driver.DeviceInfo) {
	m.mu.Lock()
	active := m.session != nil
	broken := m.broken
	m.mu.Unlock()
	if active {
		return
	}

	dev, err := m.drv.Open(info)
	if err != nil {
		m.disp.Logf("failed to open device %s: %v", info, err)
		return
	}
	s := newSession(dev, info, m.disp, broken)

	m.mu.Lock()
	m.session = s
	m.mu.Unlock()

	s.start()
	m.disp.Connection(true)
}

// handleDetach tears down the session if the removed device is the one the
// session is bound to.
func (m *Monitor) handleDetach(info driver.DeviceInfo) {
	m.mu.Lock()
	s := m.session
	if s == nil || s.info.Path != info.Path {
		m.mu.Unlock()
		return
	}
	m.session = nil
	m.mu.Unlock()

	s.close()
	m.disp.Connection(false)
}

// handleBroken handles a read-loop transfer error: a broken pipe is treated
// exactly like a detach. Notices for sessions already replaced or torn down
// are stale and ignored.
func (m *Monitor) handleBroken(s *Session) {
	m.mu.Lock()
	if m.session != s {
		m.mu.Unlock()
		return
	}
	m.session = nil
	m.mu.Unlock()

	s.close()
	m.disp.Connection(false)
}

// closeSession tears down the active session on the way out of monitoring.
func (m *Monitor) closeSession() {
	m.mu.Lock()
	s := m.session
	m.session = nil
	m.mu.Unlock()
	if s == nil {
		return
	}
	s.close()
	m.disp.Connection(false)
}

// IsConnected reports whether a session is open and its last known transfer
// state is healthy.
func (m *Monitor) IsConnected() bool {
	m.mu.Lock()
	s := m.session
	m.mu.Unlock()
	return s != nil && s.healthy()
}

// DevicePresent reports whether the platform currently sees at least one
// matching device, independent of whether a session is open.
func (m *Monitor) DevicePresent() bool {
	infos, err := m.drv.Enumerate()
	if err != nil {
		m.disp.Logf("device enumeration failed: %v", err)
		return false
	}
	for _, info := range infos {
		if m.sig.Matches(info) {
			return true
		}
	}
	return false
}

// Send submits p to the connected device and returns the number of bytes
// delivered, which on success is always len(p). The session pointer is
// snapshotted under the structural lock and the transfer runs outside it.
func (m *Monitor) Send(p []byte) (int, error) {
	if len(p) == 0 || len(p) > MaxSendSize {
		return 0, InvalidLengthError{}
	}

	m.mu.Lock()
	s := m.session
	m.mu.Unlock()
	if s == nil {
		return 0, NoSessionError{}
	}
	return s.Send(p)
}

// SendString submits the UTF-8 bytes of str, without a terminator.
func (m *Monitor) SendString(str string) (int, error) {
	return m.Send([]byte(str))
}

// destroy stops monitoring, drains in-flight callbacks and releases the
// platform driver. After destroy returns no callback for this monitor can
// fire, and monitoring can never be restarted on the released driver.
func (m *Monitor) destroy() {
	m.lifecycleMu.Lock()
	m.stopLocked()
	m.destroyed = true
	m.lifecycleMu.Unlock()

	m.disp.Close()
	m.drv.Close()
}

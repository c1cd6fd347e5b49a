package driver

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// errRemoved is what a pending transfer observes when the simulated device
// is yanked or broken, as opposed to a deliberate Close.
var errRemoved = errors.New("usb: device removed")

// MockDriver is a virtual USB bus for development and tests. It needs no
// hardware: tests plug and unplug devices, feed the read side and inspect
// everything the engine wrote.
type MockDriver struct {
	mu      sync.Mutex
	present map[string]DeviceInfo
	open    map[string]*MockDevice
	writes  []WriteRecord
	changes chan struct{}
	closed  bool

	// Fault injection, guarded by mu.
	openErr  error
	writeErr error

	// MaxTransfer bounds a single Write on every mock device. Set it
	// before any device is opened.
	MaxTransfer int
}

// WriteRecord captures one bulk-out transfer accepted by a mock device.
type WriteRecord struct {
	Path      string
	Data      []byte
	Timestamp time.Time
}

// NewMock creates an empty virtual bus.
func NewMock() *MockDriver {
	return &MockDriver{
		present:     make(map[string]DeviceInfo),
		open:        make(map[string]*MockDevice),
		changes:     make(chan struct{}, 1),
		MaxTransfer: 1024,
	}
}

func (m *MockDriver) Enumerate() ([]DeviceInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	infos := make([]DeviceInfo, 0, len(m.present))
	for _, info := range m.present {
		infos = append(infos, info)
	}
	return infos, nil
}

func (m *MockDriver) Open(info DeviceInfo) (Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	if m.openErr != nil {
		return nil, m.openErr
	}
	if _, ok := m.present[info.Path]; !ok {
		return nil, ErrNotFound
	}
	if _, ok := m.open[info.Path]; ok {
		return nil, fmt.Errorf("usb: device %s already claimed", info.Path)
	}

	dev := &MockDevice{
		drv:  m,
		path: info.Path,
		rx:   make(chan []byte, 64),
		done: make(chan struct{}),
	}
	m.open[info.Path] = dev
	return dev, nil
}

func (m *MockDriver) Close() error {
	m.mu.Lock()
	devs := make([]*MockDevice, 0, len(m.open))
	for _, dev := range m.open {
		devs = append(devs, dev)
	}
	m.open = make(map[string]*MockDevice)
	m.closed = true
	m.mu.Unlock()

	for _, dev := range devs {
		dev.closeWith(ErrClosed)
	}
	return nil
}

// Changes implements Notifier so the Watcher rescans as soon as the
// simulated topology moves.
func (m *MockDriver) Changes() <-chan struct{} {
	return m.changes
}

func (m *MockDriver) notify() {
	select {
	case m.changes <- struct{}{}:
	default:
	}
}

// ----------------------------------------------------------------------
// Simulation controls, used by tests only.
// ----------------------------------------------------------------------

// FailOpen makes every Open return err until cleared with nil.
func (m *MockDriver) FailOpen(err error) {
	m.mu.Lock()
	m.openErr = err
	m.mu.Unlock()
}

// FailWrites makes every device Write return err until cleared with nil.
func (m *MockDriver) FailWrites(err error) {
	m.mu.Lock()
	m.writeErr = err
	m.mu.Unlock()
}

// Plug makes a device appear on the virtual bus.
func (m *MockDriver) Plug(info DeviceInfo) {
	m.mu.Lock()
	m.present[info.Path] = info
	m.mu.Unlock()
	m.notify()
}

// Unplug removes a device. Any open channel to it observes a transfer error,
// exactly like physical removal.
func (m *MockDriver) Unplug(path string) {
	m.mu.Lock()
	delete(m.present, path)
	dev := m.open[path]
	delete(m.open, path)
	m.mu.Unlock()

	if dev != nil {
		dev.closeWith(errRemoved)
	}
	m.notify()
}

// BreakDevice fails the open channel to path without removing the device
// from the bus, simulating a wedged endpoint.
func (m *MockDriver) BreakDevice(path string) {
	m.mu.Lock()
	dev := m.open[path]
	delete(m.open, path)
	m.mu.Unlock()

	if dev != nil {
		dev.closeWith(errRemoved)
	}
}

// EmitData queues data on the device's bulk-in side. It reports whether a
// channel to the device was open.
func (m *MockDriver) EmitData(path string, data []byte) bool {
	m.mu.Lock()
	dev := m.open[path]
	m.mu.Unlock()
	if dev == nil {
		return false
	}
	buf := append([]byte(nil), data...)
	select {
	case dev.rx <- buf:
		return true
	case <-dev.done:
		return false
	}
}

// IsOpen reports whether the engine currently holds a channel to path.
func (m *MockDriver) IsOpen(path string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.open[path]
	return ok
}

// Writes returns a copy of every recorded bulk-out transfer.
func (m *MockDriver) Writes() []WriteRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]WriteRecord(nil), m.writes...)
}

// ClearWrites discards the recorded transfers.
func (m *MockDriver) ClearWrites() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = nil
}

func (m *MockDriver) record(path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.writeErr != nil {
		return m.writeErr
	}
	m.writes = append(m.writes, WriteRecord{
		Path:      path,
		Data:      append([]byte(nil), data...),
		Timestamp: time.Now(),
	})
	return nil
}

// MockDevice is one open channel on the virtual bus.
type MockDevice struct {
	drv  *MockDriver
	path string
	rx   chan []byte

	closeOnce sync.Once
	done      chan struct{}
	failure   error
}

func (d *MockDevice) Read(p []byte) (int, error) {
	select {
	case buf := <-d.rx:
		return copy(p, buf), nil
	case <-d.done:
		return 0, d.failure
	}
}

func (d *MockDevice) Write(p []byte) (int, error) {
	select {
	case <-d.done:
		return 0, d.failure
	default:
	}
	if len(p) > d.MaxTransferSize() {
		return 0, fmt.Errorf("usb: transfer of %d bytes exceeds endpoint limit %d", len(p), d.MaxTransferSize())
	}
	if err := d.drv.record(d.path, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (d *MockDevice) MaxTransferSize() int {
	return d.drv.MaxTransfer
}

func (d *MockDevice) Close() error {
	d.drv.mu.Lock()
	if d.drv.open[d.path] == d {
		delete(d.drv.open, d.path)
	}
	d.drv.mu.Unlock()

	d.closeWith(ErrClosed)
	return nil
}

func (d *MockDevice) closeWith(err error) {
	d.closeOnce.Do(func() {
		d.failure = err
		close(d.done)
	})
}

package btusb

import (
	"sync"
	"sync/atomic"

	"github.com/busy-tag/busytag-usb-driver/driver"
)

// Size of the reusable bulk-in buffer. One read never exceeds it; the data
// callback sees exactly what one transfer produced.
const readBufferSize = 4096

// MaxSendSize caps the payload accepted by a single Send call. Payloads up
// to this size are fragmented internally into device-sized transfers and
// delivered in full, or the call fails.
const MaxSendSize = 4 << 20

// Session is one open channel to a connected device. It owns the device
// handle, a continuously resubmitting read loop and the send-in-progress
// serialization. Sessions are created and torn down only by the monitor's
// run loop.
type Session struct {
	dev  driver.Device
	info driver.DeviceInfo
	disp *Dispatcher

	// broken carries the teardown-as-detach notice to the monitor when the
	// read loop hits a transfer error.
	broken chan<- *Session

	writeMu  sync.Mutex
	closed   atomic.Bool
	readDone chan struct{}
}

func newSession(dev driver.Device, info driver.DeviceInfo, disp *Dispatcher, broken chan<- *Session) *Session {
	return &Session{
		dev:      dev,
		info:     info,
		disp:     disp,
		broken:   broken,
		readDone: make(chan struct{}),
	}
}

func (s *Session) start() {
	go s.readLoop()
}

// healthy reports whether the last known transfer state is good.
func (s *Session) healthy() bool {
	return !s.closed.Load()
}

// readLoop resubmits bulk-in transfers for the lifetime of the session,
// independent of caller activity. Completed reads are forwarded in arrival
// order; the buffer is reused, so callbacks must copy to retain. A transfer
// error means the pipe is gone: the monitor is told to tear the session down
// the same way a detach would.
func (s *Session) readLoop() {
	defer close(s.readDone)

	buf := make([]byte, readBufferSize)
	for {
		n, err := s.dev.Read(buf)
		if err != nil {
			if s.closed.CompareAndSwap(false, true) {
				select {
				case s.broken <- s:
				default:
				}
			}
			return
		}
		if n > 0 {
			s.disp.Data(buf[:n])
		}
	}
}

// Send submits one payload as a sequence of bulk-out transfers. It reports
// the full payload length on success; on failure nothing further is
// submitted and the error is returned. The write mutex is the
// send-in-progress flag: concurrent senders are serialized, and no monitor
// lock is held here, so sending from inside a data callback cannot deadlock
// against the read loop.
func (s *Session) Send(p []byte) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if !s.healthy() {
		return 0, NoSessionError{}
	}

	max := s.dev.MaxTransferSize()
	for sent := 0; sent < len(p); {
		end := sent + max
		if end > len(p) {
			end = len(p)
		}
		n, err := s.dev.Write(p[sent:end])
		if err != nil {
			s.disp.Logf("bulk write to %s failed after %d/%d bytes: %v", s.info, sent, len(p), err)
			return 0, TransferError{}
		}
		if n <= 0 {
			s.disp.Logf("bulk write to %s stalled at %d/%d bytes", s.info, sent, len(p))
			return 0, TransferError{}
		}
		sent += n
	}
	return len(p), nil
}

// close tears the session down deliberately: the closed flag keeps the read
// loop from reporting the resulting transfer error as a device loss, and
// closing the device wakes any outstanding read. close waits for the read
// loop to exit so no data callback can fire for this session afterwards.
func (s *Session) close() {
	s.closed.Store(true)
	s.dev.Close()
	<-s.readDone
}

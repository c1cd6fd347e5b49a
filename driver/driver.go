// Package driver is the platform USB capability layer: device identity,
// enumeration, and open bulk-transfer channels. The core engine in package
// btusb depends only on the interfaces here, so hardware can be swapped for
// the mock during development and tests.
package driver

import (
	"errors"
	"fmt"
)

// ID represents a USB vendor or product ID.
type ID uint16

// String returns a hexadecimal ID.
func (id ID) String() string {
	return fmt.Sprintf("%04x", uint16(id))
}

// BusyTag device signature (Espressif-based tag).
const (
	BusyTagVendorID  = ID(0x303A)
	BusyTagProductID = ID(0x81DF)
)

// BusyTagSignature matches the one device class this driver targets.
var BusyTagSignature = Signature{Vendor: BusyTagVendorID, Product: BusyTagProductID}

// DeviceInfo describes one enumerated USB device. Path is a stable
// platform token (bus:address) used to correlate attach and detach events.
type DeviceInfo struct {
	VendorID  ID
	ProductID ID
	Path      string
}

func (i DeviceInfo) String() string {
	return fmt.Sprintf("%s:%s@%s", i.VendorID, i.ProductID, i.Path)
}

// Signature is a fixed vendor/product identity to match against.
type Signature struct {
	Vendor  ID
	Product ID
}

// Matches reports whether an enumerated device carries this signature.
func (s Signature) Matches(info DeviceInfo) bool {
	return info.VendorID == s.Vendor && info.ProductID == s.Product
}

var (
	// ErrNotFound is returned by Open when the device is no longer present.
	ErrNotFound = errors.New("usb: device not found")
	// ErrClosed is returned for transfers on a closed device.
	ErrClosed = errors.New("usb: device closed")
	// ErrNoBulkEndpoints is returned by Open when the device exposes no
	// bulk in/out endpoint pair.
	ErrNoBulkEndpoints = errors.New("usb: no bulk endpoint pair")
)

// Driver enumerates devices and opens bulk-transfer channels to them.
type Driver interface {
	// Enumerate lists the devices currently reported by the platform.
	Enumerate() ([]DeviceInfo, error)
	// Open claims the device and returns an open channel to it.
	Open(info DeviceInfo) (Device, error)
	// Close releases the underlying platform context. Open devices keep
	// working until closed individually.
	Close() error
}

// Device is one open bulk-transfer channel.
type Device interface {
	// Read performs a bulk-in transfer. It blocks until the device
	// produces data or the device is closed, in which case it returns
	// an error. len(p) bounds one transfer.
	Read(p []byte) (int, error)
	// Write performs a bulk-out transfer of at most MaxTransferSize bytes.
	Write(p []byte) (int, error)
	// MaxTransferSize is the largest length accepted by a single Write.
	MaxTransferSize() int
	// Close releases the channel and cancels any outstanding Read.
	Close() error
}

// Notifier is optionally implemented by drivers that can signal topology
// changes. The Watcher rescans immediately on a notification instead of
// waiting for the next poll tick.
type Notifier interface {
	Changes() <-chan struct{}
}

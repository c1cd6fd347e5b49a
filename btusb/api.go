package btusb

import "github.com/busy-tag/busytag-usb-driver/driver"

// The default registry backs the exported C surface and the Go convenience
// API. Each monitor created through it owns its own platform USB context.
var defaultRegistry = NewRegistry()

// newPlatformDriver constructs the platform USB stack. Tests swap it out.
var newPlatformDriver = driver.NewUSB

// Create allocates an idle monitor on the platform USB stack and returns
// its handle, or InvalidHandle if the stack cannot be initialized. libusb
// initialization failures surface as a panic inside gousb, so Create
// converts that into the error handle the C surface expects.
func Create() (h Handle) {
	defer func() {
		if recover() != nil {
			h = InvalidHandle
		}
	}()
	return defaultRegistry.Create(newPlatformDriver())
}

// Destroy invalidates h, tearing down monitoring, any open session and all
// callback registrations. Idempotent; blocks until in-flight callbacks for h
// have returned.
func Destroy(h Handle) { defaultRegistry.Destroy(h) }

// StartMonitoring begins hot-plug monitoring for h.
func StartMonitoring(h Handle) { defaultRegistry.StartMonitoring(h) }

// StopMonitoring ends hot-plug monitoring for h.
func StopMonitoring(h Handle) { defaultRegistry.StopMonitoring(h) }

// IsConnected reports whether h has an open, healthy session.
func IsConnected(h Handle) bool { return defaultRegistry.IsConnected(h) }

// IsDevicePresent reports whether a matching device is physically present.
func IsDevicePresent(h Handle) bool { return defaultRegistry.IsDevicePresent(h) }

// Send submits p through h's active session and returns the number of bytes
// delivered.
func Send(h Handle, p []byte) (int, error) { return defaultRegistry.Send(h, p) }

// SendString submits the UTF-8 bytes of str, without a terminator.
func SendString(h Handle, str string) (int, error) { return defaultRegistry.SendString(h, str) }

// SetDataCallback replaces h's data callback.
func SetDataCallback(h Handle, fn DataFunc) { defaultRegistry.SetDataCallback(h, fn) }

// SetConnectionCallback replaces h's connection callback.
func SetConnectionCallback(h Handle, fn ConnectionFunc) {
	defaultRegistry.SetConnectionCallback(h, fn)
}

// SetLogCallback replaces h's log callback.
func SetLogCallback(h Handle, fn LogFunc) { defaultRegistry.SetLogCallback(h, fn) }

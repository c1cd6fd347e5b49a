package btusb

import (
	"testing"

	"github.com/busy-tag/busytag-usb-driver/driver"
)

func TestCreateSurvivesPlatformInitPanic(t *testing.T) {
	orig := newPlatformDriver
	defer func() { newPlatformDriver = orig }()

	newPlatformDriver = func() driver.Driver {
		panic("libusb: failed to initialize")
	}
	if h := Create(); h != InvalidHandle {
		t.Fatalf("Create with failing platform stack = %#x, want InvalidHandle", h)
	}

	// A later Create against a working stack is unaffected.
	newPlatformDriver = func() driver.Driver { return driver.NewMock() }
	h := Create()
	if h == InvalidHandle {
		t.Fatal("Create returned InvalidHandle for a working stack")
	}
	Destroy(h)
}

// The btusb_* exports, built with -buildmode=c-shared into the library a
// host application links against. Everything here is a thin shim: validate,
// convert at the boundary, dispatch into package btusb. No panic may cross
// into C; every export recovers and reports a status code instead.
package main

/*
#include <stdint.h>
#include <stdlib.h>
#include "btusb.h"
*/
import "C"

import (
	"unsafe"

	"github.com/busy-tag/busytag-usb-driver/btusb"
)

func toHandle(h C.btusb_handle_t) btusb.Handle {
	return btusb.Handle(uintptr(h))
}

func fromHandle(h btusb.Handle) C.btusb_handle_t {
	return C.btusb_handle_t(unsafe.Pointer(uintptr(h)))
}

// btusb_create allocates a new monitor and returns its handle, or NULL if
// the USB stack cannot be initialized.
//
//export btusb_create
func btusb_create() (h C.btusb_handle_t) {
	defer func() {
		if recover() != nil {
			h = fromHandle(btusb.InvalidHandle)
		}
	}()
	return fromHandle(btusb.Create())
}

// btusb_destroy invalidates the handle. Idempotent; returns only after any
// in-flight callback for this handle has completed.
//
//export btusb_destroy
func btusb_destroy(handle C.btusb_handle_t) {
	defer func() { recover() }()
	btusb.Destroy(toHandle(handle))
}

//export btusb_start_monitoring
func btusb_start_monitoring(handle C.btusb_handle_t) {
	defer func() { recover() }()
	btusb.StartMonitoring(toHandle(handle))
}

//export btusb_stop_monitoring
func btusb_stop_monitoring(handle C.btusb_handle_t) {
	defer func() { recover() }()
	btusb.StopMonitoring(toHandle(handle))
}

//export btusb_is_connected
func btusb_is_connected(handle C.btusb_handle_t) (r C.int32_t) {
	defer func() {
		if recover() != nil {
			r = 0
		}
	}()
	if btusb.IsConnected(toHandle(handle)) {
		return 1
	}
	return 0
}

//export btusb_is_device_present
func btusb_is_device_present(handle C.btusb_handle_t) (r C.int32_t) {
	defer func() {
		if recover() != nil {
			r = 0
		}
	}()
	if btusb.IsDevicePresent(toHandle(handle)) {
		return 1
	}
	return 0
}

// btusb_send submits length bytes to the connected device. It returns the
// number of bytes delivered (always length on success) or a negative status
// code. The caller's buffer is copied before the call returns to the
// transfer engine.
//
//export btusb_send
func btusb_send(handle C.btusb_handle_t, data *C.uint8_t, length C.int32_t) (r C.int32_t) {
	defer func() {
		if recover() != nil {
			r = C.int32_t(btusb.StatusInternal)
		}
	}()
	if data == nil || length <= 0 {
		return C.int32_t(btusb.StatusInvalidLength)
	}
	buf := C.GoBytes(unsafe.Pointer(data), C.int(length))
	n, err := btusb.Send(toHandle(handle), buf)
	if err != nil {
		return C.int32_t(btusb.StatusOf(err))
	}
	return C.int32_t(n)
}

// btusb_send_string submits the UTF-8 bytes of a NUL-terminated string. The
// terminator is not transferred.
//
//export btusb_send_string
func btusb_send_string(handle C.btusb_handle_t, str *C.char) (r C.int32_t) {
	defer func() {
		if recover() != nil {
			r = C.int32_t(btusb.StatusInternal)
		}
	}()
	if str == nil {
		return C.int32_t(btusb.StatusInvalidLength)
	}
	n, err := btusb.SendString(toHandle(handle), C.GoString(str))
	if err != nil {
		return C.int32_t(btusb.StatusOf(err))
	}
	return C.int32_t(n)
}

// btusb_set_data_callback replaces the data callback. The buffer passed to
// the callback is only valid for the duration of the invocation; the
// context pointer is forwarded unchanged and never dereferenced.
//
//export btusb_set_data_callback
func btusb_set_data_callback(handle C.btusb_handle_t, callback C.btusb_data_callback_t, context unsafe.Pointer) {
	defer func() { recover() }()
	h := toHandle(handle)
	if callback == nil {
		btusb.SetDataCallback(h, nil)
		return
	}
	btusb.SetDataCallback(h, func(data []byte) {
		var ptr *C.uint8_t
		if len(data) > 0 {
			ptr = (*C.uint8_t)(unsafe.Pointer(&data[0]))
		}
		C.btusb_invoke_data_callback(callback, ptr, C.int32_t(len(data)), context)
	})
}

//export btusb_set_connection_callback
func btusb_set_connection_callback(handle C.btusb_handle_t, callback C.btusb_connection_callback_t, context unsafe.Pointer) {
	defer func() { recover() }()
	h := toHandle(handle)
	if callback == nil {
		btusb.SetConnectionCallback(h, nil)
		return
	}
	btusb.SetConnectionCallback(h, func(connected bool) {
		var flag C.int32_t
		if connected {
			flag = 1
		}
		C.btusb_invoke_connection_callback(callback, flag, context)
	})
}

//export btusb_set_log_callback
func btusb_set_log_callback(handle C.btusb_handle_t, callback C.btusb_log_callback_t, context unsafe.Pointer) {
	defer func() { recover() }()
	h := toHandle(handle)
	if callback == nil {
		btusb.SetLogCallback(h, nil)
		return
	}
	btusb.SetLogCallback(h, func(message string) {
		msg := C.CString(message)
		C.btusb_invoke_log_callback(callback, msg, context)
		C.free(unsafe.Pointer(msg))
	})
}

// Required for -buildmode=c-shared.
func main() {}

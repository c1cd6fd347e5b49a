package driver

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/gousb"
)

// Largest payload submitted to libusb in one bulk transfer. Larger sends are
// fragmented by the session layer.
const maxIOSize = 64 << 10

// usbDriver is the libusb-backed Driver used against real hardware.
type usbDriver struct {
	ctx *gousb.Context
}

// NewUSB returns a Driver backed by the platform USB stack.
func NewUSB() Driver {
	return &usbDriver{ctx: gousb.NewContext()}
}

func devicePath(desc *gousb.DeviceDesc) string {
	return fmt.Sprintf("%d:%d", desc.Bus, desc.Address)
}

// Enumerate lists the bus without opening anything: the visitor records every
// descriptor and declines the open.
func (d *usbDriver) Enumerate() ([]DeviceInfo, error) {
	var infos []DeviceInfo
	_, err := d.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		infos = append(infos, DeviceInfo{
			VendorID:  ID(uint16(desc.Vendor)),
			ProductID: ID(uint16(desc.Product)),
			Path:      devicePath(desc),
		})
		return false
	})
	if err != nil {
		return nil, err
	}
	return infos, nil
}

func (d *usbDriver) Open(info DeviceInfo) (Device, error) {
	devs, err := d.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return ID(uint16(desc.Vendor)) == info.VendorID &&
			ID(uint16(desc.Product)) == info.ProductID &&
			devicePath(desc) == info.Path
	})
	if err != nil {
		for _, dev := range devs {
			dev.Close()
		}
		return nil, err
	}
	if len(devs) == 0 {
		return nil, ErrNotFound
	}
	// Bus:address is unique, so at most one device can match.
	dev := devs[0]
	for _, extra := range devs[1:] {
		extra.Close()
	}

	// Best effort: not every platform lets us detach a kernel driver.
	_ = dev.SetAutoDetach(true)

	intf, release, err := dev.DefaultInterface()
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("usb: claiming interface: %w", err)
	}

	var inDesc, outDesc gousb.EndpointDesc
	haveIn, haveOut := false, false
	for _, ep := range intf.Setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		switch ep.Direction {
		case gousb.EndpointDirectionIn:
			if !haveIn {
				inDesc, haveIn = ep, true
			}
		case gousb.EndpointDirectionOut:
			if !haveOut {
				outDesc, haveOut = ep, true
			}
		}
	}
	if !haveIn || !haveOut {
		release()
		dev.Close()
		return nil, ErrNoBulkEndpoints
	}

	in, err := intf.InEndpoint(inDesc.Number)
	if err != nil {
		release()
		dev.Close()
		return nil, fmt.Errorf("usb: bulk-in endpoint: %w", err)
	}
	out, err := intf.OutEndpoint(outDesc.Number)
	if err != nil {
		release()
		dev.Close()
		return nil, fmt.Errorf("usb: bulk-out endpoint: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &usbDevice{
		dev:     dev,
		release: release,
		in:      in,
		out:     out,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

func (d *usbDriver) Close() error {
	return d.ctx.Close()
}

// usbDevice is one claimed device with its bulk endpoint pair. Transfers run
// under a device-scoped context so Close cancels an outstanding read.
type usbDevice struct {
	dev     *gousb.Device
	release func()
	in      *gousb.InEndpoint
	out     *gousb.OutEndpoint

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

func (d *usbDevice) Read(p []byte) (int, error) {
	n, err := d.in.ReadContext(d.ctx, p)
	if err != nil && d.ctx.Err() != nil {
		return n, ErrClosed
	}
	return n, err
}

func (d *usbDevice) Write(p []byte) (int, error) {
	n, err := d.out.WriteContext(d.ctx, p)
	if err != nil && d.ctx.Err() != nil {
		return n, ErrClosed
	}
	return n, err
}

func (d *usbDevice) MaxTransferSize() int {
	return maxIOSize
}

func (d *usbDevice) Close() error {
	d.closeOnce.Do(func() {
		d.cancel()
		d.release()
		d.closeErr = d.dev.Close()
	})
	return d.closeErr
}

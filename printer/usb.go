package printer

import (
	"fmt"

	"github.com/google/gousb"
)

// VendorBrother is the USB vendor ID shared by the label printers.
const VendorBrother gousb.ID = 0x04f9

type usbConn struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface
	out  *gousb.OutEndpoint
	in   *gousb.InEndpoint
}

// NewUSBPrinter opens the printer with the given USB IDs. A zero
// vendorID matches any Brother device; a zero productID matches any
// product of the vendor.
func NewUSBPrinter(vendorID, productID gousb.ID) (*Printer, error) {
	if vendorID == 0 {
		vendorID = VendorBrother
	}
	ctx := gousb.NewContext()
	dev, err := findUSBPrinter(ctx, vendorID, productID)
	if err != nil {
		ctx.Close()
		return nil, err
	}

	dev.SetAutoDetach(true)
	cfg, err := dev.Config(1)
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, err
	}

	intf, err := cfg.Interface(0, 0)
	if err != nil {
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, err
	}

	outEp, err := intf.OutEndpoint(0x01)
	if err != nil {
		intf.Close()
		cfg.Close()
		dev.Close()
		ctx.Close()
		return nil, err
	}

	// Status replies arrive on the IN endpoint; not every model has
	// one, and printing works without it.
	inEp, err := intf.InEndpoint(1)
	if err != nil {
		inEp = nil
	}

	conn := &usbConn{ctx, dev, cfg, intf, outEp, inEp}
	printer, err := NewPrinter(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return printer, nil
}

func findUSBPrinter(ctx *gousb.Context, vendorID, productID gousb.ID) (*gousb.Device, error) {
	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if desc.Vendor != vendorID {
			return false
		}
		return productID == 0 || desc.Product == productID
	})
	if len(devs) == 0 {
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("no USB printer %s:%s found", vendorID, productID)
	}
	for _, d := range devs[1:] {
		d.Close()
	}
	return devs[0], nil
}

func (u *usbConn) Read(p []byte) (int, error) {
	if u.in != nil {
		return u.in.Read(p)
	}
	return 0, fmt.Errorf("USB read not supported")
}

func (u *usbConn) Write(p []byte) (int, error) {
	return u.out.Write(p)
}

func (u *usbConn) Close() error {
	if u.intf != nil {
		u.intf.Close()
	}
	if u.cfg != nil {
		u.cfg.Close()
	}
	if u.dev != nil {
		u.dev.Close()
	}
	if u.ctx != nil {
		u.ctx.Close()
	}
	return nil
}

package printer

import (
	"fmt"
	"time"

	"go.bug.st/serial"

	logInternal "github.com/philpem/printer-driver-ptouch/log"
)

// NewSerialPrinter opens the printer on a serial port (RS-232 models
// and USB CDC gadgets alike). The line settings are fixed at 8N1.
func NewSerialPrinter(portName string, baudRate int) (*Printer, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to list serial ports: %w", err)
	}
	if !contains(ports, portName) {
		logInternal.Debugf("available ports: %v", ports)
		return nil, fmt.Errorf("serial port %s not found", portName)
	}

	mode := &serial.Mode{
		BaudRate: baudRate,
		Parity:   serial.NoParity,
		DataBits: 8,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}
	port.SetReadTimeout(100 * time.Millisecond)

	printer, err := NewPrinter(port)
	if err != nil {
		port.Close()
		return nil, err
	}
	return printer, nil
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

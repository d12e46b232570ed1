package printer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	logInternal "github.com/philpem/printer-driver-ptouch/log"
	"github.com/philpem/printer-driver-ptouch/raster"
)

// ErrNotConnected is returned by operations on a closed printer.
var ErrNotConnected = errors.New("printer not connected")

// ErrNoStatus means the printer did not answer a status request;
// one-way transports (LPD spooling, plain files) cannot answer.
var ErrNoStatus = errors.New("no status reply")

// Printer is a connected label printer. It owns its transport and
// closes it on Close.
type Printer struct {
	t Transport
}

// NewPrinter wraps w in a printer handle. A TCP connection to the LPD
// port is spooled as an RFC 1179 job; everything else is written
// straight through.
func NewPrinter(w io.ReadWriter) (*Printer, error) {
	if conn, ok := w.(net.Conn); ok {
		if _, port, err := net.SplitHostPort(conn.RemoteAddr().String()); err == nil && port == "515" {
			return &Printer{t: NewLPDTransport(conn, "")}, nil
		}
		return &Printer{t: NewRawTransport(conn)}, nil
	}
	if rc, ok := w.(io.ReadWriteCloser); ok {
		return &Printer{t: NewRawTransport(rc)}, nil
	}
	return &Printer{t: NewRawTransport(nopCloser{w})}, nil
}

// NewLPDPrinter connects to host's LPD daemon and spools into queue
// (empty selects the adapters' default binary queue).
func NewLPDPrinter(host, queue string) (*Printer, error) {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, "515"), 10*time.Second)
	if err != nil {
		return nil, err
	}
	return &Printer{t: NewLPDTransport(conn, queue)}, nil
}

// Write writes raw bytes to the printer.
func (p *Printer) Write(buf []byte) (int, error) {
	if p.t == nil {
		return 0, ErrNotConnected
	}
	return p.t.Write(buf)
}

// Print encodes pages from src with the given options and sends the
// command stream.
func (p *Printer) Print(ctx context.Context, src raster.Source, options JobOptions) error {
	if p.t == nil {
		return ErrNotConnected
	}
	return NewJob(p.t, options).Print(ctx, src)
}

// Init clears the device print buffer.
func (p *Printer) Init() error {
	w := &cmdWriter{w: p.t}
	w.initialize()
	return w.err
}

// Eject prints any buffered data and feeds the label out.
func (p *Printer) Eject() error {
	w := &cmdWriter{w: p.t}
	w.eject()
	return w.err
}

// Close releases the transport; a spooling transport submits its job.
func (p *Printer) Close() error {
	if p.t == nil {
		return nil
	}
	err := p.t.Close()
	p.t = nil
	return err
}

// Status is a decoded status information reply.
type Status struct {
	Model      byte
	Error1     byte // error information 1
	Error2     byte // error information 2
	MediaWidth int  // mm
	MediaType  byte
	MediaLen   int  // mm, 0 for continuous tape
	Type       byte // reply type: 0 poll, 1 printing complete, 2 error
	Phase      byte
}

// OK reports whether the printer signalled no error.
func (s *Status) OK() bool {
	return s.Error1 == 0 && s.Error2 == 0
}

func (s *Status) String() string {
	return fmt.Sprintf("model 0x%02x media %dx%dmm type 0x%02x err %02x/%02x",
		s.Model, s.MediaWidth, s.MediaLen, s.MediaType, s.Error1, s.Error2)
}

// ReadStatus requests status information (ESC i S) and decodes the
// 32-byte reply. The transport must be bidirectional.
func (p *Printer) ReadStatus() (*Status, error) {
	if p.t == nil {
		return nil, ErrNotConnected
	}
	w := &cmdWriter{w: p.t}
	w.raw(esc, 'i', 'S')
	if w.err != nil {
		return nil, w.err
	}

	reply := make([]byte, 32)
	if _, err := io.ReadFull(p.t, reply); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoStatus, err)
	}
	if reply[0] != 0x80 || reply[1] != 0x20 {
		logInternal.Debugf("unexpected status header % x", reply[:4])
		return nil, ErrNoStatus
	}
	return &Status{
		Model:      reply[4],
		Error1:     reply[8],
		Error2:     reply[9],
		MediaWidth: int(reply[10]),
		MediaType:  reply[11],
		MediaLen:   int(reply[17]),
		Type:       reply[18],
		Phase:      reply[19],
	}, nil
}

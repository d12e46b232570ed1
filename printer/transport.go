package printer

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	logInternal "github.com/philpem/printer-driver-ptouch/log"
)

// Transport carries the command stream to a printer. Write order is
// the print order; Close releases the underlying connection and, for
// spooled transports, submits the job.
type Transport interface {
	Write([]byte) (int, error)
	Read([]byte) (int, error)
	Close() error
}

// RawTransport writes the stream straight through, as over USB,
// serial or a JetDirect-style port 9100 socket.
type RawTransport struct {
	conn io.ReadWriteCloser
}

func NewRawTransport(conn io.ReadWriteCloser) *RawTransport {
	return &RawTransport{conn: conn}
}

func (r *RawTransport) Write(b []byte) (int, error) { return r.conn.Write(b) }
func (r *RawTransport) Read(b []byte) (int, error)  { return r.conn.Read(b) }
func (r *RawTransport) Close() error                { return r.conn.Close() }

// LPDTransport spools the stream into an RFC 1179 print job. The
// label printers' network adapters expose an LPD daemon with a single
// queue, usually named BINARY_P1. The whole job is buffered and
// submitted on Close, since LPD needs the data file size up front.
type LPDTransport struct {
	conn   net.Conn
	queue  string
	jobBuf bytes.Buffer
	closed bool
	mu     sync.Mutex
}

func NewLPDTransport(conn net.Conn, queue string) *LPDTransport {
	if queue == "" {
		queue = "BINARY_P1"
	}
	return &LPDTransport{
		conn:  conn,
		queue: queue,
	}
}

func (l *LPDTransport) Write(data []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, io.ErrClosedPipe
	}
	return l.jobBuf.Write(data)
}

func (l *LPDTransport) Read(b []byte) (int, error) {
	return l.conn.Read(b)
}

func (l *LPDTransport) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	defer func() { l.closed = true }()

	if l.jobBuf.Len() == 0 {
		return l.conn.Close()
	}

	logInternal.Debugf("submitting %d-byte job to LPD queue %s", l.jobBuf.Len(), l.queue)
	if err := l.submitJob(); err != nil {
		_ = l.conn.Close()
		return err
	}
	return l.conn.Close()
}

func (l *LPDTransport) submitJob() error {
	host, _ := os.Hostname()
	if host == "" {
		host = "localhost"
	}
	user := os.Getenv("USER")
	if user == "" {
		user = "ptouch"
	}

	jobID := int(time.Now().UnixNano() % 1000000)
	hostShort := host
	if i := strings.IndexByte(hostShort, '.'); i > 0 {
		hostShort = hostShort[:i]
	}
	jobName := fmt.Sprintf("ptouch-%d", jobID)
	cfName := fmt.Sprintf("cfA%03d%s", jobID%1000, hostShort)
	dfName := fmt.Sprintf("dfA%03d%s", jobID%1000, hostShort)

	// H host, P user, J job name, N original file name, U data file
	control := fmt.Sprintf(
		"H%s\nP%s\nJ%s\nN%s\nU%s\n",
		host, user, jobName, dfName, dfName,
	)

	if err := requestPrintJob(l.conn, l.queue); err != nil {
		return fmt.Errorf("LPD: receive-job failed: %w", err)
	}
	if err := sendControlFile(l.conn, cfName, []byte(control)); err != nil {
		return fmt.Errorf("LPD: control file failed: %w", err)
	}
	if err := sendDataFile(l.conn, dfName, l.jobBuf.Bytes()); err != nil {
		return fmt.Errorf("LPD: data file failed: %w", err)
	}

	l.jobBuf.Reset()
	return nil
}

func requestPrintJob(conn net.Conn, queue string) error {
	// \x02 + <queue>\n
	if err := writeAll(conn, []byte{0x02}); err != nil {
		return err
	}
	if err := writeAll(conn, []byte(queue+"\n")); err != nil {
		return err
	}
	return readAck(conn, "receive-job")
}

func sendControlFile(conn net.Conn, cfName string, control []byte) error {
	// \x02 + "<size> <cfName>\n" + <control> + \x00
	if err := writeAll(conn, []byte{0x02}); err != nil {
		return err
	}
	header := []byte(strconv.Itoa(len(control)) + " " + cfName + "\n")
	if err := writeAll(conn, header); err != nil {
		return err
	}
	if err := writeAll(conn, control); err != nil {
		return err
	}
	if err := writeAll(conn, []byte{0x00}); err != nil {
		return err
	}
	return readAck(conn, "control file")
}

func sendDataFile(conn net.Conn, dfName string, data []byte) error {
	// \x03 + "<size> <dfName>\n" + <data> + \x00
	if err := writeAll(conn, []byte{0x03}); err != nil {
		return err
	}
	header := []byte(strconv.Itoa(len(data)) + " " + dfName + "\n")
	if err := writeAll(conn, header); err != nil {
		return err
	}
	if err := writeAll(conn, data); err != nil {
		return err
	}
	if err := writeAll(conn, []byte{0x00}); err != nil {
		return err
	}
	return readAck(conn, "data file")
}

func readAck(conn net.Conn, stage string) error {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	defer conn.SetReadDeadline(time.Time{})

	ack := make([]byte, 1)
	n, err := conn.Read(ack)
	if err != nil {
		return fmt.Errorf("reading ACK on %s: %w", stage, err)
	}
	if n != 1 || ack[0] != 0x00 {
		return fmt.Errorf("LPD request not acknowledged on %s", stage)
	}
	return nil
}

func writeAll(conn net.Conn, b []byte) error {
	sent := 0
	for sent < len(b) {
		n, err := conn.Write(b[sent:])
		if err != nil {
			return err
		}
		sent += n
	}
	return nil
}

type nopCloser struct {
	io.ReadWriter
}

func (n nopCloser) Close() error { return nil }

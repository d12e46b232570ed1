package printer

import (
	"errors"
	"fmt"

	logInternal "github.com/philpem/printer-driver-ptouch/log"
)

// ErrBufferExhausted means the line buffer could not hold a single
// record even after flushing; a record must never split across a
// flush, so this is fatal for the job.
var ErrBufferExhausted = errors.New("line buffer exhausted")

// bufIncrement is the fixed term of the geometric buffer growth.
const bufIncrement = 0x4000

// lineBuffer accumulates complete encoded line records and flushes
// them to the output either on demand or once linesWaiting reaches
// maxLines. The buffer only ever holds whole records, so a flush is
// safe at any time.
type lineBuffer struct {
	buf          []byte
	linesWaiting int

	ceiling      int
	maxLines     int // 0 = no automatic flushing
	ql           bool
	bytesPerLine int
	xfer         Transfer

	// preamble, when set, runs before flushed data is written; it
	// receives the number of lines about to be emitted.
	preamble func(w *cmdWriter, lines uint)
}

func newLineBuffer(options *JobOptions) *lineBuffer {
	return &lineBuffer{
		ceiling:      options.BufferCeiling,
		maxLines:     options.MaxLinesWaiting,
		ql:           options.QLSeries,
		bytesPerLine: options.BytesPerLine,
		xfer:         options.PixelXfer,
	}
}

// ensureSpace makes room for n more bytes. Growth is geometric and
// bounded by the ceiling; when growing is not possible the buffer is
// flushed to reclaim space instead.
func (b *lineBuffer) ensureSpace(w *cmdWriter, n int) error {
	if len(b.buf)+n <= cap(b.buf) {
		return nil
	}
	newCap := cap(b.buf)*2 + bufIncrement
	if newCap >= len(b.buf)+n && newCap <= b.ceiling {
		grown := make([]byte, len(b.buf), newCap)
		copy(grown, b.buf)
		b.buf = grown
		return nil
	}
	// Gain memory by flushing the buffer to the printer.
	if err := b.flush(w); err != nil {
		return err
	}
	if n > cap(b.buf) {
		return fmt.Errorf("%w: cannot hold %d-byte record within ceiling %d", ErrBufferExhausted, n, b.ceiling)
	}
	return nil
}

// appendRepeatSpan appends one repeated-byte run record fragment.
// Precondition: 1 <= length <= 129.
func (b *lineBuffer) appendRepeatSpan(val byte, length int) {
	b.buf = append(b.buf, byte(1-length), val)
}

// appendLiteralSpan appends one mixed-bytes run record fragment.
// Precondition: 1 <= len(span) <= 128.
func (b *lineBuffer) appendLiteralSpan(span []byte) {
	b.buf = append(b.buf, byte(len(span)-1))
	b.buf = append(b.buf, span...)
}

// storeLine run-length encodes one device line into the buffer.
//
// The encoding is at most len(line) + len(line)/128 + 1 bytes: a
// repeated run always has a repeat factor of at least 3, so its record
// is strictly shorter than the run it replaces, and two mixed runs
// never follow each other directly unless the first is exactly 128
// bytes long.
func (b *lineBuffer) storeLine(w *cmdWriter, line []byte) error {
	n := len(line)
	if n == 0 {
		return nil
	}
	if err := b.ensureSpace(w, 4+n+n/128); err != nil {
		return err
	}
	start := len(b.buf)
	// Room for the record header, written once the length is known.
	b.buf = append(b.buf, 0, 0, 0)

	var nonzero byte
	mix, rep := 0, 0 // pending mixed span start, pending repeat span start
	repVal := line[0]
	for next := 0; next < n; next++ {
		// Invariants: line[mix:rep] is a pending mixed span,
		// line[rep:next] is a pending span of repVal bytes,
		// next-rep <= 129 and rep-mix < 128.
		nextVal := line[next]
		nonzero |= nextVal
		if next-rep >= 129 {
			b.appendRepeatSpan(repVal, next-rep)
			rep = next
			repVal = line[rep]
			mix = rep
		}
		if nextVal == repVal {
			if next-rep == 2 && rep > mix {
				b.appendLiteralSpan(line[mix:rep])
				mix = rep
			}
		} else {
			if next-rep > 2 {
				b.appendRepeatSpan(repVal, next-rep)
				mix = next
			}
			rep = next
			repVal = nextVal
			if rep-mix >= 128 {
				b.appendLiteralSpan(line[mix : mix+128])
				mix += 128
			}
		}
	}
	if n-rep > 2 {
		b.appendRepeatSpan(repVal, n-rep)
		mix = n
	}
	if mixLen := n - mix; mixLen > 0 {
		if mixLen > 128 {
			mixLen = 128
		}
		b.appendLiteralSpan(line[mix : mix+mixLen])
		mix += mixLen
	}
	if n > mix { // final mixed span was 129 bytes
		b.appendLiteralSpan(line[mix:n])
	}

	rleLen := len(b.buf) - start - 3
	if nonzero != 0 {
		if b.ql {
			b.buf[start] = 'g'
			b.buf[start+1] = byte(rleLen >> 8)
			b.buf[start+2] = byte(rleLen)
		} else {
			b.buf[start] = 'G'
			b.buf[start+1] = byte(rleLen)
			b.buf[start+2] = byte(rleLen >> 8)
		}
	} else {
		// A blank line is a single advance-tape marker, whatever the
		// configured width.
		b.buf = b.buf[:start+1]
		b.buf[start] = 'Z'
	}

	b.linesWaiting++
	if b.maxLines > 0 && b.linesWaiting >= b.maxLines {
		return b.flush(w)
	}
	return nil
}

// storeEmptyLines stores count blank rows. With a zero xormask each
// row is the 1-byte advance marker; under negative printing a blank
// source row must still print full-width mask bytes, so it becomes
// ordinary repeat runs.
func (b *lineBuffer) storeEmptyLines(w *cmdWriter, count int, xormask byte) error {
	if count <= 0 {
		return nil
	}
	b.linesWaiting += count
	if xormask != 0 {
		perLine := 3 + 2*((b.bytesPerLine+128)/129)
		if err := b.ensureSpace(w, count*perLine); err != nil {
			return err
		}
		for ; count > 0; count-- {
			start := len(b.buf)
			b.buf = append(b.buf, 0, 0, 0)
			for left := b.bytesPerLine; left > 0; {
				repLen := left
				if repLen > 129 {
					repLen = 129
				}
				b.appendRepeatSpan(xormask, repLen)
				left -= repLen
			}
			rleLen := len(b.buf) - start - 3
			if b.ql {
				b.buf[start] = 'g'
				b.buf[start+1] = byte(rleLen >> 8)
				b.buf[start+2] = byte(rleLen)
			} else {
				b.buf[start] = 'G'
				b.buf[start+1] = byte(rleLen)
				b.buf[start+2] = byte(rleLen >> 8)
			}
		}
		return nil
	}
	if err := b.ensureSpace(w, count); err != nil {
		return err
	}
	for ; count > 0; count-- {
		b.buf = append(b.buf, 'Z')
	}
	return nil
}

// flush writes all buffered records to the output and resets the
// buffer. RLE transfer writes the records verbatim; ULP and BIP
// re-expand every record into bytesPerLine uncompressed bytes.
func (b *lineBuffer) flush(w *cmdWriter) error {
	if b.linesWaiting == 0 {
		return w.err
	}
	if b.preamble != nil {
		b.preamble(w, uint(b.linesWaiting))
	}
	switch b.xfer {
	case RLE:
		w.write(b.buf)
	case ULP, BIP:
		b.expand(w)
	default:
		logInternal.LogMessage(logInternal.ERROR,
			fmt.Sprintf("Unknown pixel transfer mode: '%d'", b.xfer))
	}
	b.buf = b.buf[:0]
	b.linesWaiting = 0
	return w.err
}

// expand decodes buffered records into uncompressed lines. ULP lines
// get the per-line uncompressed raster header; BIP emits bare pixel
// bytes. Decoded lines shorter than the device width are zero-padded.
func (b *lineBuffer) expand(w *cmdWriter) {
	line := make([]byte, 0, b.bytesPerLine+8)
	p := 0
	for p < len(b.buf) {
		flag := b.buf[p]
		p++
		line = line[:0]
		switch flag {
		case 'G', 'g':
			var lineLen int
			if flag == 'G' {
				lineLen = int(b.buf[p]) | int(b.buf[p+1])<<8
			} else {
				lineLen = int(b.buf[p])<<8 | int(b.buf[p+1])
			}
			p += 2
			for lineLen > 0 {
				l := int(int8(b.buf[p]))
				p++
				lineLen--
				if l < 0 { // repeated data
					data := b.buf[p]
					p++
					lineLen--
					for count := 1 - l; count > 0; count-- {
						line = append(line, data)
					}
				} else { // the l + 1 following bytes of data
					line = append(line, b.buf[p:p+l+1]...)
					p += l + 1
					lineLen -= l + 1
				}
			}
			if len(line) > b.bytesPerLine {
				logInternal.LogMessage(logInternal.ERROR,
					fmt.Sprintf("Emitted %d > %d bytes for one pixel line!", len(line), b.bytesPerLine))
			}
		case 'Z':
			// expands to a full blank line below
		default:
			logInternal.LogMessage(logInternal.ERROR,
				fmt.Sprintf("Unknown RLE flag '0x%02x' at offset %d", flag, p-1))
			continue
		}
		for len(line) < b.bytesPerLine {
			line = append(line, 0x00)
		}
		if b.xfer == ULP {
			w.raw('g', 0x00, byte(b.bytesPerLine))
		}
		w.write(line)
	}
}

// release drops the buffer storage at job end.
func (b *lineBuffer) release() {
	b.buf = nil
	b.linesWaiting = 0
}

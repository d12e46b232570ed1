package printer

import (
	"io"

	"github.com/philpem/printer-driver-ptouch/util"
)

// Printer control codes.
const (
	esc         = 0x1b
	ptcEject    = 0x1a // print buffer data and eject
	ptcFormFeed = 0x0c // print buffer data without ejecting
)

// ESC i z validity bits.
const (
	piKind    = 0x02 // paper type byte is valid
	piWidth   = 0x04 // paper width byte is valid
	piLength  = 0x08 // paper length byte is valid
	piQuality = 0x40
	piRecover = 0x80
)

// invalidateLen is the length of the zero warm-up preamble. The
// printer ignores 0x00 while waiting for a command, so this recovers
// a device left mid-command by an aborted job.
const invalidateLen = 350

// cmdWriter emits printer commands with a sticky first error, so a
// command sequence can be written straight through and checked once.
type cmdWriter struct {
	w   io.Writer
	err error
}

func (c *cmdWriter) write(b []byte) {
	if c.err != nil {
		return
	}
	_, c.err = c.w.Write(b)
}

func (c *cmdWriter) raw(b ...byte) {
	c.write(b)
}

func (c *cmdWriter) invalidate() {
	c.write(make([]byte, invalidateLen))
}

// initialize clears the print buffer: ESC @.
func (c *cmdWriter) initialize() {
	c.raw(esc, '@')
}

// legacyTransferMode selects the transfer mode on old printers: ESC i R n.
func (c *cmdWriter) legacyTransferMode(n int) {
	c.raw(esc, 'i', 'R', byte(n))
}

// transferMode selects the transfer mode: ESC i a n.
func (c *cmdWriter) transferMode(n int) {
	c.raw(esc, 'i', 'a', byte(n))
}

// statusNotification enables or disables automatic status
// notification: ESC i ! n.
func (c *cmdWriter) statusNotification(n int) {
	c.raw(esc, 'i', '!', byte(n))
}

// printDensity sets the density level 1..5: ESC i D n.
func (c *cmdWriter) printDensity(n int) {
	c.raw(esc, 'i', 'D', byte(n))
}

// variousMode sets feed amount, auto cut and mirror: ESC i M n.
func (c *cmdWriter) variousMode(mode byte) {
	c.raw(esc, 'i', 'M', mode)
}

// advancedMode sets draft/half-cut/chain/hires flags: ESC i K n.
func (c *cmdWriter) advancedMode(mode byte) {
	c.raw(esc, 'i', 'K', mode)
}

// cutEvery cuts after each n labels: ESC i A n.
func (c *cmdWriter) cutEvery(n int) {
	c.raw(esc, 'i', 'A', byte(n))
}

// margin sets the top and bottom margin in pixels: ESC i d lo hi.
func (c *cmdWriter) margin(px int) {
	c.write(append([]byte{esc, 'i', 'd'}, util.IntLowHigh(px, 2)...))
}

// compressionRLE selects run-length compressed pixel data: M 0x02.
func (c *cmdWriter) compressionRLE() {
	c.raw('M', 0x02)
}

// widthResolution is the legacy hi-res width/resolution selector:
// ESC i c + 5 bytes. Only 360x360 and 360x720 DPI are known.
func (c *cmdWriter) widthResolution(tapeWidthMM int, hires bool) {
	if hires {
		c.raw(esc, 'i', 'c', 0x86, 0x09, byte(tapeWidthMM), 0x00, 0x01)
	} else {
		c.raw(esc, 'i', 'c', 0x84, 0x00, byte(tapeWidthMM), 0x00, 0x00)
	}
}

// mediaQuality is the ESC i z media/quality preamble: validity mask,
// media type, tape width and length in mm, 32-bit little-endian pixel
// line count, page position, reserved byte.
func (c *cmdWriter) mediaQuality(valid, mediaType byte, widthMM, lengthMM int, lines uint, whichPage byte) {
	b := []byte{esc, 'i', 'z', valid, mediaType, byte(widthMM), byte(lengthMM)}
	b = append(b, util.IntLowHigh(int(lines), 4)...)
	b = append(b, whichPage, 0x00)
	c.write(b)
}

// bipLineCount announces the number of bit-image lines to follow:
// ESC * 0x27 lo hi.
func (c *cmdWriter) bipLineCount(lines uint) {
	c.write(append([]byte{esc, 0x2a, 0x27}, util.IntLowHigh(int(lines), 2)...))
}

// formFeed prints buffered data without ejecting.
func (c *cmdWriter) formFeed() {
	c.raw(ptcFormFeed)
}

// eject prints buffered data and ejects the label.
func (c *cmdWriter) eject() {
	c.raw(ptcEject)
}

// packVariousMode packs the ESC i M mode byte: bits 0-4 feed amount,
// bit 6 auto cut / cut mark, bit 7 mirror print.
func packVariousMode(cut, mirror bool, feed uint) byte {
	if feed > 31 {
		feed = 31
	}
	mode := byte(feed)
	if cut {
		mode |= 0x40
	}
	if mirror {
		mode |= 0x80
	}
	return mode
}

// packAdvancedMode packs the ESC i K mode byte: bit 0 draft, bit 2
// half cut, bit 3 no chain printing, bit 6 hi-res.
func packAdvancedMode(draft, halfCut, noChain, hires bool) byte {
	var mode byte
	if draft {
		mode |= 0x01
	}
	if halfCut {
		mode |= 0x04
	}
	if noChain {
		mode |= 0x08
	}
	if hires {
		mode |= 0x40
	}
	return mode
}

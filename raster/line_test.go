package raster

import (
	"bytes"
	"math/rand/v2"
	"testing"
)

func TestMirror(t *testing.T) {
	for i := 0; i < 256; i++ {
		b := byte(i)
		for j := 0; j < 8; j++ {
			if (Mirror(b)>>uint(j))&1 != (b>>uint(7-j))&1 {
				t.Fatalf("Mirror(0x%02x) = 0x%02x: bit %d wrong", b, Mirror(b), j)
			}
		}
		if Mirror(Mirror(b)) != b {
			t.Fatalf("Mirror is not an involution at 0x%02x", b)
		}
	}
}

func TestGenerateEmitLineReversesBytes(t *testing.T) {
	in := []byte{0x80, 0x01}
	out := make([]byte, 4)
	nonzero := GenerateEmitLine(in, out, 2, 4, 1, 0, false, 0x00)
	if !nonzero {
		t.Error("nonzero flag not set")
	}
	// One padding byte, then the source bytes in reverse order with
	// each byte bit-mirrored, then fill.
	want := []byte{0x00, Mirror(0x01), Mirror(0x80), 0x00}
	if !bytes.Equal(out, want) {
		t.Errorf("out = % x, want % x", out, want)
	}
}

func TestGenerateEmitLineMirrorKeepsByteOrder(t *testing.T) {
	in := []byte{0x12, 0x34, 0x56}
	out := make([]byte, 5)
	GenerateEmitLine(in, out, 3, 5, 1, 0, true, 0x00)
	want := []byte{0x00, 0x12, 0x34, 0x56, 0x00}
	if !bytes.Equal(out, want) {
		t.Errorf("out = % x, want % x", out, want)
	}
}

func TestGenerateEmitLinePositiveShift(t *testing.T) {
	in := []byte{0xff}
	out := make([]byte, 3)
	GenerateEmitLine(in, out, 1, 3, 0, 1, false, 0x00)
	// 0xff shifted left one bit spans two output bytes.
	want := []byte{Mirror(0xfe), Mirror(0x01), 0x00}
	if !bytes.Equal(out, want) {
		t.Errorf("out = % x, want % x", out, want)
	}
}

func TestGenerateEmitLineNegativeShift(t *testing.T) {
	in := []byte{0xff}
	out := make([]byte, 3)
	GenerateEmitLine(in, out, 1, 3, 0, -1, false, 0x00)
	want := []byte{Mirror(0x7f), 0x00, 0x00}
	if !bytes.Equal(out, want) {
		t.Errorf("out = % x, want % x", out, want)
	}
}

func TestGenerateEmitLineBlank(t *testing.T) {
	in := make([]byte, 8)
	out := make([]byte, 10)
	if GenerateEmitLine(in, out, 8, 10, 1, 0, false, 0x00) {
		t.Error("nonzero flag set for blank row")
	}
	if !bytes.Equal(out, make([]byte, 10)) {
		t.Errorf("out = % x, want zeros", out)
	}
}

func TestGenerateEmitLineNegativePrint(t *testing.T) {
	// A blank row under negative printing fills the device line with
	// the mask, but still reports the row as blank.
	in := make([]byte, 4)
	out := make([]byte, 6)
	if GenerateEmitLine(in, out, 4, 6, 1, 0, false, 0xff) {
		t.Error("nonzero flag set for blank row")
	}
	if !bytes.Equal(out, bytes.Repeat([]byte{0xff}, 6)) {
		t.Errorf("out = % x, want all 0xff", out)
	}
}

func TestGenerateEmitLineMaskComplements(t *testing.T) {
	in := make([]byte, 16)
	for i := range in {
		in[i] = byte(rand.Uint32())
	}
	plain := make([]byte, 20)
	masked := make([]byte, 20)
	for _, shift := range []int{-3, 0, 2} {
		doMirror := false
		if shift >= 0 {
			doMirror = shift == 2
		}
		GenerateEmitLine(in, plain, 16, 20, 1, shift, doMirror, 0x00)
		GenerateEmitLine(in, masked, 16, 20, 1, shift, doMirror, 0xff)
		for i := range plain {
			if plain[i]^masked[i] != 0xff {
				t.Fatalf("shift %d: byte %d not complemented: %02x vs %02x",
					shift, i, plain[i], masked[i])
			}
		}
	}
}

package util

import (
	"bytes"
	"testing"
)

func TestIntLowHigh(t *testing.T) {
	tests := []struct {
		n, b int
		want []byte
	}{
		{0, 2, []byte{0x00, 0x00}},
		{0x1234, 2, []byte{0x34, 0x12}},
		{0x12345, 4, []byte{0x45, 0x23, 0x01, 0x00}},
		{255, 1, []byte{0xff}},
	}
	for _, tt := range tests {
		if got := IntLowHigh(tt.n, tt.b); !bytes.Equal(got, tt.want) {
			t.Errorf("IntLowHigh(%#x, %d) = % x, want % x", tt.n, tt.b, got, tt.want)
		}
	}
}

func TestIntHighLow(t *testing.T) {
	if got := IntHighLow(0x1234, 2); !bytes.Equal(got, []byte{0x12, 0x34}) {
		t.Errorf("IntHighLow(0x1234, 2) = % x", got)
	}
	low := IntLowHigh(0xabcd, 2)
	high := IntHighLow(0xabcd, 2)
	if low[0] != high[1] || low[1] != high[0] {
		t.Error("IntLowHigh and IntHighLow are not byte reversals")
	}
}

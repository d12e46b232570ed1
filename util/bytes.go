package util

import "log"

// IntLowHigh serialises n into b bytes, least significant byte first.
func IntLowHigh(n int, b int) []byte {
	if b < 1 || b > 4 {
		log.Println("IntLowHigh: 1–4 bytes only")
	}

	out := make([]byte, b)
	for i := 0; i < b; i++ {
		out[i] = byte(n % 256)
		n = n / 256
	}
	return out
}

// IntHighLow serialises n into b bytes, most significant byte first.
func IntHighLow(n int, b int) []byte {
	if b < 1 || b > 4 {
		log.Println("IntHighLow: 1–4 bytes only")
	}

	out := make([]byte, b)
	for i := b - 1; i >= 0; i-- {
		out[i] = byte(n % 256)
		n = n / 256
	}
	return out
}

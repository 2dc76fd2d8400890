package embedded

import (
	_ "embed"
)

//go:embed sample.bin
var sample []byte

// Sample returns a short raw K-Line capture: a tester opening a session with
// an ECU, reading its identification, a negative response, line noise, one
// corrupted frame and the session stop.
func Sample() []byte {
	return sample
}

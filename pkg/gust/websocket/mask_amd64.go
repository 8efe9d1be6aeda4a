//go:build amd64 && !noasm
// +build amd64,!noasm

package websocket

import "golang.org/x/sys/cpu"

var hasAVX2 = cpu.X86.HasAVX2

// maskBytesAVX2 XORs data with maskKey using AVX2 SIMD lanes. Defined in
// mask_amd64.s.
func maskBytesAVX2(data []byte, maskKey [4]byte)

// maskBytesFast dispatches to the AVX2 path when the CPU supports it and
// the payload is large enough to amortize the SIMD setup cost, falling
// back to the scalar path otherwise.
func maskBytesFast(data []byte, maskKey [4]byte) {
	if hasAVX2 && len(data) >= 32 {
		maskBytesAVX2(data, maskKey)
		return
	}
	maskBytesScalar(data, maskKey)
}

// maskBytesScalar is the non-SIMD path, shared with every other
// architecture via maskBytesDefault in protocol.go.
func maskBytesScalar(data []byte, maskKey [4]byte) {
	maskBytesDefault(data, maskKey)
}

func init() {
	maskBytes = maskBytesFast
}

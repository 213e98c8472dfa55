package dsp

import "runtime"

// Capability identifies which kernel variant a platform should use.
// This package has one scalar implementation of each kernel, and
// Capability is a dispatch point for SIMD specializations: a SIMD
// backend would select on it and be covered by the same property tests
// as the scalar path, but none is wired up, so every value currently
// runs scalar.
type Capability int

const (
	CapabilityScalar Capability = iota
	CapabilityAMD64SSE
	CapabilityWasmSIMD128
)

// DetectCapability probes the running platform without needing cgo or
// assembly: GOARCH tells us the instruction set family, which is all a
// build-time capability probe can do in pure Go anyway.
func DetectCapability() Capability {
	switch runtime.GOARCH {
	case "amd64":
		return CapabilityAMD64SSE
	case "wasm":
		return CapabilityWasmSIMD128
	default:
		return CapabilityScalar
	}
}

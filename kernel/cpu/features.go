package cpu

import xcpu "golang.org/x/sys/cpu"

// Features reports a short, human-readable summary of the host's CPU
// feature flags, logged once at boot purely for diagnostics; nothing in
// the mutator or heap bootstrapper branches on it.
func Features() string {
	switch {
	case xcpu.X86.HasAVX512F:
		return "avx512f"
	case xcpu.X86.HasAVX2:
		return "avx2"
	case xcpu.X86.HasSSE42:
		return "sse4.2"
	default:
		return "baseline"
	}
}

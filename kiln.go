package kiln

// ABIVersion is the version tag embedded in every serialized artifact header.
// It changes whenever the bytecode layout, the VMContext layout, or the
// calling convention between the engine and compiled code changes. An
// artifact built under a different ABIVersion is rejected at load time.
const ABIVersion uint16 = 3

// EngineID identifies the engine variant that produced an artifact.
// Artifacts are bound to the variant that compiled them; a mismatch at
// deserialization time is a hard failure, never a silent fallback.
type EngineID uint8

const (
	// EngineUniversal compiles modules to the internal bytecode and can also
	// serialize and reload artifacts.
	EngineUniversal EngineID = 1
	// EngineHeadless runs previously compiled artifacts but carries no
	// compiler; Compile on a headless engine fails with a capability error.
	EngineHeadless EngineID = 2
)

func (id EngineID) String() string {
	switch id {
	case EngineUniversal:
		return "universal"
	case EngineHeadless:
		return "headless"
	default:
		return "unknown"
	}
}

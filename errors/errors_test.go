package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorFormat(t *testing.T) {
	err := New(PhaseLink, KindMissingImport).
		Path("env", "missing").
		Detail("import not provided").
		Build()
	got := err.Error()
	for _, want := range []string{"[link]", "missing_import", "env.missing", "import not provided"} {
		if !strings.Contains(got, want) {
			t.Fatalf("error %q missing %q", got, want)
		}
	}
}

func TestErrorCauseChain(t *testing.T) {
	root := fmt.Errorf("disk full")
	err := Serialize(root)
	if !stderrors.Is(err, root) {
		t.Fatal("cause not reachable via errors.Is")
	}
	if !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("cause not rendered: %q", err.Error())
	}
}

func TestIsMatchesPhaseAndKind(t *testing.T) {
	err := MissingImport("env", "log")
	target := &Error{Phase: PhaseLink, Kind: KindMissingImport}
	if !stderrors.Is(err, target) {
		t.Fatal("expected phase+kind match")
	}
	other := &Error{Phase: PhaseLink, Kind: KindTypeMismatch}
	if stderrors.Is(err, other) {
		t.Fatal("kind mismatch should not match")
	}
}

func TestCouldNotGrow(t *testing.T) {
	err := CouldNotGrow("memory", 2, 5)
	if err.Kind != KindCouldNotGrow || err.Phase != PhaseRuntime {
		t.Fatalf("wrong shape: %+v", err)
	}
	if v, ok := err.Value.(uint64); !ok || v != 5 {
		t.Fatalf("value = %v", err.Value)
	}
}

func TestIncompatibleImport(t *testing.T) {
	err := IncompatibleImport("env", "mem", "memory", "function")
	if !strings.Contains(err.Error(), "expected memory, got function") {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestBuilderDetailFormatting(t *testing.T) {
	err := New(PhaseCompile, KindUnsupported).Detail("opcode 0x%02x", 0xfc).Build()
	if !strings.Contains(err.Error(), "opcode 0xfc") {
		t.Fatalf("message = %q", err.Error())
	}
}

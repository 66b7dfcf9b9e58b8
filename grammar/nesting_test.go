package grammar_test

import (
	"testing"

	"github.com/lodeworks/sluice/grammar"
)

func TestNestingTracker_Update(t *testing.T) {
	var tr grammar.NestingTracker

	tr.Update("export function Foo() {")
	if tr.Level() != 1 {
		t.Fatalf("level = %d, want 1", tr.Level())
	}
	tr.Update("  if (x) { return y({}); }")
	if tr.Level() != 1 {
		t.Fatalf("level = %d, want 1 (balanced line)", tr.Level())
	}
	tr.Update("}")
	if tr.Level() != 0 {
		t.Fatalf("level = %d, want 0", tr.Level())
	}
}

func TestNestingTracker_ClampsAtZero(t *testing.T) {
	var tr grammar.NestingTracker

	tr.Update("}}}")
	if tr.Level() != 0 {
		t.Errorf("level = %d, want 0 after stray closers", tr.Level())
	}
	tr.Update("{")
	if tr.Level() != 1 {
		t.Errorf("level = %d, want 1 after clamp recovery", tr.Level())
	}
}

func TestNestingTracker_Reset(t *testing.T) {
	var tr grammar.NestingTracker
	tr.Update("{{{")
	tr.Reset()
	if tr.Level() != 0 {
		t.Errorf("level = %d after Reset, want 0", tr.Level())
	}
}

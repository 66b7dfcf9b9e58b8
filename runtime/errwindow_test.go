package runtime

import (
	"testing"
	"time"
)

func TestErrorWindow_TripsAtThreshold(t *testing.T) {
	w := NewErrorWindow(3, 10*time.Second)
	base := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	if w.Record(base) {
		t.Error("1st error should not trip")
	}
	if w.Record(base.Add(time.Second)) {
		t.Error("2nd error should not trip")
	}
	if !w.Record(base.Add(2 * time.Second)) {
		t.Error("3rd error within window should trip")
	}
}

func TestErrorWindow_OldErrorsExpire(t *testing.T) {
	w := NewErrorWindow(3, 10*time.Second)
	base := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	w.Record(base)
	w.Record(base.Add(time.Second))

	// 15s later, the first two errors have aged out
	if w.Record(base.Add(15 * time.Second)) {
		t.Error("expired errors must not count toward the threshold")
	}
	if got := w.Count(); got != 1 {
		t.Errorf("expected 1 error in window, got %d", got)
	}
}

func TestErrorWindow_DisabledWhenMaxZero(t *testing.T) {
	w := NewErrorWindow(0, 10*time.Second)
	now := time.Now()
	for i := 0; i < 100; i++ {
		if w.Record(now) {
			t.Fatal("disabled window must never trip")
		}
	}
}

func TestErrorWindow_KeepsTrippingWhileSaturated(t *testing.T) {
	w := NewErrorWindow(2, time.Minute)
	base := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	w.Record(base)
	if !w.Record(base.Add(time.Second)) {
		t.Fatal("2nd error should trip")
	}
	if !w.Record(base.Add(2 * time.Second)) {
		t.Error("window should remain tripped while saturated")
	}
}

package engine_test

import (
	"strings"
	"testing"

	"github.com/lodeworks/sluice/compound"
	"github.com/lodeworks/sluice/engine"
	"github.com/lodeworks/sluice/store"
	"github.com/lodeworks/sluice/types"
)

// feed pushes the whole input as one fragment and finishes the stream.
func feed(t *testing.T, e *engine.Engine, input string) []types.Event {
	t.Helper()
	events := e.Consume(input)
	return append(events, e.Finish()...)
}

func TestSingleComponent(t *testing.T) {
	e := engine.New(engine.Config{})
	input := "/// START Foo position=main\nexport function Foo(){return 1;}\n/// END Foo\n"

	events := feed(t, e, input)

	if len(events) != 3 {
		t.Fatalf("got %d events: %+v", len(events), events)
	}
	start, delta, stop := events[0], events[1], events[2]

	if start.Type != types.EventTypeStart || start.ComponentName != "Foo" || start.Position != types.PositionMain {
		t.Errorf("start = %+v", start)
	}
	if delta.Type != types.EventTypeDelta || delta.Text != "export function Foo(){return 1;}\n" {
		t.Errorf("delta = %+v", delta)
	}
	if stop.Type != types.EventTypeStop || !stop.IsComplete {
		t.Errorf("stop = %+v", stop)
	}

	c, ok := e.Store().Get("foo")
	if !ok || string(c.Code) != "export function Foo(){return 1;}\n" {
		t.Errorf("stored code = %q", c.Code)
	}
}

func TestDefaultPositionIsMain(t *testing.T) {
	e := engine.New(engine.Config{})
	events := feed(t, e, "/// START Foo\n/// END Foo\n")
	if events[0].Position != types.PositionMain {
		t.Errorf("position = %q, want main", events[0].Position)
	}
}

func TestMarkerLinesExcludedFromBody(t *testing.T) {
	e := engine.New(engine.Config{})
	feed(t, e, "/// START Foo\nbody\n/// END Foo\n")

	c, _ := e.Store().Get("foo")
	if strings.Contains(string(c.Code), "///") {
		t.Errorf("marker text leaked into body: %q", c.Code)
	}
}

func TestAliasResolution(t *testing.T) {
	e := engine.New(engine.Config{})
	events := feed(t, e, "/// START Navbar position=header\n<nav><a href=x>x</a></nav>\n/// END Navbar\n")

	if events[0].ComponentName != "NavigationHeader" {
		t.Errorf("component name = %q, want canonical NavigationHeader", events[0].ComponentName)
	}
	if events[0].ComponentID != "navigationheader" {
		t.Errorf("component id = %q", events[0].ComponentID)
	}
	if !events[0].IsCritical {
		t.Error("NavigationHeader should be flagged critical")
	}
}

func TestEndByAliasMatchesOpenComponent(t *testing.T) {
	e := engine.New(engine.Config{})
	// START uses one alias, END another; both canonicalize to the same name.
	events := feed(t, e, "/// START Navbar\nx\n/// END Header\n")

	var stops int
	for _, ev := range events {
		if ev.Type == types.EventTypeStop {
			stops++
		}
	}
	if stops != 1 {
		t.Errorf("stops = %d, want 1 (aliased END should close)", stops)
	}
}

func TestMismatchedEndDegradesToText(t *testing.T) {
	e := engine.New(engine.Config{})
	events := feed(t, e, "/// START Foo\n/// END Bar\nreal body\n/// END Foo\n")

	if len(events) != 3 {
		t.Fatalf("got %d events: %+v", len(events), events)
	}
	if events[1].Text != "/// END Bar\nreal body\n" {
		t.Errorf("delta = %q; mismatched END must be kept as text", events[1].Text)
	}
	if events[2].Type != types.EventTypeStop || !events[2].IsComplete {
		t.Errorf("stop = %+v", events[2])
	}
}

func TestOrphanEndIsIgnored(t *testing.T) {
	e := engine.New(engine.Config{})
	events := feed(t, e, "/// END Foo\n/// START Foo\nx\n/// END Foo\n")

	// The orphan END produces nothing: no component open, text dropped.
	if events[0].Type != types.EventTypeStart {
		t.Errorf("first event = %+v, want start", events[0])
	}
	if len(events) != 3 {
		t.Errorf("got %d events", len(events))
	}
}

func TestMalformedMarkerDegradesToText(t *testing.T) {
	e := engine.New(engine.Config{})
	events := feed(t, e, "/// START Foo\n/// BEGIN Bar\n/// END Foo\n")

	if events[1].Text != "/// BEGIN Bar\n" {
		t.Errorf("delta = %q, want malformed marker as text", events[1].Text)
	}
}

func TestCloseThenOpenOnOverlappingStart(t *testing.T) {
	e := engine.New(engine.Config{})
	events := feed(t, e, "/// START Foo\nfoo body\n/// START Bar\nbar body\n/// END Bar\n")

	wantTypes := []types.EventType{
		types.EventTypeStart, // Foo
		types.EventTypeDelta, // foo body
		types.EventTypeStop,  // Foo force-closed before Bar opens
		types.EventTypeStart, // Bar
		types.EventTypeDelta, // bar body
		types.EventTypeStop,  // Bar
	}
	if len(events) != len(wantTypes) {
		t.Fatalf("got %d events: %+v", len(events), events)
	}
	for i, want := range wantTypes {
		if events[i].Type != want {
			t.Errorf("event[%d].Type = %q, want %q", i, events[i].Type, want)
		}
	}
	if events[2].ComponentID != "foo" || !events[2].IsComplete {
		t.Errorf("forced stop = %+v", events[2])
	}
	if events[3].ComponentID != "bar" {
		t.Errorf("second start = %+v", events[3])
	}
}

func TestNestingSuppression(t *testing.T) {
	e := engine.New(engine.Config{})
	input := strings.Join([]string{
		"/// START Foo",
		"export function Foo() {",
		"  console.log('/// END Foo');",
		"  return `",
		"/// START Inner",
		"`;",
		"}",
		"/// END Foo",
		"",
	}, "\n")

	events := feed(t, e, input)

	var starts, stops int
	for _, ev := range events {
		switch ev.Type {
		case types.EventTypeStart:
			starts++
			if ev.ComponentName != "Foo" {
				t.Errorf("unexpected start for %q", ev.ComponentName)
			}
		case types.EventTypeStop:
			stops++
		}
	}
	if starts != 1 || stops != 1 {
		t.Errorf("starts=%d stops=%d, want 1 each (inner markers suppressed)", starts, stops)
	}

	c, _ := e.Store().Get("foo")
	if !strings.Contains(string(c.Code), "/// START Inner") {
		t.Error("suppressed marker text should remain in the body")
	}
}

func TestStartStopPairing(t *testing.T) {
	e := engine.New(engine.Config{})
	input := "/// START A\na\n/// END A\n/// START B\nb\n/// END B\n/// START A\na2\n/// END A\n"

	events := feed(t, e, input)

	open := map[string]bool{}
	for _, ev := range events {
		switch ev.Type {
		case types.EventTypeStart:
			if open[ev.ComponentID] {
				t.Fatalf("start for %q while already open", ev.ComponentID)
			}
			for id, isOpen := range open {
				if isOpen {
					t.Fatalf("start for %q while %q open", ev.ComponentID, id)
				}
			}
			open[ev.ComponentID] = true
		case types.EventTypeStop:
			if !open[ev.ComponentID] {
				t.Fatalf("stop for %q without start", ev.ComponentID)
			}
			open[ev.ComponentID] = false
		}
	}
}

func TestCompoundCompleteness(t *testing.T) {
	reg := compound.NewRegistry()
	reg.Register(compound.Definition{
		CanonicalName: "Combo",
		Subpatterns:   map[string]string{"a": "ALPHA", "b": "BRAVO"},
	})

	t.Run("all present", func(t *testing.T) {
		e := engine.New(engine.Config{Registry: reg})
		events := feed(t, e, "/// START Combo\nx ALPHA y\nz BRAVO w\n/// END Combo\n")
		stop := events[len(events)-1]
		if !stop.IsCompoundComplete {
			t.Errorf("stop = %+v, want compound complete", stop)
		}
	})

	t.Run("one withheld", func(t *testing.T) {
		e := engine.New(engine.Config{Registry: reg})
		events := feed(t, e, "/// START Combo\nx ALPHA y\n/// END Combo\n")
		stop := events[len(events)-1]
		if stop.IsCompoundComplete {
			t.Errorf("stop = %+v, want compound incomplete", stop)
		}
		c, _ := e.Store().Get("combo")
		if len(c.ValidationErrors) != 1 || c.ValidationErrors[0] != "b" {
			t.Errorf("validation errors = %v, want [b]", c.ValidationErrors)
		}
	})

	t.Run("incompleteness does not stop the stream", func(t *testing.T) {
		e := engine.New(engine.Config{Registry: reg})
		events := feed(t, e, "/// START Combo\nALPHA\n/// END Combo\n/// START Next\nn\n/// END Next\n")
		var stops int
		for _, ev := range events {
			if ev.Type == types.EventTypeStop {
				stops++
			}
		}
		if stops != 2 {
			t.Errorf("stops = %d, want 2", stops)
		}
	})
}

func TestFinishForceClosesOpenComponent(t *testing.T) {
	e := engine.New(engine.Config{})
	events := e.Consume("/// START Foo\nbody line\n")
	events = append(events, e.Finish()...)

	stop := events[len(events)-1]
	if stop.Type != types.EventTypeStop || !stop.IsComplete {
		t.Errorf("expected force-close stop, got %+v", stop)
	}
}

func TestFinishFlushesResidualCarry(t *testing.T) {
	e := engine.New(engine.Config{})
	var events []types.Event
	events = append(events, e.Consume("/// START Foo\nunterminated tail")...)
	events = append(events, e.Finish()...)

	var deltas []string
	for _, ev := range events {
		if ev.Type == types.EventTypeDelta {
			deltas = append(deltas, ev.Text)
		}
	}
	if strings.Join(deltas, "") != "unterminated tail" {
		t.Errorf("deltas = %q, want residual carry flushed verbatim", deltas)
	}
}

func TestTextBeforeFirstMarkerIsDropped(t *testing.T) {
	e := engine.New(engine.Config{})
	events := feed(t, e, "Sure, here is the code:\n/// START Foo\nx\n/// END Foo\n")

	if events[0].Type != types.EventTypeStart {
		t.Errorf("first event = %+v, want start", events[0])
	}
	for _, ev := range events {
		if ev.Type == types.EventTypeDelta && strings.Contains(ev.Text, "Sure") {
			t.Error("preamble chatter leaked into a delta")
		}
	}
}

func TestConsumeAfterFinishIsNoop(t *testing.T) {
	e := engine.New(engine.Config{})
	feed(t, e, "/// START Foo\nx\n/// END Foo\n")
	if events := e.Consume("/// START Bar\n"); events != nil {
		t.Errorf("Consume after Finish = %+v, want nil", events)
	}
	if events := e.Finish(); events != nil {
		t.Errorf("second Finish = %+v, want nil", events)
	}
}

func TestTruncationKeepsDeltasIntact(t *testing.T) {
	e := engine.New(engine.Config{Store: store.Config{MaxComponentBytes: 48}})

	var deltaBytes int
	events := e.Consume("/// START Foo\n")
	for range 10 {
		events = append(events, e.Consume(strings.Repeat("x", 15)+"\n")...)
	}
	events = append(events, e.Consume("/// END Foo\n")...)
	events = append(events, e.Finish()...)

	for _, ev := range events {
		if ev.Type == types.EventTypeDelta {
			deltaBytes += len(ev.Text)
		}
	}
	// Deltas carry every appended byte; truncation is visible only in the
	// stored body and the truncation statistic.
	if deltaBytes != 160 {
		t.Errorf("delta bytes = %d, want 160", deltaBytes)
	}
	c, _ := e.Store().Get("foo")
	if c.SizeBytes > 48 {
		t.Errorf("stored size %d exceeds ceiling", c.SizeBytes)
	}
	if e.Store().Stats().Truncations == 0 {
		t.Error("expected truncation statistic")
	}
}

func TestUnicodeWhitespaceInMarkers(t *testing.T) {
	e := engine.New(engine.Config{})
	events := feed(t, e, "/// START Foo\nx\n/// END Foo\n")
	if events[0].Type != types.EventTypeStart || events[0].ComponentName != "Foo" {
		t.Errorf("marker with non-breaking spaces not recognized: %+v", events[0])
	}
}

package runtime

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lodeworks/sluice/engine"
	"github.com/lodeworks/sluice/ipc"
	"github.com/lodeworks/sluice/log"
	"github.com/lodeworks/sluice/metrics"
	"github.com/lodeworks/sluice/policy"
	"github.com/lodeworks/sluice/types"
)

type sessionFixture struct {
	orch      *Orchestrator
	sink      *policy.StubSink
	collector *metrics.Collector
}

func newSessionFixture(t *testing.T, source FragmentSource, mutate func(*SessionConfig)) *sessionFixture {
	t.Helper()

	sink := policy.NewStubSink()
	collector := metrics.NewCollector("sess-test", "strict")
	cfg := SessionConfig{
		Meta:      &types.SessionMeta{SessionID: "sess-test"},
		Source:    source,
		Engine:    engine.New(engine.Config{Collector: collector}),
		Policy:    policy.NewStrictPolicy(sink),
		Collector: collector,
		Logger:    log.NewNopLogger(),
	}
	if mutate != nil {
		mutate(&cfg)
	}

	orch, err := NewOrchestrator(cfg)
	if err != nil {
		t.Fatalf("NewOrchestrator failed: %v", err)
	}
	return &sessionFixture{orch: orch, sink: sink, collector: collector}
}

func eventTypes(events []types.Event) []types.EventType {
	out := make([]types.EventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func countType(events []types.Event, et types.EventType) int {
	n := 0
	for _, e := range events {
		if e.Type == et {
			n++
		}
	}
	return n
}

func TestRun_FramedStream_EndToEnd(t *testing.T) {
	// Marker keyword split across frames: reassembly must be invisible
	buf := encodeFrames(t,
		envelope(1, "/// STA", false),
		envelope(2, "RT Foo position=main\nexport ", false),
		envelope(3, "function Foo(){return 1;}\n/// E", false),
		envelope(4, "ND Foo\n", true),
	)
	f := newSessionFixture(t, NewFramedSource(buf), nil)

	result, err := f.orch.Run(t.Context())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Outcome != OutcomeSuccess {
		t.Errorf("expected success, got %s (%s)", result.Outcome, result.Message)
	}

	written := f.sink.Snapshot()
	want := []types.EventType{types.EventTypeStart, types.EventTypeDelta, types.EventTypeStop}
	got := eventTypes(written)
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d: expected %s, got %s", i, want[i], got[i])
		}
	}

	if written[1].Text != "export function Foo(){return 1;}\n" {
		t.Errorf("unexpected delta text %q", written[1].Text)
	}
	if result.EventCount != 3 {
		t.Errorf("expected event count 3, got %d", result.EventCount)
	}
	if len(result.Components) != 1 || result.Components[0].CanonicalName != "Foo" {
		t.Errorf("unexpected components: %+v", result.Components)
	}
}

func TestRun_RawStream(t *testing.T) {
	input := "chatter before\n/// START HeroSection\n<h1>Hello</h1>\n/// END HeroSection\n"
	src := NewRawSource(bytes.NewReader([]byte(input)), "sess-test", 7)
	f := newSessionFixture(t, src, nil)

	result, err := f.orch.Run(t.Context())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Outcome != OutcomeSuccess {
		t.Errorf("expected success, got %s", result.Outcome)
	}

	written := f.sink.Snapshot()
	if countType(written, types.EventTypeStart) != 1 || countType(written, types.EventTypeStop) != 1 {
		t.Errorf("expected one start and one stop, got %v", eventTypes(written))
	}

	var body string
	for _, e := range written {
		if e.Type == types.EventTypeDelta {
			body += e.Text
		}
	}
	if body != "<h1>Hello</h1>\n" {
		t.Errorf("unexpected reassembled body %q", body)
	}
}

func TestRun_GarbageFrameIsRecoverable(t *testing.T) {
	var buf bytes.Buffer
	frame, err := ipc.EncodeFrame(envelope(1, "/// START Foo\nbody\n", false))
	if err != nil {
		t.Fatal(err)
	}
	buf.Write(frame)
	buf.Write([]byte{0, 0, 0, 3, 0xFF, 0xFE, 0xFD}) // well-framed garbage
	frame, err = ipc.EncodeFrame(envelope(2, "/// END Foo\n", true))
	if err != nil {
		t.Fatal(err)
	}
	buf.Write(frame)

	f := newSessionFixture(t, NewFramedSource(&buf), nil)

	result, err := f.orch.Run(t.Context())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Outcome != OutcomeSuccess {
		t.Errorf("expected success despite garbage frame, got %s", result.Outcome)
	}

	written := f.sink.Snapshot()
	parseErrors := 0
	for _, e := range written {
		if e.Type == types.EventTypeError && e.Code == types.ErrorCodeParse {
			parseErrors++
		}
	}
	if parseErrors != 1 {
		t.Errorf("expected 1 PARSE_ERROR event, got %d", parseErrors)
	}
	if countType(written, types.EventTypeStop) != 1 {
		t.Error("component extraction should survive the garbage frame")
	}
	if got := result.Metrics.EnvelopeDecodeErrors; got != 1 {
		t.Errorf("expected 1 decode error counted, got %d", got)
	}
}

func TestRun_ParseErrorThresholdAbortsTransport(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 1, 0xFF}) // garbage 1
	buf.Write([]byte{0, 0, 0, 1, 0xFE}) // garbage 2
	frame, err := ipc.EncodeFrame(envelope(1, "never reached", true))
	if err != nil {
		t.Fatal(err)
	}
	buf.Write(frame)

	f := newSessionFixture(t, NewFramedSource(&buf), func(cfg *SessionConfig) {
		cfg.ParseErrors = ParseErrorPolicy{Max: 2, Window: time.Minute}
	})

	result, err := f.orch.Run(t.Context())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Outcome != OutcomeParseErrorThreshold {
		t.Fatalf("expected parse_error_threshold, got %s", result.Outcome)
	}

	written := f.sink.Snapshot()
	var threshold int
	for _, e := range written {
		if e.Code == types.ErrorCodeParseThreshold {
			threshold++
		}
	}
	if threshold != 1 {
		t.Errorf("expected 1 PARSE_ERROR_THRESHOLD event, got %d", threshold)
	}
}

func TestRun_SequenceViolationSkipsFragment(t *testing.T) {
	buf := encodeFrames(t,
		envelope(1, "/// START Foo\ngood\n", false),
		envelope(1, "injected replay\n", false), // stale seq, must be skipped
		envelope(2, "/// END Foo\n", true),
	)
	f := newSessionFixture(t, NewFramedSource(buf), nil)

	result, err := f.orch.Run(t.Context())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Outcome != OutcomeSuccess {
		t.Errorf("expected success, got %s", result.Outcome)
	}

	var body string
	for _, e := range f.sink.Snapshot() {
		if e.Type == types.EventTypeDelta {
			body += e.Text
		}
	}
	if body != "good\n" {
		t.Errorf("replayed fragment leaked into body: %q", body)
	}
	if got := result.Metrics.SequenceViolations; got != 1 {
		t.Errorf("expected 1 sequence violation, got %d", got)
	}
}

func TestRun_TruncatedFrameIsStreamError(t *testing.T) {
	var buf bytes.Buffer
	frame, err := ipc.EncodeFrame(envelope(1, "/// START Foo\npartial\n", false))
	if err != nil {
		t.Fatal(err)
	}
	buf.Write(frame)
	buf.Write([]byte{0, 0, 0, 100, 1, 2}) // truncated frame

	f := newSessionFixture(t, NewFramedSource(&buf), nil)

	result, err := f.orch.Run(t.Context())
	if err == nil {
		t.Fatal("expected stream error")
	}
	var se *SessionError
	if !errors.As(err, &se) || se.Kind != SessionErrorStream {
		t.Errorf("expected stream session error, got %v", err)
	}
	if result.Outcome != OutcomeStreamError {
		t.Errorf("expected stream_error outcome, got %s", result.Outcome)
	}

	written := f.sink.Snapshot()
	var streamErrors int
	for _, e := range written {
		if e.Code == types.ErrorCodeStream {
			streamErrors++
		}
	}
	if streamErrors != 1 {
		t.Errorf("expected 1 STREAM_ERROR event, got %d", streamErrors)
	}
	// Open component force-closed on the way out
	if countType(written, types.EventTypeStop) != 1 {
		t.Error("expected open component to be force-closed")
	}
}

func TestRun_DeliveryFailureTerminates(t *testing.T) {
	buf := encodeFrames(t, envelope(1, "/// START Foo\nbody\n/// END Foo\n", true))
	f := newSessionFixture(t, NewFramedSource(buf), nil)
	f.sink.FailNext(errors.New("sink down"))

	result, err := f.orch.Run(t.Context())
	if !IsPolicyError(err) {
		t.Fatalf("expected policy error, got %v", err)
	}
	if result.Outcome != OutcomeDeliveryFailure {
		t.Errorf("expected delivery_failure, got %s", result.Outcome)
	}
}

func TestRun_CanceledContext(t *testing.T) {
	buf := encodeFrames(t, envelope(1, "text\n", true))
	f := newSessionFixture(t, NewFramedSource(buf), nil)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	result, err := f.orch.Run(ctx)
	if !IsCanceledError(err) {
		t.Fatalf("expected cancellation error, got %v", err)
	}
	if result.Outcome != OutcomeCanceled {
		t.Errorf("expected canceled, got %s", result.Outcome)
	}
}

func TestRun_SessionBudgetExceeded(t *testing.T) {
	buf := encodeFrames(t,
		envelope(1, "slow stream\n", false),
		envelope(2, "never reached\n", true),
	)
	f := newSessionFixture(t, NewFramedSource(buf), func(cfg *SessionConfig) {
		cfg.Budgets = Budgets{Session: time.Nanosecond}
	})
	// Pin the start, then answer every later call from the far future so
	// the first budget check already fails.
	start := time.Now()
	calls := 0
	f.orch.now = func() time.Time {
		calls++
		if calls == 1 {
			return start
		}
		return start.Add(time.Hour)
	}

	result, err := f.orch.Run(t.Context())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Outcome != OutcomeBudgetExceeded {
		t.Errorf("expected budget_exceeded, got %s", result.Outcome)
	}
}

func TestRun_CompoundWaitEmitsTimeoutOnce(t *testing.T) {
	buf := encodeFrames(t,
		envelope(1, "/// START AppLayout position=main\n<header>x</header>\n", false),
		envelope(2, "still waiting\n", false),
		envelope(3, "more waiting\n", true),
	)
	f := newSessionFixture(t, NewFramedSource(buf), func(cfg *SessionConfig) {
		cfg.Budgets = Budgets{Session: time.Hour, CompoundWait: 10 * time.Second}
	})
	// Every clock read happens "later" than the component open.
	f.orch.now = func() time.Time { return time.Now().Add(time.Hour) }

	result, err := f.orch.Run(t.Context())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	var timeouts int
	for _, e := range f.sink.Snapshot() {
		if e.Code == types.ErrorCodeCompoundTimeout {
			timeouts++
		}
	}
	if timeouts != 1 {
		t.Errorf("expected exactly 1 COMPOUND_TIMEOUT, got %d", timeouts)
	}
	if got := result.Metrics.CompoundTimeouts; got != 1 {
		t.Errorf("expected compound timeout counted once, got %d", got)
	}

	// The stream still finishes; AppLayout is force-closed incomplete.
	stops := 0
	for _, e := range f.sink.Snapshot() {
		if e.Type == types.EventTypeStop {
			stops++
			if e.IsCompoundComplete {
				t.Error("AppLayout missing main/footer must not be compound-complete")
			}
		}
	}
	if stops != 1 {
		t.Errorf("expected 1 stop, got %d", stops)
	}
}

func TestRun_MissingCriticalReported(t *testing.T) {
	buf := encodeFrames(t,
		envelope(1, "/// START NavigationHeader position=header\n<nav><a href=x>a</a></nav>\n/// END NavigationHeader\n", true),
	)
	f := newSessionFixture(t, NewFramedSource(buf), nil)

	result, err := f.orch.Run(t.Context())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	for _, name := range result.MissingCritical {
		if name == "NavigationHeader" {
			t.Error("extracted critical component reported missing")
		}
	}
	want := map[string]bool{"AppLayout": true, "HeroSection": true, "Footer": true}
	if len(result.MissingCritical) != len(want) {
		t.Fatalf("expected %d missing critical, got %v", len(want), result.MissingCritical)
	}
	for _, name := range result.MissingCritical {
		if !want[name] {
			t.Errorf("unexpected missing critical %q", name)
		}
	}
}

func TestNewOrchestrator_Validation(t *testing.T) {
	sink := policy.NewStubSink()
	valid := SessionConfig{
		Meta:   &types.SessionMeta{SessionID: "s"},
		Source: NewRawSource(bytes.NewReader(nil), "s", 0),
		Engine: engine.New(engine.Config{}),
		Policy: policy.NewStrictPolicy(sink),
	}

	cases := []struct {
		name   string
		mutate func(*SessionConfig)
	}{
		{"missing meta", func(c *SessionConfig) { c.Meta = nil }},
		{"empty session id", func(c *SessionConfig) { c.Meta = &types.SessionMeta{} }},
		{"missing source", func(c *SessionConfig) { c.Source = nil }},
		{"missing engine", func(c *SessionConfig) { c.Engine = nil }},
		{"missing policy", func(c *SessionConfig) { c.Policy = nil }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			tc.mutate(&cfg)
			if _, err := NewOrchestrator(cfg); err == nil {
				t.Error("expected config error")
			}
		})
	}
}

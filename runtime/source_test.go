package runtime

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/lodeworks/sluice/ipc"
	"github.com/lodeworks/sluice/types"
)

func encodeFrames(t *testing.T, envelopes ...*types.FragmentEnvelope) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	for _, env := range envelopes {
		frame, err := ipc.EncodeFrame(env)
		if err != nil {
			t.Fatalf("encode frame: %v", err)
		}
		buf.Write(frame)
	}
	return &buf
}

func envelope(seq int64, text string, final bool) *types.FragmentEnvelope {
	return &types.FragmentEnvelope{
		ContractVersion: types.ContractVersion,
		SessionID:       "sess-test",
		Seq:             seq,
		Text:            text,
		Final:           final,
	}
}

func TestFramedSource_YieldsEnvelopesInOrder(t *testing.T) {
	buf := encodeFrames(t,
		envelope(1, "hello ", false),
		envelope(2, "world", true),
	)
	src := NewFramedSource(buf)

	first, err := src.Next(t.Context())
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if first.Seq != 1 || first.Text != "hello " || first.Final {
		t.Errorf("unexpected first envelope: %+v", first)
	}

	second, err := src.Next(t.Context())
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if second.Seq != 2 || !second.Final {
		t.Errorf("unexpected second envelope: %+v", second)
	}

	if _, err := src.Next(t.Context()); !errors.Is(err, io.EOF) {
		t.Errorf("expected EOF after last frame, got %v", err)
	}
}

func TestFramedSource_GarbagePayloadIsRecoverable(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 3, 0xFF, 0xFE, 0xFD}) // well-framed garbage
	frame, err := ipc.EncodeFrame(envelope(1, "after", true))
	if err != nil {
		t.Fatalf("encode frame: %v", err)
	}
	buf.Write(frame)

	src := NewFramedSource(&buf)

	_, err = src.Next(t.Context())
	if err == nil {
		t.Fatal("expected decode error")
	}
	if ipc.IsFatalFrameError(err) {
		t.Fatalf("decode error should be recoverable, got fatal: %v", err)
	}

	// Stream continues past the bad frame
	env, err := src.Next(t.Context())
	if err != nil {
		t.Fatalf("next after garbage: %v", err)
	}
	if env.Text != "after" {
		t.Errorf("expected following envelope, got %+v", env)
	}
}

func TestFramedSource_TruncatedFrameIsFatal(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 100, 1, 2, 3}) // claims 100 bytes, has 3

	src := NewFramedSource(&buf)
	_, err := src.Next(t.Context())
	if err == nil {
		t.Fatal("expected frame error")
	}
	if !ipc.IsFatalFrameError(err) {
		t.Errorf("truncated frame should be fatal, got %v", err)
	}
}

func TestRawSource_ChunksAndSynthesizesSeq(t *testing.T) {
	src := NewRawSource(strings.NewReader("abcdefgh"), "sess-raw", 3)

	var texts []string
	var lastSeq int64
	for {
		env, err := src.Next(t.Context())
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if env.Seq != lastSeq+1 {
			t.Errorf("expected seq %d, got %d", lastSeq+1, env.Seq)
		}
		if env.SessionID != "sess-raw" {
			t.Errorf("expected session id propagated, got %q", env.SessionID)
		}
		lastSeq = env.Seq
		texts = append(texts, env.Text)
	}

	if got := strings.Join(texts, ""); got != "abcdefgh" {
		t.Errorf("chunks do not reassemble input: %q", got)
	}
	if len(texts) != 3 {
		t.Errorf("expected 3 chunks of size 3, got %d", len(texts))
	}
}

package ipc_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/lodeworks/sluice/ipc"
	"github.com/lodeworks/sluice/types"
)

func encodeFrame(t *testing.T, env *types.FragmentEnvelope) []byte {
	t.Helper()
	frame, err := ipc.EncodeFrame(env)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	return frame
}

func TestRoundTrip(t *testing.T) {
	env := &types.FragmentEnvelope{
		ContractVersion: types.ContractVersion,
		SessionID:       "sess-1",
		Seq:             1,
		Text:            "/// START Foo\n",
	}

	d := ipc.NewFrameDecoder(bytes.NewReader(encodeFrame(t, env)))
	payload, err := d.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	got, err := ipc.DecodeEnvelope(payload)
	if err != nil {
		t.Fatalf("DecodeEnvelope: %v", err)
	}
	if *got != *env {
		t.Errorf("got %+v, want %+v", got, env)
	}
}

func TestMultipleFrames(t *testing.T) {
	var buf bytes.Buffer
	for i := range 3 {
		buf.Write(encodeFrame(t, &types.FragmentEnvelope{
			ContractVersion: types.ContractVersion,
			SessionID:       "sess-1",
			Seq:             int64(i + 1),
			Text:            "chunk",
			Final:           i == 2,
		}))
	}

	d := ipc.NewFrameDecoder(&buf)
	for i := range 3 {
		payload, err := d.ReadFrame()
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		env, err := ipc.DecodeEnvelope(payload)
		if err != nil {
			t.Fatalf("frame %d decode: %v", i, err)
		}
		if env.Seq != int64(i+1) {
			t.Errorf("frame %d seq = %d", i, env.Seq)
		}
	}
	if _, err := d.ReadFrame(); err != io.EOF {
		t.Errorf("after last frame: %v, want io.EOF", err)
	}
}

func TestCleanEOF(t *testing.T) {
	d := ipc.NewFrameDecoder(bytes.NewReader(nil))
	if _, err := d.ReadFrame(); err != io.EOF {
		t.Errorf("empty stream: %v, want io.EOF", err)
	}
}

func TestPartialLengthPrefix(t *testing.T) {
	d := ipc.NewFrameDecoder(bytes.NewReader([]byte{0x00, 0x01}))
	_, err := d.ReadFrame()

	var frameErr *ipc.FrameError
	if !errors.As(err, &frameErr) || frameErr.Kind != ipc.FrameErrorPartial {
		t.Fatalf("err = %v, want partial frame error", err)
	}
	if !ipc.IsFatalFrameError(err) {
		t.Error("partial frame should be fatal")
	}
}

func TestPartialPayload(t *testing.T) {
	frame := encodeFrame(t, &types.FragmentEnvelope{SessionID: "s", Seq: 1, Text: "hello"})
	d := ipc.NewFrameDecoder(bytes.NewReader(frame[:len(frame)-2]))

	_, err := d.ReadFrame()
	var frameErr *ipc.FrameError
	if !errors.As(err, &frameErr) || frameErr.Kind != ipc.FrameErrorPartial {
		t.Fatalf("err = %v, want partial frame error", err)
	}
}

func TestOversizedFrame(t *testing.T) {
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], ipc.MaxPayloadSize+1)

	d := ipc.NewFrameDecoder(bytes.NewReader(prefix[:]))
	_, err := d.ReadFrame()

	var frameErr *ipc.FrameError
	if !errors.As(err, &frameErr) || frameErr.Kind != ipc.FrameErrorTooLarge {
		t.Fatalf("err = %v, want too-large frame error", err)
	}
	if !ipc.IsFatalFrameError(err) {
		t.Error("oversized frame should be fatal")
	}
}

func TestDecodeGarbageIsRecoverable(t *testing.T) {
	_, err := ipc.DecodeEnvelope([]byte{0xc1, 0xff, 0x00})

	var frameErr *ipc.FrameError
	if !errors.As(err, &frameErr) || frameErr.Kind != ipc.FrameErrorDecode {
		t.Fatalf("err = %v, want decode error", err)
	}
	if ipc.IsFatalFrameError(err) {
		t.Error("decode errors are recoverable, not fatal")
	}
}

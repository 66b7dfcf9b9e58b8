package runtime

import (
	"context"
	"io"

	"github.com/lodeworks/sluice/ipc"
	"github.com/lodeworks/sluice/types"
)

// FragmentSource yields fragment envelopes from an upstream transport.
//
// Next returns io.EOF on clean end of stream. A *ipc.FrameError with
// IsFatal()==false signals a recoverable per-fragment failure: the
// source remains usable and the caller decides whether to keep reading.
type FragmentSource interface {
	Next(ctx context.Context) (*types.FragmentEnvelope, error)
}

// FramedSource reads length-prefixed msgpack envelopes, the producer
// SDK wire format.
type FramedSource struct {
	decoder *ipc.FrameDecoder
}

// NewFramedSource creates a source over a framed byte stream.
func NewFramedSource(r io.Reader) *FramedSource {
	return &FramedSource{decoder: ipc.NewFrameDecoder(r)}
}

// Next reads and decodes one frame.
func (s *FramedSource) Next(_ context.Context) (*types.FragmentEnvelope, error) {
	payload, err := s.decoder.ReadFrame()
	if err != nil {
		return nil, err
	}
	return ipc.DecodeEnvelope(payload)
}

// RawSource adapts a plain text stream into fragment envelopes. Used
// when the input is a capture file or a pipe without framing: each read
// becomes one synthetic envelope with increasing seq.
type RawSource struct {
	r         io.Reader
	buf       []byte
	sessionID string
	seq       int64
}

// DefaultRawChunkSize is the read size for raw input.
const DefaultRawChunkSize = 4096

// NewRawSource creates a raw source reading chunks of chunkSize bytes.
// chunkSize <= 0 uses DefaultRawChunkSize.
func NewRawSource(r io.Reader, sessionID string, chunkSize int) *RawSource {
	if chunkSize <= 0 {
		chunkSize = DefaultRawChunkSize
	}
	return &RawSource{
		r:         r,
		buf:       make([]byte, chunkSize),
		sessionID: sessionID,
	}
}

// Next reads the next chunk and wraps it in a synthetic envelope.
// Returns io.EOF once the underlying reader is exhausted.
func (s *RawSource) Next(_ context.Context) (*types.FragmentEnvelope, error) {
	for {
		n, err := s.r.Read(s.buf)
		if n > 0 {
			s.seq++
			return &types.FragmentEnvelope{
				ContractVersion: types.ContractVersion,
				SessionID:       s.sessionID,
				Seq:             s.seq,
				Text:            string(s.buf[:n]),
			}, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

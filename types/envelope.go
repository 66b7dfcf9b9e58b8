package types

// FragmentEnvelope wraps one fragment of generated text on the inbound
// transport. Fields use msgpack tags to match the producer SDK wire format.
//
// A fragment is any non-empty substring of the logical output stream;
// no alignment to lines, markers, or component boundaries is guaranteed.
type FragmentEnvelope struct {
	// ContractVersion is the semantic version of the envelope contract.
	ContractVersion string `msgpack:"contract_version"`
	// SessionID is the canonical session identifier.
	SessionID string `msgpack:"session_id"`
	// Seq is the monotonic fragment sequence number, starts at 1.
	Seq int64 `msgpack:"seq"`
	// Text is the fragment payload (UTF-8).
	Text string `msgpack:"text"`
	// Final marks the last fragment of the stream (end-of-stream signal).
	Final bool `msgpack:"final"`
}

// SessionMeta carries session identity for logging and reporting.
type SessionMeta struct {
	// SessionID is the canonical session identifier.
	SessionID string
	// RequestID is the upstream request identifier, when known.
	RequestID string
}

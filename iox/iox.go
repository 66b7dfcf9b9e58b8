// Package iox provides small I/O cleanup helpers.
package iox

import "io"

// DiscardClose closes c, dropping the error. For defer sites where a
// close failure has no caller-visible recovery:
//
//	defer iox.DiscardClose(resp.Body)
func DiscardClose(c io.Closer) { _ = c.Close() }

// CloseFunc wraps c.Close for t.Cleanup registration:
//
//	t.Cleanup(iox.CloseFunc(adapter))
func CloseFunc(c io.Closer) func() {
	return func() { _ = c.Close() }
}

// DiscardErr invokes fn and drops its error. For non-Close cleanup such
// as a final Flush where the error is unactionable.
func DiscardErr(fn func() error) { _ = fn() }

// DrainDiscard reads r to EOF and discards the bytes. Draining an HTTP
// response body lets the transport reuse the connection.
func DrainDiscard(r io.Reader) { _, _ = io.Copy(io.Discard, r) }

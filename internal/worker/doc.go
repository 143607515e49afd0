// Package worker runs the protocol dispatcher inside the isolated
// media-engine process.
//
// The dispatcher owns the single engine instance, reads one protocol message
// per line from its input stream, routes typed method requests to engine
// handlers, and answers each call with a result or error tagged with the
// originating id. Engine events are forwarded independently as untagged event
// messages, with rapid time and position updates throttled before they reach
// the wire. Decoded frames cross the process boundary through the bounded
// frame pool.
//
// The input loop is single-threaded: method calls dispatch in arrival order,
// so handlers must not block on engine operations expected to be fast.
package worker

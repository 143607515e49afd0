// Package protocol defines the wire contract spoken between the fermata host
// and the media-engine worker process.
//
// Every exchange is a single newline-delimited JSON message: tagged method
// calls with their matching result or error, untagged engine events, log
// records, and the one-shot ready signal. The package also carries the closed
// set of typed method requests so both sides dispatch on a checked union
// instead of raw method-name strings.
//
// The protocol is closed and versionless: the two processes are always
// deployed together, so no method name may be reused with an incompatible
// argument shape.
package protocol

// Package supervisor owns the media-engine worker's OS process on the host
// side.
//
// It spawns the worker, waits for its readiness signal, multiplexes
// concurrent calls over the shared protocol stream with correlation ids and
// per-call timeouts, and re-emits worker events to host subscribers. On an
// unexpected exit every outstanding call is failed with a typed error and the
// worker is restarted automatically, up to a bound, after a fixed backoff.
//
// Callers interact through Start, Call, Stop, and Subscribe; the typed
// command wrappers live in the player package.
package supervisor

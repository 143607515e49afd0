// Package engine abstracts the native media engine hosted by the worker
// process.
//
// It defines the playback surface the dispatcher drives (open, transport
// control, volume, rate, track selection, surface binding), the tagged event
// variants engines push from their callback threads, and the raw frame types
// used for buffered frame delivery. The package ships a deterministic
// simulated engine so the whole control pipeline runs end-to-end in tests and
// on machines without native bindings.
//
// Native decode and render behaviour stays behind this interface; the control
// layer never reaches past it.
package engine

// Package journal persists playback session history in SQLite.
//
// Each run of the player opens a session; worker lifecycle transitions and
// the media target are recorded against it as they happen. The store is the
// backing for the `fermata sessions` command and survives worker crashes, so
// a restart loop is visible after the fact.
package journal

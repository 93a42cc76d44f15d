// Package service exposes recommendation and search to callers.
//
// Requests pass a Gate that stays closed until the hydrator reports the
// indexes ready and closes again when shutdown begins. Admitted requests run
// on an ants worker pool, optionally behind a token-bucket rate limit, and
// the gate counts them so Drain can wait for the last one before the index is
// persisted.
//
// Item and popularity writes are explicit calls. Recommendations never mark
// items as seen on their own.
package service

// Package keylock provides a table of per-key read/write locks with
// bounded acquisition.
//
// The table hands out an exclusive or shared critical section scoped to
// a single key; operations on distinct keys never block one another.
// Acquisition is bounded: a caller that cannot take the lock within its
// wait budget gets ErrAcquireTimeout instead of blocking indefinitely,
// matching a deployment where the host throttles in-flight requests
// and treats contention as a retryable condition.
//
// Lock entries are reference counted and removed from the table when
// the last holder releases, so the table stays proportional to the
// number of keys currently under contention, not the keyspace.
package keylock

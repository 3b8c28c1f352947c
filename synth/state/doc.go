// Package state converts patch snapshots to portable records, compact share
// tokens and named slots.
//
// Decoding is all or nothing: a malformed record or token yields an error
// wrapping [ErrDecode] and never a partially filled snapshot, so callers can
// decode before touching a live graph.
package state

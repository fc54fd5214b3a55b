// Package runboard implements the core of a leaderboard tracking backend:
// slug-scoped resources with a soft-delete lifecycle, and the single-use,
// time-bound verification tokens that gate account role transitions.
//
// Resource lifecycle:
//   - Leaderboards and Categories carry a nullable deleted_at timestamp and a
//     partial unique index on their slug scoped to non-deleted rows. Deleting
//     frees the slug; restoring can therefore collide with a newer holder.
//     Engine resolves those races against the store's constraint rather than
//     with pre-checks, and reports the live holder as a typed conflict.
//
// Verification tokens:
//   - AccountConfirmation and AccountRecovery rows expire one hour after
//     issuance and flip used_at exactly once. Issuance is role gated; the
//     consumption commands perform the paired role or password transition in
//     the same transaction that marks the token used.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter fed by the lifecycle engine
//     and the token commands. Sinks run best-effort (errors are logged) so you
//     can forward to a database or queue without blocking requests.
package runboard

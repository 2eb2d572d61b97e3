// Package dispatch implements the sequential offer dispatch scheduler that
// assigns print orders to farmers.
//
// A dispatch run drives one order through a ranked candidate snapshot: the
// scheduler offers the order to one farmer at a time, waits up to a fixed
// window for an accept or decline, and advances to the next candidate on
// decline, timeout or delivery failure. The run terminates when a farmer
// accepts or the snapshot is exhausted.
//
// Key components:
//   - Scheduler: owns the runs, enforces the at-most-one-pending-offer
//     invariant and is the sole writer of order status during a run.
//   - CandidateRanker: produces the ordered candidate snapshot (core/ranking).
//   - channel.OfferChannel: pushes offers to farmers (infra/channel).
//   - OrderStore: the order records mutated at run completion.
//
// Farmer responses arrive out of band through Scheduler.SubmitResponse; the
// race between a response and the offer timer is resolved by a per-run mutex
// so that exactly one terminal transition wins per offer.
package dispatch

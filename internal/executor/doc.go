// Package executor runs a single scheduled node on a worker.
//
// Run drives a node through its lifecycle:
//
//  1. A node whose round is already canceled only counts itself down.
//  2. Start successors are released as soon as the node begins.
//  3. Collect runs under the round's version stamp, which is compared with
//     the document's current version before and after collecting.
//  4. The round's apply hook publishes the results.
//  5. Completion successors are released.
//  6. The round's outstanding countdown is decremented; the last node stops
//     the round's token.
//
// A stale document, an observed cancellation, or a fault in collect or apply
// cancels the whole round: the token records the cause and every handle of
// the round is canceled.
package executor

// Package dag builds the dependency graph of one scheduling round.
//
// Each document contributes an ordered list of pass descriptors. The builder
// turns every descriptor into a node.Node kept in an arena keyed by
// (document, pass id), wires the two edge kinds between them, and reports
// which nodes can be submitted right away. Predecessor references resolve
// within their own document regardless of declaration order.
//
// Two edge kinds exist:
//
//   - start edges release the successor as soon as the predecessor begins
//     running;
//   - completion edges release the successor once the predecessor has
//     collected and applied its results.
//
// A descriptor that declares no predecessors of either kind, and is not the
// first of its document, is chained to the descriptor before it with a
// completion edge. A plain list of passes therefore runs in order.
package dag

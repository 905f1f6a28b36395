/*
Package nodeid provides the structured identifier of a scheduled node: the
document it belongs to plus the pass identifier within that document.

The canonical string form is `document:pass`. Pass identifiers never contain
a colon, so the last colon always separates the two parts, and document
names such as `C:\src\main.go` survive a round trip.
*/
package nodeid

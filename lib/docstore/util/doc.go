// Package util provides data structures shared by the document engines.
//
// Key Components:
//
//   - MapHeap: a min-heap with O(1) key lookup. The in-memory engine keeps one per
//     collection, keyed by document ID and ordered by expiry deadline, so its garbage
//     collector only touches documents that are actually due.
package util

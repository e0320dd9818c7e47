// Package util provides small concurrency helpers shared by the client packages.
//
// Mailbox is an unbounded lock-free multi-producer single-consumer queue with a
// channel based receive side. It backs the per-connection event channel:
// the transport's read goroutine pushes without ever blocking, a single
// dispatch loop consumes, and closing the mailbox is an explicit, observable
// end of the event stream (the receive channel is closed after the last item).
package util

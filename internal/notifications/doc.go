// Package notifications forwards golem events to an ntfy topic.
//
// The daemon hands every golem update to a Forwarder, which posts Error
// events, finished jobs and settled invoices, each switchable in
// config.toml. Without a topic the package is inert. Posting happens on a
// dedicated goroutine behind a bounded queue; when the queue is full the
// update is dropped and logged at debug level. Repeats within the dedup
// window are suppressed.
package notifications

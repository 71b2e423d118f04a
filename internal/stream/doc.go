// Package stream provides the publish/subscribe registries behind the log and
// overlay event streams. A Hub never blocks publishers: each subscriber owns a
// bounded channel and items that do not fit are dropped for that subscriber.
// New subscribers first receive the hub's backlog, then live items, with no
// gap or overlap between the two.
package stream

// Package storage keeps an append-only audit trail of subscription changes.
//
// The trail is write-mostly: it is never replayed into the subscriber store,
// so a restart always begins with no subscribers.
package storage

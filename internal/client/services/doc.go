// Package services holds the client's application state: the session
// manager, the durable token store, and the invoice synchronizers that keep
// a local copy of server resources.
//
// Every component owns its state behind a mutex and hands out snapshots.
// Observers registered with Subscribe are called outside the lock after each
// change. Long-lived components expose Close to stop background work and
// detach observers.
package services

// Package cli provides the interactive invoicekeeper command-line client.
//
// App owns a session manager and the invoice synchronizers, and acts as the
// session's Navigator and Notifier. Run restores a stored session, then
// serves a REPL while a background watcher logs the user out when the
// session expires.
//
// Key features:
//   - register, login, forgot and reset password, logout
//   - dashboard with invoice totals
//   - list, show, add, edit and delete invoices
package cli

// Package engine hosts one signature-request session behind a mutex. It
// applies operator operations through the pure workflow reducer, runs the
// single outstanding dispatch with a cancelable context, and keeps a JSON
// draft of the session so an interrupted operator can resume.
package engine

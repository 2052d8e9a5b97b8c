// Package session owns one authenticated RouterOS API connection.
//
// Ownership boundary:
// - tcp/tls dial and per-exchange deadlines
// - the two-step /login handshake
// - command execution until !done or !trap
// - fixed-interval retry policy used by polling callers
package session

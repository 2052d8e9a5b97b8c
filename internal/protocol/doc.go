// Package protocol owns the RouterOS API sentence contract.
//
// Ownership boundary:
// - sentence write/read on top of word framing (see package word)
// - reply tag classification (!done, !re, !trap, !fatal)
// - attribute, query and proplist word helpers
// - command sentence validation
package protocol

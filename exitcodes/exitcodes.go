// Package exitcodes defines the standard exit codes used by nb-acceptor.
package exitcodes

// Exit code constants used by nb-acceptor:
//
// * Success (0): Used when every notebook passes
// * TestFailure (1): Used when one or more notebooks fail
// * RuntimeErr (2): Used for runtime errors such as discovery or base
//   environment build failures
const (
	Success     = 0 // All notebooks pass
	TestFailure = 1 // Notebook failures
	RuntimeErr  = 2 // Runtime errors
)

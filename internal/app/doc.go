// Package app wires the pieces together: job loading, the parser registry,
// the local executor, one restart controller per job, and the health and
// metrics server. It is independent of the command line that drives it.
package app

// Package daemon hosts the long-running spectral process: the HTTP API, the
// enhancement manager, and the single-instance lock that keeps concurrent
// daemons off the same data directory.
package daemon
